package engine

import (
	"github.com/shopspring/decimal"

	"github.com/jsvitok/finman/pkg/models"
)

// EffectiveRate computes the annualized all-in cost of a finalized schedule
// as a percentage: total interest plus total fees, amortized over the
// principal and the term. It is a display figure, distinct from the nominal
// contractual rate, and has no effect on the schedule itself.
func EffectiveRate(schedule []models.ScheduleEntry, principal decimal.Decimal, termMonths int) decimal.Decimal {
	if principal.LessThanOrEqual(decimal.Zero) || termMonths <= 0 {
		return decimal.Zero
	}
	cost := totalInterest(schedule).Add(totalFees(schedule))
	years := decimal.NewFromInt(int64(termMonths)).Div(twelve)
	return cost.Div(principal).Div(years).Mul(hundred).Round(2)
}
