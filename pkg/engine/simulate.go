package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jsvitok/finman/pkg/models"
)

// Preview is the side-by-side outcome of an early repayment: continue as is
// versus apply the lump sum now. It is a read-only view, never persisted.
type Preview struct {
	BaselineTotalInterest decimal.Decimal `json:"baseline_total_interest"`
	AdjustedTotalInterest decimal.Decimal `json:"adjusted_total_interest"`
	InterestSaved         decimal.Decimal `json:"interest_saved"`
	BaselineTermMonths    int             `json:"baseline_term_months"`
	AdjustedTermMonths    int             `json:"adjusted_term_months"`
	BaselinePayment       decimal.Decimal `json:"baseline_payment"`
	AdjustedPayment       decimal.Decimal `json:"adjusted_payment"`
	FullPayoff            bool            `json:"full_payoff"`
}

// PreviewEarlyRepayment diffs the current schedule against a hypothetical
// one with the lump sum applied. Neither the loan nor the schedule passed in
// is mutated; the simulation runs on copies.
func PreviewEarlyRepayment(l *models.Loan, schedule []models.ScheduleEntry, amount decimal.Decimal, strategy LumpSumStrategy, effectiveDate time.Time) (*Preview, error) {
	loanCopy := *l
	_, remaining := splitAt(l, schedule, effectiveDate)

	adjusted, err := ApplyLumpSum(&loanCopy, schedule, amount, strategy, effectiveDate)
	if err != nil {
		return nil, err
	}

	baseInterest := totalInterest(schedule)
	adjInterest := totalInterest(adjusted)

	return &Preview{
		BaselineTotalInterest: baseInterest,
		AdjustedTotalInterest: adjInterest,
		InterestSaved:         baseInterest.Sub(adjInterest),
		BaselineTermMonths:    len(schedule),
		AdjustedTermMonths:    len(adjusted),
		BaselinePayment:       l.Payment,
		AdjustedPayment:       loanCopy.Payment,
		FullPayoff:            amount.GreaterThanOrEqual(remaining),
	}, nil
}
