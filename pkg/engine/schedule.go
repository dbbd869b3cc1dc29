package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jsvitok/finman/pkg/models"
)

// Generate produces the complete installment schedule for a loan whose
// variables have all been resolved (see Resolve). The schedule is a fresh
// slice every time; existing schedules are replaced wholesale, never patched.
//
// Guarantees for the returned entries:
//   - sequences are 1-based and contiguous,
//   - the remaining balance is non-increasing and exactly zero at the end,
//   - principal portions sum to the loan principal exactly (rounding residue
//     is absorbed into the final installment),
//   - TotalDue = PrincipalDue + InterestDue + FeeDue for every entry.
func Generate(l *models.Loan) ([]models.ScheduleEntry, error) {
	if l.Principal.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: principal must be positive", ErrInvalidInput)
	}
	if l.TermMonths <= 0 {
		return nil, fmt.Errorf("%w: term must be positive", ErrInvalidInput)
	}
	if l.AnnualRate.IsNegative() {
		return nil, fmt.Errorf("%w: rate must not be negative", ErrInvalidInput)
	}

	return amortize(tailParams{
		loanID:       l.ID,
		principal:    l.Principal,
		annualRate:   l.AnnualRate,
		style:        l.Style,
		payment:      l.Payment,
		periods:      l.TermMonths,
		startSeq:     1,
		firstDue:     l.StartDate.AddDate(0, 1, 0),
		oneTimeFee:   l.OneTimeFee,
		recurringFee: l.RecurringFee,
		version:      l.ScheduleVersion,
	})
}

// tailParams parameterizes amortize so that full generation and tail
// regeneration after a lump sum share one loop.
type tailParams struct {
	loanID       uuid.UUID
	principal    decimal.Decimal
	annualRate   decimal.Decimal
	style        models.AmortizationStyle
	payment      decimal.Decimal // level payment, annuity style only
	periods      int
	startSeq     int
	firstDue     time.Time
	oneTimeFee   decimal.Decimal
	recurringFee decimal.Decimal
	version      int
}

func amortize(p tailParams) ([]models.ScheduleEntry, error) {
	r := periodicRate(p.annualRate)
	n := p.periods
	remaining := p.principal
	entries := make([]models.ScheduleEntry, 0, n)

	var fixedPortion decimal.Decimal
	if p.style == models.StyleFixedPrincipal {
		fixedPortion = p.principal.DivRound(decimal.NewFromInt(int64(n)), 2)
	}

	for i := 0; i < n; i++ {
		interest := remaining.Mul(r).Round(2)

		var principalDue decimal.Decimal
		switch p.style {
		case models.StyleAnnuity:
			principalDue = p.payment.Sub(interest)
		case models.StyleFixedPrincipal:
			principalDue = fixedPortion
		case models.StyleInterestOnly:
			principalDue = decimal.Zero
		default:
			return nil, fmt.Errorf("%w: unknown amortization style %q", ErrInvalidInput, p.style)
		}

		// Final installment absorbs the cumulative rounding drift so the
		// balance lands on exactly zero.
		if i == n-1 {
			principalDue = remaining
		}
		if principalDue.GreaterThan(remaining) {
			principalDue = remaining
		}
		if principalDue.IsNegative() {
			return nil, fmt.Errorf("%w: payment %s does not cover interest %s in period %d", ErrInvalidInput, p.payment, interest, p.startSeq+i)
		}
		remaining = remaining.Sub(principalDue)

		fee := p.recurringFee
		if i == 0 && p.oneTimeFee.IsPositive() {
			fee = fee.Add(p.oneTimeFee)
		}

		entries = append(entries, models.ScheduleEntry{
			ID:               uuid.New(),
			LoanID:           p.loanID,
			Sequence:         p.startSeq + i,
			DueDate:          p.firstDue.AddDate(0, i, 0),
			PrincipalDue:     principalDue,
			InterestDue:      interest,
			FeeDue:           fee,
			TotalDue:         principalDue.Add(interest).Add(fee),
			RemainingBalance: remaining,
			Status:           models.StatusPending,
			ScheduleVersion:  p.version,
		})
	}

	return entries, nil
}

// totalInterest sums the interest portions across a schedule.
func totalInterest(schedule []models.ScheduleEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range schedule {
		sum = sum.Add(e.InterestDue)
	}
	return sum
}

// totalFees sums the fee portions across a schedule.
func totalFees(schedule []models.ScheduleEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range schedule {
		sum = sum.Add(e.FeeDue)
	}
	return sum
}
