package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jsvitok/finman/pkg/models"
)

// LumpSumStrategy selects how the schedule tail is rebuilt after an
// unscheduled extra principal payment.
type LumpSumStrategy string

const (
	// StrategyReduceTerm keeps the periodic payment and shortens the
	// remaining term.
	StrategyReduceTerm LumpSumStrategy = "reduce_term"
	// StrategyRecalculatePayment keeps the remaining term and lowers the
	// periodic payment.
	StrategyRecalculatePayment LumpSumStrategy = "recalculate_payment"
)

// MarkPaid marks the installment with the given sequence as paid at paidAt
// and returns a new schedule; the input slice is never mutated. Calling it
// twice with identical arguments yields the same result.
//
// When actualAmount is supplied and differs from the scheduled total, the
// delta is applied as a principal adjustment against the next unpaid
// installment only: an overpayment reduces its principal portion, an
// underpayment increases it. Deltas too large for a single installment are
// rejected; the caller should record a lump sum (overpayment) or amend the
// loan (underpayment) instead.
func MarkPaid(l *models.Loan, schedule []models.ScheduleEntry, seq int, paidAt time.Time, actualAmount *decimal.Decimal) ([]models.ScheduleEntry, error) {
	if err := checkVersion(l, schedule); err != nil {
		return nil, err
	}
	out := cloneSchedule(schedule)
	idx := indexOf(out, seq)
	if idx < 0 {
		return nil, fmt.Errorf("%w: sequence %d", ErrEntryNotFound, seq)
	}

	entry := &out[idx]
	if entry.PaidAt != nil {
		if entry.PaidAt.Equal(paidAt) {
			return out, nil
		}
		// Re-marking an already-paid installment only moves the paid date;
		// any earlier delta stands.
		t := paidAt
		entry.PaidAt = &t
		return out, nil
	}

	t := paidAt
	entry.PaidAt = &t
	entry.Status = models.StatusPaid

	if actualAmount != nil {
		if err := applyDelta(out, idx, actualAmount.Sub(entry.TotalDue)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// applyDelta shifts an over/under-payment delta between the paid entry and
// the next unpaid one, keeping principal conservation and the balance chain
// intact.
func applyDelta(schedule []models.ScheduleEntry, idx int, delta decimal.Decimal) error {
	if delta.IsZero() {
		return nil
	}
	next := -1
	for j := idx + 1; j < len(schedule); j++ {
		if schedule[j].PaidAt == nil {
			next = j
			break
		}
	}
	if next < 0 {
		return fmt.Errorf("%w: no later installment can absorb a payment delta of %s; record a lump sum or amend the loan", ErrInvalidInput, delta)
	}
	if delta.IsPositive() && delta.GreaterThan(schedule[next].PrincipalDue) {
		return fmt.Errorf("%w: overpayment of %s exceeds the next installment's principal %s; apply a lump sum instead", ErrInvalidInput, delta, schedule[next].PrincipalDue)
	}
	if delta.IsNegative() && delta.Neg().GreaterThan(schedule[idx].PrincipalDue) {
		return fmt.Errorf("%w: underpayment of %s does not cover interest and fees", ErrInvalidInput, delta.Neg())
	}

	schedule[idx].PrincipalDue = schedule[idx].PrincipalDue.Add(delta)
	schedule[idx].TotalDue = schedule[idx].TotalDue.Add(delta)
	schedule[next].PrincipalDue = schedule[next].PrincipalDue.Sub(delta)
	schedule[next].TotalDue = schedule[next].TotalDue.Sub(delta)
	for k := idx; k < next; k++ {
		schedule[k].RemainingBalance = schedule[k].RemainingBalance.Sub(delta)
	}
	return nil
}

// RemovePayment reverts a paid installment to whatever status the classifier
// computes for it now. Removing a payment from an unpaid installment is a
// no-op, not an error.
func RemovePayment(l *models.Loan, schedule []models.ScheduleEntry, seq int, now time.Time) ([]models.ScheduleEntry, error) {
	if err := checkVersion(l, schedule); err != nil {
		return nil, err
	}
	out := cloneSchedule(schedule)
	idx := indexOf(out, seq)
	if idx < 0 {
		return nil, fmt.Errorf("%w: sequence %d", ErrEntryNotFound, seq)
	}
	if out[idx].PaidAt == nil {
		return out, nil
	}
	out[idx].PaidAt = nil
	out[idx].Status = Classify(out[idx].DueDate, nil, now)
	return out, nil
}

// ApplyLumpSum records an unscheduled principal payment of amount at
// effectiveDate and regenerates the schedule tail according to the strategy.
// Installments already paid, or due before the effective date, are preserved
// unchanged; the lump sum itself appears as an extra paid installment so the
// balance chain still sums and terminates at zero.
//
// The loan's term (and, under StrategyRecalculatePayment, its payment) and
// schedule version are updated to match the returned schedule; the caller
// persists loan and schedule together.
func ApplyLumpSum(l *models.Loan, schedule []models.ScheduleEntry, amount decimal.Decimal, strategy LumpSumStrategy, effectiveDate time.Time) ([]models.ScheduleEntry, error) {
	if err := checkVersion(l, schedule); err != nil {
		return nil, err
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: lump sum must be positive", ErrInvalidInput)
	}

	split, remaining := splitAt(l, schedule, effectiveDate)
	if remaining.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: loan principal is already fully repaid", ErrInvalidInput)
	}

	// Full payoff collapses the rest of the schedule into the single lump
	// installment rather than producing a zero or negative term.
	capped := amount
	if capped.GreaterThan(remaining) {
		capped = remaining
	}
	newPrincipal := remaining.Sub(capped)

	version := l.ScheduleVersion + 1
	out := cloneSchedule(schedule[:split])
	for i := range out {
		out[i].ScheduleVersion = version
	}

	paidAt := effectiveDate
	out = append(out, models.ScheduleEntry{
		ID:               uuid.New(),
		LoanID:           l.ID,
		Sequence:         split + 1,
		DueDate:          effectiveDate,
		PrincipalDue:     capped,
		InterestDue:      decimal.Zero,
		FeeDue:           decimal.Zero,
		TotalDue:         capped,
		RemainingBalance: newPrincipal,
		Status:           models.StatusPaid,
		PaidAt:           &paidAt,
		ScheduleVersion:  version,
	})

	if newPrincipal.IsZero() {
		l.ScheduleVersion = version
		l.TermMonths = len(out)
		return out, nil
	}

	// The tail keeps the original monthly grid where it exists.
	firstDue := effectiveDate.AddDate(0, 1, 0)
	if split < len(schedule) {
		firstDue = schedule[split].DueDate
	}
	remainingPeriods := len(schedule) - split
	if remainingPeriods < 1 {
		remainingPeriods = 1
	}

	periods := remainingPeriods
	payment := l.Payment
	switch strategy {
	case StrategyReduceTerm:
		switch l.Style {
		case models.StyleAnnuity:
			solved, err := SolveTerm(newPrincipal, l.AnnualRate, l.Payment)
			if err != nil {
				return nil, err
			}
			periods = solved
		case models.StyleFixedPrincipal:
			base := tailPrincipalPortion(l, schedule, split)
			periods = int(newPrincipal.Div(base).Ceil().IntPart())
			if periods < 1 {
				periods = 1
			}
		case models.StyleInterestOnly:
			// Principal is only due in the balloon; a lump sum shrinks the
			// balloon and the interest on it, the term stays.
		}
	case StrategyRecalculatePayment:
		if l.Style == models.StyleAnnuity {
			solved, err := SolvePayment(newPrincipal, l.AnnualRate, periods, l.Style)
			if err != nil {
				return nil, err
			}
			payment = solved
			l.Payment = payment
		}
	default:
		return nil, fmt.Errorf("%w: unknown lump sum strategy %q", ErrInvalidInput, strategy)
	}

	tail, err := amortize(tailParams{
		loanID:       l.ID,
		principal:    newPrincipal,
		annualRate:   l.AnnualRate,
		style:        l.Style,
		payment:      payment,
		periods:      periods,
		startSeq:     split + 2,
		firstDue:     firstDue,
		oneTimeFee:   decimal.Zero,
		recurringFee: l.RecurringFee,
		version:      version,
	})
	if err != nil {
		return nil, err
	}
	out = append(out, tail...)

	l.ScheduleVersion = version
	l.TermMonths = len(out)
	return out, nil
}

// splitAt returns the index of the first installment that is unpaid and due
// on or after the effective date, along with the principal outstanding just
// before it.
func splitAt(l *models.Loan, schedule []models.ScheduleEntry, effectiveDate time.Time) (int, decimal.Decimal) {
	split := len(schedule)
	for i, e := range schedule {
		if e.PaidAt == nil && compareDate(e.DueDate, effectiveDate) >= 0 {
			split = i
			break
		}
	}
	remaining := l.Principal
	if split > 0 {
		remaining = schedule[split-1].RemainingBalance
	}
	return split, remaining
}

// tailPrincipalPortion recovers the level principal portion a fixed-principal
// tail should keep, preferring the first replaced installment.
func tailPrincipalPortion(l *models.Loan, schedule []models.ScheduleEntry, split int) decimal.Decimal {
	if split < len(schedule) && schedule[split].PrincipalDue.IsPositive() {
		return schedule[split].PrincipalDue
	}
	return l.Principal.DivRound(decimal.NewFromInt(int64(l.TermMonths)), 2)
}

func checkVersion(l *models.Loan, schedule []models.ScheduleEntry) error {
	for i := range schedule {
		if schedule[i].ScheduleVersion != l.ScheduleVersion {
			return fmt.Errorf("%w: entry %d has version %d, loan has %d", ErrStaleSchedule, schedule[i].Sequence, schedule[i].ScheduleVersion, l.ScheduleVersion)
		}
	}
	return nil
}

func indexOf(schedule []models.ScheduleEntry, seq int) int {
	for i := range schedule {
		if schedule[i].Sequence == seq {
			return i
		}
	}
	return -1
}

// cloneSchedule deep-copies a schedule so reconciliation can hand back a new
// slice without aliasing the caller's entries.
func cloneSchedule(schedule []models.ScheduleEntry) []models.ScheduleEntry {
	out := make([]models.ScheduleEntry, len(schedule))
	copy(out, schedule)
	for i := range out {
		if out[i].PaidAt != nil {
			t := *out[i].PaidAt
			out[i].PaidAt = &t
		}
	}
	return out
}
