package engine

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/jsvitok/finman/pkg/models"
)

const (
	// solveTolerance is the relative convergence tolerance for the
	// iterative rate search.
	solveTolerance = 1e-8
	// maxIterations bounds the bisection loop.
	maxIterations = 100
	// maxAnnualRatePercent is the upper end of the bracketing interval; a
	// payment implying more than 100% APR is treated as infeasible.
	maxAnnualRatePercent = 100.0
)

var (
	twelve  = decimal.NewFromInt(12)
	hundred = decimal.NewFromInt(100)
)

// periodicRate converts a nominal annual percentage to a monthly fraction,
// e.g. 5 -> 0.05/12.
func periodicRate(annualRatePercent decimal.Decimal) decimal.Decimal {
	return annualRatePercent.Div(hundred).Div(twelve)
}

// annuityPayment is the level payment amortizing principal at monthly rate r
// over n periods. Root-finding runs in float64; monetary results are
// converted back to decimal by the callers.
func annuityPayment(principal, r float64, n int) float64 {
	if r == 0 {
		return principal / float64(n)
	}
	return principal * r / (1 - math.Pow(1+r, -float64(n)))
}

// SolvePayment computes the periodic payment for a fully-known loan. For the
// annuity style this is the level total payment; for fixed-principal it is
// the first (largest) installment; for interest-only the recurring interest
// charge.
func SolvePayment(principal, annualRatePercent decimal.Decimal, termMonths int, style models.AmortizationStyle) (decimal.Decimal, error) {
	if err := validateKnowns(principal, &annualRatePercent, termMonths); err != nil {
		return decimal.Zero, err
	}
	r := periodicRate(annualRatePercent)
	switch style {
	case models.StyleAnnuity:
		p := annuityPayment(principal.InexactFloat64(), r.InexactFloat64(), termMonths)
		return decimal.NewFromFloat(p).Round(2), nil
	case models.StyleFixedPrincipal:
		base := principal.DivRound(decimal.NewFromInt(int64(termMonths)), 2)
		return base.Add(principal.Mul(r).Round(2)), nil
	case models.StyleInterestOnly:
		return principal.Mul(r).Round(2), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: unknown amortization style %q", ErrInvalidInput, style)
	}
}

// SolveRate recovers the annual rate (as a percentage) from a known
// principal, term and level payment. There is no closed form, so the annuity
// payment function is bisected on [0, maxAnnualRatePercent]. The payment
// function is strictly increasing in the rate, which guarantees a unique
// root whenever one is bracketed.
func SolveRate(principal decimal.Decimal, termMonths int, payment decimal.Decimal) (decimal.Decimal, error) {
	if err := validateKnowns(principal, nil, termMonths); err != nil {
		return decimal.Zero, err
	}
	if payment.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: payment must be positive", ErrInvalidInput)
	}

	p := principal.InexactFloat64()
	a := payment.InexactFloat64()
	n := termMonths

	lo, hi := 0.0, maxAnnualRatePercent/100.0/12.0
	fLo := annuityPayment(p, lo, n) - a
	fHi := annuityPayment(p, hi, n) - a

	if fLo > 0 {
		// The zero-rate payment already exceeds the known payment, so the
		// only solution would be a negative rate.
		return decimal.Zero, &ConvergenceError{Reason: "payment is too low to amortize the principal at any non-negative rate"}
	}
	if fHi < 0 {
		return decimal.Zero, &ConvergenceError{Reason: fmt.Sprintf("payment implies a rate above %.0f%% APR", maxAnnualRatePercent)}
	}

	for i := 0; i < maxIterations; i++ {
		mid := (lo + hi) / 2
		fMid := annuityPayment(p, mid, n) - a
		if math.Abs(fMid) <= solveTolerance*a {
			return decimal.NewFromFloat(mid * 12 * 100), nil
		}
		if fMid < 0 {
			lo = mid
		} else {
			hi = mid
		}
	}
	// The bracket shrinks by half each iteration; reaching the budget with
	// the residual still above tolerance means the inputs are numerically
	// hostile.
	mid := (lo + hi) / 2
	if math.Abs(annuityPayment(p, mid, n)-a) <= solveTolerance*a*10 {
		return decimal.NewFromFloat(mid * 12 * 100), nil
	}
	return decimal.Zero, &ConvergenceError{Reason: "residual above tolerance", Iterations: maxIterations}
}

// SolveTerm recovers the number of monthly periods from a known principal,
// rate and level payment via the closed-form annuity term formula. The
// payment must exceed one period's interest-only charge, otherwise the term
// would be infinite.
func SolveTerm(principal, annualRatePercent, payment decimal.Decimal) (int, error) {
	if principal.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("%w: principal must be positive", ErrInvalidInput)
	}
	if annualRatePercent.IsNegative() {
		return 0, fmt.Errorf("%w: rate must not be negative", ErrInvalidInput)
	}
	if payment.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("%w: payment must be positive", ErrInvalidInput)
	}

	p := principal.InexactFloat64()
	a := payment.InexactFloat64()
	r := periodicRate(annualRatePercent).InexactFloat64()

	if r == 0 {
		return roundTerm(p / a), nil
	}

	interestOnly := p * r
	if a <= interestOnly {
		return 0, fmt.Errorf("%w: payment %.2f does not exceed the periodic interest charge %.2f, principal would never amortize", ErrInvalidInput, a, interestOnly)
	}

	// n = -ln(1 - P*r/A) / ln(1+r)
	n := -math.Log(1-p*r/a) / math.Log(1+r)
	return roundTerm(n), nil
}

// roundTerm rounds a fractional period count up, except when it sits within
// cent-rounding distance of an integer: a payment rounded down by half a
// cent must not grow the term by a whole period.
func roundTerm(n float64) int {
	nearest := math.Round(n)
	term := int(math.Ceil(n))
	if math.Abs(n-nearest) < 0.01 {
		term = int(nearest)
	}
	if term < 1 {
		term = 1
	}
	return term
}

// Resolve fills in the loan variable designated by its calculation mode,
// validating all known inputs first. Solve-rate and solve-term modes are
// only meaningful for the annuity style, where the payment is level.
func Resolve(l *models.Loan) error {
	if l.Principal.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: principal must be positive", ErrInvalidInput)
	}
	switch l.Style {
	case models.StyleAnnuity, models.StyleFixedPrincipal, models.StyleInterestOnly:
	default:
		return fmt.Errorf("%w: unknown amortization style %q", ErrInvalidInput, l.Style)
	}

	switch l.Mode {
	case models.ModeSolvePayment:
		payment, err := SolvePayment(l.Principal, l.AnnualRate, l.TermMonths, l.Style)
		if err != nil {
			return err
		}
		l.Payment = payment
	case models.ModeSolveRate:
		if l.Style != models.StyleAnnuity {
			return fmt.Errorf("%w: rate can only be solved for annuity loans", ErrInvalidInput)
		}
		rate, err := SolveRate(l.Principal, l.TermMonths, l.Payment)
		if err != nil {
			return err
		}
		l.AnnualRate = rate
	case models.ModeSolveTerm:
		if l.Style != models.StyleAnnuity {
			return fmt.Errorf("%w: term can only be solved for annuity loans", ErrInvalidInput)
		}
		term, err := SolveTerm(l.Principal, l.AnnualRate, l.Payment)
		if err != nil {
			return err
		}
		l.TermMonths = term
	default:
		return fmt.Errorf("%w: unknown calculation mode %q", ErrInvalidInput, l.Mode)
	}
	return nil
}

func validateKnowns(principal decimal.Decimal, annualRatePercent *decimal.Decimal, termMonths int) error {
	if principal.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: principal must be positive", ErrInvalidInput)
	}
	if annualRatePercent != nil && annualRatePercent.IsNegative() {
		return fmt.Errorf("%w: rate must not be negative", ErrInvalidInput)
	}
	if termMonths <= 0 {
		return fmt.Errorf("%w: term must be positive", ErrInvalidInput)
	}
	return nil
}
