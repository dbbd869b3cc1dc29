package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput covers inputs rejected before any computation:
	// non-positive principal or term, negative rate, a payment too small to
	// ever amortize the principal.
	ErrInvalidInput = errors.New("invalid loan input")

	// ErrStaleSchedule is returned when a reconciliation operation is given
	// a schedule whose version no longer matches the loan's current
	// parameters. The caller must regenerate before retrying.
	ErrStaleSchedule = errors.New("schedule is stale for the loan's current parameters")

	// ErrEntryNotFound is returned when an installment sequence does not
	// exist in the supplied schedule.
	ErrEntryNotFound = errors.New("schedule entry not found")
)

// ConvergenceError reports that the iterative rate search exhausted its
// iteration budget or that the bracketing interval contains no root. The
// inputs may be individually valid but jointly infeasible, which is why this
// is distinct from ErrInvalidInput.
type ConvergenceError struct {
	Reason     string
	Iterations int
}

func (e *ConvergenceError) Error() string {
	if e.Iterations > 0 {
		return fmt.Sprintf("rate solver did not converge after %d iterations: %s", e.Iterations, e.Reason)
	}
	return fmt.Sprintf("rate solver cannot converge: %s", e.Reason)
}
