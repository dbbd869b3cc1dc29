package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CalcMode identifies which loan variable, if any, must be solved for
// before a schedule can be generated.
type CalcMode string

const (
	// ModeSolvePayment is the normal case: rate and term are contractual,
	// the periodic payment is derived.
	ModeSolvePayment CalcMode = "solve_payment"
	// ModeSolveRate derives the annual rate from a known term and payment.
	ModeSolveRate CalcMode = "solve_rate"
	// ModeSolveTerm derives the term from a known rate and payment.
	ModeSolveTerm CalcMode = "solve_term"
)

// AmortizationStyle selects how principal is spread across installments.
type AmortizationStyle string

const (
	StyleAnnuity        AmortizationStyle = "annuity"         // level total payment
	StyleFixedPrincipal AmortizationStyle = "fixed_principal" // level principal portion
	StyleInterestOnly   AmortizationStyle = "interest_only"   // balloon principal at the end
)

// EntryStatus is the reconciliation state of a single installment.
type EntryStatus string

const (
	StatusPending EntryStatus = "pending"
	StatusPaid    EntryStatus = "paid"
	StatusOverdue EntryStatus = "overdue"
)

type Loan struct {
	ID           uuid.UUID         `json:"id"`
	HouseholdKey string            `json:"household_key"` // Link to the owning household in the external system
	Name         string            `json:"name"`
	Principal    decimal.Decimal   `json:"principal"`
	AnnualRate   decimal.Decimal   `json:"annual_rate"` // Nominal annual rate as a percentage, e.g. 5 = 5% p.a.
	TermMonths   int               `json:"term_months"`
	Payment      decimal.Decimal   `json:"payment"` // Periodic payment; input or derived depending on Mode
	Mode         CalcMode          `json:"mode"`
	Style        AmortizationStyle `json:"style"`
	OneTimeFee   decimal.Decimal   `json:"one_time_fee"`  // Attached to the first installment
	RecurringFee decimal.Decimal   `json:"recurring_fee"` // Attached to every installment
	StartDate    time.Time         `json:"start_date"`    // First installment falls due one month later
	Status       string            `json:"status"`        // e.g., "active", "closed"
	// ScheduleVersion increments every time the schedule is regenerated
	// wholesale. Entries carry the version they were generated under, which
	// lets reconciliation detect a stale schedule.
	ScheduleVersion int       `json:"schedule_version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ScheduleEntry struct {
	ID               uuid.UUID       `json:"id"`
	LoanID           uuid.UUID       `json:"loan_id"`
	Sequence         int             `json:"sequence"` // 1-based, contiguous per loan
	DueDate          time.Time       `json:"due_date"`
	PrincipalDue     decimal.Decimal `json:"principal_due"`
	InterestDue      decimal.Decimal `json:"interest_due"`
	FeeDue           decimal.Decimal `json:"fee_due"`
	TotalDue         decimal.Decimal `json:"total_due"`         // PrincipalDue + InterestDue + FeeDue
	RemainingBalance decimal.Decimal `json:"remaining_balance"` // Principal balance after this installment
	Status           EntryStatus     `json:"status"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	ScheduleVersion  int             `json:"schedule_version"`
}

type PaymentEventType string

const (
	PaymentEventDisbursement  PaymentEventType = "disbursement"
	PaymentEventMarkPaid      PaymentEventType = "mark_paid"
	PaymentEventRemovePayment PaymentEventType = "remove_payment"
	PaymentEventLumpSum       PaymentEventType = "lump_sum"
)

// PaymentEvent is the audit record of a reconciliation action against a
// loan's schedule. Events are append-only; the schedule itself carries the
// derived state.
type PaymentEvent struct {
	ID          uuid.UUID        `json:"id"`
	LoanID      uuid.UUID        `json:"loan_id"`
	Sequence    int              `json:"sequence,omitempty"` // Installment sequence, 0 for loan-level events
	Type        PaymentEventType `json:"type"`
	Amount      decimal.Decimal  `json:"amount"`
	EffectiveAt time.Time        `json:"effective_at"`
	RecordedAt  time.Time        `json:"recorded_at"`
}
