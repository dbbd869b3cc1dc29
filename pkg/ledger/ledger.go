package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jsvitok/finman/pkg/engine"
	"github.com/jsvitok/finman/pkg/metrics"
	"github.com/jsvitok/finman/pkg/models"
	"github.com/jsvitok/finman/pkg/store"
)

// Ledger orchestrates the amortization engine against a Storage
// implementation. The engine itself is pure; the ledger owns loading the
// freshest state, persisting results atomically, and recording the payment
// event audit trail.
type Ledger struct {
	storage store.Storage
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage) *Ledger {
	return &Ledger{storage: s}
}

// CreateLoan validates the loan, solves the variable designated by its
// calculation mode, generates the full schedule and persists everything
// together with a disbursement event.
func (l *Ledger) CreateLoan(loan *models.Loan) ([]models.ScheduleEntry, error) {
	loan.ID = uuid.New()
	loan.Status = "active"
	loan.ScheduleVersion = 1
	loan.CreatedAt = time.Now()
	loan.UpdatedAt = loan.CreatedAt

	if err := engine.Resolve(loan); err != nil {
		metrics.SolverRuns.WithLabelValues(string(loan.Mode), "error").Inc()
		return nil, err
	}
	metrics.SolverRuns.WithLabelValues(string(loan.Mode), "ok").Inc()

	schedule, err := engine.Generate(loan)
	if err != nil {
		return nil, err
	}
	metrics.SchedulesGenerated.WithLabelValues(string(loan.Style)).Inc()

	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}
	if err := l.storage.ReplaceSchedule(loan.ID, schedule); err != nil {
		return nil, fmt.Errorf("failed to store schedule: %w", err)
	}

	event := &models.PaymentEvent{
		ID:          uuid.New(),
		LoanID:      loan.ID,
		Type:        models.PaymentEventDisbursement,
		Amount:      loan.Principal,
		EffectiveAt: loan.StartDate,
		RecordedAt:  time.Now(),
	}
	if err := l.storage.CreatePaymentEvent(event); err != nil {
		return nil, fmt.Errorf("failed to store disbursement event: %w", err)
	}

	return schedule, nil
}

// AmendLoan applies changed contractual parameters and regenerates the
// schedule wholesale under a new version, per the replace-never-patch rule.
// Reconciliation state recorded against the old schedule does not carry
// over.
func (l *Ledger) AmendLoan(loan *models.Loan) ([]models.ScheduleEntry, error) {
	current, err := l.storage.GetLoan(loan.ID)
	if err != nil {
		return nil, err
	}
	loan.ScheduleVersion = current.ScheduleVersion + 1
	loan.CreatedAt = current.CreatedAt
	loan.UpdatedAt = time.Now()
	if loan.Status == "" {
		loan.Status = current.Status
	}

	if err := engine.Resolve(loan); err != nil {
		metrics.SolverRuns.WithLabelValues(string(loan.Mode), "error").Inc()
		return nil, err
	}
	metrics.SolverRuns.WithLabelValues(string(loan.Mode), "ok").Inc()

	schedule, err := engine.Generate(loan)
	if err != nil {
		return nil, err
	}
	metrics.SchedulesGenerated.WithLabelValues(string(loan.Style)).Inc()

	if err := l.storage.ReplaceSchedule(loan.ID, schedule); err != nil {
		return nil, fmt.Errorf("failed to replace schedule: %w", err)
	}
	if err := l.storage.UpdateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to update loan: %w", err)
	}
	return schedule, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	return l.storage.GetAllLoans()
}

// DeleteLoan deletes a loan together with its schedule and events.
func (l *Ledger) DeleteLoan(id uuid.UUID) error {
	return l.storage.DeleteLoan(id)
}

// GetSchedule retrieves the current schedule of a loan with statuses
// recomputed as of now. Status is derived, never trusted from storage.
func (l *Ledger) GetSchedule(loanID uuid.UUID, now time.Time) ([]models.ScheduleEntry, error) {
	schedule, err := l.storage.GetSchedule(loanID)
	if err != nil {
		return nil, err
	}
	engine.Reclassify(schedule, now)
	return schedule, nil
}

// MarkInstallmentPaid marks one installment paid, persists the affected
// entries and records a mark_paid event. actualAmount may be nil when the
// payment matched the scheduled total.
func (l *Ledger) MarkInstallmentPaid(loanID uuid.UUID, seq int, paidAt time.Time, actualAmount *decimal.Decimal) ([]models.ScheduleEntry, error) {
	loan, schedule, err := l.load(loanID)
	if err != nil {
		return nil, err
	}

	updated, err := engine.MarkPaid(loan, schedule, seq, paidAt, actualAmount)
	if err != nil {
		metrics.ReconciliationOps.WithLabelValues("mark_paid", "error").Inc()
		return nil, err
	}
	if err := l.persistChanged(schedule, updated); err != nil {
		return nil, err
	}
	metrics.ReconciliationOps.WithLabelValues("mark_paid", "ok").Inc()

	amount := decimal.Zero
	if idx := indexOf(updated, seq); idx >= 0 {
		amount = updated[idx].TotalDue
	}
	if actualAmount != nil {
		amount = *actualAmount
	}
	event := &models.PaymentEvent{
		ID:          uuid.New(),
		LoanID:      loanID,
		Sequence:    seq,
		Type:        models.PaymentEventMarkPaid,
		Amount:      amount,
		EffectiveAt: paidAt,
		RecordedAt:  time.Now(),
	}
	if err := l.storage.CreatePaymentEvent(event); err != nil {
		return nil, fmt.Errorf("failed to store payment event: %w", err)
	}
	return updated, nil
}

// RemoveInstallmentPayment reverts a paid installment and records a
// remove_payment event. Removing an unpaid installment is a no-op.
func (l *Ledger) RemoveInstallmentPayment(loanID uuid.UUID, seq int, now time.Time) ([]models.ScheduleEntry, error) {
	loan, schedule, err := l.load(loanID)
	if err != nil {
		return nil, err
	}

	idx := indexOf(schedule, seq)
	wasPaid := idx >= 0 && schedule[idx].PaidAt != nil

	updated, err := engine.RemovePayment(loan, schedule, seq, now)
	if err != nil {
		metrics.ReconciliationOps.WithLabelValues("remove_payment", "error").Inc()
		return nil, err
	}
	if err := l.persistChanged(schedule, updated); err != nil {
		return nil, err
	}
	metrics.ReconciliationOps.WithLabelValues("remove_payment", "ok").Inc()

	if wasPaid {
		event := &models.PaymentEvent{
			ID:          uuid.New(),
			LoanID:      loanID,
			Sequence:    seq,
			Type:        models.PaymentEventRemovePayment,
			Amount:      schedule[idx].TotalDue,
			EffectiveAt: now,
			RecordedAt:  time.Now(),
		}
		if err := l.storage.CreatePaymentEvent(event); err != nil {
			return nil, fmt.Errorf("failed to store payment event: %w", err)
		}
	}
	return updated, nil
}

// ApplyLumpSum records an unscheduled principal payment, regenerates the
// schedule tail per the strategy, and persists the loan and new schedule
// together.
func (l *Ledger) ApplyLumpSum(loanID uuid.UUID, amount decimal.Decimal, strategy engine.LumpSumStrategy, effectiveDate time.Time) ([]models.ScheduleEntry, error) {
	loan, schedule, err := l.load(loanID)
	if err != nil {
		return nil, err
	}

	updated, err := engine.ApplyLumpSum(loan, schedule, amount, strategy, effectiveDate)
	if err != nil {
		metrics.ReconciliationOps.WithLabelValues("lump_sum", "error").Inc()
		return nil, err
	}

	if err := l.storage.ReplaceSchedule(loanID, updated); err != nil {
		return nil, fmt.Errorf("failed to replace schedule: %w", err)
	}
	loan.UpdatedAt = time.Now()
	if err := l.storage.UpdateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to update loan: %w", err)
	}
	metrics.ReconciliationOps.WithLabelValues("lump_sum", "ok").Inc()

	event := &models.PaymentEvent{
		ID:          uuid.New(),
		LoanID:      loanID,
		Type:        models.PaymentEventLumpSum,
		Amount:      amount,
		EffectiveAt: effectiveDate,
		RecordedAt:  time.Now(),
	}
	if err := l.storage.CreatePaymentEvent(event); err != nil {
		return nil, fmt.Errorf("failed to store payment event: %w", err)
	}
	return updated, nil
}

// PreviewEarlyRepayment runs the what-if simulation without touching
// persisted state.
func (l *Ledger) PreviewEarlyRepayment(loanID uuid.UUID, amount decimal.Decimal, strategy engine.LumpSumStrategy, effectiveDate time.Time) (*engine.Preview, error) {
	loan, schedule, err := l.load(loanID)
	if err != nil {
		return nil, err
	}
	return engine.PreviewEarlyRepayment(loan, schedule, amount, strategy, effectiveDate)
}

// Milestones derives the repayment checkpoints for a loan as of now.
func (l *Ledger) Milestones(loanID uuid.UUID, now time.Time) ([]engine.Milestone, error) {
	loan, schedule, err := l.load(loanID)
	if err != nil {
		return nil, err
	}
	engine.Reclassify(schedule, now)
	return engine.Milestones(schedule, loan.Principal), nil
}

// EffectiveRate computes the annualized all-in cost of a loan.
func (l *Ledger) EffectiveRate(loanID uuid.UUID) (decimal.Decimal, error) {
	loan, schedule, err := l.load(loanID)
	if err != nil {
		return decimal.Zero, err
	}
	return engine.EffectiveRate(schedule, loan.Principal, loan.TermMonths), nil
}

// RefreshOverdue recomputes the status of every active loan's unpaid
// installments against now and persists the entries that changed. Run
// periodically so the stored statuses track the calendar.
func (l *Ledger) RefreshOverdue(now time.Time) error {
	loans, err := l.storage.GetAllActiveLoans()
	if err != nil {
		return fmt.Errorf("failed to list active loans: %w", err)
	}

	for _, loan := range loans {
		schedule, err := l.storage.GetSchedule(loan.ID)
		if err != nil {
			return fmt.Errorf("failed to load schedule for loan %s: %w", loan.ID, err)
		}
		before := make([]models.EntryStatus, len(schedule))
		for i := range schedule {
			before[i] = schedule[i].Status
		}
		if !engine.Reclassify(schedule, now) {
			continue
		}
		for i := range schedule {
			if schedule[i].Status == before[i] {
				continue
			}
			if err := l.storage.UpdateScheduleEntry(&schedule[i]); err != nil {
				return fmt.Errorf("failed to update entry %d of loan %s: %w", schedule[i].Sequence, loan.ID, err)
			}
		}
	}
	return nil
}

// load fetches a loan together with its stored schedule.
func (l *Ledger) load(loanID uuid.UUID) (*models.Loan, []models.ScheduleEntry, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, nil, err
	}
	schedule, err := l.storage.GetSchedule(loanID)
	if err != nil {
		return nil, nil, err
	}
	return loan, schedule, nil
}

// persistChanged writes back only the entries the reconciler touched.
// Entry-level mutations never rewrite the rest of the schedule.
func (l *Ledger) persistChanged(before, after []models.ScheduleEntry) error {
	byID := make(map[uuid.UUID]*models.ScheduleEntry, len(before))
	for i := range before {
		byID[before[i].ID] = &before[i]
	}
	for i := range after {
		prev, ok := byID[after[i].ID]
		if ok && entryEqual(prev, &after[i]) {
			continue
		}
		if err := l.storage.UpdateScheduleEntry(&after[i]); err != nil {
			return fmt.Errorf("failed to update schedule entry %d: %w", after[i].Sequence, err)
		}
	}
	return nil
}

func entryEqual(a, b *models.ScheduleEntry) bool {
	if a.Status != b.Status {
		return false
	}
	if (a.PaidAt == nil) != (b.PaidAt == nil) {
		return false
	}
	if a.PaidAt != nil && !a.PaidAt.Equal(*b.PaidAt) {
		return false
	}
	return a.PrincipalDue.Equal(b.PrincipalDue) &&
		a.TotalDue.Equal(b.TotalDue) &&
		a.RemainingBalance.Equal(b.RemainingBalance)
}

func indexOf(schedule []models.ScheduleEntry, seq int) int {
	for i := range schedule {
		if schedule[i].Sequence == seq {
			return i
		}
	}
	return -1
}
