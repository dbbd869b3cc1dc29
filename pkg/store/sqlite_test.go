package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jsvitok/finman/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func storedTestLoan() *models.Loan {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Loan{
		ID:              uuid.New(),
		HouseholdKey:    "hh123",
		Name:            "mortgage",
		Principal:       decimal.RequireFromString("150000.00"),
		AnnualRate:      decimal.RequireFromString("3.75"),
		TermMonths:      240,
		Payment:         decimal.RequireFromString("889.33"),
		Mode:            models.ModeSolvePayment,
		Style:           models.StyleAnnuity,
		OneTimeFee:      decimal.RequireFromString("500.00"),
		RecurringFee:    decimal.RequireFromString("2.50"),
		StartDate:       time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Status:          "active",
		ScheduleVersion: 1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestLoanRoundTrip(t *testing.T) {
	s := newTestStore(t)

	loan := storedTestLoan()
	if err := s.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	got, err := s.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}

	if got.ID != loan.ID {
		t.Errorf("Expected ID %s, got %s", loan.ID, got.ID)
	}
	if !got.Principal.Equal(loan.Principal) {
		t.Errorf("Expected principal %s, got %s", loan.Principal, got.Principal)
	}
	if !got.AnnualRate.Equal(loan.AnnualRate) {
		t.Errorf("Expected annual rate %s, got %s", loan.AnnualRate, got.AnnualRate)
	}
	if !got.RecurringFee.Equal(loan.RecurringFee) {
		t.Errorf("Expected recurring fee %s, got %s", loan.RecurringFee, got.RecurringFee)
	}
	if got.TermMonths != loan.TermMonths {
		t.Errorf("Expected term %d, got %d", loan.TermMonths, got.TermMonths)
	}
	if got.ScheduleVersion != 1 {
		t.Errorf("Expected schedule version 1, got %d", got.ScheduleVersion)
	}
	if !got.StartDate.Equal(loan.StartDate) {
		t.Errorf("Expected start date %s, got %s", loan.StartDate, got.StartDate)
	}
}

func TestGetLoan_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetLoan(uuid.New())
	if err == nil {
		t.Fatal("Expected error for missing loan")
	}
	if err.Error() != "loan not found" {
		t.Errorf("Expected 'loan not found', got %q", err.Error())
	}
}

func TestUpdateLoan(t *testing.T) {
	s := newTestStore(t)

	loan := storedTestLoan()
	if err := s.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	loan.ScheduleVersion = 2
	loan.Payment = decimal.RequireFromString("901.10")
	loan.UpdatedAt = time.Now().UTC().Truncate(time.Second)
	if err := s.UpdateLoan(loan); err != nil {
		t.Fatalf("Failed to update loan: %v", err)
	}

	got, err := s.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if got.ScheduleVersion != 2 {
		t.Errorf("Expected schedule version 2, got %d", got.ScheduleVersion)
	}
	if !got.Payment.Equal(loan.Payment) {
		t.Errorf("Expected payment %s, got %s", loan.Payment, got.Payment)
	}
}

func TestScheduleRoundTrip(t *testing.T) {
	s := newTestStore(t)

	loan := storedTestLoan()
	if err := s.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	paidAt := time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC)
	entries := []models.ScheduleEntry{
		{
			ID:               uuid.New(),
			LoanID:           loan.ID,
			Sequence:         1,
			DueDate:          time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC),
			PrincipalDue:     decimal.RequireFromString("420.58"),
			InterestDue:      decimal.RequireFromString("468.75"),
			FeeDue:           decimal.RequireFromString("502.50"),
			TotalDue:         decimal.RequireFromString("1391.83"),
			RemainingBalance: decimal.RequireFromString("149579.42"),
			Status:           models.StatusPaid,
			PaidAt:           &paidAt,
			ScheduleVersion:  1,
		},
		{
			ID:               uuid.New(),
			LoanID:           loan.ID,
			Sequence:         2,
			DueDate:          time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
			PrincipalDue:     decimal.RequireFromString("421.90"),
			InterestDue:      decimal.RequireFromString("467.43"),
			FeeDue:           decimal.RequireFromString("2.50"),
			TotalDue:         decimal.RequireFromString("891.83"),
			RemainingBalance: decimal.RequireFromString("149157.52"),
			Status:           models.StatusPending,
			ScheduleVersion:  1,
		},
	}

	if err := s.ReplaceSchedule(loan.ID, entries); err != nil {
		t.Fatalf("Failed to replace schedule: %v", err)
	}

	got, err := s.GetSchedule(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get schedule: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(got))
	}

	if got[0].Sequence != 1 || got[1].Sequence != 2 {
		t.Error("Expected entries ordered by sequence")
	}
	if got[0].Status != models.StatusPaid {
		t.Errorf("Expected entry 1 paid, got %s", got[0].Status)
	}
	if got[0].PaidAt == nil || !got[0].PaidAt.Equal(paidAt) {
		t.Errorf("Expected paid-at %s, got %v", paidAt, got[0].PaidAt)
	}
	if got[1].PaidAt != nil {
		t.Error("Expected entry 2 paid-at to be nil")
	}
	if !got[0].TotalDue.Equal(entries[0].TotalDue) {
		t.Errorf("Expected total due %s, got %s", entries[0].TotalDue, got[0].TotalDue)
	}
	if !got[1].RemainingBalance.Equal(entries[1].RemainingBalance) {
		t.Errorf("Expected remaining balance %s, got %s", entries[1].RemainingBalance, got[1].RemainingBalance)
	}
}

func TestReplaceScheduleIsWholesale(t *testing.T) {
	s := newTestStore(t)

	loan := storedTestLoan()
	if err := s.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	first := []models.ScheduleEntry{
		{ID: uuid.New(), LoanID: loan.ID, Sequence: 1, DueDate: loan.StartDate.AddDate(0, 1, 0), PrincipalDue: decimal.NewFromInt(100), InterestDue: decimal.Zero, FeeDue: decimal.Zero, TotalDue: decimal.NewFromInt(100), RemainingBalance: decimal.NewFromInt(100), Status: models.StatusPending, ScheduleVersion: 1},
		{ID: uuid.New(), LoanID: loan.ID, Sequence: 2, DueDate: loan.StartDate.AddDate(0, 2, 0), PrincipalDue: decimal.NewFromInt(100), InterestDue: decimal.Zero, FeeDue: decimal.Zero, TotalDue: decimal.NewFromInt(100), RemainingBalance: decimal.Zero, Status: models.StatusPending, ScheduleVersion: 1},
	}
	if err := s.ReplaceSchedule(loan.ID, first); err != nil {
		t.Fatalf("Failed to store first schedule: %v", err)
	}

	second := []models.ScheduleEntry{
		{ID: uuid.New(), LoanID: loan.ID, Sequence: 1, DueDate: loan.StartDate.AddDate(0, 1, 0), PrincipalDue: decimal.NewFromInt(200), InterestDue: decimal.Zero, FeeDue: decimal.Zero, TotalDue: decimal.NewFromInt(200), RemainingBalance: decimal.Zero, Status: models.StatusPending, ScheduleVersion: 2},
	}
	if err := s.ReplaceSchedule(loan.ID, second); err != nil {
		t.Fatalf("Failed to replace schedule: %v", err)
	}

	got, err := s.GetSchedule(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get schedule: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected old entries gone, got %d entries", len(got))
	}
	if got[0].ScheduleVersion != 2 {
		t.Errorf("Expected schedule version 2, got %d", got[0].ScheduleVersion)
	}
}

func TestUpdateScheduleEntry(t *testing.T) {
	s := newTestStore(t)

	loan := storedTestLoan()
	if err := s.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	entry := models.ScheduleEntry{
		ID: uuid.New(), LoanID: loan.ID, Sequence: 1,
		DueDate:      loan.StartDate.AddDate(0, 1, 0),
		PrincipalDue: decimal.NewFromInt(100), InterestDue: decimal.Zero, FeeDue: decimal.Zero,
		TotalDue: decimal.NewFromInt(100), RemainingBalance: decimal.Zero,
		Status: models.StatusPending, ScheduleVersion: 1,
	}
	if err := s.ReplaceSchedule(loan.ID, []models.ScheduleEntry{entry}); err != nil {
		t.Fatalf("Failed to store schedule: %v", err)
	}

	paidAt := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	entry.Status = models.StatusPaid
	entry.PaidAt = &paidAt
	if err := s.UpdateScheduleEntry(&entry); err != nil {
		t.Fatalf("Failed to update entry: %v", err)
	}

	got, err := s.GetSchedule(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get schedule: %v", err)
	}
	if got[0].Status != models.StatusPaid {
		t.Errorf("Expected paid status, got %s", got[0].Status)
	}
	if got[0].PaidAt == nil || !got[0].PaidAt.Equal(paidAt) {
		t.Errorf("Expected paid-at %s, got %v", paidAt, got[0].PaidAt)
	}

	missing := entry
	missing.ID = uuid.New()
	if err := s.UpdateScheduleEntry(&missing); err == nil {
		t.Error("Expected error for unknown entry")
	}
}

func TestPaymentEvents(t *testing.T) {
	s := newTestStore(t)

	loan := storedTestLoan()
	if err := s.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Second)
	events := []*models.PaymentEvent{
		{ID: uuid.New(), LoanID: loan.ID, Type: models.PaymentEventDisbursement, Amount: loan.Principal, EffectiveAt: loan.StartDate, RecordedAt: base},
		{ID: uuid.New(), LoanID: loan.ID, Sequence: 1, Type: models.PaymentEventMarkPaid, Amount: decimal.RequireFromString("889.33"), EffectiveAt: base, RecordedAt: base.Add(time.Second)},
	}
	for _, e := range events {
		if err := s.CreatePaymentEvent(e); err != nil {
			t.Fatalf("Failed to create payment event: %v", err)
		}
	}

	got, err := s.GetPaymentEventsForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get payment events: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got))
	}
	if got[0].Type != models.PaymentEventDisbursement || got[1].Type != models.PaymentEventMarkPaid {
		t.Errorf("Expected events ordered by recorded time, got %s then %s", got[0].Type, got[1].Type)
	}
	if got[1].Sequence != 1 {
		t.Errorf("Expected sequence 1 on mark_paid event, got %d", got[1].Sequence)
	}
	if !got[1].Amount.Equal(events[1].Amount) {
		t.Errorf("Expected amount %s, got %s", events[1].Amount, got[1].Amount)
	}
}

func TestDeleteLoanCascades(t *testing.T) {
	s := newTestStore(t)

	loan := storedTestLoan()
	if err := s.CreateLoan(loan); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}
	entry := models.ScheduleEntry{
		ID: uuid.New(), LoanID: loan.ID, Sequence: 1,
		DueDate:      loan.StartDate.AddDate(0, 1, 0),
		PrincipalDue: decimal.NewFromInt(100), InterestDue: decimal.Zero, FeeDue: decimal.Zero,
		TotalDue: decimal.NewFromInt(100), RemainingBalance: decimal.Zero,
		Status: models.StatusPending, ScheduleVersion: 1,
	}
	if err := s.ReplaceSchedule(loan.ID, []models.ScheduleEntry{entry}); err != nil {
		t.Fatalf("Failed to store schedule: %v", err)
	}

	if err := s.DeleteLoan(loan.ID); err != nil {
		t.Fatalf("Failed to delete loan: %v", err)
	}

	if _, err := s.GetLoan(loan.ID); err == nil {
		t.Error("Expected loan to be gone")
	}
	got, err := s.GetSchedule(loan.ID)
	if err != nil {
		t.Fatalf("Failed to query schedule: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected schedule to be gone, got %d entries", len(got))
	}

	if err := s.DeleteLoan(loan.ID); err == nil {
		t.Error("Expected error deleting a missing loan")
	}
}
