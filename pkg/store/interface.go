package store

import (
	"github.com/google/uuid"

	"github.com/jsvitok/finman/pkg/models"
)

// Storage defines the interface for database operations related to loans,
// schedules and payment events.
type Storage interface {
	CreateLoan(loan *models.Loan) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	UpdateLoan(loan *models.Loan) error
	DeleteLoan(id uuid.UUID) error
	GetAllLoans() ([]*models.Loan, error)
	GetAllActiveLoans() ([]*models.Loan, error)

	// ReplaceSchedule atomically swaps the stored schedule of a loan for
	// the given entries. Schedules are always written wholesale so a
	// half-updated schedule can never be observed.
	ReplaceSchedule(loanID uuid.UUID, entries []models.ScheduleEntry) error
	GetSchedule(loanID uuid.UUID) ([]models.ScheduleEntry, error)
	UpdateScheduleEntry(entry *models.ScheduleEntry) error

	CreatePaymentEvent(event *models.PaymentEvent) error
	GetPaymentEventsForLoan(loanID uuid.UUID) ([]*models.PaymentEvent, error)

	Close() error
}
