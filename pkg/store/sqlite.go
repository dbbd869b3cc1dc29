package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/jsvitok/finman/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Println("Database connection established and schema initialized.")
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		household_key TEXT NOT NULL,
		name TEXT NOT NULL,
		principal TEXT NOT NULL,
		annual_rate TEXT NOT NULL,
		term_months INTEGER NOT NULL,
		payment TEXT NOT NULL,
		mode TEXT NOT NULL,
		style TEXT NOT NULL,
		one_time_fee TEXT NOT NULL DEFAULT '0',
		recurring_fee TEXT NOT NULL DEFAULT '0',
		start_date DATETIME NOT NULL,
		status TEXT NOT NULL,
		schedule_version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS schedule_entries (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		due_date DATETIME NOT NULL,
		principal_due TEXT NOT NULL,
		interest_due TEXT NOT NULL,
		fee_due TEXT NOT NULL,
		total_due TEXT NOT NULL,
		remaining_balance TEXT NOT NULL,
		status TEXT NOT NULL,
		paid_at DATETIME,
		schedule_version INTEGER NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id),
		UNIQUE(loan_id, sequence)
	);
	CREATE TABLE IF NOT EXISTS payment_events (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		sequence INTEGER NOT NULL DEFAULT 0,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		effective_at DATETIME NOT NULL,
		recorded_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateLoan inserts a new loan into the database.
func (s *SQLiteStore) CreateLoan(loan *models.Loan) error {
	_, err := s.db.Exec(
		`INSERT INTO loans (id, household_key, name, principal, annual_rate, term_months, payment, mode, style, one_time_fee, recurring_fee, start_date, status, schedule_version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.HouseholdKey, loan.Name, loan.Principal, loan.AnnualRate, loan.TermMonths, loan.Payment, loan.Mode, loan.Style, loan.OneTimeFee, loan.RecurringFee, loan.StartDate, loan.Status, loan.ScheduleVersion, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}
	return nil
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT id, household_key, name, principal, annual_rate, term_months, payment, mode, style, one_time_fee, recurring_fee, start_date, status, schedule_version, created_at, updated_at FROM loans WHERE id = ?`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("loan not found")
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// UpdateLoan updates an existing loan in the database.
func (s *SQLiteStore) UpdateLoan(loan *models.Loan) error {
	result, err := s.db.Exec(
		`UPDATE loans SET household_key = ?, name = ?, principal = ?, annual_rate = ?, term_months = ?, payment = ?, mode = ?, style = ?, one_time_fee = ?, recurring_fee = ?, start_date = ?, status = ?, schedule_version = ?, updated_at = ? WHERE id = ?`,
		loan.HouseholdKey, loan.Name, loan.Principal, loan.AnnualRate, loan.TermMonths, loan.Payment, loan.Mode, loan.Style, loan.OneTimeFee, loan.RecurringFee, loan.StartDate, loan.Status, loan.ScheduleVersion, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("loan not found")
	}
	return nil
}

// DeleteLoan removes a loan, its schedule and its payment events within a
// transaction.
func (s *SQLiteStore) DeleteLoan(id uuid.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.Exec(`DELETE FROM schedule_entries WHERE loan_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete schedule entries: %w", err)
	}
	if _, err = tx.Exec(`DELETE FROM payment_events WHERE loan_id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete payment events: %w", err)
	}

	result, err := tx.Exec(`DELETE FROM loans WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("failed to delete loan: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("loan not found")
	}

	return tx.Commit()
}

// GetAllLoans retrieves all loans.
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT id, household_key, name, principal, annual_rate, term_months, payment, mode, style, one_time_fee, recurring_fee, start_date, status, schedule_version, created_at, updated_at FROM loans`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

// GetAllActiveLoans retrieves all active loans.
func (s *SQLiteStore) GetAllActiveLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT id, household_key, name, principal, annual_rate, term_months, payment, mode, style, one_time_fee, recurring_fee, start_date, status, schedule_version, created_at, updated_at FROM loans WHERE status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all active loans: %w", err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr string
	var start, created, updated time.Time
	if err := row.Scan(&idStr, &loan.HouseholdKey, &loan.Name, &loan.Principal, &loan.AnnualRate, &loan.TermMonths, &loan.Payment, &loan.Mode, &loan.Style, &loan.OneTimeFee, &loan.RecurringFee, &start, &loan.Status, &loan.ScheduleVersion, &created, &updated); err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	loan.StartDate = start
	loan.CreatedAt = created
	loan.UpdatedAt = updated
	return &loan, nil
}

func scanLoans(rows *sql.Rows) ([]*models.Loan, error) {
	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// ReplaceSchedule swaps the stored schedule of a loan for the given entries
// inside a single transaction, so readers never observe a partial schedule.
func (s *SQLiteStore) ReplaceSchedule(loanID uuid.UUID, entries []models.ScheduleEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.Exec(`DELETE FROM schedule_entries WHERE loan_id = ?`, loanID.String()); err != nil {
		return fmt.Errorf("failed to clear schedule: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO schedule_entries (id, loan_id, sequence, due_date, principal_due, interest_due, fee_due, total_due, remaining_balance, status, paid_at, schedule_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range entries {
		e := &entries[i]
		var paidAt any
		if e.PaidAt != nil {
			paidAt = *e.PaidAt
		}
		if _, err = stmt.Exec(e.ID.String(), loanID.String(), e.Sequence, e.DueDate, e.PrincipalDue, e.InterestDue, e.FeeDue, e.TotalDue, e.RemainingBalance, e.Status, paidAt, e.ScheduleVersion); err != nil {
			return fmt.Errorf("failed to insert schedule entry %d: %w", e.Sequence, err)
		}
	}

	return tx.Commit()
}

// GetSchedule retrieves the full schedule for a loan ordered by sequence.
func (s *SQLiteStore) GetSchedule(loanID uuid.UUID) ([]models.ScheduleEntry, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, sequence, due_date, principal_due, interest_due, fee_due, total_due, remaining_balance, status, paid_at, schedule_version FROM schedule_entries WHERE loan_id = ? ORDER BY sequence ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var entries []models.ScheduleEntry
	for rows.Next() {
		var e models.ScheduleEntry
		var idStr, loanIDStr string
		var due time.Time
		var paidAt sql.NullTime
		if err := rows.Scan(&idStr, &loanIDStr, &e.Sequence, &due, &e.PrincipalDue, &e.InterestDue, &e.FeeDue, &e.TotalDue, &e.RemainingBalance, &e.Status, &paidAt, &e.ScheduleVersion); err != nil {
			return nil, fmt.Errorf("failed to scan schedule entry: %w", err)
		}
		e.ID = uuid.MustParse(idStr)
		e.LoanID = uuid.MustParse(loanIDStr)
		e.DueDate = due
		if paidAt.Valid {
			e.PaidAt = &paidAt.Time
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return entries, nil
}

// UpdateScheduleEntry updates a single schedule entry in place. Only
// reconciliation touches individual entries; structural changes go through
// ReplaceSchedule.
func (s *SQLiteStore) UpdateScheduleEntry(entry *models.ScheduleEntry) error {
	var paidAt any
	if entry.PaidAt != nil {
		paidAt = *entry.PaidAt
	}
	result, err := s.db.Exec(
		`UPDATE schedule_entries SET principal_due = ?, interest_due = ?, fee_due = ?, total_due = ?, remaining_balance = ?, status = ?, paid_at = ?, schedule_version = ? WHERE id = ?`,
		entry.PrincipalDue, entry.InterestDue, entry.FeeDue, entry.TotalDue, entry.RemainingBalance, entry.Status, paidAt, entry.ScheduleVersion, entry.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("schedule entry not found")
	}
	return nil
}

// CreatePaymentEvent inserts a new payment event into the database.
func (s *SQLiteStore) CreatePaymentEvent(event *models.PaymentEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO payment_events (id, loan_id, sequence, type, amount, effective_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.ID.String(), event.LoanID.String(), event.Sequence, event.Type, event.Amount, event.EffectiveAt, event.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment event: %w", err)
	}
	return nil
}

// GetPaymentEventsForLoan retrieves all payment events for a given loan ID.
func (s *SQLiteStore) GetPaymentEventsForLoan(loanID uuid.UUID) ([]*models.PaymentEvent, error) {
	rows, err := s.db.Query(`SELECT id, loan_id, sequence, type, amount, effective_at, recorded_at FROM payment_events WHERE loan_id = ? ORDER BY recorded_at ASC`, loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get payment events for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var events []*models.PaymentEvent
	for rows.Next() {
		var event models.PaymentEvent
		var idStr, loanIDStr string
		var effective, recorded time.Time
		if err := rows.Scan(&idStr, &loanIDStr, &event.Sequence, &event.Type, &event.Amount, &effective, &recorded); err != nil {
			return nil, fmt.Errorf("failed to scan payment event row: %w", err)
		}
		event.ID = uuid.MustParse(idStr)
		event.LoanID = uuid.MustParse(loanIDStr)
		event.EffectiveAt = effective
		event.RecordedAt = recorded
		events = append(events, &event)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan payment events: %w", err)
	}
	return events, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
