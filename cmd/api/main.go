package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/jsvitok/finman/pkg/config"
	"github.com/jsvitok/finman/pkg/engine"
	"github.com/jsvitok/finman/pkg/ledger"
	"github.com/jsvitok/finman/pkg/models"
	"github.com/jsvitok/finman/pkg/store"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
}

func NewServer(s store.Storage) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s),
		storage: s,
	}
}

type loanRequest struct {
	HouseholdKey string                   `json:"household_key"`
	Name         string                   `json:"name"`
	Principal    decimal.Decimal          `json:"principal"`
	AnnualRate   decimal.Decimal          `json:"annual_rate"`
	TermMonths   int                      `json:"term_months"`
	Payment      decimal.Decimal          `json:"payment"`
	Mode         models.CalcMode          `json:"mode"`
	Style        models.AmortizationStyle `json:"style"`
	OneTimeFee   decimal.Decimal          `json:"one_time_fee"`
	RecurringFee decimal.Decimal          `json:"recurring_fee"`
	StartDate    time.Time                `json:"start_date"`
}

func (r *loanRequest) toLoan() *models.Loan {
	mode := r.Mode
	if mode == "" {
		mode = models.ModeSolvePayment
	}
	style := r.Style
	if style == "" {
		style = models.StyleAnnuity
	}
	return &models.Loan{
		HouseholdKey: r.HouseholdKey,
		Name:         r.Name,
		Principal:    r.Principal,
		AnnualRate:   r.AnnualRate,
		TermMonths:   r.TermMonths,
		Payment:      r.Payment,
		Mode:         mode,
		Style:        style,
		OneTimeFee:   r.OneTimeFee,
		RecurringFee: r.RecurringFee,
		StartDate:    r.StartDate,
	}
}

type loanResponse struct {
	Loan     *models.Loan           `json:"loan"`
	Schedule []models.ScheduleEntry `json:"schedule"`
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan := req.toLoan()
	schedule, err := s.ledger.CreateLoan(loan)
	if err != nil {
		log.Printf("Error creating loan: %v\n", err)
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(loanResponse{Loan: loan, Schedule: schedule})
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	loan, err := s.ledger.GetLoan(loanID)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loans)
}

func (s *Server) amendLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan := req.toLoan()
	loan.ID = loanID // Ensure ID from URL is used

	schedule, err := s.ledger.AmendLoan(loan)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loanResponse{Loan: loan, Schedule: schedule})
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	if err := s.ledger.DeleteLoan(loanID); err != nil {
		writeLookupError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getScheduleHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	schedule, err := s.ledger.GetSchedule(loanID, time.Now())
	if err != nil {
		writeLookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedule)
}

func (s *Server) markPaidHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}
	seq, ok := parseSequence(w, r)
	if !ok {
		return
	}

	var req struct {
		PaidAt time.Time        `json:"paid_at"`
		Amount *decimal.Decimal `json:"amount,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.PaidAt.IsZero() {
		req.PaidAt = time.Now()
	}

	schedule, err := s.ledger.MarkInstallmentPaid(loanID, seq, req.PaidAt, req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedule)
}

func (s *Server) removePaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}
	seq, ok := parseSequence(w, r)
	if !ok {
		return
	}

	schedule, err := s.ledger.RemoveInstallmentPayment(loanID, seq, time.Now())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(schedule)
}

type lumpSumRequest struct {
	Amount        decimal.Decimal        `json:"amount"`
	Strategy      engine.LumpSumStrategy `json:"strategy"`
	EffectiveDate time.Time              `json:"effective_date"`
}

func (r *lumpSumRequest) defaults() {
	if r.Strategy == "" {
		r.Strategy = engine.StrategyReduceTerm
	}
	if r.EffectiveDate.IsZero() {
		r.EffectiveDate = time.Now()
	}
}

func (s *Server) lumpSumHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	var req lumpSumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.defaults()

	schedule, err := s.ledger.ApplyLumpSum(loanID, req.Amount, req.Strategy, req.EffectiveDate)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(schedule)
}

func (s *Server) previewHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	var req lumpSumRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.defaults()

	preview, err := s.ledger.PreviewEarlyRepayment(loanID, req.Amount, req.Strategy, req.EffectiveDate)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(preview)
}

func (s *Server) milestonesHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	milestones, err := s.ledger.Milestones(loanID, time.Now())
	if err != nil {
		writeLookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(milestones)
}

func (s *Server) effectiveRateHandler(w http.ResponseWriter, r *http.Request) {
	loanID, ok := parseLoanID(w, r)
	if !ok {
		return
	}

	rate, err := s.ledger.EffectiveRate(loanID)
	if err != nil {
		writeLookupError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]decimal.Decimal{"effective_rate": rate})
}

func parseLoanID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	loanID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return loanID, true
}

func parseSequence(w http.ResponseWriter, r *http.Request) (int, bool) {
	var seq int
	if _, err := fmt.Sscanf(mux.Vars(r)["seq"], "%d", &seq); err != nil || seq < 1 {
		http.Error(w, "Invalid installment sequence", http.StatusBadRequest)
		return 0, false
	}
	return seq, true
}

// writeEngineError maps the engine's error categories onto HTTP statuses:
// invalid input and non-convergence are the caller's problem, a stale
// schedule asks the caller to reload, everything else is ours.
func writeEngineError(w http.ResponseWriter, err error) {
	var convErr *engine.ConvergenceError
	switch {
	case errors.Is(err, engine.ErrInvalidInput), errors.As(err, &convErr):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, engine.ErrStaleSchedule):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, engine.ErrEntryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		writeLookupError(w, err)
	}
}

func writeLookupError(w http.ResponseWriter, err error) {
	if err.Error() == "loan not found" {
		http.Error(w, "Loan not found", http.StatusNotFound)
	} else {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func newRouter(server *Server) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/loans", server.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", server.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", server.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", server.amendLoanHandler).Methods("PUT")
	router.HandleFunc("/loans/{id}", server.deleteLoanHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/schedule", server.getScheduleHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/installments/{seq}/payment", server.markPaidHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/installments/{seq}/payment", server.removePaymentHandler).Methods("DELETE")
	router.HandleFunc("/loans/{id}/lump-sum", server.lumpSumHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/early-repayment-preview", server.previewHandler).Methods("POST")
	router.HandleFunc("/loans/{id}/milestones", server.milestonesHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/effective-rate", server.effectiveRateHandler).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	server := NewServer(sqliteStore)
	router := newRouter(server)

	// Start a goroutine keeping overdue statuses in step with the calendar
	go func() {
		ticker := time.NewTicker(cfg.OverdueRefreshInterval)
		defer ticker.Stop()

		for range ticker.C {
			log.Println("Refreshing overdue statuses...")
			if err := server.ledger.RefreshOverdue(time.Now()); err != nil {
				log.Printf("Overdue refresh failed: %v\n", err)
				continue
			}
			log.Println("Overdue refresh complete.")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Printf("Server starting on %s\n", addr)
	log.Fatal(http.ListenAndServe(addr, router))
}
