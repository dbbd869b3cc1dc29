package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jsvitok/finman/pkg/models"
)

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	paid := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		dueDate time.Time
		paidAt  *time.Time
		want    models.EntryStatus
	}{
		{"due in the future, unpaid", now.AddDate(0, 1, 0), nil, models.StatusPending},
		{"due today, unpaid", time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), nil, models.StatusPending},
		{"due yesterday, unpaid", now.AddDate(0, 0, -1), nil, models.StatusOverdue},
		{"due ten days ago, unpaid", now.AddDate(0, 0, -10), nil, models.StatusOverdue},
		{"due ten days ago, paid", now.AddDate(0, 0, -10), &paid, models.StatusPaid},
		{"due in the future, paid early", now.AddDate(0, 1, 0), &paid, models.StatusPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.dueDate, tt.paidAt, now))
		})
	}
}

func TestClassify_NeverOverdueWhenPaid(t *testing.T) {
	// A paid entry is paid no matter how far past due it is, and an entry
	// without a paid-at can never classify as paid.
	due := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	paid := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, models.StatusPaid, Classify(due, &paid, now))
	assert.NotEqual(t, models.StatusPaid, Classify(due, nil, now))
}

func TestReclassify(t *testing.T) {
	l := testLoan(t, 10_000, 5, 12, models.StyleAnnuity)
	schedule, err := Generate(l)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// Three months past the second due date: first two installments flip to
	// overdue, the rest stay pending.
	now := testStart.AddDate(0, 2, 10)
	changed := Reclassify(schedule, now)
	assert.True(t, changed)
	assert.Equal(t, models.StatusOverdue, schedule[0].Status)
	assert.Equal(t, models.StatusOverdue, schedule[1].Status)
	assert.Equal(t, models.StatusPending, schedule[2].Status)

	// A second pass at the same reference time is a no-op.
	assert.False(t, Reclassify(schedule, now))
}
