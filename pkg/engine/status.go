package engine

import (
	"time"

	"github.com/jsvitok/finman/pkg/models"
)

// Classify maps an installment's due date and payment state to a status as
// of the caller-supplied reference time. Status is always recomputed from
// these three inputs and never trusted as stored state, so it cannot go
// stale. Comparison is at day granularity: an installment due today is still
// pending.
func Classify(dueDate time.Time, paidAt *time.Time, now time.Time) models.EntryStatus {
	if paidAt != nil {
		return models.StatusPaid
	}
	if compareDate(dueDate, now) < 0 {
		return models.StatusOverdue
	}
	return models.StatusPending
}

// Reclassify recomputes the status of every unpaid entry in place and
// reports whether anything changed. Paid entries are left untouched.
func Reclassify(schedule []models.ScheduleEntry, now time.Time) bool {
	changed := false
	for i := range schedule {
		status := Classify(schedule[i].DueDate, schedule[i].PaidAt, now)
		if schedule[i].Status != status {
			schedule[i].Status = status
			changed = true
		}
	}
	return changed
}

// compareDate orders two instants by calendar day, ignoring the time of day.
func compareDate(t1, t2 time.Time) int {
	y1, m1, d1 := t1.Date()
	y2, m2, d2 := t2.Date()

	switch {
	case y1 < y2 || (y1 == y2 && m1 < m2) || (y1 == y2 && m1 == m2 && d1 < d2):
		return -1
	case y1 == y2 && m1 == m2 && d1 == d2:
		return 0
	default:
		return 1
	}
}
