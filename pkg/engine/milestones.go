package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jsvitok/finman/pkg/models"
)

// milestoneCheckpoints are the repaid-principal percentages tracked for
// every loan.
var milestoneCheckpoints = [4]int{25, 50, 75, 100}

// Milestone is a percentage-of-principal-repaid checkpoint. Achieved
// milestones carry the due date of the installment that crossed them; the
// rest carry the date they are expected on.
type Milestone struct {
	Percent  int       `json:"percent"`
	Sequence int       `json:"sequence"`
	Date     time.Time `json:"date"`
	Achieved bool      `json:"achieved"`
}

// Milestones derives the 25/50/75/100% checkpoints from a schedule. A
// milestone is achieved only when the installment crossing it is marked
// paid, never earlier.
func Milestones(schedule []models.ScheduleEntry, principal decimal.Decimal) []Milestone {
	if len(schedule) == 0 || principal.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	out := make([]Milestone, 0, len(milestoneCheckpoints))
	for _, pct := range milestoneCheckpoints {
		threshold := principal.Mul(decimal.NewFromInt(int64(100 - pct))).Div(hundred)
		for _, e := range schedule {
			if e.RemainingBalance.LessThanOrEqual(threshold) {
				out = append(out, Milestone{
					Percent:  pct,
					Sequence: e.Sequence,
					Date:     e.DueDate,
					Achieved: e.Status == models.StatusPaid,
				})
				break
			}
		}
	}
	return out
}
