package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsvitok/finman/pkg/models"
)

func TestMilestones_FreshSchedule(t *testing.T) {
	l := testLoan(t, 12_000, 0, 12, models.StyleAnnuity)
	schedule, err := Generate(l)
	require.NoError(t, err)

	ms := Milestones(schedule, l.Principal)
	require.Len(t, ms, 4)

	// Zero-rate even split: 1,000 of principal per month, so the quarters
	// land on installments 3, 6, 9 and 12.
	wantSeq := []int{3, 6, 9, 12}
	for i, m := range ms {
		assert.Equal(t, []int{25, 50, 75, 100}[i], m.Percent)
		assert.Equal(t, wantSeq[i], m.Sequence)
		assert.Equal(t, schedule[wantSeq[i]-1].DueDate, m.Date)
		assert.False(t, m.Achieved, "nothing is achieved before payments are marked")
	}
}

func TestMilestones_AchievedOnlyWhenPaid(t *testing.T) {
	l := testLoan(t, 12_000, 0, 12, models.StyleAnnuity)
	schedule, err := Generate(l)
	require.NoError(t, err)

	schedule = markFirstPaid(t, l, schedule, 6)

	ms := Milestones(schedule, l.Principal)
	require.Len(t, ms, 4)
	assert.True(t, ms[0].Achieved, "25%% crossed by paid installment 3")
	assert.True(t, ms[1].Achieved, "50%% crossed by paid installment 6")
	assert.False(t, ms[2].Achieved)
	assert.False(t, ms[3].Achieved)
}

func TestMilestones_AnnuityBackLoaded(t *testing.T) {
	// Under an annuity the principal runs off slowly at first, so the 25%
	// checkpoint lands past a quarter of the term.
	l := testLoan(t, 100_000, 8, 120, models.StyleAnnuity)
	schedule, err := Generate(l)
	require.NoError(t, err)

	ms := Milestones(schedule, l.Principal)
	require.Len(t, ms, 4)
	assert.Greater(t, ms[0].Sequence, 30)
	assert.Equal(t, 120, ms[3].Sequence, "100%% is always the final installment")
}

func TestMilestones_DegenerateInputs(t *testing.T) {
	assert.Nil(t, Milestones(nil, decimal.NewFromInt(1000)))

	l := testLoan(t, 12_000, 0, 12, models.StyleAnnuity)
	schedule, err := Generate(l)
	require.NoError(t, err)
	assert.Nil(t, Milestones(schedule, decimal.Zero))
}
