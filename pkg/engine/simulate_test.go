package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsvitok/finman/pkg/models"
)

func TestPreviewEarlyRepayment_ReduceTerm(t *testing.T) {
	l := testLoan(t, 10_000, 5, 12, models.StyleAnnuity)
	schedule, err := Generate(l)
	require.NoError(t, err)
	schedule = markFirstPaid(t, l, schedule, 6)

	effective := schedule[5].DueDate.AddDate(0, 0, 10)
	preview, err := PreviewEarlyRepayment(l, schedule, decimal.NewFromInt(2000), StrategyReduceTerm, effective)
	require.NoError(t, err)

	assert.Equal(t, 12, preview.BaselineTermMonths)
	assert.Less(t, preview.AdjustedTermMonths, preview.BaselineTermMonths)
	assert.True(t, preview.InterestSaved.IsPositive(), "interest saved %s", preview.InterestSaved)
	assert.True(t, preview.AdjustedTotalInterest.LessThan(preview.BaselineTotalInterest))
	assert.True(t, preview.BaselinePayment.Equal(preview.AdjustedPayment),
		"reduce-term keeps the payment")
	assert.False(t, preview.FullPayoff)
}

func TestPreviewEarlyRepayment_RecalculatePayment(t *testing.T) {
	l := testLoan(t, 10_000, 5, 12, models.StyleAnnuity)
	schedule, err := Generate(l)
	require.NoError(t, err)
	schedule = markFirstPaid(t, l, schedule, 6)

	effective := schedule[5].DueDate.AddDate(0, 0, 10)
	preview, err := PreviewEarlyRepayment(l, schedule, decimal.NewFromInt(2000), StrategyRecalculatePayment, effective)
	require.NoError(t, err)

	assert.Equal(t, preview.BaselineTermMonths+1, preview.AdjustedTermMonths,
		"recalculate-payment keeps the remaining periods, plus the lump entry")
	assert.True(t, preview.AdjustedPayment.LessThan(preview.BaselinePayment))
	assert.True(t, preview.InterestSaved.IsPositive())
}

func TestPreviewEarlyRepayment_DoesNotMutate(t *testing.T) {
	l := testLoan(t, 10_000, 5, 12, models.StyleAnnuity)
	schedule, err := Generate(l)
	require.NoError(t, err)

	version := l.ScheduleVersion
	term := l.TermMonths
	payment := l.Payment

	_, err = PreviewEarlyRepayment(l, schedule, decimal.NewFromInt(2000), StrategyRecalculatePayment, testStart.AddDate(0, 3, 0))
	require.NoError(t, err)

	assert.Equal(t, version, l.ScheduleVersion)
	assert.Equal(t, term, l.TermMonths)
	assert.True(t, payment.Equal(l.Payment))
	assert.Len(t, schedule, 12)
	for i, e := range schedule {
		assert.Equal(t, models.StatusPending, e.Status, "entry %d", i+1)
		assert.Equal(t, version, e.ScheduleVersion, "entry %d", i+1)
	}
}

func TestPreviewEarlyRepayment_FullPayoff(t *testing.T) {
	l := testLoan(t, 10_000, 5, 12, models.StyleAnnuity)
	schedule, err := Generate(l)
	require.NoError(t, err)
	schedule = markFirstPaid(t, l, schedule, 6)

	effective := schedule[5].DueDate.AddDate(0, 0, 10)
	preview, err := PreviewEarlyRepayment(l, schedule, decimal.NewFromInt(6000), StrategyReduceTerm, effective)
	require.NoError(t, err)

	assert.True(t, preview.FullPayoff)
	// Six paid installments plus the payoff entry: one period, not zero.
	assert.Equal(t, 7, preview.AdjustedTermMonths)
}
