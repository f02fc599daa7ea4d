package checkout_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/printstore/internal/checkout"
)

func clamp(n int) int {
	if n < 1 {
		return 1
	}
	if n > 99 {
		return 99
	}
	return n
}

func TestChangeCopiesClamps(t *testing.T) {
	base, err := checkout.NewQuantity(4, 20)
	require.NoError(t, err)

	deltas := []int{-1000, -99, -2, -1, 0, 1, 2, 50, 98, 99, 1000}
	for start := 1; start <= 99; start++ {
		q := base.ChangeCopies(start - 1)
		require.Equal(t, start, q.Copies())
		for _, d := range deltas {
			require.Equal(t, clamp(start+d), q.ChangeCopies(d).Copies(), "start=%d delta=%d", start, d)
		}
	}
}

func TestChangeCopiesExtremeDeltas(t *testing.T) {
	q, err := checkout.NewQuantity(1, 5)
	require.NoError(t, err)
	require.Equal(t, 99, q.ChangeCopies(math.MaxInt).Copies())
	require.Equal(t, 1, q.ChangeCopies(math.MinInt).Copies())
	require.Equal(t, 1, q.ChangeCopies(98).ChangeCopies(math.MinInt).Copies())
}

func TestChangeCopiesMonotonic(t *testing.T) {
	q, err := checkout.NewQuantity(3, 15)
	require.NoError(t, err)
	q = q.ChangeCopies(40)
	prev := q.ChangeCopies(-200).Copies()
	for d := -199; d <= 200; d++ {
		got := q.ChangeCopies(d).Copies()
		require.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestChangeCopiesSaturatesAtBounds(t *testing.T) {
	q, err := checkout.NewQuantity(2, 10)
	require.NoError(t, err)
	require.False(t, q.CanDecrease())
	require.True(t, q.CanIncrease())
	require.Equal(t, q, q.ChangeCopies(-1))

	top := q.ChangeCopies(200)
	require.Equal(t, 99, top.Copies())
	require.Equal(t, top, top.ChangeCopies(1))
	require.True(t, top.CanDecrease())
	require.False(t, top.CanIncrease())
}

func TestZeroDeltaIsIdempotent(t *testing.T) {
	q, err := checkout.NewQuantity(7, 35)
	require.NoError(t, err)
	q = q.ChangeCopies(5)
	before := q.Totals()
	for i := 0; i < 10; i++ {
		q = q.ChangeCopies(0)
	}
	require.Equal(t, before, q.Totals())
}

func TestDerivationLaw(t *testing.T) {
	cases := []struct {
		pages int
		cost  float64
	}{
		{1, 0}, {1, 5}, {12, 60}, {3, 7.5}, {250, 1250},
	}
	for _, tc := range cases {
		q, err := checkout.NewQuantity(tc.pages, tc.cost)
		require.NoError(t, err)
		for copies := 1; copies <= 99; copies++ {
			current := q.ChangeCopies(copies - 1)
			require.Equal(t, tc.pages*copies, current.TotalPages())
			require.Equal(t, tc.cost*float64(copies), current.TotalCost())
		}
	}
}

func TestDisplayCostTruncates(t *testing.T) {
	q, err := checkout.NewQuantity(1, 2.75)
	require.NoError(t, err)
	require.Equal(t, int64(2), q.DisplayCost())
	require.Equal(t, int64(8), q.ChangeCopies(2).DisplayCost())
}

func TestNewQuantityRejectsInvalidBase(t *testing.T) {
	_, err := checkout.NewQuantity(0, 5)
	require.ErrorIs(t, err, checkout.ErrInvalidBase)
	_, err = checkout.NewQuantity(2, -1)
	require.ErrorIs(t, err, checkout.ErrInvalidBase)
	_, err = checkout.NewQuantity(2, math.NaN())
	require.ErrorIs(t, err, checkout.ErrInvalidBase)
}
