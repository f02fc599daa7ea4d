package checkout

import (
	"errors"
	"math"
)

// Copy bounds for a single checkout.
const (
	MinCopies = 1
	MaxCopies = 99
)

// ErrInvalidBase is returned when the base page count or cost is out of range.
var ErrInvalidBase = errors.New("checkout: invalid base quantity")

// ClampCopies bounds n to [MinCopies, MaxCopies].
func ClampCopies(n int) int {
	if n < MinCopies {
		return MinCopies
	}
	if n > MaxCopies {
		return MaxCopies
	}
	return n
}

// ApplyDelta returns clamp(copies+delta) without overflowing for any delta.
// copies is clamped first so callers never see a value outside the bounds.
func ApplyDelta(copies, delta int) int {
	copies = ClampCopies(copies)
	if delta > MaxCopies-copies {
		return MaxCopies
	}
	if delta < MinCopies-copies {
		return MinCopies
	}
	return copies + delta
}

// Quantity is the copy multiplier applied to a checkout's base pages and
// cost. The zero value is not usable; construct it with NewQuantity.
type Quantity struct {
	copies    int
	basePages int
	baseCost  float64
}

// NewQuantity starts a checkout at one copy.
func NewQuantity(basePages int, baseCost float64) (Quantity, error) {
	if basePages <= 0 {
		return Quantity{}, errors.Join(ErrInvalidBase, errors.New("base pages must be positive"))
	}
	if baseCost < 0 || math.IsNaN(baseCost) || math.IsInf(baseCost, 0) {
		return Quantity{}, errors.Join(ErrInvalidBase, errors.New("base cost must be a non-negative number"))
	}
	return Quantity{copies: MinCopies, basePages: basePages, baseCost: baseCost}, nil
}

// ChangeCopies returns the quantity with delta applied and saturated at the
// bounds. A zero delta returns q unchanged.
func (q Quantity) ChangeCopies(delta int) Quantity {
	q.copies = ApplyDelta(q.copies, delta)
	return q
}

// Copies returns the current copy count.
func (q Quantity) Copies() int { return q.copies }

// BasePages returns the page count of one copy.
func (q Quantity) BasePages() int { return q.basePages }

// BaseCost returns the cost of one copy.
func (q Quantity) BaseCost() float64 { return q.baseCost }

// TotalPages is basePages × copies.
func (q Quantity) TotalPages() int { return q.basePages * q.copies }

// TotalCost is baseCost × copies.
func (q Quantity) TotalCost() float64 { return q.baseCost * float64(q.copies) }

// DisplayCost is TotalCost truncated toward zero.
func (q Quantity) DisplayCost() int64 { return int64(math.Trunc(q.TotalCost())) }

// CanDecrease reports whether the decrement control should be enabled.
func (q Quantity) CanDecrease() bool { return q.copies > MinCopies }

// CanIncrease reports whether the increment control should be enabled.
func (q Quantity) CanIncrease() bool { return q.copies < MaxCopies }

// Totals is the rendered state of a checkout quantity.
type Totals struct {
	Copies      int     `json:"copies"`
	TotalPages  int     `json:"total_pages"`
	TotalCost   float64 `json:"total_cost"`
	DisplayCost int64   `json:"display_cost"`
	CanDecrease bool    `json:"can_decrease"`
	CanIncrease bool    `json:"can_increase"`
}

// Totals derives the rendered state.
func (q Quantity) Totals() Totals {
	return Totals{
		Copies:      q.copies,
		TotalPages:  q.TotalPages(),
		TotalCost:   q.TotalCost(),
		DisplayCost: q.DisplayCost(),
		CanDecrease: q.CanDecrease(),
		CanIncrease: q.CanIncrease(),
	}
}
