package projector

import (
	"math"
	"strconv"

	"github.com/noah-isme/printstore/internal/cart"
)

// CurrencySymbol prefixes every rendered price.
const CurrencySymbol = "₹"

// SummaryView is the rendered cart button.
type SummaryView struct {
	Count          int    `json:"count"`
	Badge          string `json:"badge"`
	BadgeVisible   bool   `json:"badge_visible"`
	ItemsLabel     string `json:"items_label"`
	Price          string `json:"price"`
	Hidden         bool   `json:"hidden"`
	Disabled       bool   `json:"disabled"`
	Opacity        string `json:"opacity"`
	CanOpenDetails bool   `json:"can_open_details"`
}

// Summary derives the cart button from a summary.
func Summary(s cart.Summary) SummaryView {
	empty := s.Count <= 0
	opacity := "1"
	if empty {
		opacity = "0.6"
	}
	return SummaryView{
		Count:          s.Count,
		Badge:          strconv.Itoa(s.Count),
		BadgeVisible:   !empty,
		ItemsLabel:     ItemsLabel(s.Count),
		Price:          Price(s.TotalCost),
		Hidden:         empty,
		Disabled:       empty,
		Opacity:        opacity,
		CanOpenDetails: !empty,
	}
}

// ItemsLabel renders "1 item" or "N items".
func ItemsLabel(count int) string {
	if count == 1 {
		return "1 item"
	}
	return strconv.Itoa(count) + " items"
}

// Price renders an amount as reported by the server, without padding.
func Price(amount float64) string {
	return CurrencySymbol + strconv.FormatFloat(amount, 'f', -1, 64)
}

// WholePrice renders an amount truncated down to a whole number.
func WholePrice(amount float64) string {
	return CurrencySymbol + strconv.FormatInt(floor(amount), 10)
}

func floor(v float64) int64 {
	return int64(math.Floor(v))
}
