package cart

import (
	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(emptySummaryRule, Summary{})
	return v
}

// emptySummaryRule enforces that an empty cart carries no totals.
func emptySummaryRule(sl validator.StructLevel) {
	s, ok := sl.Current().Interface().(Summary)
	if !ok || s.Count != 0 {
		return
	}
	if s.TotalCost != 0 {
		sl.ReportError(s.TotalCost, "TotalCost", "total_cost", "emptycart", "")
	}
	if s.TotalPages != 0 {
		sl.ReportError(s.TotalPages, "TotalPages", "total_pages", "emptycart", "")
	}
}
