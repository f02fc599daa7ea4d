package cart

// Summary is the aggregate view of the session cart as reported by
// GET /api/cart-summary. It is always replaced as a whole.
type Summary struct {
	Count      int     `json:"count" validate:"gte=0"`
	TotalCost  float64 `json:"total_cost" validate:"gte=0"`
	TotalPages int     `json:"total_pages" validate:"gte=0"`
}

// summaryWire is the summary as sent. A body missing any field, such as
// null or an error object, is not a summary.
type summaryWire struct {
	Count      *int     `json:"count" validate:"required"`
	TotalCost  *float64 `json:"total_cost" validate:"required"`
	TotalPages *int     `json:"total_pages" validate:"required"`
}

func (w summaryWire) summary() Summary {
	return Summary{Count: *w.Count, TotalCost: *w.TotalCost, TotalPages: *w.TotalPages}
}

// Empty reports whether the cart holds no jobs.
func (s Summary) Empty() bool {
	return s.Count == 0
}

// Job is one uploaded file in the cart. Cost already includes Copies.
type Job struct {
	ID          string  `json:"id"`
	Filename    string  `json:"filename"`
	Pages       int     `json:"pages" validate:"gt=0"`
	Copies      int     `json:"copies" validate:"gt=0,lte=99"`
	Cost        float64 `json:"cost" validate:"gte=0"`
	Orientation string  `json:"orientation,omitempty"`
}

// BilledPages returns the page count billed for the job.
func (j Job) BilledPages() int {
	return j.Pages * j.Copies
}

// Detail is the itemised cart returned by GET /api/cart-details. TotalPages
// and TotalCost are authoritative server aggregates.
type Detail struct {
	Jobs       []Job   `json:"jobs" validate:"dive"`
	Count      int     `json:"count" validate:"gte=0"`
	TotalCost  float64 `json:"total_cost" validate:"gte=0"`
	TotalPages int     `json:"total_pages" validate:"gte=0"`
}

// View is the renderable cart capability. The client calls it after every
// successful sync, in the same order the store was updated.
type View interface {
	SummaryChanged(Summary)
	DetailLoaded(Detail)
}

// NopView discards every update.
type NopView struct{}

// SummaryChanged implements View.
func (NopView) SummaryChanged(Summary) {}

// DetailLoaded implements View.
func (NopView) DetailLoaded(Detail) {}
