package projector

import (
	"strconv"
	"strings"

	"github.com/noah-isme/printstore/internal/cart"
)

// Displayed original prices are marked up by this factor over the charged price.
const originalPriceMarkup = 1.6

// MaxFilenameLength bounds rendered filenames.
const MaxFilenameLength = 20

// JobView is one rendered file row.
type JobView struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Filename      string `json:"filename"`
	CopiesBadge   string `json:"copies_badge,omitempty"`
	Meta          string `json:"meta"`
	Price         string `json:"price"`
	OriginalPrice string `json:"original_price"`
}

// Bill is the rendered bill breakdown.
type Bill struct {
	ItemsTotal     int64 `json:"items_total"`
	OriginalPrice  int64 `json:"original_price"`
	Saved          int64 `json:"saved"`
	HandlingCharge int64 `json:"handling_charge"`
	GrandTotal     int64 `json:"grand_total"`
}

// DetailView is the rendered cart sidebar.
type DetailView struct {
	PagesLabel string    `json:"pages_label"`
	Jobs       []JobView `json:"jobs"`
	Bill       Bill      `json:"bill"`
	PayLabel   string    `json:"pay_label"`
}

// Detail derives the sidebar from an itemised cart. Job costs already carry
// their copies and are never multiplied again.
func Detail(d cart.Detail) DetailView {
	jobs := make([]JobView, 0, len(d.Jobs))
	for i, job := range d.Jobs {
		jobs = append(jobs, jobView(i, job))
	}
	bill := ComputeBill(d.TotalCost)
	return DetailView{
		PagesLabel: strconv.Itoa(d.TotalPages) + " pages",
		Jobs:       jobs,
		Bill:       bill,
		PayLabel:   CurrencySymbol + strconv.FormatInt(bill.GrandTotal, 10),
	}
}

// ComputeBill derives the bill from the server's total cost.
func ComputeBill(totalCost float64) Bill {
	total := floor(totalCost)
	original := floor(totalCost * originalPriceMarkup)
	return Bill{
		ItemsTotal:     total,
		OriginalPrice:  original,
		Saved:          original - total,
		HandlingCharge: 0,
		GrandTotal:     total,
	}
}

func jobView(index int, job cart.Job) JobView {
	name := TruncateFilename(job.Filename, MaxFilenameLength)
	v := JobView{
		ID:            job.ID,
		Title:         "File " + strconv.Itoa(index+1) + " - " + name,
		Filename:      name,
		Price:         WholePrice(job.Cost),
		OriginalPrice: WholePrice(job.Cost * originalPriceMarkup),
	}
	var meta strings.Builder
	meta.WriteString(strconv.Itoa(job.Pages))
	if job.Pages == 1 {
		meta.WriteString(" page")
	} else {
		meta.WriteString(" pages")
	}
	if job.Copies > 1 {
		v.CopiesBadge = "x" + strconv.Itoa(job.Copies)
		meta.WriteString(" × " + strconv.Itoa(job.Copies) + " copies = " + strconv.Itoa(job.BilledPages()) + " pages")
	}
	v.Meta = meta.String()
	return v
}

// TruncateFilename shortens filename to at most max characters, keeping its
// extension where there is room for it.
func TruncateFilename(filename string, max int) string {
	runes := []rune(filename)
	if len(runes) <= max {
		return filename
	}
	name, ext := runes, []rune(nil)
	if dot := lastDot(runes); dot > 0 {
		name, ext = runes[:dot], runes[dot:]
	}
	if avail := max - len(ext) - 3; avail > 0 {
		if avail > len(name) {
			avail = len(name)
		}
		return string(name[:avail]) + "..." + string(ext)
	}
	keep := max - 3
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + "..."
}

func lastDot(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '.' {
			return i
		}
	}
	return -1
}
