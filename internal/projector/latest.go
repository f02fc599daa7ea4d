package projector

import (
	"sync"

	"github.com/noah-isme/printstore/internal/cart"
)

// Latest is a cart.View that keeps the most recently drawn views.
type Latest struct {
	mu        sync.RWMutex
	summary   SummaryView
	detail    DetailView
	hasDetail bool
	next      cart.View
}

// NewLatest starts from the empty cart. Updates are forwarded to next when
// it is non-nil.
func NewLatest(next cart.View) *Latest {
	return &Latest{summary: Summary(cart.Summary{}), next: next}
}

// SummaryChanged implements cart.View.
func (l *Latest) SummaryChanged(s cart.Summary) {
	view := Summary(s)
	l.mu.Lock()
	l.summary = view
	l.mu.Unlock()
	if l.next != nil {
		l.next.SummaryChanged(s)
	}
}

// DetailLoaded implements cart.View.
func (l *Latest) DetailLoaded(d cart.Detail) {
	view := Detail(d)
	l.mu.Lock()
	l.detail = view
	l.hasDetail = true
	l.mu.Unlock()
	if l.next != nil {
		l.next.DetailLoaded(d)
	}
}

// Summary returns the last drawn summary view.
func (l *Latest) Summary() SummaryView {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.summary
}

// Detail returns the last drawn detail view, if one was ever loaded.
func (l *Latest) Detail() (DetailView, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.hasDetail {
		return DetailView{}, false
	}
	out := l.detail
	out.Jobs = append([]JobView(nil), l.detail.Jobs...)
	return out, true
}
