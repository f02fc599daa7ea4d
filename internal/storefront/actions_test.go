package storefront_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/printstore/internal/cart"
	"github.com/noah-isme/printstore/internal/storefront"
)

// fakeShop keeps one cart per session cookie.
type fakeShop struct {
	mu      sync.Mutex
	carts   map[string][]string
	copies  map[string]string
	nextID  int
	reject  bool
	uploads []string
}

func newFakeShop() *fakeShop {
	return &fakeShop{carts: map[string][]string{}, copies: map[string]string{}}
}

func (f *fakeShop) session(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie("session"); err == nil {
		return c.Value
	}
	f.nextID++
	id := fmt.Sprintf("s%d", f.nextID)
	http.SetCookie(w, &http.Cookie{Name: "session", Value: id, Path: "/"})
	return id
}

func (f *fakeShop) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.reject {
			http.Error(w, "no valid files uploaded", http.StatusBadRequest)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, "no file part", http.StatusBadRequest)
			return
		}
		sid := f.session(w, r)
		for _, fh := range r.MultipartForm.File["file"] {
			f.uploads = append(f.uploads, fh.Filename)
			f.carts[sid] = append(f.carts[sid], fh.Filename)
		}
		http.Redirect(w, r, "/checkout", http.StatusFound)
	})
	mux.HandleFunc("/checkout/process", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_ = r.ParseForm()
		for k, v := range r.PostForm {
			f.copies[k] = v[0]
		}
		http.Redirect(w, r, "/payment", http.StatusFound)
	})
	mux.HandleFunc("/payment", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "<html>waiting</html>")
	})
	mux.HandleFunc("/cart/remove/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		sid := f.session(w, r)
		id := strings.TrimPrefix(r.URL.Path, "/cart/remove/")
		kept := f.carts[sid][:0]
		for _, name := range f.carts[sid] {
			if name != id {
				kept = append(kept, name)
			}
		}
		f.carts[sid] = kept
		http.Redirect(w, r, "/checkout", http.StatusFound)
	})
	mux.HandleFunc("/api/cart-summary", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		n := 0
		if c, err := r.Cookie("session"); err == nil {
			n = len(f.carts[c.Value])
		}
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"count":%d,"total_cost":%d,"total_pages":%d}`, n, n*5, n)
	})
	return mux
}

func newSession(t *testing.T, shop *fakeShop) *storefront.Session {
	t.Helper()
	srv := httptest.NewServer(shop.handler())
	t.Cleanup(srv.Close)
	s, err := storefront.NewSession(storefront.SessionConfig{BaseURL: srv.URL, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return s
}

func TestUploadRedirectsAndRefreshesSharedSession(t *testing.T) {
	shop := newFakeShop()
	s := newSession(t, shop)
	ctx := context.Background()

	res, err := s.Actions.Upload(ctx,
		storefront.File{Name: "thesis.pdf", Content: strings.NewReader("%PDF-1.4")},
		storefront.File{Name: "photo.png", Content: strings.NewReader("png")},
	)
	require.NoError(t, err)
	require.Equal(t, "/checkout", res.Location)
	require.True(t, res.Refreshed)
	require.Equal(t, cart.Summary{Count: 2, TotalCost: 10, TotalPages: 2}, res.Summary)
	require.Equal(t, res.Summary, s.Cart.Store().Summary())
	require.ElementsMatch(t, []string{"thesis.pdf", "photo.png"}, shop.uploads)

	res, err = s.Actions.RemoveItem(ctx, "photo.png")
	require.NoError(t, err)
	require.Equal(t, "/checkout", res.Location)
	require.Equal(t, 1, s.Cart.Store().Summary().Count)
}

func TestUploadFailure(t *testing.T) {
	shop := newFakeShop()
	shop.reject = true
	s := newSession(t, shop)

	_, err := s.Actions.Upload(context.Background(), storefront.File{Name: "a.pdf", Content: strings.NewReader("x")})
	require.ErrorIs(t, err, storefront.ErrUploadFailed)
	require.ErrorIs(t, err, storefront.ErrActionFailed)
	require.Equal(t, cart.Summary{}, s.Cart.Store().Summary())

	_, err = s.Actions.Upload(context.Background(), storefront.File{Name: " "})
	require.ErrorIs(t, err, storefront.ErrNoFiles)
}

func TestProcessCheckoutClampsCopies(t *testing.T) {
	shop := newFakeShop()
	s := newSession(t, shop)

	res, err := s.Actions.ProcessCheckout(context.Background(), map[string]int{"a1": 0, "b2": 3, "c3": 500})
	require.NoError(t, err)
	require.Equal(t, "/payment", res.Location)
	require.Equal(t, map[string]string{"copies_a1": "1", "copies_b2": "3", "copies_c3": "99"}, shop.copies)
}

func TestPayAcceptsRenderedPage(t *testing.T) {
	shop := newFakeShop()
	s := newSession(t, shop)

	res, err := s.Actions.Pay(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/payment", res.Location)
	require.True(t, res.Refreshed)
}

type failingRefresher struct{ calls int }

func (f *failingRefresher) Refresh(context.Context) (cart.Summary, error) {
	f.calls++
	return cart.Summary{}, cart.ErrUnexpectedStatus
}

func TestRefreshFailureDoesNotFailAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/checkout", http.StatusSeeOther)
	}))
	t.Cleanup(srv.Close)
	refresher := &failingRefresher{}
	doer := cart.DoerFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return http.DefaultTransport.RoundTrip(req)
	})
	actions, err := storefront.NewActions(srv.URL, doer, refresher, zerolog.Nop())
	require.NoError(t, err)

	res, err := actions.Pay(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/checkout", res.Location)
	require.False(t, res.Refreshed)
	require.Equal(t, 1, refresher.calls)
}
