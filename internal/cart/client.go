package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/printstore/internal/checkout"
	"github.com/noah-isme/printstore/internal/obs"
)

const (
	summaryPath    = "/api/cart-summary"
	detailPath     = "/api/cart-details"
	updateItemPath = "/api/update-cart-item"

	maxBodyBytes = 1 << 20
)

var (
	// ErrUnexpectedStatus is returned when the storefront answers with a non-2xx status.
	ErrUnexpectedStatus = errors.New("cart: unexpected status")
	// ErrInvalidSummary is returned when a decoded response violates the cart invariants.
	ErrInvalidSummary = errors.New("cart: invalid response")
	// ErrEmptyCart is returned by OpenDetail when there is nothing to show.
	ErrEmptyCart = errors.New("cart: empty")
	// ErrInvalidInput is returned for malformed update requests.
	ErrInvalidInput = errors.New("cart: invalid input")
)

// Doer performs a single HTTP exchange. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a plain function to Doer.
type DoerFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

// Do implements Doer.
func (f DoerFunc) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

// ClientConfig wires a Client.
type ClientConfig struct {
	BaseURL string
	HTTP    Doer
	Store   *Store
	View    View
	Logger  zerolog.Logger
}

// Client synchronises one page session's Store with the storefront.
type Client struct {
	baseURL  string
	http     Doer
	store    *Store
	view     View
	log      zerolog.Logger
	validate *validator.Validate

	// commitMu pairs each store write with its view notification so the view
	// always observes writes in store order.
	commitMu sync.Mutex
}

// NewClient builds a Client. A nil Store or View is replaced with a fresh
// store and a NopView.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("cart: base url is required")
	}
	if cfg.HTTP == nil {
		return nil, errors.New("cart: http doer is required")
	}
	store := cfg.Store
	if store == nil {
		store = NewStore()
	}
	view := cfg.View
	if view == nil {
		view = NopView{}
	}
	return &Client{
		baseURL:  base,
		http:     cfg.HTTP,
		store:    store,
		view:     view,
		log:      cfg.Logger.With().Str("component", "cart-sync").Logger(),
		validate: newValidator(),
	}, nil
}

// Store returns the store owned by the client.
func (c *Client) Store() *Store {
	return c.store
}

// SyncSummary fetches the cart summary and, on success, replaces the store
// and redraws the view. On failure the store is left untouched.
func (c *Client) SyncSummary(ctx context.Context) (Summary, error) {
	var summary Summary
	err := c.traced(ctx, "sync_summary", func(ctx context.Context) error {
		var wire summaryWire
		if err := c.getJSON(ctx, summaryPath, &wire); err != nil {
			return err
		}
		if err := c.validate.Struct(wire); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSummary, err)
		}
		summary = wire.summary()
		if err := c.validate.Struct(summary); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSummary, err)
		}
		c.commitMu.Lock()
		c.store.replace(summary)
		c.view.SummaryChanged(summary)
		c.commitMu.Unlock()
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// SyncDetail fetches the itemised cart. It is called lazily when the detail
// view is opened.
func (c *Client) SyncDetail(ctx context.Context) (Detail, error) {
	var detail Detail
	err := c.traced(ctx, "sync_detail", func(ctx context.Context) error {
		if err := c.getJSON(ctx, detailPath, &detail); err != nil {
			return err
		}
		for i := range detail.Jobs {
			if detail.Jobs[i].Copies == 0 {
				detail.Jobs[i].Copies = 1
			}
		}
		if detail.Jobs == nil {
			detail.Jobs = []Job{}
		}
		if err := c.validate.Struct(detail); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSummary, err)
		}
		c.commitMu.Lock()
		c.store.replaceDetail(detail)
		c.view.DetailLoaded(cloneDetail(detail))
		c.commitMu.Unlock()
		return nil
	})
	if err != nil {
		return Detail{}, err
	}
	return detail, nil
}

// OpenDetail loads the detail view, refusing when the last-known summary is
// empty.
func (c *Client) OpenDetail(ctx context.Context) (Detail, error) {
	if c.store.Summary().Empty() {
		return Detail{}, ErrEmptyCart
	}
	return c.SyncDetail(ctx)
}

// Refresh is the entry point for callers that mutated the server cart.
func (c *Client) Refresh(ctx context.Context) (Summary, error) {
	return c.SyncSummary(ctx)
}

// UpdateItem changes the copies of one cart job and refreshes the summary.
// Copies are clamped to the checkout bounds before they are sent.
func (c *Client) UpdateItem(ctx context.Context, jobID string, copies int) (Summary, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Summary{}, fmt.Errorf("%w: job id is required", ErrInvalidInput)
	}
	payload := struct {
		JobID  string `json:"job_id"`
		Copies int    `json:"copies"`
	}{JobID: jobID, Copies: checkout.ClampCopies(copies)}

	err := c.traced(ctx, "update_item", func(ctx context.Context) error {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+updateItemPath, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		resp, err := c.http.Do(ctx, req)
		if err != nil {
			return err
		}
		defer drain(resp.Body)
		return checkStatus(resp)
	})
	if err != nil {
		return Summary{}, err
	}
	return c.Refresh(ctx)
}

func (c *Client) traced(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer("cart").Start(ctx, "cart."+op)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	obs.ObserveCartSync(op, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Warn().Err(err).Str("op", op).Msg("cart sync failed")
		return err
	}
	span.SetAttributes(attribute.String("cart.op", op))
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return err
	}
	defer drain(resp.Body)
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrInvalidSummary, path, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}
	return nil
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxBodyBytes))
	_ = body.Close()
}
