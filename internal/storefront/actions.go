package storefront

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/printstore/internal/cart"
	"github.com/noah-isme/printstore/internal/checkout"
	"github.com/noah-isme/printstore/internal/obs"
)

const (
	uploadPath   = "/upload"
	checkoutPath = "/checkout/process"
	paymentPath  = "/payment"
	removePath   = "/cart/remove/"

	uploadField = "file"
)

var (
	// ErrActionFailed is returned when the storefront rejects a cart-mutating action.
	ErrActionFailed = errors.New("storefront: action failed")
	// ErrUploadFailed is returned when an upload is rejected. It wraps ErrActionFailed.
	ErrUploadFailed = fmt.Errorf("%w: upload", ErrActionFailed)
	// ErrNoFiles is returned when Upload is called without any usable file.
	ErrNoFiles = errors.New("storefront: no files to upload")
)

// Refresher is the cart refresh entry point.
type Refresher interface {
	Refresh(ctx context.Context) (cart.Summary, error)
}

// File is one document to upload.
type File struct {
	Name    string
	Content io.Reader
}

// Result is the outcome of a storefront action.
type Result struct {
	// Location is where the caller should navigate next.
	Location string
	// Summary is the refreshed cart, valid when Refreshed is true.
	Summary   cart.Summary
	Refreshed bool
}

// Actions performs the storefront calls that mutate the session cart. Every
// successful action is followed by a cart refresh.
type Actions struct {
	base    *url.URL
	http    cart.Doer
	refresh Refresher
	log     zerolog.Logger
}

// NewActions builds Actions against baseURL.
func NewActions(baseURL string, doer cart.Doer, refresher Refresher, logger zerolog.Logger) (*Actions, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("storefront: invalid base url %q", baseURL)
	}
	if doer == nil || refresher == nil {
		return nil, errors.New("storefront: doer and refresher are required")
	}
	return &Actions{
		base:    base,
		http:    doer,
		refresh: refresher,
		log:     logger.With().Str("component", "storefront").Logger(),
	}, nil
}

// Upload posts files as a multipart form, one "file" part each.
func (a *Actions) Upload(ctx context.Context, files ...File) (Result, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	parts := 0
	for _, f := range files {
		name := strings.TrimSpace(f.Name)
		if name == "" || f.Content == nil {
			continue
		}
		part, err := mw.CreateFormFile(uploadField, name)
		if err != nil {
			return Result{}, err
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return Result{}, fmt.Errorf("storefront: read %s: %w", name, err)
		}
		parts++
	}
	if parts == 0 {
		return Result{}, ErrNoFiles
	}
	if err := mw.Close(); err != nil {
		return Result{}, err
	}
	res, err := a.submit(ctx, "upload", uploadPath, mw.FormDataContentType(), &buf)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	return res, nil
}

// ProcessCheckout submits the copies chosen per job. Copies are clamped to
// the checkout bounds.
func (a *Actions) ProcessCheckout(ctx context.Context, copies map[string]int) (Result, error) {
	form := url.Values{}
	for jobID, n := range copies {
		jobID = strings.TrimSpace(jobID)
		if jobID == "" {
			continue
		}
		form.Set("copies_"+jobID, fmt.Sprint(checkout.ClampCopies(n)))
	}
	return a.submitForm(ctx, "checkout", checkoutPath, form)
}

// Pay submits the "I have paid" form.
func (a *Actions) Pay(ctx context.Context) (Result, error) {
	return a.submitForm(ctx, "payment", paymentPath, url.Values{})
}

// RemoveItem removes one job from the cart.
func (a *Actions) RemoveItem(ctx context.Context, jobID string) (Result, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Result{}, fmt.Errorf("%w: job id is required", cart.ErrInvalidInput)
	}
	return a.submitForm(ctx, "remove", removePath+jobID, url.Values{})
}

func (a *Actions) submitForm(ctx context.Context, action, path string, form url.Values) (Result, error) {
	return a.submit(ctx, action, path, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
}

func (a *Actions) submit(ctx context.Context, action, path, contentType string, body io.Reader) (Result, error) {
	target := a.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", contentType)

	location, err := a.do(ctx, req)
	obs.ObserveStorefrontAction(action, err)
	if err != nil {
		a.log.Warn().Err(err).Str("action", action).Msg("storefront action failed")
		return Result{}, err
	}

	res := Result{Location: location}
	summary, err := a.refresh.Refresh(ctx)
	if err != nil {
		a.log.Warn().Err(err).Str("action", action).Msg("refresh after action failed")
		return res, nil
	}
	res.Summary = summary
	res.Refreshed = true
	return res, nil
}

// do returns the navigation target of the response: the redirect location
// for 3xx, the request path for a rendered 2xx page.
func (a *Actions) do(ctx context.Context, req *http.Request) (string, error) {
	resp, err := a.http.Do(ctx, req)
	if err != nil {
		return "", err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		loc, err := resp.Location()
		if err != nil {
			return "", fmt.Errorf("%w: redirect without location", ErrActionFailed)
		}
		return a.relative(loc), nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return req.URL.Path, nil
	default:
		return "", fmt.Errorf("%w: status %d", ErrActionFailed, resp.StatusCode)
	}
}

// relative trims the storefront origin from same-origin locations.
func (a *Actions) relative(loc *url.URL) string {
	if loc.Host != "" && !strings.EqualFold(loc.Host, a.base.Host) {
		return loc.String()
	}
	out := url.URL{Path: loc.Path, RawPath: loc.RawPath, RawQuery: loc.RawQuery, Fragment: loc.Fragment}
	if out.Path == "" {
		out.Path = "/"
	}
	return out.String()
}
