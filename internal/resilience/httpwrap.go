package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient wraps an http.Client with a per-call timeout and a circuit
// breaker. It makes exactly one attempt per call; callers that need a fresh
// result simply call again.
type HTTPClient struct {
	Client  *http.Client
	Breaker *Breaker
	Timeout time.Duration
}

// Do executes req once. A refused call returns ErrOpenCircuit without touching
// the network. Responses with a 5xx status count as breaker failures but are
// still returned to the caller, which must close the body.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
		return nil, ErrOpenCircuit
	}
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		cl.report(ctx, false)
		return nil, fmt.Errorf("resilience: %s %s: %w", req.Method, req.URL.Path, err)
	}
	cl.report(ctx, resp.StatusCode < http.StatusInternalServerError)
	resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (cl HTTPClient) report(ctx context.Context, success bool) {
	if cl.Breaker != nil {
		cl.Breaker.Report(ctx, success)
	}
}

// cancelOnClose keeps the call context alive until the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
