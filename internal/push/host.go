package push

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrHostClosed is returned when work is dispatched to a draining host.
var ErrHostClosed = errors.New("push: host closed")

// Host is the background execution context the agent runs in. Work handed to
// WaitUntil keeps the host alive until it completes, independent of the
// caller that triggered it.
type Host struct {
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	base     context.Context
	cancel   context.CancelFunc
	log      zerolog.Logger
}

// NewHost returns a running host.
func NewHost(logger zerolog.Logger) *Host {
	base, cancel := context.WithCancel(context.Background())
	return &Host{base: base, cancel: cancel, log: logger.With().Str("component", "push-host").Logger()}
}

// WaitUntil runs fn in the background and extends the host's lifetime until
// fn returns. Cancelling ctx does not cancel fn; only a forced Drain does.
// The returned channel yields fn's result exactly once.
func (h *Host) WaitUntil(ctx context.Context, name string, fn func(context.Context) error) <-chan error {
	done := make(chan error, 1)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		done <- ErrHostClosed
		return done
	}
	h.inflight.Add(1)
	h.mu.Unlock()

	workCtx, stop := context.WithCancel(h.base)
	workCtx = mergeValues(workCtx, ctx)
	go func() {
		defer h.inflight.Done()
		defer stop()
		defer func() {
			if r := recover(); r != nil {
				h.log.Error().Str("work", name).Interface("panic", r).Msg("background work panicked")
				done <- fmt.Errorf("push: %s panicked: %v", name, r)
			}
		}()
		done <- fn(workCtx)
	}()
	return done
}

// Run is WaitUntil followed by waiting for the result or for ctx.
func (h *Host) Run(ctx context.Context, name string, fn func(context.Context) error) error {
	select {
	case err := <-h.WaitUntil(ctx, name, fn):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain stops accepting work and waits for in-flight work. When ctx expires
// first, outstanding work is cancelled and ctx's error is returned.
func (h *Host) Drain(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		h.cancel()
		return nil
	case <-ctx.Done():
		h.cancel()
		<-finished
		return ctx.Err()
	}
}

// valueCtx keeps the caller's values (logger, trace span) on a context whose
// lifetime belongs to the host.
type valueCtx struct {
	context.Context
	values context.Context
}

func (v valueCtx) Value(key any) any {
	if val := v.Context.Value(key); val != nil {
		return val
	}
	return v.values.Value(key)
}

func mergeValues(lifetime, values context.Context) context.Context {
	if values == nil {
		return lifetime
	}
	return valueCtx{Context: lifetime, values: values}
}
