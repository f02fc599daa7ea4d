package storefront

import (
	"errors"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/printstore/internal/cart"
	"github.com/noah-isme/printstore/internal/resilience"
)

// SessionConfig describes one page session against the storefront.
type SessionConfig struct {
	BaseURL   string
	Timeout   time.Duration
	Breaker   *resilience.Breaker
	View      cart.View
	Transport http.RoundTripper
	Logger    zerolog.Logger
}

// Session owns the cart state of one page session together with the
// clients that read and mutate it. Both share one cookie jar so they see
// the same server-side cart.
type Session struct {
	Cart    *cart.Client
	Actions *Actions
	Jar     http.CookieJar
}

// NewSession builds a Session with a fresh cookie jar and store.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("storefront: base url is required")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	httpClient := &http.Client{
		Jar:       jar,
		Transport: otelhttp.NewTransport(transport),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	doer := resilience.HTTPClient{Client: httpClient, Breaker: cfg.Breaker, Timeout: cfg.Timeout}

	client, err := cart.NewClient(cart.ClientConfig{
		BaseURL: cfg.BaseURL,
		HTTP:    doer,
		Store:   cart.NewStore(),
		View:    cfg.View,
		Logger:  cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	actions, err := NewActions(cfg.BaseURL, doer, client, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return &Session{Cart: client, Actions: actions, Jar: jar}, nil
}
