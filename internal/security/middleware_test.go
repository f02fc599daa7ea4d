package security_test

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/printstore/internal/security"
)

func echo() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "too large", http.StatusRequestEntityTooLarge)
			return
		}
		_, _ = w.Write(data)
	})
}

func TestHeaders(t *testing.T) {
	handler := security.Headers{HSTSMaxAge: 600}.Middleware(echo())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart/summary", nil))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Empty(t, rr.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "https://widget.local/cart/summary", nil)
	req.TLS = &tls.ConnectionState{}
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, "max-age=600", rr.Header().Get("Strict-Transport-Security"))
}

func TestBodyLimit(t *testing.T) {
	handler := security.BodyLimit{Max: 5}.Middleware(echo())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("hello")))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "hello", rr.Body.String())

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("excessive")))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Contains(t, rr.Body.String(), "PAYLOAD_TOO_LARGE")

	req := httptest.NewRequest(http.MethodPost, "/x", io.NopCloser(strings.NewReader("excessive")))
	req.ContentLength = -1
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)

	upload := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("a large multipart body"))
	upload.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, upload)
	require.Equal(t, http.StatusOK, rr.Code)
}
