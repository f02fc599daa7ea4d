package security

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/noah-isme/printstore/internal/common"
)

// Headers attaches browser hardening headers to every response of the local
// surfaces. HSTS is only sent over TLS.
type Headers struct {
	HSTSMaxAge int
}

// Middleware implements chi middleware.
func (h Headers) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "same-origin")
		if r.TLS != nil && h.HSTSMaxAge > 0 {
			headers.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(h.HSTSMaxAge))
		}
		next.ServeHTTP(w, r)
	})
}

// BodyLimit caps request bodies. Multipart uploads are exempt; they are
// bounded by the upload handler itself.
type BodyLimit struct {
	Max int64
}

// Middleware answers 413 for declared oversized bodies and truncates reads
// of undeclared ones at Max.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}
