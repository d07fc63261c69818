package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type contextKey int

const passphraseKey contextKey = iota

const (
	passphraseHeader = "X-Passphrase"
	passphraseQuery  = "passphrase"
)

// CredentialMiddleware requires a passphrase on the request and stores it on
// the request context. It does not check the passphrase: every handler
// re-validates it against the record it addresses.
func (a *API) CredentialMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		passphrase, ok := a.passphraseFromRequest(r)
		if !ok {
			a.audit.logFailure(AuditCredentialMissing, r, "no passphrase presented")
			writeError(w, http.StatusUnauthorized, "missing "+passphraseHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), passphraseKey, passphrase)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// passphraseFromRequest reads the X-Passphrase header, falling back to the
// passphrase query parameter when query credentials are enabled.
func (a *API) passphraseFromRequest(r *http.Request) (string, bool) {
	if p := r.Header.Get(passphraseHeader); p != "" {
		return p, true
	}
	if a.queryCredential {
		if p := r.URL.Query().Get(passphraseQuery); p != "" {
			return p, true
		}
	}
	return "", false
}

func passphraseFromContext(ctx context.Context) string {
	p, _ := ctx.Value(passphraseKey).(string)
	return p
}

// instrument records request counts and latencies by route pattern.
func (a *API) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		a.metrics.observeRequest(r.Method, route, ww.Status(), time.Since(start))
	})
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}

// RequestLogger logs one line per request. The query string is never
// logged because it may carry a passphrase.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "request",
				"request_id", chimw.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
