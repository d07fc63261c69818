// Package api serves the account record collection over HTTP.
package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmcleod/visica/records"
)

// CollectionPath is where the account record collection is mounted,
// relative to the API root.
const CollectionPath = "/collections/accounts/records"

// API holds the dependencies needed by the REST handlers.
type API struct {
	records         *records.Service
	audit           *auditLogger
	metrics         *metricsCollector
	registry        *prometheus.Registry
	queryCredential bool
	webhook         *auditWebhook
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithQueryCredential controls whether the passphrase may be sent as the
// "passphrase" query parameter in addition to the X-Passphrase header.
// It is enabled by default for compatibility with older clients.
func WithQueryCredential(enabled bool) Option {
	return func(a *API) {
		a.queryCredential = enabled
	}
}

// WithAuditWebhook forwards every audit event to url. authHeader, when set,
// is sent on each request in "Header: Value" form.
func WithAuditWebhook(url, authHeader string) Option {
	return func(a *API) {
		if url != "" {
			a.webhook = newAuditWebhook(url, authHeader)
		}
	}
}

// WithRegistry registers the API's Prometheus collectors on reg. Whichever
// registry is in use is served on /metrics; by default it is a private one.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(a *API) {
		a.registry = reg
	}
}

// New creates a new API instance.
func New(svc *records.Service, opts ...Option) *API {
	a := &API{
		records:         svc,
		queryCredential: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}
	a.metrics = newMetricsCollector(a.registry)
	a.audit.metrics = a.metrics
	a.audit.webhook = a.webhook
	return a
}

// Close stops background audit delivery, flushing queued events.
func (a *API) Close() {
	if a.webhook != nil {
		a.webhook.close()
	}
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Get("/health", a.Health)
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	r.Route(CollectionPath, func(r chi.Router) {
		r.Use(SecurityHeaders)
		r.Use(a.instrument)
		r.Get("/", a.FindRecords)
		r.Post("/", a.CreateRecord)
		r.Group(func(r chi.Router) {
			r.Use(a.CredentialMiddleware)
			r.Get("/{id}", a.GetRecord)
			r.Patch("/{id}", a.UpdateRecord)
			r.Delete("/{id}", a.DeleteRecord)
		})
	})

	return r
}
