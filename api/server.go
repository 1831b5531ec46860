/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logger:     Structured request logging (zerolog)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the office frontend

ROUTE GROUPS:
  /api/invoices/*   Invoice lifecycle
  /api/payouts/*    Teacher payouts
  /api/stats/*      Portfolio statistics
  /api/admin/*      Admin operations
  /metrics          Prometheus scrape endpoint (when enabled)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// RouterOptions configures the outer HTTP surface.
type RouterOptions struct {
	CORSOrigins []string

	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Post("/", h.GenerateInvoice)
			r.Get("/{id}", h.GetInvoice)
			r.Get("/{id}/aging", h.GetInvoiceAging)
			r.Post("/{id}/send", h.SendInvoice)
			r.Post("/{id}/pending", h.MarkInvoicePending)
			r.Post("/{id}/payments", h.RecordPayment)
			r.Post("/{id}/cancel", h.CancelInvoice)
			r.Post("/{id}/dispute", h.OpenDispute)
			r.Post("/{id}/resolve", h.ResolveDispute)
			r.Post("/{id}/archive", h.ArchiveInvoice)
		})

		// Payout routes
		r.Route("/payouts", func(r chi.Router) {
			r.Get("/", h.ListPayouts)
			r.Post("/", h.CalculatePayout)
			r.Get("/{id}", h.GetPayout)
			r.Post("/{id}/bonuses", h.AddBonus)
			r.Post("/{id}/deductions", h.AddDeduction)
			r.Post("/{id}/validate", h.ValidatePayout)
			r.Post("/{id}/process", h.ProcessPayout)
			r.Post("/{id}/reject", h.RejectPayout)
			r.Post("/{id}/suspend", h.SuspendPayout)
			r.Post("/{id}/archive", h.ArchivePayout)
		})

		// Statistics routes
		r.Route("/stats", func(r chi.Router) {
			r.Get("/invoices", h.InvoiceStats)
			r.Get("/payouts", h.PayoutStats)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
		})
	})

	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, opts.Metrics)
	}

	return r
}

// requestLogger logs one line per request with its status and duration.
func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
