/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:   Unique ID per request for tracing
  2. RealIP:      Client address from X-Forwarded-For / X-Real-IP
  3. RequestLog:  httplog access log (ECS JSON), when AccessLog is set
  4. Recoverer:   Panic recovery (500 instead of crash)
  5. Heartbeat:   GET /healthz, answered before anything below
  6. CORS:        Cross-origin requests for frontends
  7. RateLimit:   Token bucket per client IP, when RateLimit > 0
  8. Idempotency: Redis-backed POST replay under /api, when Redis is set

ROUTE GROUPS:
  /api/employees/*      Employee directory
  /api/attendance/*     Attendance ledger, get-or-create, SSE stream
  /api/payroll/*        Payroll calculation
  /api/scenarios/*      Demo scenarios (development only)
  /healthz              Liveness

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Rate limiting and idempotency
  - cmd/server/main.go: Server startup
*/
package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RouterOptions configures the middleware stack. Zero values disable the
// optional layers.
type RouterOptions struct {
	AllowedOrigins []string

	RateLimit rate.Limit
	RateBurst int

	Redis          redis.Cmdable
	IdempotencyTTL time.Duration

	AccessLog *slog.Logger
	Logger    *zap.Logger

	// EnableScenarios mounts the demo scenario loader. Never in production.
	EnableScenarios bool
}

// NewAccessLogger builds the slog logger httplog writes access lines with.
func NewAccessLogger(w io.Writer, env string) *slog.Logger {
	format := httplog.SchemaECS.Concise(env != "production")
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: format.ReplaceAttr,
	})).With(
		slog.String("app", "payroll-engine"),
		slog.String("env", env),
	)
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.AccessLog != nil {
		r.Use(httplog.RequestLogger(opts.AccessLog, &httplog.Options{
			Level:  slog.LevelInfo,
			Schema: httplog.SchemaECS,
		}))
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader},
		ExposedHeaders: []string{"Retry-After", ReplayedHeader},
		MaxAge:         300,
	}))

	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		r.Use(RateLimitByIP(NewIPRateLimiter(opts.RateLimit, burst)))
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		if opts.Redis != nil {
			r.Use(Idempotency(opts.Redis, opts.IdempotencyTTL, opts.Logger))
		}

		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Delete("/{id}", h.DeleteEmployee)
		})

		r.Route("/attendance", func(r chi.Router) {
			r.Get("/", h.ListAttendance)
			r.Post("/", h.CreateAttendance)
			r.Post("/mark", h.MarkAttendance)
			r.Get("/stream", h.StreamAttendance)
			r.Get("/{id}", h.GetAttendance)
			r.Put("/{id}", h.UpdateAttendance)
			r.Delete("/{id}", h.DeleteAttendance)
		})

		r.Route("/payroll", func(r chi.Router) {
			r.Post("/calculate", h.CalculatePayroll)
		})

		if opts.EnableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Post("/load", h.LoadScenario)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path, "NOT_FOUND", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "METHOD_NOT_ALLOWED", nil)
	})

	return r
}
