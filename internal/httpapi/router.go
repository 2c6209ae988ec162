package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"trailblazer_ai/internal/analyzer"
	"trailblazer_ai/internal/auth"
	"trailblazer_ai/internal/billing"
	"trailblazer_ai/internal/config"
	"trailblazer_ai/internal/logging"
	"trailblazer_ai/internal/metrics"
	"trailblazer_ai/internal/middleware"
	"trailblazer_ai/internal/models"
	"trailblazer_ai/internal/ratelimit"
	"trailblazer_ai/internal/utils"
)

// AnalysisService is the orchestration core. analyzer.Service implements it.
type AnalysisService interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (*analyzer.Result, error)
	FindTrails(ctx context.Context, q models.TrailSearch) (*analyzer.TrailSearchResult, error)
}

// BudgetStore reads and writes stored budget settings. storage.BudgetRepository implements it.
type BudgetStore interface {
	Get(ctx context.Context, scope string) (*models.BudgetSettings, error)
	Upsert(ctx context.Context, settings *models.BudgetSettings) error
}

// HealthCheck reports whether one backing service is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Analyzer  AnalysisService
	Tracker   *billing.Tracker
	Spend     billing.SpendService // nil when spend counters are not shared
	Budgets   BudgetStore          // nil without a database
	Guard     *billing.BudgetGuard
	RateLimit ratelimit.Limiter
	Metrics   metrics.Metrics
	Audit     logging.Sink
	Health    map[string]HealthCheck

	logger  *utils.Logger
	closers []func(ctx context.Context) error
}

func (d *Dependencies) log() *utils.Logger {
	if d.logger == nil {
		d.logger = utils.NewLogger("httpapi")
	}
	return d.logger
}

// NewRouter builds the chi router for the orchestration API.
func NewRouter(deps *Dependencies, cfg *config.Config) http.Handler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoopMetrics()
	}
	if deps.RateLimit == nil {
		deps.RateLimit = ratelimit.NewNoopLimiter()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestMetrics(deps.Metrics))

	// Public
	r.Get("/health", deps.handleHealth)
	r.Handle("/metrics", deps.Metrics.HTTPHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.UserJWTMiddleware([]byte(cfg.Auth.JWTSecret)))

		r.Group(func(r chi.Router) {
			if cfg.RateLimit.Enabled {
				r.Use(middleware.RateLimitMiddleware(deps.RateLimit, cfg.RateLimit.RequestsPerWindow, deps.Metrics))
			}
			r.Post("/analyze", deps.handleAnalyze(cfg.HTTP.MaxUploadBytes))
			r.Post("/trail-finder", deps.handleTrailFinder)
		})

		r.Get("/usage/summary", deps.handleUsageSummary)
		r.Get("/usage/alerts", deps.handleUsageAlerts)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(auth.RoleAdmin))
			r.Get("/budget", deps.handleGetBudget)
			r.Put("/budget", deps.handlePutBudget)
		})
	})

	return r
}

func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(d.Health))
	for name, check := range d.Health {
		if err := check(ctx); err != nil {
			d.log().Warn("Health check failed", "check", name, "error", err)
			checks[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "healthy"
	}

	body := map[string]any{"status": "healthy", "service": "trailblazer-ai", "checks": checks}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	utils.RespondWithJSON(w, status, body)
}
