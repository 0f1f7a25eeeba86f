package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/redmonkez12/todo-api/internal/apperror"
	"github.com/redmonkez12/todo-api/internal/auth"
	"github.com/redmonkez12/todo-api/internal/config"
	"github.com/redmonkez12/todo-api/internal/httputil"
	"github.com/redmonkez12/todo-api/internal/logging"
	"github.com/redmonkez12/todo-api/internal/metrics"
	"github.com/redmonkez12/todo-api/internal/user"
)

// healthCheckTimeout bounds each dependency check of /health.
const healthCheckTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies holds everything the router serves.
type Dependencies struct {
	Config      *config.Config
	Logger      *logging.Logger
	Metrics     *metrics.Metrics // optional
	AuthHandler *auth.Handler
	UserHandler *user.Handler
	Guard       *auth.Guard
	Checks      map[string]HealthCheck
}

var errRouteNotFound = apperror.New(apperror.KindNotFound, httputil.CodeRouteNotFound, "Route not found")

// NewRouter creates and configures the HTTP router
func NewRouter(deps Dependencies) *chi.Mux {
	cfg := deps.Config
	r := chi.NewRouter()

	// CORS - must be first
	if len(cfg.Server.TrustedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.Server.TrustedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           300, // 5 minutes
		}))
	}

	r.Use(SecurityHeaders)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}
	r.Use(middleware.Compress(5))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondError(w, errRouteNotFound)
	})

	r.Get("/health", handleHealth(deps.Checks))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	// Swagger UI is only mounted in development
	if cfg.Server.IsDevelopment() {
		deps.Logger.Info("Swagger UI enabled at /swagger/*")
		r.Get("/swagger/*", httpSwagger.WrapHandler)
	}

	r.Route(cfg.Server.APIPrefix, func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", deps.AuthHandler.Register)
			r.Post("/login", deps.AuthHandler.Login)
			r.Post("/refresh-token", deps.AuthHandler.RefreshToken)
			r.Post("/facebook", deps.AuthHandler.Facebook)
			r.Post("/google", deps.AuthHandler.Google)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(deps.Guard.Authenticate)

			r.With(deps.Guard.Require(auth.Admin)).Get("/", deps.UserHandler.List)
			r.With(deps.Guard.Require(auth.Admin)).Post("/", deps.UserHandler.Create)
			r.Get("/profile", deps.UserHandler.Profile)

			r.Route("/{"+user.IDParam+"}", func(r chi.Router) {
				r.Use(deps.Guard.RequireLoggedUser(user.IDParam))
				r.Get("/", deps.UserHandler.Get)
				r.Put("/", deps.UserHandler.Replace)
				r.Patch("/", deps.UserHandler.Update)
				r.Delete("/", deps.UserHandler.Delete)
			})
		})
	})

	return r
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// handleHealth reports the API status and its dependencies
// @Summary      Health check
// @Description  Check if the API and its stores are reachable
// @Tags         health
// @Produce      json
// @Success      200 {object} HealthResponse
// @Failure      503 {object} HealthResponse
// @Router       /health [get]
func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{Status: "ok"}
		status := http.StatusOK

		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := check(ctx)
			cancel()

			if err != nil {
				logging.FromContext(r.Context()).Warn("health check failed", "check", name, "error", err.Error())
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		httputil.RespondJSON(w, resp, status)
	}
}
