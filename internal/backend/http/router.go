package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/pribylovaa/go-admin-gateway/internal/backend/auth"
	apierrors "github.com/pribylovaa/go-admin-gateway/internal/backend/errors"
	"github.com/pribylovaa/go-admin-gateway/internal/backend/http/handlers"
	"github.com/pribylovaa/go-admin-gateway/internal/backend/http/middleware"
	"github.com/pribylovaa/go-admin-gateway/internal/metrics"
)

// Options - параметры сборки HTTP-роутера.
type Options struct {
	Logger  *slog.Logger
	Timeout time.Duration
	// CORSOrigins - разрешённые Origin браузерной админки; пусто - CORS выключен.
	CORSOrigins []string
	// Metrics - метрики сервера; nil - не собираются.
	Metrics *metrics.HTTP
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(svc *auth.Service, opts Options) http.Handler {
	r := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	r.Use(
		middleware.Recover(),
		middleware.RequestID(), // до логирования, чтобы id попал в логи
		middleware.Logging(opts.Logger),
	)
	if opts.Metrics != nil {
		r.Use(middleware.Metrics(opts.Metrics))
	}
	if opts.Timeout > 0 {
		r.Use(middleware.Timeout(opts.Timeout))
	}
	if len(opts.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", middleware.HeaderRequestID},
			ExposedHeaders: []string{middleware.HeaderRequestID},
			MaxAge:         300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		apierrors.WriteError(w, req, apierrors.ErrNotFound)
	})

	registerRoutes(r, handlers.New(svc), middleware.AuthBearer(svc))

	return r
}

// registerRoutes - единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, authMW middleware.Middleware) {
	// auth
	r.Post("/auth/login", h.Login)
	r.Post("/auth/token/refresh", h.RefreshToken)

	r.Group(func(pr chi.Router) {
		pr.Use(authMW)

		pr.Post("/auth/logout", h.Logout)
		pr.Get("/auth/me", h.Me)

		// orders
		pr.Get("/orders", h.ListOrders)
		pr.Get("/orders/{id}", h.GetOrder)

		// admin
		pr.Post("/admin/users/{username}/status", h.SetUserStatus)
	})
}
