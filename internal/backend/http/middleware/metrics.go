package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-admin-gateway/internal/metrics"
)

// Metrics собирает метрики HTTP-запросов. Путь берётся из шаблона маршрута
// chi, чтобы /orders/{id} не размножал серии.
func Metrics(m *metrics.HTTP) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			sw := newStatusWriter(w)
			start := time.Now()

			defer func() {
				path := r.URL.Path
				if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
					path = rc.RoutePattern()
				}

				m.RequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(sw.Status())).Inc()
				m.RequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
			}()

			next.ServeHTTP(sw, r)
		})
	}
}
