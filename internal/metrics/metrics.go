// metrics - Prometheus-коллекторы шлюза запросов и dev-бэкенда.
//
// Коллекторы собираются в структуры, а не в глобальные переменные: так в одном
// процессе (и в параллельных тестах) можно держать несколько независимых
// наборов, каждый в своём реестре.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Исходы запроса через шлюз.
const (
	OutcomeOK          = "ok"
	OutcomeTransport   = "transport"
	OutcomeAuthExpired = "auth_expired"
	OutcomeAuthInvalid = "auth_invalid"
	OutcomeApplication = "application"
)

// Результаты обновления токенов.
const (
	RefreshOK        = "ok"
	RefreshRejected  = "rejected"
	RefreshTransport = "transport"
	RefreshNoToken   = "no_token"
	RefreshStoreFail = "store_failed"
)

// Gateway - метрики шлюза запросов.
type Gateway struct {
	Requests        *prometheus.CounterVec
	Refreshes       *prometheus.CounterVec
	Coalesced       prometheus.Counter
	RequestDuration *prometheus.HistogramVec
}

// NewGateway создаёт метрики шлюза и регистрирует их в reg (nil - без регистрации).
func NewGateway(reg prometheus.Registerer) *Gateway {
	m := &Gateway{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total number of requests sent through the gateway by outcome",
			},
			[]string{"method", "outcome"},
		),
		Refreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_token_refresh_total",
				Help: "Total number of token refresh attempts by result",
			},
			[]string{"result"},
		),
		Coalesced: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_token_refresh_coalesced_total",
				Help: "Number of 401 responses that joined an in-flight refresh",
			},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Duration of gateway calls including refresh and retry",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.Requests, m.Refreshes, m.Coalesced, m.RequestDuration)
	}

	return m
}

// HTTP - метрики HTTP-сервера dev-бэкенда.
type HTTP struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// NewHTTP создаёт метрики сервера и регистрирует их в reg (nil - без регистрации).
func NewHTTP(reg prometheus.Registerer) *HTTP {
	m := &HTTP{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests in flight",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.RequestsInFlight)
	}

	return m
}

// NewRegistry - реестр со стандартными коллекторами Go и процесса.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return reg
}
