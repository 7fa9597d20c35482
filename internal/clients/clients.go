package clients

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pribylovaa/go-admin-gateway/internal/clients/interceptors"
	"github.com/pribylovaa/go-admin-gateway/internal/config"
)

// Clients агрегирует общий HTTP-клиент и базовый адрес API.
type Clients struct {
	HTTP    *http.Client
	BaseURL *url.URL

	transport *http.Transport
}

// New создаёт HTTP-клиент с цепочкой интерсепторов: metadata -> timeout -> logging.
func New(cfg config.Config, log *slog.Logger) (*Clients, error) {
	const op = "internal/clients/New"

	base, err := ParseBaseURL(cfg.API.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 16
	tr.IdleConnTimeout = 90 * time.Second

	rt := interceptors.Chain(tr,
		interceptors.ClientWithMetadata(cfg.API.UserAgent),
		interceptors.ClientWithTimeout(cfg.Timeouts.Request),
		interceptors.ClientLoggingInterceptor(log),
	)

	return &Clients{
		HTTP:      &http.Client{Transport: rt},
		BaseURL:   base,
		transport: tr,
	}, nil
}

// ParseBaseURL проверяет, что адрес абсолютный http(s), и убирает хвостовой "/".
func ParseBaseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty api base url")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid api base url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid api base url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid api base url %q: empty host", raw)
	}

	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}

// Resolve склеивает базовый адрес и путь эндпойнта ("/orders", "orders").
// Абсолютный URL возвращается как есть.
func Resolve(base *url.URL, path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	if ref.IsAbs() {
		return ref, nil
	}

	u := *base
	u.Path = base.Path + "/" + strings.TrimLeft(ref.Path, "/")
	u.RawPath = ""
	u.RawQuery = ref.RawQuery
	u.Fragment = ""
	return &u, nil
}

// Close закрывает простаивающие соединения.
func (c *Clients) Close() error {
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}

	return nil
}
