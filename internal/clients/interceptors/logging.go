package interceptors

import (
	"log/slog"
	"net/http"
	"time"

	logctx "github.com/pribylovaa/go-admin-gateway/pkg/log"
)

// ClientLoggingInterceptor - логирование исходящих запросов.
// Поведение:
//   - берёт X-Request-Id из заголовка (его выставляет ClientWithMetadata);
//   - добавляет поля method/host/path, прокладывает обогащённый логгер в контекст;
//   - пишет одну финальную запись уровня Info: msg="http", status, dur
//     (или Warn с err, если ответа нет).
//
// Безопасность: не логирует тело и заголовок Authorization.
func ClientLoggingInterceptor(base *slog.Logger) Interceptor {
	if base == nil {
		base = slog.Default()
	}

	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()

			rid := r.Header.Get(HeaderRequestID)
			if rid == "" {
				rid = "-"
			}

			l := base.With(
				slog.String("request_id", rid),
				slog.String("method", r.Method),
				slog.String("host", r.URL.Host),
				slog.String("path", r.URL.Path),
			)
			r = r.WithContext(logctx.Into(r.Context(), l))

			resp, err := next.RoundTrip(r)
			if err != nil {
				l.Warn("http",
					slog.String("err", err.Error()),
					slog.Duration("dur", time.Since(start)),
				)
				return resp, err
			}

			l.Info("http",
				slog.Int("status", resp.StatusCode),
				slog.Duration("dur", time.Since(start)),
			)

			return resp, nil
		})
	}
}
