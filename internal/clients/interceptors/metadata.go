package interceptors

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type CtxKey string

const CtxRequestID CtxKey = "request_id"

const HeaderRequestID = "X-Request-Id"

// WithRequestID кладёт request id в контекст; его подхватит ClientWithMetadata.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CtxRequestID, id)
}

// RequestIDFrom достаёт request id из контекста.
func RequestIDFrom(ctx context.Context) string {
	if v := ctx.Value(CtxRequestID); v != nil {
		if rid, _ := v.(string); rid != "" {
			return rid
		}
	}

	return ""
}

// ClientWithMetadata - добавляет в исходящий запрос заголовки:
//   - X-Request-Id: из контекста, из уже выставленного заголовка или новый UUID;
//   - User-Agent (если передан параметром).
//
// Исходный *http.Request не мутируется: RoundTripper обязан работать с клоном.
func ClientWithMetadata(userAgent string) Interceptor {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			r = r.Clone(r.Context())

			rid := RequestIDFrom(r.Context())
			if rid == "" {
				rid = r.Header.Get(HeaderRequestID)
			}
			if rid == "" {
				rid = uuid.NewString()
			}
			r.Header.Set(HeaderRequestID, rid)

			if userAgent != "" {
				r.Header.Set("User-Agent", userAgent)
			}

			return next.RoundTrip(r)
		})
	}
}
