package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pribylovaa/go-admin-gateway/internal/backend/auth"
	apierrors "github.com/pribylovaa/go-admin-gateway/internal/backend/errors"
	logctx "github.com/pribylovaa/go-admin-gateway/pkg/log"
)

type ctxKey struct{}

// Authenticator проверяет access-токен.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*auth.Principal, error)
}

// AuthBearer требует валидный Bearer-токен и кладёт владельца запроса
// в контекст. Без токена или с негодным токеном отвечает обёрткой 401/403.
func AuthBearer(a Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearer(r.Header.Get("Authorization"))
			if !ok {
				apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
				return
			}

			p, err := a.Authenticate(r.Context(), token)
			if err != nil {
				logctx.From(r.Context()).Info("auth_rejected", slog.String("err", err.Error()))
				apierrors.WriteError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKey{}, p)
			ctx = logctx.Into(ctx, logctx.From(ctx).With(slog.String("user", p.Username)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFrom достаёт владельца запроса, положенного AuthBearer.
func PrincipalFrom(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*auth.Principal)
	return p, ok
}

func bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}

	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
