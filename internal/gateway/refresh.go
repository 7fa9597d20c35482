package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/pribylovaa/go-admin-gateway/internal/envelope"
	"github.com/pribylovaa/go-admin-gateway/internal/metrics"
	logctx "github.com/pribylovaa/go-admin-gateway/pkg/log"
	"github.com/pribylovaa/go-admin-gateway/pkg/redact"
)

const refreshKey = "refresh"

var (
	errNoRefreshToken = errors.New("refresh token is missing")
	errSessionSave    = errors.New("failed to store refreshed tokens")
)

// refreshAndRetry обрабатывает 401 на запросе, отправленном с токеном sent:
// обновляет пару (или присоединяется к уже идущему обновлению) и один раз
// повторяет запрос с новым токеном.
func (g *Gateway) refreshAndRetry(ctx context.Context, req *Request, sent string, orig *envelope.Raw) (*envelope.Raw, error) {
	const op = "gateway.refreshAndRetry"

	lg := logctx.From(ctx).With(slog.String("op", op), slog.String("path", req.Path))

	g.mu.Lock()
	current, err := g.session.AccessToken(ctx)
	if err == nil && current != "" && current != sent {
		// Пару уже обновил другой вызов.
		g.mu.Unlock()
		lg.Info("retry_with_current_token", slog.String("access_token", redact.Token(current)))

		return g.send(ctx, req.retry())
	}

	leader := false
	ch := g.refresh.DoChan(refreshKey, func() (any, error) {
		leader = true
		return g.doRefresh(ctx)
	})
	g.mu.Unlock()

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		err := ctx.Err()
		lg.Warn("refresh_wait_cancelled", slog.String("err", err.Error()))
		msg := message(orig.StatusCode, orig.Msg)
		g.notify(ctx, msg)

		return nil, &Error{Kind: KindTransport, StatusCode: orig.StatusCode, Message: msg, Envelope: orig, Err: err}
	}

	if !leader {
		g.metrics.Coalesced.Inc()
		lg.Debug("refresh_coalesced")
	}

	if res.Err != nil {
		msg := message(orig.StatusCode, orig.Msg)
		g.notify(ctx, msg)

		if errors.Is(res.Err, errNoRefreshToken) || errors.Is(res.Err, errSessionSave) {
			g.navigator.GoTo(ctx, g.loginRoute)
			return nil, &Error{Kind: KindAuthExpired, StatusCode: orig.StatusCode, Message: msg, Envelope: orig, Err: res.Err}
		}

		// Ответ refresh не получен: уведомляем исходным сообщением, без перехода.
		return nil, &Error{Kind: KindTransport, StatusCode: orig.StatusCode, Message: msg, Envelope: orig, Err: res.Err}
	}

	renv := res.Val.(*envelope.Envelope[envelope.TokenPair])
	if !renv.OK() {
		msg := message(renv.StatusCode, renv.Msg)
		g.notify(ctx, msg)
		g.navigator.GoTo(ctx, g.loginRoute)

		return nil, &Error{
			Kind:       KindAuthExpired,
			StatusCode: renv.StatusCode,
			Message:    msg,
			Envelope:   &envelope.Raw{Code: renv.Code, StatusCode: renv.StatusCode, Msg: renv.Msg},
		}
	}

	lg.Info("retry_after_refresh")

	return g.send(ctx, req.retry())
}

// awaitRefresh ждёт завершения идущего обновления пары, если оно есть.
func (g *Gateway) awaitRefresh(ctx context.Context) error {
	g.mu.Lock()
	p := g.pending
	g.mu.Unlock()

	if p == nil {
		return nil
	}

	select {
	case <-p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// doRefresh - тело общего вызова refresh. Работает в отвязанном от отмены
// контексте: отмена одного ожидающего не должна сорвать обновление остальным.
func (g *Gateway) doRefresh(ctx context.Context) (*envelope.Envelope[envelope.TokenPair], error) {
	const op = "gateway.doRefresh"

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.refreshTimeout)
	defer cancel()

	lg := logctx.From(ctx).With(slog.String("op", op))

	g.mu.Lock()
	refreshToken, err := g.session.RefreshToken(rctx)
	if err != nil {
		lg.Warn("session_read_failed", slog.String("err", err.Error()))
		refreshToken = ""
	}
	// Старая пара удаляется до вызова эндпойнта.
	g.clearSession(rctx)

	if refreshToken == "" {
		g.mu.Unlock()
		g.metrics.Refreshes.WithLabelValues(metrics.RefreshNoToken).Inc()
		lg.Warn("token_refresh_skipped", slog.String("reason", errNoRefreshToken.Error()))

		return nil, errNoRefreshToken
	}

	done := make(chan struct{})
	g.pending = done
	g.mu.Unlock()

	lg.Info("token_refresh_started", slog.String("refresh_token", redact.Token(refreshToken)))

	env, err := g.tokens.Refresh(rctx, refreshToken)

	// Сохранение пары и снятие признака обновления - одна критическая секция.
	g.mu.Lock()
	defer g.mu.Unlock()
	defer func() {
		close(done)
		g.pending = nil
	}()

	if err != nil {
		g.metrics.Refreshes.WithLabelValues(metrics.RefreshTransport).Inc()
		lg.Warn("token_refresh_failed", slog.String("err", err.Error()))

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !env.OK() {
		g.metrics.Refreshes.WithLabelValues(metrics.RefreshRejected).Inc()
		lg.Warn("token_refresh_rejected",
			slog.Int("status_code", env.StatusCode),
			slog.String("msg", env.Msg),
		)

		return env, nil
	}

	if err := g.session.Save(rctx, env.Data); err != nil {
		g.metrics.Refreshes.WithLabelValues(metrics.RefreshStoreFail).Inc()
		lg.Error("token_save_failed", slog.String("err", err.Error()))

		return nil, fmt.Errorf("%s: %w: %v", op, errSessionSave, err)
	}

	g.metrics.Refreshes.WithLabelValues(metrics.RefreshOK).Inc()
	lg.Info("token_refreshed",
		slog.String("access_token", redact.Token(env.Data.AccessToken)),
		slog.Int64("expires_in", int64(env.Data.ExpiresIn)),
	)

	return env, nil
}
