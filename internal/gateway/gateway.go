// gateway - шлюз исходящих запросов к admin-бэкенду.
//
// Шлюз подставляет access-токен из хранилища сессии, разбирает прикладную
// обёртку ответа и по её status_code решает, что делать:
//
//	200            ответ отдаётся вызывающему как есть;
//	403            сессия очищается, уведомление, переход на логин;
//	401 без токена уведомление, переход на логин;
//	401 с токеном  обновление пары токенов и один повтор запроса;
//	прочее         уведомление.
//
// На каждый неуспешный вызов приходится ровно одно уведомление.
// Конкурентные 401 с одним и тем же токеном разделяют один вызов refresh.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pribylovaa/go-admin-gateway/internal/clients"
	"github.com/pribylovaa/go-admin-gateway/internal/envelope"
	"github.com/pribylovaa/go-admin-gateway/internal/metrics"
	"github.com/pribylovaa/go-admin-gateway/internal/session"
	logctx "github.com/pribylovaa/go-admin-gateway/pkg/log"
)

//go:generate mockgen -destination=mocks/mocks.go -package=mocks . Notifier,Navigator,TokenIssuer

const (
	defaultLoginRoute     = "/login"
	defaultNotifyTitle    = "Error"
	defaultRefreshTimeout = 10 * time.Second

	// maxBody - предел чтения тела ответа.
	maxBody = 8 << 20
)

// Notifier показывает пользователю сообщение об ошибке.
type Notifier interface {
	Error(ctx context.Context, title, description string)
}

// Navigator переводит клиента на экран (маршрут) path.
type Navigator interface {
	GoTo(ctx context.Context, path string)
}

// TokenIssuer обменивает refresh-токен на новую пару.
// Ошибка означает, что ответ не получен; отказ эндпойнта приходит обёрткой
// со status_code != 200.
type TokenIssuer interface {
	Refresh(ctx context.Context, refreshToken string) (*envelope.Envelope[envelope.TokenPair], error)
}

// Options - зависимости и настройки шлюза.
type Options struct {
	HTTP      *http.Client
	BaseURL   *url.URL
	Store     session.Store
	Tokens    TokenIssuer
	Notifier  Notifier
	Navigator Navigator

	// LoginRoute - куда вести пользователя при отказе авторизации.
	LoginRoute string
	// NotifyTitle - заголовок уведомлений.
	NotifyTitle string
	// RefreshTimeout ограничивает вызов refresh, который не зависит от
	// отмены контекста отдельного вызывающего.
	RefreshTimeout time.Duration

	Metrics *metrics.Gateway
}

// Gateway - шлюз запросов. Безопасен для конкурентного использования.
type Gateway struct {
	http           *http.Client
	base           *url.URL
	session        *session.Session
	tokens         TokenIssuer
	notifier       Notifier
	navigator      Navigator
	loginRoute     string
	notifyTitle    string
	refreshTimeout time.Duration
	metrics        *metrics.Gateway

	// mu упорядочивает чтение токена при 401 относительно записи новой пары,
	// чтобы опоздавший 401 либо присоединился к идущему refresh, либо увидел
	// уже сохранённую пару.
	mu      sync.Mutex
	refresh singleflight.Group
	// pending закрывается, когда идущее обновление сохранило (или потеряло) пару.
	pending chan struct{}
}

// New проверяет зависимости и создаёт шлюз.
func New(opts Options) (*Gateway, error) {
	const op = "gateway.New"

	switch {
	case opts.BaseURL == nil:
		return nil, fmt.Errorf("%s: base url is required", op)
	case opts.Store == nil:
		return nil, fmt.Errorf("%s: session store is required", op)
	case opts.Tokens == nil:
		return nil, fmt.Errorf("%s: token issuer is required", op)
	case opts.Notifier == nil:
		return nil, fmt.Errorf("%s: notifier is required", op)
	case opts.Navigator == nil:
		return nil, fmt.Errorf("%s: navigator is required", op)
	}

	g := &Gateway{
		http:           opts.HTTP,
		base:           opts.BaseURL,
		session:        session.New(opts.Store),
		tokens:         opts.Tokens,
		notifier:       opts.Notifier,
		navigator:      opts.Navigator,
		loginRoute:     opts.LoginRoute,
		notifyTitle:    opts.NotifyTitle,
		refreshTimeout: opts.RefreshTimeout,
		metrics:        opts.Metrics,
	}

	if g.http == nil {
		g.http = http.DefaultClient
	}
	if g.loginRoute == "" {
		g.loginRoute = defaultLoginRoute
	}
	if g.notifyTitle == "" {
		g.notifyTitle = defaultNotifyTitle
	}
	if g.refreshTimeout <= 0 {
		g.refreshTimeout = defaultRefreshTimeout
	}
	if g.metrics == nil {
		g.metrics = metrics.NewGateway(nil)
	}

	return g, nil
}

// Session - пара токенов, которой пользуется шлюз.
func (g *Gateway) Session() *session.Session { return g.session }

// Send отправляет запрос. При status_code == 200 возвращает обёртку ответа,
// иначе *Error (после уведомления и, для отказов авторизации, перехода на логин).
// Ошибка без *Error означает, что запрос не удалось даже собрать.
func (g *Gateway) Send(ctx context.Context, req *Request) (*envelope.Raw, error) {
	const op = "gateway.Send"

	if req == nil {
		return nil, fmt.Errorf("%s: nil request", op)
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}

	start := time.Now()
	env, err := g.send(ctx, req)

	outcome := metrics.OutcomeOK
	if err != nil {
		var ge *Error
		if !errors.As(err, &ge) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		outcome = ge.Kind.String()
	}
	g.metrics.Requests.WithLabelValues(req.Method, outcome).Inc()
	g.metrics.RequestDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	return env, err
}

// Do отправляет запрос и декодирует data успешного ответа в T.
func Do[T any](ctx context.Context, g *Gateway, req *Request) (*envelope.Envelope[T], error) {
	const op = "gateway.Do"

	raw, err := g.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	env, err := envelope.As[T](raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return env, nil
}

func (g *Gateway) send(ctx context.Context, req *Request) (*envelope.Raw, error) {
	const op = "gateway.send"

	lg := logctx.From(ctx).With(
		slog.String("op", op),
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Bool("retried", req.retried),
	)

	// Пока идёт refresh, хранилище пусто: ждём новую пару, а не шлём запрос без токена.
	if err := g.awaitRefresh(ctx); err != nil {
		lg.Warn("refresh_wait_cancelled", slog.String("err", err.Error()))
		g.notify(ctx, err.Error())

		return nil, &Error{Kind: KindTransport, Message: err.Error(), Err: err}
	}

	token, err := g.session.AccessToken(ctx)
	if err != nil {
		// Недоступное хранилище равносильно отсутствию токена.
		lg.Warn("session_read_failed", slog.String("err", err.Error()))
		token = ""
	}

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Del("Authorization")
	}

	env, err := g.dispatch(ctx, req)
	if err != nil {
		var be *buildError
		if errors.As(err, &be) {
			return nil, be.err
		}

		lg.Warn("request_transport_failed", slog.String("err", err.Error()))
		g.notify(ctx, err.Error())

		return nil, &Error{Kind: KindTransport, Message: err.Error(), Err: err}
	}

	lg = lg.With(slog.Int("status_code", env.StatusCode))

	switch {
	case env.StatusCode == envelope.StatusOK:
		lg.Debug("request_ok")
		return env, nil

	case env.StatusCode == http.StatusForbidden:
		lg.Warn("request_forbidden")
		return nil, g.rejectAuth(ctx, env, true)

	case env.StatusCode == http.StatusUnauthorized && token == "":
		lg.Warn("request_unauthorized_no_token")
		return nil, g.rejectAuth(ctx, env, false)

	case env.StatusCode == http.StatusUnauthorized && req.retried:
		// Новый токен тоже отклонён: второй refresh не делаем.
		lg.Warn("request_unauthorized_after_retry")
		return nil, g.rejectAuth(ctx, env, true)

	case env.StatusCode == http.StatusUnauthorized:
		lg.Info("request_unauthorized")
		return g.refreshAndRetry(ctx, req, token, env)

	default:
		lg.Warn("request_failed", slog.String("msg", env.Msg))
		msg := message(env.StatusCode, env.Msg)
		g.notify(ctx, msg)

		return nil, &Error{Kind: KindApplication, StatusCode: env.StatusCode, Message: msg, Envelope: env}
	}
}

// rejectAuth - отказ авторизации без попытки refresh.
func (g *Gateway) rejectAuth(ctx context.Context, env *envelope.Raw, clear bool) error {
	if clear {
		g.clearSession(ctx)
	}

	msg := message(env.StatusCode, env.Msg)
	g.notify(ctx, msg)
	g.navigator.GoTo(ctx, g.loginRoute)

	return &Error{Kind: KindAuthInvalid, StatusCode: env.StatusCode, Message: msg, Envelope: env}
}

// buildError - запрос не удалось собрать; это ошибка вызывающего, а не отказ вызова.
type buildError struct{ err error }

func (e *buildError) Error() string { return e.err.Error() }

func (g *Gateway) dispatch(ctx context.Context, req *Request) (*envelope.Raw, error) {
	const op = "gateway.dispatch"

	target, err := clients.Resolve(g.base, req.Path)
	if err != nil {
		return nil, &buildError{err: fmt.Errorf("%s: %w", op, err)}
	}
	if len(req.Query) > 0 {
		q := target.Query()
		for k, vs := range req.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, &buildError{err: fmt.Errorf("%s: %w", op, err)}
	}
	httpReq.Header = req.Header.Clone()
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if len(req.Body) > 0 && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}

	env, err := envelope.Decode(raw)
	if err != nil {
		return envelope.FromHTTPStatus(resp.StatusCode), nil
	}

	return env, nil
}

func (g *Gateway) notify(ctx context.Context, description string) {
	g.notifier.Error(ctx, g.notifyTitle, description)
}

func (g *Gateway) clearSession(ctx context.Context) {
	if err := g.session.Clear(ctx); err != nil {
		logctx.From(ctx).Error("session_clear_failed", slog.String("err", err.Error()))
	}
}

// message - текст для пользователя: msg сервера или текст статуса.
func message(statusCode int, msg string) string {
	if msg != "" {
		return msg
	}
	if t := http.StatusText(statusCode); t != "" {
		return t
	}

	return fmt.Sprintf("status_code %d", statusCode)
}
