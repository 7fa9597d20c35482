// tokens - клиент эндпойнтов выдачи токенов (login, refresh, logout).
//
// Вызовы идут через circuit breaker: если эндпойнт недоступен на транспортном
// уровне, серия отказов размыкает цепь и дальнейшие вызовы сразу завершаются
// ErrUnavailable, не дожидаясь таймаутов. Прикладные отказы (status_code != 200)
// ошибкой транспорта не считаются и цепь не размыкают.
package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/pribylovaa/go-admin-gateway/internal/clients"
	"github.com/pribylovaa/go-admin-gateway/internal/config"
	"github.com/pribylovaa/go-admin-gateway/internal/envelope"
	logctx "github.com/pribylovaa/go-admin-gateway/pkg/log"
	"github.com/pribylovaa/go-admin-gateway/pkg/redact"
)

// maxBody - предел чтения тела ответа.
const maxBody = 1 << 20

var (
	// ErrUnavailable - цепь разомкнута, запрос не отправлялся.
	ErrUnavailable = errors.New("token endpoint unavailable")
)

// Paths - пути эндпойнтов относительно базового адреса.
type Paths struct {
	Login   string
	Refresh string
	Logout  string
}

// Client ходит в эндпойнты выдачи токенов.
type Client struct {
	http  *http.Client
	base  *url.URL
	paths Paths
	cb    *gobreaker.CircuitBreaker
}

// LoginRequest - тело запроса логина.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// New создаёт клиент. httpClient обычно берётся из clients.Clients.
func New(httpClient *http.Client, base *url.URL, paths Paths, bcfg config.BreakerConfig) *Client {
	minReq := bcfg.MinRequests
	if minReq == 0 {
		minReq = 3
	}

	return &Client{
		http:  httpClient,
		base:  base,
		paths: paths,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "token-endpoint",
			MaxRequests: bcfg.MaxRequests,
			Interval:    bcfg.Interval,
			Timeout:     bcfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= minReq
			},
			// Отмена вызывающим - не отказ эндпойнта.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Default().Warn("circuit_breaker_state",
					slog.String("name", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		}),
	}
}

// State - текущее состояние цепи.
func (c *Client) State() gobreaker.State { return c.cb.State() }

// Refresh обменивает refresh-токен на новую пару.
// Ошибка возвращается только при сбое транспорта (или разомкнутой цепи);
// прикладной отказ приходит как обёртка с status_code != 200.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*envelope.Envelope[envelope.TokenPair], error) {
	const op = "tokens.Refresh"

	lg := logctx.From(ctx).With(slog.String("op", op))
	lg.Debug("refresh_call", slog.String("refresh_token", redact.Token(refreshToken)))

	env, err := c.post(ctx, c.paths.Refresh, envelope.RefreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return env, nil
}

// Login выполняет вход по логину и паролю.
func (c *Client) Login(ctx context.Context, username, password string) (*envelope.Envelope[envelope.TokenPair], error) {
	const op = "tokens.Login"

	logctx.From(ctx).Debug("login_call",
		slog.String("op", op),
		slog.String("username", redact.Username(username)),
	)

	env, err := c.post(ctx, c.paths.Login, LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return env, nil
}

// Logout завершает сессию, которой принадлежит accessToken.
func (c *Client) Logout(ctx context.Context, accessToken string) (*envelope.Raw, error) {
	const op = "tokens.Logout"

	logctx.From(ctx).Debug("logout_call",
		slog.String("op", op),
		slog.String("access_token", redact.Token(accessToken)),
	)

	status, body, err := c.call(ctx, c.paths.Logout, accessToken, struct{}{})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	raw, err := envelope.Decode(body)
	if err != nil {
		raw = envelope.FromHTTPStatus(status)
	}

	return raw, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*envelope.Envelope[envelope.TokenPair], error) {
	status, body, err := c.call(ctx, path, "", payload)
	if err != nil {
		return nil, err
	}

	return decodePair(status, body)
}

type reply struct {
	status int
	body   []byte
}

// call отправляет POST через circuit breaker и возвращает HTTP-статус и тело.
func (c *Client) call(ctx context.Context, path, bearer string, payload any) (int, []byte, error) {
	target, err := clients.Resolve(c.base, path)
	if err != nil {
		return 0, nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	res, err := c.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, err
		}

		return reply{status: resp.StatusCode, body: raw}, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		return 0, nil, err
	}

	r := res.(reply)
	return r.status, r.body, nil
}

// decodePair превращает тело в обёртку с парой токенов. Ответ 200 без полной
// пары приравнивается к прикладному отказу (502), чтобы не сохранить полпары.
func decodePair(httpStatus int, body []byte) (*envelope.Envelope[envelope.TokenPair], error) {
	raw, err := envelope.Decode(body)
	if err != nil {
		raw = envelope.FromHTTPStatus(httpStatus)
	}

	env, err := envelope.As[envelope.TokenPair](raw)
	if err != nil {
		return &envelope.Envelope[envelope.TokenPair]{
			Code:       raw.Code,
			StatusCode: http.StatusBadGateway,
			Msg:        "token endpoint returned malformed data",
		}, nil
	}

	if env.OK() && !env.Data.Valid() {
		env.StatusCode = http.StatusBadGateway
		env.Msg = "token endpoint returned an incomplete token pair"
		env.Data = envelope.TokenPair{}
	}

	return env, nil
}
