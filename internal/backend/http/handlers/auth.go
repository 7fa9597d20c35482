package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pribylovaa/go-admin-gateway/internal/backend/auth"
	apierrors "github.com/pribylovaa/go-admin-gateway/internal/backend/errors"
	"github.com/pribylovaa/go-admin-gateway/internal/backend/http/middleware"
	"github.com/pribylovaa/go-admin-gateway/internal/envelope"
	logctx "github.com/pribylovaa/go-admin-gateway/pkg/log"
	"github.com/pribylovaa/go-admin-gateway/pkg/redact"
)

// LoginRequest - тело POST /auth/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

func pairData(p *auth.Pair) envelope.TokenPair {
	return envelope.TokenPair{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    envelope.Seconds(p.ExpiresIn.Seconds()),
		TokenType:    auth.TokenType,
	}
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in LoginRequest
	if err := h.decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, err := h.Auth.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		logctx.From(r.Context()).Info("login_failed",
			slog.String("username", redact.Username(in.Username)),
			slog.String("err", err.Error()),
		)
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteOK(w, pairData(pair), "login successful")
}

func (h *Handlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var in envelope.RefreshRequest
	if err := h.decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, err := h.Auth.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		logctx.From(r.Context()).Info("refresh_failed", slog.String("err", err.Error()))
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteOK(w, pairData(pair), "token refreshed")
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
		return
	}

	if err := h.Auth.Logout(r.Context(), p); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	apierrors.WriteOK[any](w, nil, "logged out")
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, apierrors.ErrUnauthenticated)
		return
	}

	apierrors.WriteOK(w, p, "")
}

// UserStatusRequest - тело POST /admin/users/{username}/status.
type UserStatusRequest struct {
	Disabled *bool `json:"disabled" validate:"required"`
}

// SetUserStatus включает или отключает учётную запись. Отключение действует
// сразу: следующий запрос её токеном получит 403.
func (h *Handlers) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var in UserStatusRequest
	if err := h.decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	if !h.Auth.SetDisabled(username, *in.Disabled) {
		apierrors.WriteError(w, r, apierrors.ErrNotFound)
		return
	}

	logctx.From(r.Context()).Info("user_status_changed",
		slog.String("username", redact.Username(username)),
		slog.Bool("disabled", *in.Disabled),
	)

	apierrors.WriteOK(w, in, "user updated")
}
