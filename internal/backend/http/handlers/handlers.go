package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/pribylovaa/go-admin-gateway/internal/backend/auth"
	apierrors "github.com/pribylovaa/go-admin-gateway/internal/backend/errors"
)

// maxRequestBody - предел тела входящего запроса.
const maxRequestBody = 1 << 20

// AuthService - операции входа, которыми пользуются хендлеры.
type AuthService interface {
	Login(ctx context.Context, username, password string) (*auth.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.Pair, error)
	Logout(ctx context.Context, p *auth.Principal) error
	SetDisabled(username string, disabled bool) bool
}

// Handlers агрегирует зависимости хендлеров dev-backend.
type Handlers struct {
	Auth     AuthService
	validate *validator.Validate
	orders   []Order
}

func New(svc AuthService) *Handlers {
	return &Handlers{
		Auth:     svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		orders:   demoOrders(),
	}
}

// decodeStrict - строгий JSON-декодер: запрещаем неизвестные поля,
// после разбора проверяем теги validate.
func (h *Handlers) decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(value); err != nil {
		return fmt.Errorf("%w: %v", apierrors.ErrInvalidArgument, err)
	}

	return h.validate.Struct(value)
}
