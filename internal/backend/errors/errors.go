// errors стандартизирует ответы dev-backend об ошибках.
// На вход принимает ошибку слоя auth/хендлеров, на выход даёт:
//   - HTTP-статус, совпадающий со status_code обёртки;
//   - обёртку {code, status_code, data: null, msg} с безопасным msg.
//
// Неизвестные ошибки отдаются как 500 без деталей.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pribylovaa/go-admin-gateway/internal/backend/auth"
	"github.com/pribylovaa/go-admin-gateway/internal/envelope"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

var (
	// ErrInvalidArgument - тело или параметры запроса не разобраны.
	ErrInvalidArgument = stderrors.New("invalid argument")
	// ErrNotFound - ресурс не найден.
	ErrNotFound = stderrors.New("not found")
	// ErrUnauthenticated - запрос без Bearer-токена.
	ErrUnauthenticated = stderrors.New("not logged in")
)

// ToEnvelope конвертирует ошибку в HTTP-статус и обёртку ответа.
//
// Поведение:
//   - err == nil - программная ошибка вызова: 500, чтобы не маскировать баг;
//   - ошибки auth - 400/401/403 с текстом сентинела;
//   - ошибки валидации - 422 со списком полей;
//   - отмена/дедлайн контекста - 499/504;
//   - прочее - 500 "internal error".
func ToEnvelope(err error) (int, envelope.Envelope[any]) {
	status, msg := classify(err)
	return status, envelope.Fail(status, msg)
}

func classify(err error) (int, string) {
	var verrs validator.ValidationErrors

	switch {
	case err == nil:
		return http.StatusInternalServerError, "internal error"

	case stderrors.As(err, &verrs):
		return http.StatusUnprocessableEntity, validationMessage(verrs)

	case stderrors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest, ErrInvalidArgument.Error()
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound, ErrNotFound.Error()
	case stderrors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusBadRequest, auth.ErrInvalidCredentials.Error()

	case stderrors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, ErrUnauthenticated.Error()
	case stderrors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, auth.ErrTokenExpired.Error()
	case stderrors.Is(err, auth.ErrNotRefreshToken):
		return http.StatusUnauthorized, auth.ErrNotRefreshToken.Error()
	case stderrors.Is(err, auth.ErrSessionNotFound):
		return http.StatusUnauthorized, auth.ErrSessionNotFound.Error()
	case stderrors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, auth.ErrInvalidToken.Error()

	case stderrors.Is(err, auth.ErrUserDisabled):
		return http.StatusForbidden, auth.ErrUserDisabled.Error()

	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled"
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "deadline exceeded"

	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// validationMessage - "field: rule" через запятую, без значений полей.
func validationMessage(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}

	return "validation failed: " + strings.Join(parts, ", ")
}

// WriteError - хелпер для HTTP-хендлеров: пишет статус и обёртку ошибки.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToEnvelope(err)
	writeJSON(w, status, resp)
}

// WriteOK пишет успешную обёртку с data.
func WriteOK[T any](w http.ResponseWriter, data T, msg string) {
	writeJSON(w, http.StatusOK, envelope.New(data, msg))
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
