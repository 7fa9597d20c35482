package gateway

import (
	"errors"
	"fmt"

	"github.com/pribylovaa/go-admin-gateway/internal/envelope"
)

// Kind - класс отказа вызова.
type Kind int

const (
	// KindTransport - ответ не получен (сеть, DNS, таймаут, отмена).
	KindTransport Kind = iota + 1
	// KindAuthExpired - 401, обновление токенов не удалось.
	KindAuthExpired
	// KindAuthInvalid - 403, 401 без токена или 401 на повторе.
	KindAuthInvalid
	// KindApplication - любой другой status_code != 200.
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuthExpired:
		return "auth_expired"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindApplication:
		return "application"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	// ErrTransport - ответ не получен.
	ErrTransport = errors.New("transport error")
	// ErrAuthExpired - сессия истекла и не была обновлена.
	ErrAuthExpired = errors.New("authentication expired")
	// ErrAuthInvalid - учётные данные отклонены, нужен повторный вход.
	ErrAuthInvalid = errors.New("authentication invalid")
	// ErrApplication - прикладная ошибка бэкенда.
	ErrApplication = errors.New("application error")
)

// Error - отказ вызова через шлюз. Возвращается уже после уведомления
// пользователя и (для отказов авторизации) перехода на логин.
type Error struct {
	Kind Kind
	// StatusCode - status_code обёртки (0, если ответа не было).
	StatusCode int
	// Message - текст, показанный пользователю.
	Message string
	// Envelope - ответ бэкенда, если он был.
	Envelope *envelope.Raw
	// Err - причина (ошибка транспорта, хранилища и т.п.).
	Err error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.StatusCode != 0 {
		s += fmt.Sprintf(" (status_code=%d)", e.StatusCode)
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil && (e.Message == "" || e.Err.Error() != e.Message) {
		s += ": " + e.Err.Error()
	}

	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is сопоставляет Error с сентинелами по Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrAuthExpired:
		return e.Kind == KindAuthExpired
	case ErrAuthInvalid:
		return e.Kind == KindAuthInvalid
	case ErrApplication:
		return e.Kind == KindApplication
	}

	return false
}

// KindOf возвращает Kind ошибки шлюза (0, если это не *Error).
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}

	return 0
}
