// envelope описывает прикладную обёртку ответов admin-бэкенда:
//
//	{"code": 0, "status_code": 200, "data": ..., "msg": "..."}
//
// Успех определяется только полем status_code (== 200) и не зависит от
// HTTP-статуса транспорта.
package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
)

// StatusOK - прикладной признак успеха.
const StatusOK = http.StatusOK

// ErrNotEnvelope - тело ответа не является JSON-обёрткой.
var ErrNotEnvelope = errors.New("response body is not an envelope")

// Envelope - ответ бэкенда с типизированным data.
type Envelope[T any] struct {
	Code       int    `json:"code"`
	StatusCode int    `json:"status_code"`
	Data       T      `json:"data"`
	Msg        string `json:"msg"`
}

// Raw - обёртка с недекодированным data.
type Raw = Envelope[json.RawMessage]

// OK сообщает, успешен ли ответ на прикладном уровне.
func (e *Envelope[T]) OK() bool { return e != nil && e.StatusCode == StatusOK }

// Decode разбирает тело ответа. Пустое тело, не-JSON и JSON без
// status_code считаются не-обёрткой (ErrNotEnvelope).
func Decode(body []byte) (*Raw, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return nil, ErrNotEnvelope
	}

	var head struct {
		StatusCode *int `json:"status_code"`
	}
	if err := json.Unmarshal(body, &head); err != nil || head.StatusCode == nil {
		return nil, ErrNotEnvelope
	}

	var env Raw
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotEnvelope, err)
	}

	return &env, nil
}

// MsgMalformed - msg обёртки, синтезированной для 2xx-ответа без обёртки.
const MsgMalformed = "malformed response"

// FromHTTPStatus строит обёртку для ответа, который обёрткой не является
// (страница ошибки прокси, пустое тело). Для не-2xx status_code = HTTP-статус,
// чтобы голый 401/403 всё равно разбирался как отказ авторизации.
// 2xx без обёртки успехом не считается: status_code = 502.
func FromHTTPStatus(status int) *Raw {
	if status >= 200 && status < 300 {
		return &Raw{Code: status, StatusCode: http.StatusBadGateway, Msg: MsgMalformed}
	}

	msg := http.StatusText(status)
	if msg == "" {
		msg = "HTTP " + strconv.Itoa(status)
	}

	return &Raw{Code: status, StatusCode: status, Msg: msg}
}

// As декодирует data сырой обёртки в T.
func As[T any](raw *Raw) (*Envelope[T], error) {
	const op = "envelope.As"

	if raw == nil {
		return nil, fmt.Errorf("%s: nil envelope", op)
	}

	out := &Envelope[T]{Code: raw.Code, StatusCode: raw.StatusCode, Msg: raw.Msg}
	if len(raw.Data) == 0 || bytes.Equal(raw.Data, []byte("null")) {
		return out, nil
	}

	if err := json.Unmarshal(raw.Data, &out.Data); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

// New собирает успешную обёртку.
func New[T any](data T, msg string) Envelope[T] {
	return Envelope[T]{Code: 0, StatusCode: StatusOK, Data: data, Msg: msg}
}

// Fail собирает обёртку ошибки. data всегда null.
func Fail(statusCode int, msg string) Envelope[any] {
	return Envelope[any]{Code: 1, StatusCode: statusCode, Msg: msg}
}

// Seconds - длительность в секундах. Бэкенд отдаёт expires_in и целым,
// и дробным числом (1800.0), поэтому при разборе принимаются оба варианта,
// а также число в строке.
type Seconds int64

func (s *Seconds) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = 0
		return nil
	}

	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		b = []byte(str)
	}

	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("invalid seconds %q: %w", string(b), err)
	}

	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid seconds %q", string(b))
	}

	*s = Seconds(math.Round(f))
	return nil
}

// TokenPair - data ответа login/refresh.
type TokenPair struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    Seconds `json:"expires_in"`
	TokenType    string  `json:"token_type,omitempty"`
}

// Valid - оба токена на месте.
func (p TokenPair) Valid() bool { return p.AccessToken != "" && p.RefreshToken != "" }

// RefreshRequest - тело запроса к эндпойнту выдачи токенов.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// PageQuery - параметры постраничного запроса.
type PageQuery struct {
	PageNo   int `json:"page_no"   validate:"omitempty,min=1"`
	PageSize int `json:"page_size" validate:"omitempty,min=1,max=100"`
}

// PageResult - постраничный ответ.
type PageResult[T any] struct {
	Items    []T  `json:"items"`
	Total    int  `json:"total"`
	PageNo   int  `json:"page_no"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

// Paginate режет items под запрошенную страницу (page_no с 1).
func Paginate[T any](items []T, q PageQuery) PageResult[T] {
	if q.PageNo < 1 {
		q.PageNo = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 10
	}

	total := len(items)
	start := (q.PageNo - 1) * q.PageSize
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}

	page := make([]T, end-start)
	copy(page, items[start:end])

	return PageResult[T]{
		Items:    page,
		Total:    total,
		PageNo:   q.PageNo,
		PageSize: q.PageSize,
		HasNext:  end < total,
	}
}
