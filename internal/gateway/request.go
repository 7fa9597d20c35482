package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Request - описание исходящего запроса. Тело хранится байтами, чтобы
// запрос можно было отправить повторно после обновления токенов.
type Request struct {
	Method string
	// Path - путь относительно базового адреса API ("/orders") или абсолютный URL.
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	retried bool
}

// NewRequest создаёт запрос без тела.
func NewRequest(method, path string) *Request {
	return &Request{Method: method, Path: path, Header: make(http.Header)}
}

// NewJSONRequest создаёт запрос с телом v в JSON.
func NewJSONRequest(method, path string, v any) (*Request, error) {
	const op = "gateway.NewJSONRequest"

	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r := NewRequest(method, path)
	r.Body = body
	r.Header.Set("Content-Type", "application/json")

	return r, nil
}

// Retried сообщает, что запрос уже повторялся после обновления токенов.
func (r *Request) Retried() bool { return r.retried }

// retry - копия запроса с флагом повтора.
func (r *Request) retry() *Request {
	c := *r
	c.Header = r.Header.Clone()
	c.retried = true

	return &c
}
