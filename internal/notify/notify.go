// notify - пользовательские уведомления об ошибках запросов.
//
// Каждая реализация удовлетворяет контракту gateway.Notifier:
//
//	Error(ctx, title, description)
//
// Сбой доставки уведомления не должен ломать вызов, поэтому Error ничего не
// возвращает; проблемы доставки пишутся в лог.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	logctx "github.com/pribylovaa/go-admin-gateway/pkg/log"
)

// Notifier - то же, что gateway.Notifier; объявлен здесь для Multi.
type Notifier interface {
	Error(ctx context.Context, title, description string)
}

// Log пишет уведомление в логгер из контекста (или в base).
type Log struct {
	base *slog.Logger
}

func NewLog(base *slog.Logger) *Log { return &Log{base: base} }

func (l *Log) Error(ctx context.Context, title, description string) {
	lg := l.base
	if lg == nil {
		lg = logctx.From(ctx)
	}

	lg.LogAttrs(ctx, slog.LevelError, "notification",
		slog.String("title", title),
		slog.String("description", description),
	)
}

// Writer печатает уведомление строкой "title: description" (например, в stderr CLI).
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (n *Writer) Error(_ context.Context, title, description string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if description == "" {
		_, _ = fmt.Fprintln(n.w, title)
		return
	}

	_, _ = fmt.Fprintf(n.w, "%s: %s\n", title, description)
}

// Multi рассылает одно уведомление во все каналы.
type Multi []Notifier

func (m Multi) Error(ctx context.Context, title, description string) {
	for _, n := range m {
		if n != nil {
			n.Error(ctx, title, description)
		}
	}
}
