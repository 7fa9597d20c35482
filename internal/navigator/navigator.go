// navigator - переходы на экраны клиента (в headless-клиенте - на "экран" логина).
package navigator

import (
	"context"
	"log/slog"
	"sync"

	logctx "github.com/pribylovaa/go-admin-gateway/pkg/log"
)

// Recorder запоминает последний запрошенный путь и пишет переход в лог.
// CLI по нему решает, нужно ли подсказать пользователю перелогиниться.
type Recorder struct {
	mu    sync.Mutex
	last  string
	count int
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) GoTo(ctx context.Context, path string) {
	r.mu.Lock()
	r.last = path
	r.count++
	r.mu.Unlock()

	logctx.From(ctx).Info("navigate", slog.String("path", path))
}

// Last - последний путь и число переходов.
func (r *Recorder) Last() (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.last, r.count
}

// Func - адаптер функции к Navigator.
type Func func(ctx context.Context, path string)

func (f Func) GoTo(ctx context.Context, path string) { f(ctx, path) }
