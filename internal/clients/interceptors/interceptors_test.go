package interceptors

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	logctx "github.com/pribylovaa/go-admin-gateway/pkg/log"
	"github.com/stretchr/testify/require"
)

type capHandler struct {
	base    []slog.Attr
	lastMsg string
	lastLvl slog.Level
	attrs   map[string]any
	count   map[string]int
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	out := make(map[string]any, len(h.base)+8)
	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})
	if h.count == nil {
		h.count = make(map[string]int)
	}
	h.count[r.Message]++
	h.lastMsg = r.Message
	h.lastLvl = r.Level
	h.attrs = out
	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.base = append(h.base, attrs...)
	return h
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

func okResponse(r *http.Request) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(`{}`)),
		Header:     http.Header{},
		Request:    r,
	}
}

func newReq(t *testing.T, ctx context.Context) *http.Request {
	t.Helper()
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://admin.local/orders", nil)
	require.NoError(t, err)
	return r
}

func TestChain_Order(t *testing.T) {
	t.Parallel()

	var order []string
	mk := func(name string) Interceptor {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
				order = append(order, name+"-begin")
				resp, err := next.RoundTrip(r)
				order = append(order, name+"-end")
				return resp, err
			})
		}
	}

	base := RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		order = append(order, "transport")
		return okResponse(r), nil
	})

	_, err := Chain(base, mk("m1"), mk("m2")).RoundTrip(newReq(t, context.Background()))
	require.NoError(t, err)
	require.Equal(t, []string{"m1-begin", "m2-begin", "transport", "m2-end", "m1-end"}, order)
}

func TestClientMetadata_RequestIDFromContext(t *testing.T) {
	t.Parallel()

	const rid = "rid-123"
	var seen http.Header
	base := RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		seen = r.Header
		return okResponse(r), nil
	})

	orig := newReq(t, WithRequestID(context.Background(), rid))
	_, err := Chain(base, ClientWithMetadata("admin-cli")).RoundTrip(orig)
	require.NoError(t, err)

	require.Equal(t, rid, seen.Get(HeaderRequestID))
	require.Equal(t, "admin-cli", seen.Get("User-Agent"))
	// исходный запрос не мутирован.
	require.Empty(t, orig.Header.Get(HeaderRequestID))
}

func TestClientMetadata_GeneratesUUID_AndKeepsExistingHeader(t *testing.T) {
	t.Parallel()

	var seen string
	base := RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		seen = r.Header.Get(HeaderRequestID)
		return okResponse(r), nil
	})
	rt := Chain(base, ClientWithMetadata(""))

	_, err := rt.RoundTrip(newReq(t, context.Background()))
	require.NoError(t, err)
	_, err = uuid.Parse(seen)
	require.NoError(t, err)

	r := newReq(t, context.Background())
	r.Header.Set(HeaderRequestID, "given")
	_, err = rt.RoundTrip(r)
	require.NoError(t, err)
	require.Equal(t, "given", seen)
}

func TestClientWithTimeout_SetsDeadline(t *testing.T) {
	t.Parallel()

	const d = 40 * time.Millisecond
	start := time.Now()

	base := RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		<-r.Context().Done()
		return nil, r.Context().Err()
	})

	_, err := Chain(base, ClientWithTimeout(d)).RoundTrip(newReq(t, context.Background()))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.GreaterOrEqual(t, time.Since(start), d)
}

func TestClientWithTimeout_DoesNotOverrideExistingDeadline(t *testing.T) {
	t.Parallel()

	parent, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	parentDL, _ := parent.Deadline()

	var childDL time.Time
	base := RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		childDL, _ = r.Context().Deadline()
		return okResponse(r), nil
	})

	_, err := Chain(base, ClientWithTimeout(time.Second)).RoundTrip(newReq(t, parent))
	require.NoError(t, err)
	require.WithinDuration(t, parentDL, childDL, time.Millisecond)
}

func TestClientWithTimeout_ZeroDuration_PassThrough(t *testing.T) {
	t.Parallel()

	var hasDL bool
	base := RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		_, hasDL = r.Context().Deadline()
		return okResponse(r), nil
	})

	_, err := Chain(base, ClientWithTimeout(0)).RoundTrip(newReq(t, context.Background()))
	require.NoError(t, err)
	require.False(t, hasDL)
}

// Тело ответа читается после возврата из RoundTrip: контекст не должен
// быть отменён раньше Close.
func TestClientWithTimeout_BodyReadableAfterRoundTrip(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64<<10)))
	}))
	defer srv.Close()

	client := &http.Client{Transport: Chain(http.DefaultTransport, ClientWithTimeout(5*time.Second))}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Len(t, b, 64<<10)
	require.NoError(t, resp.Body.Close())
}

func TestClientLogging_LogsAndPutsLoggerIntoContext(t *testing.T) {
	t.Parallel()

	h := &capHandler{}
	base := RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		logctx.From(r.Context()).Info("marker")
		return okResponse(r), nil
	})

	rt := Chain(base, ClientWithMetadata("ua"), ClientLoggingInterceptor(slog.New(h)))
	_, err := rt.RoundTrip(newReq(t, WithRequestID(context.Background(), "rid-1")))
	require.NoError(t, err)

	require.Equal(t, 1, h.count["marker"])
	require.Equal(t, "http", h.lastMsg)
	require.Equal(t, slog.LevelInfo, h.lastLvl)
	require.EqualValues(t, http.StatusOK, h.attrs["status"])
	require.Equal(t, "rid-1", h.attrs["request_id"])
	require.Equal(t, "/orders", h.attrs["path"])

	if d, ok := h.attrs["dur"].(time.Duration); ok {
		require.GreaterOrEqual(t, d, time.Duration(0))
	} else {
		t.Fatalf("dur attr not found or wrong type: %#v", h.attrs["dur"])
	}
}

func TestClientLogging_TransportErrorIsWarn(t *testing.T) {
	t.Parallel()

	h := &capHandler{}
	base := RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})

	_, err := Chain(base, ClientLoggingInterceptor(slog.New(h))).RoundTrip(newReq(t, context.Background()))
	require.Error(t, err)
	require.Equal(t, slog.LevelWarn, h.lastLvl)
	require.Equal(t, "connection refused", h.attrs["err"])
	require.Equal(t, "-", h.attrs["request_id"])
}
