package clients

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pribylovaa/go-admin-gateway/internal/clients/interceptors"
	"github.com/pribylovaa/go-admin-gateway/internal/config"
	"github.com/stretchr/testify/require"
)

func TestParseBaseURL(t *testing.T) {
	t.Parallel()

	u, err := ParseBaseURL("http://127.0.0.1:50090/api/")
	require.NoError(t, err)
	require.Equal(t, "/api", u.Path)

	for _, bad := range []string{"", "ftp://x", "/relative", "http://"} {
		_, err := ParseBaseURL(bad)
		require.Error(t, err, bad)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	base, err := ParseBaseURL("http://admin.local/api")
	require.NoError(t, err)

	tests := []struct {
		path string
		want string
	}{
		{path: "/orders", want: "http://admin.local/api/orders"},
		{path: "orders", want: "http://admin.local/api/orders"},
		{path: "/orders?page_no=2", want: "http://admin.local/api/orders?page_no=2"},
		{path: "https://other.host/x", want: "https://other.host/x"},
	}

	for _, tt := range tests {
		u, err := Resolve(base, tt.path)
		require.NoError(t, err)
		require.Equal(t, tt.want, u.String())
	}
}

func TestNew_ClientCarriesMetadata(t *testing.T) {
	t.Parallel()

	var ua, rid string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		rid = r.Header.Get(interceptors.HeaderRequestID)
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	cfg := config.Config{
		API:      config.APIConfig{BaseURL: srv.URL, UserAgent: "admin-cli/test"},
		Timeouts: config.TimeoutConfig{Request: time.Second},
	}

	cl, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer cl.Close()

	resp, err := cl.HTTP.Get(srv.URL + "/ping")
	require.NoError(t, err)
	_, _ = io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())

	require.Equal(t, "admin-cli/test", ua)
	require.NotEmpty(t, rid)
}

func TestNew_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(config.Config{API: config.APIConfig{BaseURL: "::bad"}}, nil)
	require.Error(t, err)
}
