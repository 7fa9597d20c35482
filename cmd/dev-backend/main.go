package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/go-admin-gateway/internal/backend/auth"
	backendhttp "github.com/pribylovaa/go-admin-gateway/internal/backend/http"
	"github.com/pribylovaa/go-admin-gateway/internal/config"
	"github.com/pribylovaa/go-admin-gateway/internal/metrics"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

const sessionPrefix = "dev-backend:session:"

// defaultUsers - учётные записи, если в конфиге не задано ни одной.
var defaultUsers = []config.UserConfig{
	{Username: "admin", Password: "admin123"},
	{Username: "blocked", Password: "blocked123", Disabled: true},
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		slog.Error("dotenv_load_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting dev-backend", "env", cfg.Env)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	sessions, closer, err := openSessions(rootCtx, cfg.Backend)
	if err != nil {
		log.Error("sessions_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	defer func() {
		if cerr := closer.Close(); cerr != nil {
			log.Warn("sessions_close_failed", slog.String("err", cerr.Error()))
		}
	}()

	users := cfg.Backend.Users
	if len(users) == 0 {
		users = defaultUsers
		log.Warn("default_users_enabled", slog.Int("count", len(users)))
	}

	svc, err := auth.New(auth.ConfigFrom(cfg.Backend), users, sessions)
	if err != nil {
		log.Error("auth_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("service_initialized", slog.Int("users", len(users)))

	reg := metrics.NewRegistry()

	apiHandler := backendhttp.NewRouter(svc, backendhttp.Options{
		Logger:      log,
		Timeout:     cfg.Backend.Service,
		CORSOrigins: cfg.Backend.CORSOrigins,
		Metrics:     metrics.NewHTTP(reg),
	})

	var ready int32 // 0 - not ready; 1 - ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if atomic.LoadInt32(&ready) == 1 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}

		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.Handle("/", apiHandler)

	httpAddr := cfg.Backend.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", httpAddr), slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)
	log.Info("backend_ready")

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	log.Info("service_stopped")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openSessions - Redis, если задан redis_url, иначе память процесса.
func openSessions(ctx context.Context, b config.BackendConfig) (auth.Sessions, io.Closer, error) {
	if b.RedisURL == "" {
		return auth.NewMemorySessions(), nopCloser{}, nil
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rs, err := auth.NewRedisSessions(connCtx, b.RedisURL, sessionPrefix)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("redis_sessions_connected")

	return rs, rs, nil
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
