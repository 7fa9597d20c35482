package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pribylovaa/go-admin-gateway/internal/clients"
	"github.com/pribylovaa/go-admin-gateway/internal/config"
	"github.com/pribylovaa/go-admin-gateway/internal/gateway"
	"github.com/pribylovaa/go-admin-gateway/internal/metrics"
	"github.com/pribylovaa/go-admin-gateway/internal/navigator"
	"github.com/pribylovaa/go-admin-gateway/internal/notify"
	"github.com/pribylovaa/go-admin-gateway/internal/session"
	"github.com/pribylovaa/go-admin-gateway/internal/tokens"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

// Коды выхода.
const (
	exitOK          = 0
	exitApplication = 1
	exitAuth        = 2
	exitTransport   = 3
	exitUsage       = 64
)

const usage = `usage: admin-cli [--config path] <command> [flags]

commands:
  login   -u user [-p password]   log in and store the token pair
  request [-d json] [-q k=v] METHOD PATH
  whoami                          show the current user
  logout                          end the session on the backend
  status                          show the stored session
`

// app - собранные зависимости CLI.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	gw     *gateway.Gateway
	tokens *tokens.Client
	nav    *navigator.Recorder
	notify gateway.Notifier
	out    io.Writer
	errOut io.Writer

	closers []io.Closer
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(exitUsage)
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env, os.Stderr)
	slog.SetDefault(log)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	a, err := newApp(rootCtx, cfg, log, os.Stdout, os.Stderr)
	if err != nil {
		log.Error("init_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(exitUsage)
	}

	code := a.run(rootCtx, flag.Arg(0), flag.Args()[1:])

	a.Close()
	rootCancel()
	os.Exit(code)
}

// newApp собирает зависимости. out - ответы API, errOut - уведомления и подсказки.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, out, errOut io.Writer) (*app, error) {
	const op = "admin-cli.newApp"

	store, storeCloser, err := session.Open(ctx, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	cl, err := clients.New(*cfg, log)
	if err != nil {
		_ = storeCloser.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	tc := tokens.New(cl.HTTP, cl.BaseURL, tokens.Paths{
		Login:   cfg.API.LoginPath,
		Refresh: cfg.API.RefreshPath,
		Logout:  cfg.API.LogoutPath,
	}, cfg.Breaker)

	notifiers := notify.Multi{stderrNotifier(cfg.Env, log, errOut)}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != 0 {
		tg := notify.NewTelegramClient(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID, cfg.Notify.TelegramPrefix)
		notifiers = append(notifiers, notify.NewTelegram(tg))
	}

	nav := navigator.NewRecorder()

	gw, err := gateway.New(gateway.Options{
		HTTP:           cl.HTTP,
		BaseURL:        cl.BaseURL,
		Store:          store,
		Tokens:         tc,
		Notifier:       notifiers,
		Navigator:      nav,
		LoginRoute:     cfg.API.LoginRoute,
		NotifyTitle:    cfg.Notify.Title,
		RefreshTimeout: cfg.Timeouts.Refresh,
		Metrics:        metrics.NewGateway(nil),
	})
	if err != nil {
		_ = cl.Close()
		_ = storeCloser.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &app{
		cfg:     cfg,
		log:     log,
		gw:      gw,
		tokens:  tc,
		nav:     nav,
		notify:  notifiers,
		out:     out,
		errOut:  errOut,
		closers: []io.Closer{cl, storeCloser},
	}, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("close_failed", slog.String("err", err.Error()))
		}
	}
}

func (a *app) run(ctx context.Context, cmd string, args []string) int {
	var code int

	switch cmd {
	case "login":
		code = a.login(ctx, args)
	case "request":
		code = a.request(ctx, args)
	case "whoami":
		code = a.send(ctx, gateway.NewRequest("GET", "/auth/me"))
	case "logout":
		code = a.logout(ctx)
	case "status":
		code = a.status(ctx)
	default:
		fmt.Fprint(a.errOut, usage)
		return exitUsage
	}

	if route, n := a.nav.Last(); n > 0 {
		fmt.Fprintf(a.errOut, "session ended (%s): run `admin-cli login`\n", route)
	}

	return code
}

func (a *app) login(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "username")
	password := fs.String("p", "", "password (or ADMIN_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *password == "" {
		*password = os.Getenv("ADMIN_PASSWORD")
	}
	if *username == "" || *password == "" {
		fmt.Fprintln(a.errOut, "login: -u and -p (or ADMIN_PASSWORD) are required")
		return exitUsage
	}

	env, err := a.tokens.Login(ctx, *username, *password)
	if err != nil {
		a.notify.Error(ctx, a.cfg.Notify.Title, err.Error())
		return exitTransport
	}
	if !env.OK() {
		a.notify.Error(ctx, a.cfg.Notify.Title, env.Msg)
		return exitAuth
	}

	if err := a.gw.Session().Save(ctx, env.Data); err != nil {
		a.notify.Error(ctx, a.cfg.Notify.Title, err.Error())
		return exitApplication
	}

	fmt.Fprintf(a.out, "logged in as %s, access token expires in %ds\n", *username, int64(env.Data.ExpiresIn))
	return exitOK
}

// queryFlag - повторяемый флаг -q key=value.
type queryFlag url.Values

func (q queryFlag) String() string { return url.Values(q).Encode() }

func (q queryFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || k == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	url.Values(q).Add(k, v)
	return nil
}

func (a *app) request(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("request", flag.ContinueOnError)
	data := fs.String("d", "", "JSON body")
	query := queryFlag{}
	fs.Var(query, "q", "query parameter key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if fs.NArg() != 2 {
		fmt.Fprintln(a.errOut, "request: METHOD and PATH are required")
		return exitUsage
	}

	req := gateway.NewRequest(strings.ToUpper(fs.Arg(0)), fs.Arg(1))
	req.Query = url.Values(query)
	if *data != "" {
		if !json.Valid([]byte(*data)) {
			fmt.Fprintln(a.errOut, "request: -d must be valid JSON")
			return exitUsage
		}
		req.Body = []byte(*data)
		req.Header.Set("Content-Type", "application/json")
	}

	return a.send(ctx, req)
}

// send выполняет запрос через шлюз и печатает data успешного ответа.
// Об ошибках пользователь уже уведомлён шлюзом.
func (a *app) send(ctx context.Context, req *gateway.Request) int {
	env, err := a.gw.Send(ctx, req)
	if err != nil {
		var ge *gateway.Error
		if !errors.As(err, &ge) {
			fmt.Fprintln(a.errOut, err)
			return exitUsage
		}

		return exitCode(ge.Kind)
	}

	var pretty bytes.Buffer
	if len(env.Data) == 0 || json.Indent(&pretty, env.Data, "", "  ") != nil {
		pretty.Reset()
		pretty.Write(env.Data)
	}
	fmt.Fprintln(a.out, pretty.String())

	return exitOK
}

func (a *app) logout(ctx context.Context) int {
	access, err := a.gw.Session().AccessToken(ctx)
	if err != nil || access == "" {
		fmt.Fprintln(a.errOut, "not logged in")
		return exitOK
	}

	env, err := a.tokens.Logout(ctx, access)

	// Локальная пара удаляется в любом случае.
	if cerr := a.gw.Session().Clear(ctx); cerr != nil {
		a.log.Error("session_clear_failed", slog.String("err", cerr.Error()))
	}

	switch {
	case err != nil:
		a.notify.Error(ctx, a.cfg.Notify.Title, err.Error())
		return exitTransport
	case !env.OK():
		a.log.Warn("logout_rejected", slog.Int("status_code", env.StatusCode), slog.String("msg", env.Msg))
	}

	fmt.Fprintln(a.out, "logged out")
	return exitOK
}

func (a *app) status(ctx context.Context) int {
	p, ok, err := a.gw.Session().Load(ctx)
	if err != nil {
		fmt.Fprintln(a.errOut, err)
		return exitApplication
	}
	if !ok {
		fmt.Fprintln(a.out, "not logged in")
		return exitOK
	}

	fmt.Fprintf(a.out, "logged in, access token expires in %s", p.ExpiresIn)
	if !p.ExpiresAt.IsZero() {
		fmt.Fprintf(a.out, " (at %s)", p.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(a.out)

	return exitOK
}

func exitCode(k gateway.Kind) int {
	switch k {
	case gateway.KindTransport:
		return exitTransport
	case gateway.KindAuthExpired, gateway.KindAuthInvalid:
		return exitAuth
	default:
		return exitApplication
	}
}

// stderrNotifier выбирает один канал уведомлений в stderr: в dev/prod
// это JSON-запись лога, локально - строка "title: description".
// Лог тоже пишет в stderr, так что оба канала сразу дали бы дубль.
func stderrNotifier(env string, log *slog.Logger, errOut io.Writer) notify.Notifier {
	switch env {
	case envDev, envProd:
		return notify.NewLog(log)
	default:
		return notify.NewWriter(errOut)
	}
}

// setupLogger настраивает slog по окружению. Логи идут в w (stderr),
// stdout занят ответами API.
func setupLogger(env string, w io.Writer) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
