// CLAUDE:SUMMARY Entry point for censo — HTTP API, stdio MCP server or one-shot check of a citizen ID against the electoral census.
// Command censo verifies Colombian citizen IDs against the electoral census
// lookup page by driving a headless browser.
//
// Usage:
//
//	censo -config censo.yaml          # HTTP API
//	censo -mcp                        # MCP over stdio
//	censo -check 1234567              # one lookup, JSON on stdout
//	censo -maintenance on             # switch maintenance mode, then exit
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/censo/capture"
	"github.com/hazyhaar/censo/censo"
	"github.com/hazyhaar/censo/dbopen"
	"github.com/hazyhaar/censo/internal/config"
	"github.com/hazyhaar/censo/shield"
	"github.com/hazyhaar/censo/verifier"
)

func main() {
	configPath := flag.String("config", env("CENSO_CONFIG", ""), "path to censo.yaml")
	check := flag.String("check", "", "verify one citizen ID and exit")
	mcpStdio := flag.Bool("mcp", false, "serve MCP over stdio instead of HTTP")
	maintenance := flag.String("maintenance", "", "switch maintenance mode on or off and exit")
	maintenanceMsg := flag.String("maintenance-message", "", "message served while in maintenance")
	logLevel := flag.String("log-level", env("LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// stderr: stdout carries MCP frames and -check output.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := runOptions{
		configPath:     *configPath,
		check:          *check,
		mcp:            *mcpStdio,
		maintenance:    *maintenance,
		maintenanceMsg: *maintenanceMsg,
	}
	if err := run(ctx, logger, opts); err != nil {
		logger.Error("censo: fatal", "error", err)
		os.Exit(1)
	}
}

type runOptions struct {
	configPath     string
	check          string
	mcp            bool
	maintenance    string // "on" | "off"
	maintenanceMsg string
}

func run(ctx context.Context, logger *slog.Logger, opts runOptions) error {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(opts.configPath); err != nil {
			return err
		}
	}
	applyEnv(cfg)

	db, err := dbopen.Open(cfg.Store.Path, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	if err := shield.Init(db); err != nil {
		return fmt.Errorf("init shield: %w", err)
	}
	if opts.maintenance != "" {
		return setMaintenance(ctx, logger, db, opts.maintenance, opts.maintenanceMsg)
	}
	if err := applyRateLimit(ctx, db, cfg.Server.RateLimit); err != nil {
		return err
	}
	store := censo.NewStore(db)
	if err := store.Init(ctx); err != nil {
		return err
	}

	pool := newPool(cfg, logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		pool.Close(closeCtx)
	}()
	if cfg.Pool.Warm && opts.check == "" {
		if err := pool.Initialize(ctx); err != nil {
			// Sessions start lazily on first use.
			logger.Warn("censo: warm start failed", "error", err)
		}
	}

	metrics := censo.NewMetrics(prometheus.DefaultRegisterer)
	limit := rate.Every(time.Duration(float64(time.Minute) / cfg.Rate.PerMinute))
	svc := censo.NewService(pool,
		censo.WithStore(store),
		censo.WithLimiter(rate.NewLimiter(limit, cfg.Rate.Burst)),
		censo.WithSiteGuard(cfg.Guard.Threshold, cfg.Guard.Cooldown),
		censo.WithCacheTTL(cfg.Cache.TTL),
		censo.WithAcquireTimeout(cfg.Pool.AcquireTimeout),
		censo.WithMetrics(metrics),
		censo.WithLogger(logger),
	)

	switch {
	case opts.check != "":
		return runCheck(ctx, os.Stdout, svc, opts.check)
	case opts.mcp:
		return runMCP(ctx, svc)
	}
	return serve(ctx, logger, cfg, db, svc)
}

func newPool(cfg *config.Config, logger *slog.Logger) *verifier.Pool {
	opts := []verifier.Option{verifier.WithLogger(logger)}
	if cfg.Capture.Dir != "" {
		w := capture.NewWriter(cfg.Capture.Dir, capture.WithLogger(logger))
		opts = append(opts, verifier.WithCapturer(w))
	}
	bcfg := cfg.BrowserManagerConfig()
	bcfg.Logger = logger
	return verifier.NewPool(cfg.Pool.Size, func() *verifier.Client {
		return verifier.NewRod(cfg.Lookup, bcfg, opts...)
	})
}

// runCheck prints the result of one lookup. A malformed identifier or a
// session that cannot start prints nothing and fails the command.
func runCheck(ctx context.Context, w io.Writer, svc *censo.Service, identifier string) error {
	res, err := svc.Verify(ctx, identifier)
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runMCP(ctx context.Context, svc *censo.Service) error {
	srv := mcp.NewServer(&mcp.Implementation{Name: "censo", Version: "1.0.0"}, nil)
	svc.RegisterMCP(srv)
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

func serve(ctx context.Context, logger *slog.Logger, cfg *config.Config, db *sql.DB, svc *censo.Service) error {
	stack, rl, mm := shield.APIStack(db, cfg.Server.MaxBodyBytes)
	rl.StartReloader(ctx)
	mm.StartReloader(ctx)
	svc.StartJanitor(ctx, cfg.Store.Retention, time.Hour)

	r := chi.NewRouter()
	for _, mw := range stack {
		r.Use(mw)
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	svc.RegisterRoutes(r)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("censo: listening", "addr", cfg.Server.Addr, "pool", cfg.Pool.Size)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("censo: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setMaintenance(ctx context.Context, logger *slog.Logger, db *sql.DB, mode, message string) error {
	var on bool
	switch mode {
	case "on":
		on = true
	case "off":
	default:
		return fmt.Errorf("maintenance: want on or off, got %q", mode)
	}
	if err := shield.SetMaintenance(ctx, db, on, message); err != nil {
		return err
	}
	logger.Info("censo: maintenance mode set", "active", on)
	return nil
}

// validateEndpoint is the rate_limits key of POST /api/validar-cedula.
const validateEndpoint = "POST /api/validar-cedula"

func applyRateLimit(ctx context.Context, db *sql.DB, rl config.RequestLimitConfig) error {
	if rl.Requests <= 0 {
		return nil
	}
	return shield.SetRule(ctx, db, validateEndpoint, shield.RateLimitConfig{
		MaxRequests:   rl.Requests,
		WindowSeconds: int(rl.Window / time.Second),
		Enabled:       true,
	})
}

// applyEnv lets container deployments override the file.
func applyEnv(cfg *config.Config) {
	cfg.Server.Addr = env("CENSO_ADDR", cfg.Server.Addr)
	cfg.Store.Path = env("CENSO_DB", cfg.Store.Path)
	cfg.Capture.Dir = env("CENSO_CAPTURE_DIR", cfg.Capture.Dir)
	cfg.Browser.Remote = env("CHROME_REMOTE_URL", cfg.Browser.Remote)
	cfg.Browser.Bin = env("CHROME_BIN", cfg.Browser.Bin)
	if n, err := strconv.Atoi(env("CENSO_POOL_SIZE", "")); err == nil && n > 0 {
		cfg.Pool.Size = n
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
