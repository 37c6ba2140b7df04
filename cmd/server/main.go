package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/betbot/vaultgate/internal/app"
	"github.com/betbot/vaultgate/internal/controlplane/server"
	"github.com/betbot/vaultgate/internal/metrics"
	"github.com/betbot/vaultgate/pkg/config"
	"github.com/betbot/vaultgate/pkg/logger"
	"github.com/betbot/vaultgate/pkg/ratelimit"
	"github.com/betbot/vaultgate/pkg/shutdown"
)

func main() {
	// Load .env (best-effort). If missing, fall back to real env vars.
	_ = godotenv.Load()

	getenv := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	var (
		cfgPath    = flag.String("config", getenv("VAULTGATE_CONFIG", ""), "config file path (yaml or json, optional)")
		listenAddr = flag.String("listen", "", "HTTP listen address (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fatal(fmt.Errorf("load config: %w", err))
	}
	if *listenAddr != "" {
		cfg.Server.Listen = *listenAddr
	}
	if err := cfg.Validate(); err != nil {
		fatal(fmt.Errorf("config invalid: %w", err))
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		JSON:       cfg.Log.JSON,
	}); err != nil {
		fatal(fmt.Errorf("init logger: %w", err))
	}
	log := logrus.WithField("module", "main")

	ctx, stop := shutdown.SignalContext(context.Background())
	defer stop()

	a, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		log.Fatalf("❌ [Main] 初始化失败: %v", err)
	}

	sm := shutdown.NewManager()
	sm.OnShutdown("app", func(context.Context) error { return a.Close() })

	if cfg.Server.MetricsListen != "" {
		if _, err := metrics.StartAsync(ctx, cfg.Server.MetricsListen); err != nil {
			log.Warnf("⚠️ [Main] debug 服务启动失败: %v", err)
		}
	}

	loopCtx, cancelLoop := context.WithCancel(ctx)
	go a.Service.RunStatusLoop(loopCtx, time.Duration(cfg.Server.StatusInterval)*time.Second)
	sm.OnShutdown("status-loop", func(context.Context) error { cancelLoop(); return nil })

	srvCfg := server.Config{APIToken: cfg.Server.APIToken}
	if cfg.Server.RateLimit > 0 {
		srvCfg.Limits = ratelimit.NewRateLimitManager()
		srvCfg.Limits.Register(server.WriteEndpoint, ratelimit.NewTokenBucket(max(cfg.Server.RateBurst, 1), cfg.Server.RateLimit))
	}
	if a.Ledger != nil {
		srvCfg.Faucet = a.Ledger
	}
	srv := server.New(srvCfg, a.Service)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	sm.OnShutdown("http", httpSrv.Shutdown)

	go func() {
		log.Infof("🚀 [Main] vaultgate listening on %s (venue=%s)", cfg.Server.Listen, cfg.Venue.Mode)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("❌ [Main] http server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sm.Shutdown(shutdownCtx); err != nil {
		log.Warnf("⚠️ [Main] shutdown: %v", err)
	}
	fmt.Println("server stopped")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
