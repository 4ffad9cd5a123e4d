package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	apiPkg "github.com/h1v3-io/relay/internal/api"
	"github.com/h1v3-io/relay/internal/audit"
	"github.com/h1v3-io/relay/internal/config"
	"github.com/h1v3-io/relay/internal/connector/telegram"
	"github.com/h1v3-io/relay/internal/connector/webhook"
	"github.com/h1v3-io/relay/internal/logbuf"
	"github.com/h1v3-io/relay/internal/registry"
	"github.com/h1v3-io/relay/internal/relay"
	"github.com/h1v3-io/relay/internal/reply"
	"github.com/h1v3-io/relay/internal/scheduler"
	"github.com/h1v3-io/relay/internal/session"
	"github.com/h1v3-io/relay/pkg/protocol"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	// Load config (file or env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("relayd starting", "bots", len(cfg.Bots), "mode", cfg.Telegram.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Relay state: identities, tickets, reply targets
	reg := registry.New(cfg.Credentials(), nil, cfg.Relay.FallbackBotName, logger.With("component", "registry"))
	dir := session.NewDirectory()
	router := reply.New(dir, cfg.ArmTTLDuration())

	var journal audit.Journal = audit.Nop{}
	if cfg.Audit.DBPath != "" {
		j, err := audit.NewSQLiteJournal(cfg.Audit.DBPath)
		if err != nil {
			logger.Error("failed to open audit journal", "path", cfg.Audit.DBPath, "error", err)
			os.Exit(1)
		}
		defer j.Close()
		journal = j
	}

	// 2. Telegram gateway. The engine is built after the connector because
	// it sends through it; the handler closure defers the lookup.
	var engine *relay.Engine
	handler := func(ctx context.Context, ev protocol.InboundEvent) error {
		return engine.HandleEvent(ctx, ev)
	}
	tg, err := telegram.New(telegram.Config{
		Bots:        cfg.Credentials(),
		Mode:        cfg.Telegram.Mode,
		APIEndpoint: cfg.Telegram.APIEndpoint,
		PollTimeout: cfg.Telegram.PollTimeout,
	}, handler, logger.With("connector", "telegram"))
	if err != nil {
		logger.Error("failed to init telegram connector", "error", err)
		os.Exit(1)
	}
	reg.SetFetcher(tg)

	engine = relay.New(relay.Options{
		Registry:    reg,
		Sessions:    dir,
		Replies:     router,
		Gateway:     tg,
		Journal:     journal,
		AdminID:     cfg.Relay.AdminID,
		SendTimeout: cfg.SendTimeoutDuration(),
		Logger:      logger,
	})

	go safeGo(logger, "telegram", func() { tg.Start(ctx) })
	logger.Info("telegram connector started", "mode", cfg.Telegram.Mode, "bots", reg.Keys())

	// 3. Housekeeping jobs
	sched := scheduler.New(logger.With("component", "scheduler"))
	jobLogger := logger.With("component", "housekeeping")
	if err := sched.AddJob(scheduler.SweepJobName, cfg.Scheduler.SweepSchedule, scheduler.SweepJob(router, journal, jobLogger)); err != nil {
		logger.Error("failed to schedule sweep", "error", err)
		os.Exit(1)
	}
	if err := sched.AddJob(scheduler.StatsJobName, cfg.Scheduler.StatsSchedule, scheduler.StatsJob(dir, router, jobLogger)); err != nil {
		logger.Error("failed to schedule stats", "error", err)
		os.Exit(1)
	}
	go safeGo(logger, "scheduler", func() { sched.Start(ctx) })

	// 4. HTTP server: webhook intake plus status API
	var hook *webhook.Handler
	if cfg.Telegram.Mode == telegram.ModeWebhook {
		hook = webhook.New(webhook.Config{Secret: cfg.Telegram.WebhookSecret}, telegram.DecodeWebhook, engine.Handler(), logger.With("component", "webhook"))
	}
	apiSvc := &relayServiceAdapter{reg: reg, dir: dir, router: router, journal: journal, sched: sched}
	apiSrv := apiPkg.NewServer(apiSvc, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"), logBuf, webhookHandler(hook))

	go safeGo(logger, "api-server", func() {
		if err := apiSrv.Start(ctx); err != nil {
			logger.Error("api server stopped", "error", err)
		}
	})
	logger.Info("api server started", "port", cfg.API.Port)

	// 5. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	tg.Stop()
	logger.Info("relayd stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
