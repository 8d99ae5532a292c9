// Command botd runs the support-bot engine: SQLite-backed ticket storage,
// the conversation engine, the reminder scheduler, and the ops HTTP
// surface. Inbound events arrive on stdin through the console transport
// adapter; swap consoleMessenger for a platform client to go live.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-support-bot/internal/config"
	"github.com/tbourn/go-support-bot/internal/conversation"
	"github.com/tbourn/go-support-bot/internal/engine"
	"github.com/tbourn/go-support-bot/internal/observability"
	"github.com/tbourn/go-support-bot/internal/ops"
	"github.com/tbourn/go-support-bot/internal/rates"
	"github.com/tbourn/go-support-bot/internal/repo"
	"github.com/tbourn/go-support-bot/internal/scheduler"
	"github.com/tbourn/go-support-bot/internal/services"
	"github.com/tbourn/go-support-bot/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	ver := sysutil.FirstNonEmpty(os.Getenv("BOT_VERSION"), version)
	logger := log.With().Str("service", cfg.OTEL.ServiceName).Str("version", ver).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}

	// Storage failure at startup is fatal: the bot has nothing to serve
	// without its database.
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("database open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("database migration failed")
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Str("timezone", cfg.Timezone).Msg("bad timezone")
	}

	messenger := consoleMessenger{log: logger}
	states := conversation.NewTracker()
	sched := scheduler.New(scheduler.SystemClock(), messenger, logger)

	tickets := services.NewTicketService(db, repo.Store{}, states, messenger, cfg.OperatorIDs, logger)
	reminders := services.NewReminderService(states, messenger, sched, cfg.ReminderPresets, logger)

	var fetcher engine.RatesFetcher
	if cfg.RatesURL != "" {
		fetcher = rates.NewClient(cfg.RatesURL, cfg.RatesTimeout)
	}

	eng := engine.New(tickets, reminders, fetcher, messenger, states, cfg, loc, logger)

	opsSrv := ops.NewServer(cfg.OpsPort, db, cfg.OTEL.ServiceName, ver, logger)
	opsSrv.Start()

	logger.Info().
		Int("operators", len(cfg.OperatorIDs)).
		Str("db", cfg.DBPath).
		Msg("bot started; reading events from stdin")

	done := make(chan struct{})
	go func() {
		defer close(done)
		runConsole(ctx, os.Stdin, eng, logger)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("signal received, shutting down")
	case <-done:
		logger.Info().Msg("input closed, shutting down")
	}

	// Pending reminders are dropped on shutdown; the scheduler makes no
	// cross-restart delivery promise.
	sched.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("ops shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("otel shutdown failed")
	}
	logger.Info().Msg("bye")
}
