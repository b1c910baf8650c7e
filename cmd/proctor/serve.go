package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-proctor/internal/backend"
	"github.com/stemsi/exstem-proctor/internal/clock"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/store"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/violation"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
	"github.com/stemsi/exstem-proctor/internal/worker"
)

var servePort string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the exam session host",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "", "listen port (overrides SERVER_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	if servePort != "" {
		cfg.ServerPort = servePort
	}

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	if sub := backend.TokenSubject(cfg.BackendToken); sub != "" {
		log = log.With().Str("subject", sub).Logger()
	}
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("backend", cfg.BackendURL).
		Str("version", version).
		Msg("Starting ExStem Proctor")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Answer Journal ────────────────────────────────────────────────
	var journal store.Journal = store.NewMemoryJournal()
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if rdb != nil {
		defer rdb.Close()
		journal = store.NewRedisJournal(rdb)
	}

	// ─── Backend Client & Workers ──────────────────────────────────────
	client := backend.NewClient(cfg.BackendURL, cfg.BackendToken, cfg.BackendTimeout, log)
	reporter := worker.NewViolationReporter(client, cfg.ReportQueueSize, cfg.BackendTimeout, log)
	journalWriter := worker.NewJournalWriter(journal, log)
	hub := ws.NewHub(log)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	workers.Go(func() { reporter.Start(workerCtx) })
	workers.Go(func() { journalWriter.Start(workerCtx) })
	workers.Go(func() { hub.Run(workerCtx) })

	// ─── Initialize Services ──────────────────────────────────────────
	sessionCfg := session.Config{
		Monitor: violation.Config{
			Threshold:         cfg.ViolationThreshold,
			TabSwitchDebounce: cfg.TabSwitchDebounce,
			BlurGrace:         cfg.BlurGrace,
			MultiTabPoll:      cfg.MultiTabPoll,
		},
		TickInterval: cfg.TickInterval,
		CallTimeout:  cfg.BackendTimeout,
	}
	proctor := service.NewProctorService(ctx, sessionCfg, service.ProctorDeps{
		Backend:  client,
		Clock:    clock.New(),
		Reporter: reporter,
		Journal:  journalWriter,
		Observer: hub,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(proctor, log),
		WS:      handler.NewWSHandler(workerCtx, hub, proctor, log, cfg.AllowedOrigins),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")
	case err := <-serveErr:
		log.Error().Err(err).Msg("Server error")
		proctor.Close()
		workerCancel()
		workers.Wait()
		return err
	}

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop the live session; an in-flight submit is awaited.
	proctor.Close()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()
	log.Info().
		Int64("violations_sent", reporter.Sent()).
		Int64("violations_dropped", reporter.Dropped()).
		Msg("Violation reporter drained")

	log.Info().Msg("Shutdown complete")
	return nil
}
