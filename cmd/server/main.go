package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"media-stream-auth/backend/internal/accesslog"
	accessrepo "media-stream-auth/backend/internal/accesslog/repository"
	"media-stream-auth/backend/internal/authz"
	"media-stream-auth/backend/internal/config"
	"media-stream-auth/backend/internal/db"
	"media-stream-auth/backend/internal/ledger"
	"media-stream-auth/backend/internal/logging"
	"media-stream-auth/backend/internal/server"
	sessionrepo "media-stream-auth/backend/internal/session/repository"
	"media-stream-auth/backend/internal/sweeper"
	tokenrepo "media-stream-auth/backend/internal/token/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logging.New("")
		log.Fatal().Err(err).Msg("config")
	}
	log := logging.New(cfg.Env)

	sqlDB, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database")
	}
	defer sqlDB.Close()

	tokens := tokenrepo.NewPostgresRepository(sqlDB)
	sessions := sessionrepo.NewPostgresRepository(sqlDB)
	logs := accessrepo.NewPostgresRepository(sqlDB)

	lg := ledger.New(sessions, log.With().Str("component", "ledger").Logger())
	loadCtx, cancelLoad := context.WithTimeout(context.Background(), 30*time.Second)
	loaded, err := lg.Load(loadCtx, time.Now().UTC())
	cancelLoad()
	if err != nil {
		log.Fatal().Err(err).Msg("reloading sessions from storage")
	}
	log.Info().Int("sessions", loaded).Msg("session ledger reconciled")

	var recorder accesslog.Recorder = accesslog.NewNoopRecorder()
	if cfg.EnableAccessLogs {
		recorder = accesslog.NewAsyncRecorder(logs, log.With().Str("component", "accesslog").Logger())
	}

	engine := authz.New(tokens, lg, recorder, cfg.AuthDurationTTL(), cfg.DefaultMaxSessions,
		log.With().Str("component", "authz").Logger())

	sweep := sweeper.New(lg, cfg.SweepIntervalDur(), log.With().Str("component", "sweeper").Logger())
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweep.Run(sweepCtx)

	srv := server.New(cfg, engine, lg, tokens, logs, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server crashed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to shut down")
	}
	stopSweep()
	log.Info().Msg("server stopped")
}
