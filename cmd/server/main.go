package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/parleychat/parley/internal/auth"
	"github.com/parleychat/parley/internal/config"
	"github.com/parleychat/parley/internal/messages"
	"github.com/parleychat/parley/internal/rooms"
	"github.com/parleychat/parley/internal/server"
	"github.com/parleychat/parley/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	// A .env file is optional; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	pg, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return err
	}
	defer pg.Close()
	log.Info("database ready")

	hasher := auth.NewPasswordHasher()
	tokens := auth.NewTokenManager([]byte(cfg.JWTSecret), cfg.TokenTTL)
	authSvc := auth.NewService(pg, hasher, tokens)
	resolver := rooms.NewResolver(pg)
	msgSvc := messages.NewService(pg)

	srv := server.New(cfg, log, authSvc, tokens, resolver, msgSvc)
	srv.StartHub()

	httpServer := server.NewHTTPServer(cfg.ListenAddr(), srv.Routes())

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	if err := server.ShutdownHTTPServer(httpServer, shutdownTimeout); err != nil {
		log.Error("http shutdown", "error", err)
	}
	if err := srv.Hub().Shutdown(shutdownTimeout); err != nil {
		log.Error("hub shutdown", "error", err)
	}

	log.Info("shutdown complete")
	return nil
}
