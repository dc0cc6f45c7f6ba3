// Command stubapi serves the reference storefront backend for local
// development.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-storefront-session/internal/config"
	"go-storefront-session/internal/logger"
	"go-storefront-session/internal/stubapi"
)

func main() {
	if err := run(); err != nil {
		slog.Error("stub backend failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateStub(); err != nil {
		return err
	}

	log := logger.New(os.Stdout, cfg.LogLevel, true)
	slog.SetDefault(log)

	handler, err := stubapi.New(cfg.Stub, stubapi.WithLogger(log))
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Stub.Port,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Stub.ReadTimeout,
		WriteTimeout:      cfg.Stub.WriteTimeout,
		IdleTimeout:       cfg.Stub.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr, "admin", "admin@example.com")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-stop:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Info("server stopped")
	return nil
}
