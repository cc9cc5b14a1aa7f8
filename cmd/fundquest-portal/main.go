package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fundquest/auth-portal/internal/backend"
	"github.com/fundquest/auth-portal/internal/config"
	"github.com/fundquest/auth-portal/internal/logging"
	"github.com/fundquest/auth-portal/internal/msauth"
	"github.com/fundquest/auth-portal/internal/server"
	"github.com/fundquest/auth-portal/internal/session"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)
	logger.Info("fundquest-portal starting",
		slog.String("version", Version),
		slog.String("listen", cfg.ListenAddr),
		slog.String("backend", cfg.BackendBaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPath := cfg.SessionDBPath
	if dbPath == "" {
		dbPath, err = config.DefaultSessionDBPath()
		if err != nil {
			return err
		}
	}

	store, err := session.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer store.Close()

	eps, err := config.LoadEndpoints(cfg.EndpointsFile)
	if err != nil {
		return fmt.Errorf("loading endpoints: %w", err)
	}

	// The jar carries the backend's refresh cookie between calls.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("creating cookie jar: %w", err)
	}

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Jar:     jar,
	}

	backendClient := backend.NewClient(cfg.BackendBaseURL, eps, store, httpClient, logger)
	builder := msauth.NewBuilder(cfg.ClientID, cfg.TenantID, cfg.RedirectURI, cfg.Scopes)
	gate := session.NewGate(store, "/", "/dashboard")

	mux := server.NewMux(server.MuxConfig{
		Auth:            builder,
		Backend:         backendClient,
		Store:           store,
		Gate:            gate,
		Logger:          logger,
		RedirectSeconds: cfg.ErrorRedirectSeconds,
	})

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", slog.String("addr", cfg.ListenAddr))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
