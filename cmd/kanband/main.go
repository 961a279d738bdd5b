// Command kanband serves the board documents of a SQLite store to remote
// kanban clients.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/nhle/kanban-board/internal/config"
	"github.com/nhle/kanban-board/internal/logger"
	"github.com/nhle/kanban-board/internal/remote"
	"github.com/nhle/kanban-board/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kanband:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", config.DefaultConfigPath(), "path to the config file")
	addr := pflag.String("addr", "", "listen address (overrides relay.addr)")
	dbPath := pflag.String("db", "", "SQLite database path (overrides database.path)")
	origins := pflag.StringSlice("allow-origin", []string{"*"}, "allowed CORS and websocket origins")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Relay.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	log := logger.Initialize(cfg.Log.Level, cfg.Log.JSON)

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	db, err := store.NewSQLiteStore(cfg.Database.Path, store.WithLogger(log))
	if err != nil {
		return err
	}
	defer db.Close()
	// Picks up writes from local clients that open the database directly.
	db.StartWatcher(cfg.Sync.WatchInterval)

	hub := remote.NewHub(log)
	go hub.Run()
	defer hub.Stop()

	relay := remote.NewServer(db, hub,
		remote.WithHistory(db),
		remote.WithAllowedOrigins(*origins...),
		remote.WithServerLogger(log),
	)

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/").Handler(relay.Handler())

	srv := &http.Server{
		Addr:              cfg.Relay.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("relay listening", "addr", cfg.Relay.Addr, "db", cfg.Database.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
