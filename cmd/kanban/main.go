// Command kanban opens a board in the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/nhle/kanban-board/internal/app"
	"github.com/nhle/kanban-board/internal/board"
	"github.com/nhle/kanban-board/internal/config"
	"github.com/nhle/kanban-board/internal/logger"
	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/remote"
	"github.com/nhle/kanban-board/internal/store"
	"github.com/nhle/kanban-board/internal/sync"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kanban:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.StringP("config", "c", config.DefaultConfigPath(), "path to the config file")
	boardID := pflag.StringP("board", "b", "", "board id (defaults to the user id)")
	shared := pflag.Bool("shared", false, "open a board shared with you by its owner")
	remoteURL := pflag.String("remote", "", "relay server URL (overrides remote.url)")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *remoteURL != "" {
		cfg.Remote.URL = *remoteURL
	}

	logFile, err := openLog(cfg.Log.File)
	if err != nil {
		return err
	}
	defer logFile.Close()
	log := logger.InitializeTo(logFile, cfg.Log.Level, cfg.Log.JSON)

	u := currentUser(cfg.User)
	ref := sync.Ref{BoardID: *boardID, Shared: *shared}
	if ref.BoardID == "" {
		if ref.Shared {
			return fmt.Errorf("--shared needs --board")
		}
		ref.BoardID = u.ID
	}

	var (
		docs      store.DocumentStore
		storeOpts = []board.Option{board.WithLogger(log)}
	)
	if cfg.Remote.URL != "" {
		client, err := remote.NewClient(cfg.Remote.URL, remote.WithClientLogger(log))
		if err != nil {
			return err
		}
		docs = client
		storeOpts = append(storeOpts, board.WithHistory(client))
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		db, err := store.NewSQLiteStore(cfg.Database.Path, store.WithLogger(log))
		if err != nil {
			return err
		}
		defer db.Close()
		db.StartWatcher(cfg.Sync.WatchInterval)
		docs = db
		storeOpts = append(storeOpts, board.WithHistory(db))
	}

	engine := sync.New(docs, sync.NewResolver(docs),
		sync.WithSettings(cfg.Sync),
		sync.WithUser(u),
		sync.WithLogger(log),
	)
	boards := board.NewStore(engine, storeOpts...)

	log.Info("starting", "board", ref.BoardID, "shared", ref.Shared, "user", u.ID, "remote", cfg.Remote.URL)

	p := tea.NewProgram(app.New(boards, engine, ref), tea.WithAltScreen())
	_, runErr := p.Run()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := boards.Close(ctx); err != nil {
		log.Error("saving board on exit", "error", err)
		fmt.Fprintln(os.Stderr, "kanban: last changes were not saved:", err)
	}
	if err := engine.Close(ctx); err != nil {
		log.Error("closing sync engine", "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("running UI: %w", runErr)
	}
	return nil
}

// openLog opens the log file for appending. An empty path discards logs.
func openLog(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{io.Discard}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// currentUser fills missing identity fields from the operating system
// account.
func currentUser(cfg config.UserConfig) model.User {
	u := model.User{ID: cfg.ID, Email: cfg.Email, Name: cfg.Name}
	if u.ID != "" && u.Name != "" {
		return u
	}
	osUser, err := user.Current()
	if err != nil {
		slog.Debug("looking up OS user", "error", err)
		if u.ID == "" {
			u.ID = "local"
		}
		return u
	}
	if u.ID == "" {
		u.ID = osUser.Username
	}
	if u.Name == "" {
		u.Name = osUser.Name
	}
	return u
}
