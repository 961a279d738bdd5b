package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/kanban-board/internal/clock"
)

// SQLiteStore implements DocumentStore and HistoryStore on a local SQLite
// database.
type SQLiteStore struct {
	db    *sqlx.DB
	clock clock.Clock
	log   *slog.Logger

	// writeMu serialises read-modify-write cycles within this process.
	writeMu gosync.Mutex

	mu      gosync.Mutex
	subs    map[string]map[*subscriber]struct{}
	watcher *watcher
	closed  bool
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock sets the clock used for timestamps and the change watcher.
func WithClock(c clock.Clock) Option {
	return func(s *SQLiteStore) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *SQLiteStore) { s.log = l }
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:    db,
		clock: clock.Real(),
		log:   slog.Default(),
		subs:  make(map[string]map[*subscriber]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close stops the change watcher, ends all subscriptions and closes the
// underlying database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	w := s.watcher
	s.watcher = nil
	var subs []*subscriber
	for _, set := range s.subs {
		for sub := range set {
			subs = append(subs, sub)
		}
	}
	s.subs = nil
	s.mu.Unlock()

	if w != nil {
		w.stop()
	}
	for _, sub := range subs {
		sub.close()
	}
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

type documentRow struct {
	Path      string    `db:"path"`
	Data      string    `db:"data"`
	Version   int64     `db:"version"`
	UpdatedAt time.Time `db:"updated_at"`
}

type queryer interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

func getDocument(ctx context.Context, q queryer, path string) (*documentRow, error) {
	var row documentRow
	err := q.GetContext(ctx, &row,
		"SELECT path, data, version, updated_at FROM documents WHERE path = ?", path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", path, err)
	}
	return &row, nil
}

func (r *documentRow) decode() (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(r.Data), &data); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", r.Path, err)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

func (r *documentRow) snapshot() (Snapshot, error) {
	data, err := r.decode()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Path: r.Path, Data: data, Exists: true, Version: r.Version}, nil
}

// Read returns the document at path, or ErrNotFound.
func (s *SQLiteStore) Read(ctx context.Context, path string) (map[string]any, error) {
	row, err := getDocument(ctx, s.db, path)
	if err != nil {
		return nil, err
	}
	return row.decode()
}

// Write stores data at path. See DocumentStore for the merge rules.
func (s *SQLiteStore) Write(ctx context.Context, path string, data map[string]any, opts WriteOptions) error {
	update, err := normalize(data)
	if err != nil {
		return fmt.Errorf("writing document %s: %w", path, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current map[string]any
	var version int64
	row, err := getDocument(ctx, tx, path)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return err
	default:
		if current, err = row.decode(); err != nil {
			return err
		}
		version = row.Version
	}

	next := apply(current, update, opts.Merge)
	encoded, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding document %s: %w", path, err)
	}
	version++

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (path, data, version, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			data = excluded.data,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		path, string(encoded), version, s.clock.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing document %s: %w", path, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing document %s: %w", path, err)
	}

	s.publish(documentRow{Path: path, Data: string(encoded), Version: version})
	return nil
}

// version returns the stored version of path, or 0 when absent.
func (s *SQLiteStore) version(ctx context.Context, path string) (int64, error) {
	var v int64
	err := s.db.GetContext(ctx, &v, "SELECT version FROM documents WHERE path = ?", path)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading version of %s: %w", path, err)
	}
	return v, nil
}
