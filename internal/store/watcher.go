package store

import (
	"context"
	"errors"
	gosync "sync"
	"time"
)

// watchTimeout bounds a single polling pass.
const watchTimeout = 5 * time.Second

// watcher polls subscribed documents for writes made by other processes
// sharing the database file and forwards new versions to subscribers.
type watcher struct {
	store  *SQLiteStore
	seen   map[string]int64
	stopCh chan struct{}
	doneCh chan struct{}
	once   gosync.Once
}

// StartWatcher begins polling subscribed documents every interval. Writes
// made through this store are delivered immediately; the watcher only
// matters when several processes share one database file. Calling it
// again replaces the running watcher.
func (s *SQLiteStore) StartWatcher(interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	w := &watcher{
		store:  s,
		seen:   make(map[string]int64),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	prev := s.watcher
	s.watcher = w
	s.mu.Unlock()

	if prev != nil {
		prev.stop()
	}
	ticker := s.clock.NewTicker(interval)
	go w.run(ticker.C(), ticker.Stop)
}

func (w *watcher) run(tick <-chan time.Time, stopTicker func()) {
	defer close(w.doneCh)
	defer stopTicker()

	for {
		select {
		case <-w.stopCh:
			return
		case <-tick:
			w.poll()
		}
	}
}

// poll checks every subscribed path once.
func (w *watcher) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), watchTimeout)
	defer cancel()

	for _, path := range w.store.subscribedPaths() {
		version, err := w.store.version(ctx, path)
		if err != nil {
			w.store.log.Warn("watching document", "path", path, "error", err)
			continue
		}
		if version <= w.seen[path] {
			continue
		}

		row, err := getDocument(ctx, w.store.db, path)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			w.store.log.Warn("watching document", "path", path, "error", err)
			continue
		}
		w.seen[path] = row.Version
		w.store.publish(*row)
	}
}

func (w *watcher) stop() {
	w.once.Do(func() { close(w.stopCh) })
	<-w.doneCh
}
