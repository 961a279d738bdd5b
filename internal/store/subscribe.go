package store

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
)

// subscriber delivers snapshots of one path to one callback. Only the
// latest undelivered snapshot is kept.
type subscriber struct {
	path string
	fn   func(Snapshot)

	mu        gosync.Mutex
	pending   *documentRow
	missing   bool
	delivered int64

	wake chan struct{}
	done chan struct{}
	once gosync.Once
}

func newSubscriber(path string, fn func(Snapshot)) *subscriber {
	return &subscriber{
		path: path,
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// offer queues row for delivery unless a newer version is already queued
// or delivered.
func (sub *subscriber) offer(row documentRow) {
	sub.mu.Lock()
	if row.Version <= sub.delivered || (sub.pending != nil && row.Version <= sub.pending.Version) {
		sub.mu.Unlock()
		return
	}
	sub.pending = &row
	sub.missing = false
	sub.mu.Unlock()
	sub.signal()
}

// offerMissing queues a snapshot reporting that the document does not exist.
func (sub *subscriber) offerMissing() {
	sub.mu.Lock()
	sub.pending = nil
	sub.missing = true
	sub.mu.Unlock()
	sub.signal()
}

func (sub *subscriber) signal() {
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscriber) run(s *SQLiteStore) {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
		}

		sub.mu.Lock()
		row, missing := sub.pending, sub.missing
		sub.pending, sub.missing = nil, false
		if row != nil {
			sub.delivered = row.Version
		}
		sub.mu.Unlock()

		var snap Snapshot
		switch {
		case row != nil:
			var err error
			if snap, err = row.snapshot(); err != nil {
				s.log.Error("dropping undecodable snapshot", "path", sub.path, "error", err)
				continue
			}
		case missing:
			snap = Snapshot{Path: sub.path, Data: map[string]any{}}
		default:
			continue
		}

		select {
		case <-sub.done:
			return
		default:
		}
		sub.fn(snap)
	}
}

func (sub *subscriber) close() {
	sub.once.Do(func() { close(sub.done) })
}

// Subscribe implements DocumentStore. The subscription ends when ctx is
// cancelled, when unsubscribe is called, or when the store is closed.
func (s *SQLiteStore) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("subscribing to %s: nil callback", path)
	}

	sub := newSubscriber(path, fn)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("subscribing to %s: store closed", path)
	}
	set, ok := s.subs[path]
	if !ok {
		set = make(map[*subscriber]struct{})
		s.subs[path] = set
	}
	set[sub] = struct{}{}
	s.mu.Unlock()

	row, err := getDocument(ctx, s.db, path)
	switch {
	case errors.Is(err, ErrNotFound):
		sub.offerMissing()
	case err != nil:
		s.remove(sub)
		return nil, fmt.Errorf("subscribing to %s: %w", path, err)
	default:
		sub.offer(*row)
	}

	go sub.run(s)

	unsubscribe := func() { s.remove(sub) }
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.remove(sub)
			case <-sub.done:
			}
		}()
	}
	return unsubscribe, nil
}

func (s *SQLiteStore) remove(sub *subscriber) {
	s.mu.Lock()
	if set, ok := s.subs[sub.path]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(s.subs, sub.path)
		}
	}
	s.mu.Unlock()
	sub.close()
}

// publish offers a committed document to every subscriber of its path.
func (s *SQLiteStore) publish(row documentRow) {
	for _, sub := range s.subscribers(row.Path) {
		sub.offer(row)
	}
}

func (s *SQLiteStore) subscribers(path string) []*subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.subs[path]
	out := make([]*subscriber, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	return out
}

// subscribedPaths lists the paths with at least one subscriber.
func (s *SQLiteStore) subscribedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.subs))
	for p := range s.subs {
		paths = append(paths, p)
	}
	return paths
}
