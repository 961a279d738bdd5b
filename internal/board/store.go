// Package board holds the active board in memory and exposes the
// mutations the UI performs on it. Every mutation computes a new board
// value, replaces the current one and hands it to the sync engine.
package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/store"
	"github.com/nhle/kanban-board/internal/sync"
	"github.com/nhle/kanban-board/internal/tracking"
)

// DefaultTitle names boards created on first load.
const DefaultTitle = "My Board"

// State is the load state of the store.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Syncer persists boards. *sync.Engine implements it.
type Syncer interface {
	Open(ctx context.Context, ref sync.Ref) (*model.Board, error)
	Attach(ctx context.Context, board *model.Board, hint sync.WriteHint, onRemote func(*model.Board)) error
	Create(ctx context.Context, board *model.Board, onRemote func(*model.Board)) error
	Observe(board *model.Board, hint sync.WriteHint)
	ForceSave(ctx context.Context) error
	Detach(ctx context.Context) error
	Now() time.Time
	User() model.User
}

// Store owns the active board.
type Store struct {
	sync    Syncer
	history store.HistoryStore
	log     *slog.Logger

	// historyWG tracks in-flight historical writes.
	historyWG gosync.WaitGroup

	mu    gosync.RWMutex
	state State
	ref   sync.Ref
	board *model.Board
	err   error

	// early is a remote board accepted by the engine while Load was
	// still attaching. It replaces the loaded board once Load finishes.
	early *model.Board

	listenersMu  gosync.Mutex
	listeners    map[int]func(Event)
	nextListener int
}

// Option configures a Store.
type Option func(*Store)

// WithHistory sets where archived and deleted cards are recorded.
func WithHistory(h store.HistoryStore) Option {
	return func(s *Store) { s.history = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// NewStore creates an empty store persisting through syncer.
func NewStore(syncer Syncer, opts ...Option) *Store {
	s := &Store{
		sync:      syncer,
		log:       slog.Default(),
		listeners: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load makes ref the active board. Loading the board that is already
// ready does nothing. A missing owned board is created with the default
// columns. Tracking data is repaired and the current user is added to
// the member list before the board becomes ready.
func (s *Store) Load(ctx context.Context, ref sync.Ref) error {
	if ref.BoardID == "" {
		return ErrNoBoard
	}

	s.mu.Lock()
	if s.state == StateReady && s.ref == ref {
		s.mu.Unlock()
		return nil
	}
	s.state = StateLoading
	s.ref = ref
	s.board = nil
	s.early = nil
	s.err = nil
	s.mu.Unlock()

	board, err := s.sync.Open(ctx, ref)
	now := s.sync.Now()
	user := s.sync.User()

	creating := false
	if err != nil {
		if ref.Shared || !errors.Is(err, store.ErrNotFound) {
			return s.fail(ref, err)
		}
		s.log.Info("creating board", "board", ref.BoardID, "owner", user.ID)
		board = model.NewBoard(ref.BoardID, DefaultTitle, user.ID, now)
		creating = true
	}

	board = tracking.InitializeCardTracking(board, now)
	board = tracking.RepairTimeTracking(board, now)

	var hint sync.WriteHint
	if user.ID != "" && !board.HasUser(user.ID, user.Email) {
		next := board.Copy()
		next.Users = append(append([]model.User(nil), board.Users...), user)
		board = next
		hint.Users = true
	}

	if creating {
		err = s.sync.Create(ctx, board, s.applyRemote)
	} else {
		err = s.sync.Attach(ctx, board, hint, s.applyRemote)
	}
	if err != nil {
		return s.fail(ref, err)
	}

	s.mu.Lock()
	if s.ref != ref {
		// A newer Load won.
		s.mu.Unlock()
		return nil
	}
	if s.early != nil {
		board = s.early
		s.early = nil
	}
	s.board = board
	s.state = StateReady
	s.mu.Unlock()

	s.log.Debug("board ready", "board", board.ID, "cards", len(board.Cards), "columns", len(board.Columns))
	s.emit(EventForceRerender, board.ID, "")
	return nil
}

func (s *Store) fail(ref sync.Ref, err error) error {
	s.mu.Lock()
	if s.ref == ref {
		s.state = StateError
		s.err = err
	}
	s.mu.Unlock()
	s.log.Error("loading board", "board", ref.BoardID, "shared", ref.Shared, "error", err)
	return fmt.Errorf("loading board %s: %w", ref.BoardID, err)
}

// applyRemote replaces the board with one received from the store. A
// board arriving while its Load is still attaching is kept for Load, since
// the engine has already adopted it as its baseline.
func (s *Store) applyRemote(board *model.Board) {
	now := s.sync.Now()
	board = tracking.InitializeCardTracking(board, now)
	board = tracking.RepairTimeTracking(board, now)

	s.mu.Lock()
	if s.state == StateLoading && s.ref.BoardID == board.ID {
		s.early = board
		s.mu.Unlock()
		return
	}
	if s.state != StateReady || s.board == nil || s.board.ID != board.ID {
		s.mu.Unlock()
		return
	}
	s.board = board
	s.mu.Unlock()

	s.emit(EventForceRerender, board.ID, "")
}

// Board returns the current board, or nil when none is ready. The value
// must not be modified.
func (s *Store) Board() *model.Board {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.board
}

// State returns the load state and the error of a failed load.
func (s *Store) State() (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state, s.err
}

// Save writes the board now.
func (s *Store) Save(ctx context.Context) error {
	if st, _ := s.State(); st != StateReady {
		return ErrNotReady
	}
	return s.sync.ForceSave(ctx)
}

// HandleSaveResult turns a completed write into a board-saved event.
func (s *Store) HandleSaveResult(msg sync.SaveResultMsg) {
	if msg.Err != nil {
		return
	}
	s.emit(EventBoardSaved, msg.BoardID, "")
}

// Close saves pending changes, stops following the board and waits for
// historical writes to finish.
func (s *Store) Close(ctx context.Context) error {
	err := s.sync.Detach(ctx)

	s.mu.Lock()
	s.state = StateUnloaded
	s.board = nil
	s.ref = sync.Ref{}
	s.mu.Unlock()

	s.historyWG.Wait()
	return err
}

// mutation computes the next board from the current one. Returning the
// same pointer means nothing changed.
type mutation func(b *model.Board, now time.Time) (*model.Board, sync.WriteHint, error)

// apply runs fn against the current board and publishes the result.
func (s *Store) apply(fn mutation) (*model.Board, *model.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady || s.board == nil {
		return nil, nil, ErrNotReady
	}

	prev := s.board
	next, hint, err := fn(prev, s.sync.Now())
	if err != nil {
		return prev, prev, err
	}
	if next == prev {
		return prev, prev, nil
	}

	s.board = next
	s.sync.Observe(next, hint)
	return prev, next, nil
}
