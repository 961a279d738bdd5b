package board

import (
	"context"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/kanban-board/internal/clock"
	"github.com/nhle/kanban-board/internal/logger"
	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/sync"
	"github.com/nhle/kanban-board/internal/testutil"
)

var owner = model.User{ID: "owner-1", Email: "owner@example.com", Name: "Owner"}

type observation struct {
	board *model.Board
	hint  sync.WriteHint
}

// fakeSyncer stands in for the sync engine and records what the store
// hands it.
type fakeSyncer struct {
	clock *clock.FakeClock
	user  model.User

	mu         gosync.Mutex
	openBoard  *model.Board
	openErr    error
	opens      int
	attached   *model.Board
	attachHint sync.WriteHint
	created    *model.Board
	onRemote   func(*model.Board)
	observed   []observation

	// remoteDuringAttach is delivered to onRemote before Attach returns.
	remoteDuringAttach *model.Board
	saves      int
	detaches   int
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{clock: clock.Fake(testutil.Epoch.Add(time.Hour)), user: owner}
}

func (f *fakeSyncer) Open(_ context.Context, _ sync.Ref) (*model.Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	return f.openBoard, f.openErr
}

func (f *fakeSyncer) Attach(_ context.Context, board *model.Board, hint sync.WriteHint, onRemote func(*model.Board)) error {
	f.mu.Lock()
	f.attached, f.attachHint, f.onRemote = board, hint, onRemote
	early := f.remoteDuringAttach
	f.mu.Unlock()

	if early != nil {
		onRemote(early)
	}
	return nil
}

func (f *fakeSyncer) Create(_ context.Context, board *model.Board, onRemote func(*model.Board)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created, f.onRemote = board, onRemote
	return nil
}

func (f *fakeSyncer) Observe(board *model.Board, hint sync.WriteHint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observed = append(f.observed, observation{board: board, hint: hint})
}

func (f *fakeSyncer) ForceSave(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return nil
}

func (f *fakeSyncer) Detach(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detaches++
	return nil
}

func (f *fakeSyncer) Now() time.Time  { return f.clock.Now() }
func (f *fakeSyncer) User() model.User { return f.user }

func (f *fakeSyncer) lastObserved(t *testing.T) observation {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.observed, "no board was observed")
	return f.observed[len(f.observed)-1]
}

func (f *fakeSyncer) observedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observed)
}

// fakeHistory records historical writes.
type fakeHistory struct {
	mu      gosync.Mutex
	saved   []model.HistoricalCard
	deleted []string
	err     error
}

func (h *fakeHistory) SaveHistorical(_ context.Context, card model.HistoricalCard) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.saved = append(h.saved, card)
	return nil
}

func (h *fakeHistory) DeleteHistorical(_ context.Context, _, _, cardID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, cardID)
	return h.err
}

func (h *fakeHistory) ListHistorical(context.Context, string, string) ([]model.HistoricalCard, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.HistoricalCard(nil), h.saved...), nil
}

type harness struct {
	store   *Store
	syncer  *fakeSyncer
	history *fakeHistory
	events  *eventLog
}

type eventLog struct {
	mu     gosync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func (l *eventLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = nil
}

// newHarness returns a store with board loaded and ready.
func newHarness(t *testing.T, board *model.Board) *harness {
	t.Helper()
	h := &harness{syncer: newFakeSyncer(), history: &fakeHistory{}, events: &eventLog{}}
	h.syncer.openBoard = board
	h.store = NewStore(h.syncer, WithHistory(h.history), WithLogger(logger.Discard()))
	h.store.Subscribe(h.events.add)

	require.NoError(t, h.store.Load(context.Background(), sync.Ref{BoardID: board.ID}))
	h.events.reset()
	return h
}

// checkInvariants asserts column membership and time-entry invariants.
func checkInvariants(t *testing.T, b *model.Board) {
	t.Helper()
	seen := map[string]string{}
	for _, col := range b.Columns {
		for _, id := range col.CardIDs {
			_, ok := b.Cards[id]
			require.True(t, ok, "column %s lists unknown card %s", col.ID, id)
			prev, dup := seen[id]
			require.False(t, dup, "card %s in %s and %s", id, prev, col.ID)
			seen[id] = col.ID
		}
	}
	for id, card := range b.Cards {
		require.Equal(t, seen[id], card.CurrentColumnID, "card %s currentColumnId", id)
		require.Equal(t, -1, b.ArchivedIndex(id), "card %s is active and archived", id)

		open := 0
		for _, e := range card.TimeInColumns {
			if e.IsOpen() {
				open++
			}
		}
		require.LessOrEqual(t, open, 1, "card %s has %d open entries", id, open)
	}
}
