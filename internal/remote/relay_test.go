package remote_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/kanban-board/internal/board"
	"github.com/nhle/kanban-board/internal/clock"
	"github.com/nhle/kanban-board/internal/logger"
	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/remote"
	"github.com/nhle/kanban-board/internal/store"
	"github.com/nhle/kanban-board/internal/sync"
	"github.com/nhle/kanban-board/internal/testutil"
)

const boardPath = "users/u1/boards/b1"

func newRelay(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	docs := testutil.NewTestStore(t)
	hub := remote.NewHub(logger.Discard())
	go hub.Run()
	t.Cleanup(hub.Stop)

	srv := httptest.NewServer(remote.NewServer(docs, hub,
		remote.WithHistory(docs),
		remote.WithServerLogger(logger.Discard()),
	).Handler())
	t.Cleanup(srv.Close)
	return srv, docs
}

func newClient(t *testing.T, srv *httptest.Server) *remote.Client {
	t.Helper()
	c, err := remote.NewClient(srv.URL,
		remote.WithClientLogger(logger.Discard()),
		remote.WithRetryDelay(20*time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func TestServerReadMissingReturns404(t *testing.T) {
	srv, _ := newRelay(t)

	resp, err := http.Get(srv.URL + "/api/docs/" + boardPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerWriteThenRead(t *testing.T) {
	srv, docs := newRelay(t)

	body, _ := json.Marshal(map[string]any{"data": map[string]any{"title": "Board"}})
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/docs/"+boardPath, bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	got, err := docs.Read(context.Background(), boardPath)
	require.NoError(t, err)
	assert.Equal(t, "Board", got["title"])
}

func TestServerRejectsMissingData(t *testing.T) {
	srv, _ := newRelay(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/docs/"+boardPath, bytes.NewReader([]byte(`{"merge":true}`)))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv, _ := newRelay(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestNewClientRejectsBadScheme(t *testing.T) {
	_, err := remote.NewClient("ftp://example.com")
	assert.Error(t, err)
}

func TestClientReadWrite(t *testing.T) {
	ctx := context.Background()
	srv, _ := newRelay(t)
	c := newClient(t, srv)

	_, err := c.Read(ctx, boardPath)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, c.Write(ctx, boardPath, map[string]any{
		"title": "Board",
		"cards": map[string]any{"c1": map[string]any{"title": "One"}, "c2": map[string]any{"title": "Two"}},
	}, store.WriteOptions{}))
	require.NoError(t, c.Write(ctx, boardPath, map[string]any{
		"cards.c1.title": "Renamed",
		"cards.c2":       store.DeleteField,
	}, store.WriteOptions{Merge: true}))

	got, err := c.Read(ctx, boardPath)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"title": "Board",
		"cards": map[string]any{"c1": map[string]any{"title": "Renamed"}},
	}, got)
}

type snapshots struct {
	mu    gosync.Mutex
	items []store.Snapshot
}

func (s *snapshots) add(snap store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, snap)
}

func (s *snapshots) last() (store.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return store.Snapshot{}, false
	}
	return s.items[len(s.items)-1], true
}

func TestClientSubscribeReceivesWrites(t *testing.T) {
	ctx := context.Background()
	srv, docs := newRelay(t)
	c := newClient(t, srv)

	var got snapshots
	unsubscribe, err := c.Subscribe(ctx, boardPath, got.add)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool {
		snap, ok := got.last()
		return ok && !snap.Exists
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, docs.Write(ctx, boardPath, map[string]any{"title": "From server"}, store.WriteOptions{}))

	require.Eventually(t, func() bool {
		snap, ok := got.last()
		return ok && snap.Exists && snap.Data["title"] == "From server"
	}, 2*time.Second, 10*time.Millisecond)

	snap, _ := got.last()
	assert.Equal(t, boardPath, snap.Path)
	assert.Equal(t, int64(1), snap.Version)
}

func TestClientUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	srv, docs := newRelay(t)
	c := newClient(t, srv)

	var got snapshots
	unsubscribe, err := c.Subscribe(ctx, boardPath, got.add)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := got.last()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	unsubscribe()
	unsubscribe()

	require.NoError(t, docs.Write(ctx, boardPath, map[string]any{"title": "Late"}, store.WriteOptions{}))
	time.Sleep(100 * time.Millisecond)

	snap, _ := got.last()
	assert.False(t, snap.Exists)
}

func historyRecord(id string, at time.Time) model.HistoricalCard {
	return model.HistoricalCard{
		ID:         id,
		OwnerID:    "u1",
		BoardID:    "b1",
		BoardTitle: "Board",
		Title:      "Card " + id,
		Priority:   model.PriorityMedium,
		RecordedAt: at,
	}
}

func TestClientHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv, docs := newRelay(t)
	c := newClient(t, srv)

	require.NoError(t, c.SaveHistorical(ctx, historyRecord("c1", testutil.Epoch)))
	require.NoError(t, c.SaveHistorical(ctx, historyRecord("c2", testutil.Epoch.Add(time.Minute))))

	stored, err := docs.ListHistorical(ctx, "u1", "b1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "Card c1", stored[0].Title)

	listed, err := c.ListHistorical(ctx, "u1", "b1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "c2", listed[1].ID)
	assert.True(t, listed[1].RecordedAt.Equal(testutil.Epoch.Add(time.Minute)))

	require.NoError(t, c.DeleteHistorical(ctx, "u1", "b1", "c1"))
	// Deleting a missing record is not an error.
	require.NoError(t, c.DeleteHistorical(ctx, "u1", "b1", "c1"))

	stored, err = docs.ListHistorical(ctx, "u1", "b1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "c2", stored[0].ID)
}

func TestClientSaveHistoricalRequiresIDs(t *testing.T) {
	srv, _ := newRelay(t)
	c := newClient(t, srv)

	rec := historyRecord("c1", testutil.Epoch)
	rec.OwnerID = ""
	assert.Error(t, c.SaveHistorical(context.Background(), rec))
}

func TestServerRejectsHistoryForOtherPath(t *testing.T) {
	srv, docs := newRelay(t)

	body, _ := json.Marshal(historyRecord("c1", testutil.Epoch))
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/history/u1/b1/c9", bytes.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	stored, err := docs.ListHistorical(context.Background(), "u1", "b1")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestServerWithoutHistory(t *testing.T) {
	docs := testutil.NewTestStore(t)
	hub := remote.NewHub(logger.Discard())
	go hub.Run()
	t.Cleanup(hub.Stop)
	srv := httptest.NewServer(remote.NewServer(docs, hub, remote.WithServerLogger(logger.Discard())).Handler())
	t.Cleanup(srv.Close)

	err := newClient(t, srv).SaveHistorical(context.Background(), historyRecord("c1", testutil.Epoch))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "501")
}

func TestArchiveOverRelayRecordsHistory(t *testing.T) {
	ctx := context.Background()
	srv, docs := newRelay(t)
	c := newClient(t, srv)

	engine := sync.New(c, nil,
		sync.WithClock(clock.Fake(testutil.Epoch)),
		sync.WithLogger(logger.Discard()),
		sync.WithUser(model.User{ID: "u1", Email: "u1@example.com", Name: "U1"}),
	)
	t.Cleanup(func() { _ = engine.Close(ctx) })
	s := board.NewStore(engine, board.WithHistory(c), board.WithLogger(logger.Discard()))

	require.NoError(t, s.Load(ctx, sync.Ref{BoardID: "b1"}))
	first := s.Board().Columns[0].ID
	card, err := s.AddCard(model.Card{Title: "Spike"}, first)
	require.NoError(t, err)
	require.NoError(t, s.ArchiveCard(card.ID, first))
	require.NoError(t, s.Close(ctx))

	stored, err := docs.ListHistorical(ctx, "u1", "b1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, card.ID, stored[0].ID)
	assert.Equal(t, "Spike", stored[0].Title)
}
