package store

import (
	"context"
	"errors"

	"github.com/nhle/kanban-board/internal/model"
)

// ErrNotFound is returned by Read when no document exists at the path.
var ErrNotFound = errors.New("document not found")

// WriteOptions controls how Write combines data with the stored document.
type WriteOptions struct {
	// Merge deep-merges data into the existing document. Without it the
	// document is replaced.
	Merge bool
}

// Snapshot is the state of one document at a point in time.
type Snapshot struct {
	Path    string
	Data    map[string]any
	Exists  bool
	Version int64
}

// DocumentStore persists JSON documents addressed by slash-separated paths.
//
// Keys of the data passed to Write may be dotted paths ("cards.c1.title")
// addressing nested fields. Nested maps are merged key by key; arrays and
// scalars replace the stored value. The value DeleteField removes a key.
type DocumentStore interface {
	Read(ctx context.Context, path string) (map[string]any, error)
	Write(ctx context.Context, path string, data map[string]any, opts WriteOptions) error

	// Subscribe calls fn with the current snapshot of path and again after
	// every change. Snapshots are delivered in order from a single
	// goroutine per subscription; intermediate snapshots may be skipped
	// when fn falls behind. The returned function cancels the subscription.
	Subscribe(ctx context.Context, path string, fn func(Snapshot)) (unsubscribe func(), err error)
}

// HistoryStore keeps long-term records of cards that left a board.
// Records are keyed by owner, board and card id.
type HistoryStore interface {
	SaveHistorical(ctx context.Context, card model.HistoricalCard) error
	DeleteHistorical(ctx context.Context, ownerID, boardID, cardID string) error
	ListHistorical(ctx context.Context, ownerID, boardID string) ([]model.HistoricalCard, error)
}
