package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	gosync "sync"

	"github.com/nhle/kanban-board/internal/document"
	"github.com/nhle/kanban-board/internal/model"
	"github.com/nhle/kanban-board/internal/store"
)

// Ref identifies a board from the current user's point of view.
type Ref struct {
	BoardID string

	// Shared is set when the board is owned by someone else and reached
	// through a shared-board pointer.
	Shared bool
}

// ResolveError is returned when a shared board's pointer document is
// missing or does not name an owning document.
type ResolveError struct {
	BoardID string
	Pointer string
	Message string
	Err     error
}

func (e *ResolveError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolving shared board %s via %s: %s: %v", e.BoardID, e.Pointer, e.Message, e.Err)
	}
	return fmt.Sprintf("resolving shared board %s via %s: %s", e.BoardID, e.Pointer, e.Message)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// IsResolveError reports whether err (or any error in its chain) is a
// ResolveError.
func IsResolveError(err error) bool {
	var resolveErr *ResolveError
	return errors.As(err, &resolveErr)
}

// Resolver maps board references to document paths. Shared boards need
// one pointer lookup, which is cached per board id for the life of the
// resolver.
type Resolver struct {
	docs store.DocumentStore

	mu    gosync.Mutex
	cache map[string]string
}

// NewResolver creates a resolver reading pointers from docs.
func NewResolver(docs store.DocumentStore) *Resolver {
	return &Resolver{docs: docs, cache: make(map[string]string)}
}

// Resolve returns the path of the document holding ref's board.
func (r *Resolver) Resolve(ctx context.Context, ref Ref, user model.User) (string, error) {
	if ref.BoardID == "" {
		return "", errors.New("resolving board: empty board id")
	}
	if !ref.Shared {
		if user.ID == "" {
			return "", fmt.Errorf("resolving board %s: no current user id", ref.BoardID)
		}
		return document.BoardPath(user.ID, ref.BoardID), nil
	}

	r.mu.Lock()
	path, ok := r.cache[ref.BoardID]
	r.mu.Unlock()
	if ok {
		return path, nil
	}

	pointer := document.SharedPointerPath(user.Email, ref.BoardID)
	data, err := r.docs.Read(ctx, pointer)
	if errors.Is(err, store.ErrNotFound) {
		return "", &ResolveError{BoardID: ref.BoardID, Pointer: pointer, Message: "pointer document not found"}
	}
	if err != nil {
		return "", &ResolveError{BoardID: ref.BoardID, Pointer: pointer, Message: "reading pointer", Err: err}
	}

	path, _ = data[document.FieldOriginalBoardPath].(string)
	path = strings.Trim(path, "/")
	if path == "" {
		return "", &ResolveError{BoardID: ref.BoardID, Pointer: pointer, Message: "pointer has no original board path"}
	}

	r.mu.Lock()
	r.cache[ref.BoardID] = path
	r.mu.Unlock()
	return path, nil
}

// Forget drops the cached path for boardID, forcing the next Resolve to
// read the pointer again.
func (r *Resolver) Forget(boardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, boardID)
}
