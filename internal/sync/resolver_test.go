package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/kanban-board/internal/document"
	"github.com/nhle/kanban-board/internal/model"
)

func TestResolveOwnedBoard(t *testing.T) {
	r := NewResolver(newFakeDocs())

	path, err := r.Resolve(context.Background(), Ref{BoardID: "b1"}, model.User{ID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "users/u1/boards/b1", path)

	_, err = r.Resolve(context.Background(), Ref{BoardID: "b1"}, model.User{})
	assert.Error(t, err)

	_, err = r.Resolve(context.Background(), Ref{}, model.User{ID: "u1"})
	assert.Error(t, err)
}

func TestResolveSharedBoard(t *testing.T) {
	ctx := context.Background()
	guest := model.User{ID: "g1", Email: "guest@example.com"}
	docs := newFakeDocs()
	pointer := document.SharedPointerPath(guest.Email, "b1")
	docs.docs[pointer] = map[string]any{document.FieldOriginalBoardPath: "/users/owner/boards/b1"}
	r := NewResolver(docs)

	path, err := r.Resolve(ctx, Ref{BoardID: "b1", Shared: true}, guest)
	require.NoError(t, err)
	assert.Equal(t, "users/owner/boards/b1", path)

	// Cached for the session.
	delete(docs.docs, pointer)
	path, err = r.Resolve(ctx, Ref{BoardID: "b1", Shared: true}, guest)
	require.NoError(t, err)
	assert.Equal(t, "users/owner/boards/b1", path)

	r.Forget("b1")
	_, err = r.Resolve(ctx, Ref{BoardID: "b1", Shared: true}, guest)
	assert.True(t, IsResolveError(err))
}

func TestResolveSharedBoardErrors(t *testing.T) {
	ctx := context.Background()
	guest := model.User{ID: "g1", Email: "guest@example.com"}

	tests := []struct {
		name    string
		pointer map[string]any
	}{
		{name: "missing pointer"},
		{name: "empty path", pointer: map[string]any{document.FieldOriginalBoardPath: ""}},
		{name: "wrong type", pointer: map[string]any{document.FieldOriginalBoardPath: 42}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs := newFakeDocs()
			if tt.pointer != nil {
				docs.docs[document.SharedPointerPath(guest.Email, "b1")] = tt.pointer
			}
			_, err := NewResolver(docs).Resolve(ctx, Ref{BoardID: "b1", Shared: true}, guest)

			var resolveErr *ResolveError
			require.ErrorAs(t, err, &resolveErr)
			assert.Equal(t, "b1", resolveErr.BoardID)
		})
	}
}
