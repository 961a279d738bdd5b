package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	current := map[string]any{
		"title": "Board",
		"columns": []any{
			map[string]any{"id": "a"},
		},
		"cards": map[string]any{
			"c1": map[string]any{"title": "One", "priority": "normal"},
			"c2": map[string]any{"title": "Two"},
		},
	}

	tests := []struct {
		name   string
		update map[string]any
		merge  bool
		want   map[string]any
	}{
		{
			name:   "replace drops unknown fields",
			update: map[string]any{"title": "New"},
			want:   map[string]any{"title": "New"},
		},
		{
			name:   "merge keeps unknown fields and replaces arrays",
			update: map[string]any{"columns": []any{}},
			merge:  true,
			want: map[string]any{
				"title":   "Board",
				"columns": []any{},
				"cards":   current["cards"],
			},
		},
		{
			name:   "dotted path updates one nested field",
			update: map[string]any{"cards.c1.title": "Renamed"},
			merge:  true,
			want: map[string]any{
				"title":   "Board",
				"columns": current["columns"],
				"cards": map[string]any{
					"c1": map[string]any{"title": "Renamed", "priority": "normal"},
					"c2": map[string]any{"title": "Two"},
				},
			},
		},
		{
			name: "nested maps merge key by key",
			update: map[string]any{
				"cards": map[string]any{"c1": map[string]any{"priority": "high"}},
			},
			merge: true,
			want: map[string]any{
				"title":   "Board",
				"columns": current["columns"],
				"cards": map[string]any{
					"c1": map[string]any{"title": "One", "priority": "high"},
					"c2": map[string]any{"title": "Two"},
				},
			},
		},
		{
			name:   "delete marker removes a field",
			update: map[string]any{"cards.c2": map[string]any{"$op": "delete"}},
			merge:  true,
			want: map[string]any{
				"title":   "Board",
				"columns": current["columns"],
				"cards": map[string]any{
					"c1": map[string]any{"title": "One", "priority": "normal"},
				},
			},
		},
		{
			name:   "deleting under a missing parent is a no-op",
			update: map[string]any{"missing.deep": map[string]any{"$op": "delete"}},
			merge:  true,
			want:   current,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := apply(current, tt.update, tt.merge)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "One", current["cards"].(map[string]any)["c1"].(map[string]any)["title"],
		"current must not be modified")
}

func TestNormalizeEncodesDeleteField(t *testing.T) {
	got, err := normalize(map[string]any{"cards.c1": DeleteField, "n": 3})
	require.NoError(t, err)

	assert.True(t, isDelete(got["cards.c1"]))
	assert.Equal(t, float64(3), got["n"])
	assert.True(t, isDelete(DeleteField))
	assert.False(t, isDelete(map[string]any{"$op": "delete", "other": 1}))
}
