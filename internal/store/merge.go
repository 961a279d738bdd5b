package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// fieldOp is an instruction embedded in written data instead of a value.
type fieldOp struct {
	Op string `json:"$op"`
}

// DeleteField removes the addressed key when used as a value in Write.
var DeleteField = fieldOp{Op: "delete"}

func isDelete(v any) bool {
	switch t := v.(type) {
	case fieldOp:
		return t.Op == DeleteField.Op
	case map[string]any:
		op, _ := t["$op"].(string)
		return len(t) == 1 && op == DeleteField.Op
	}
	return false
}

// normalize converts arbitrary Go values to the generic JSON shape
// (map[string]any, []any, float64, string, bool, nil).
func normalize(data map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return out, nil
}

// apply combines normalized update data with the current document and
// returns the new document. current is not modified.
func apply(current, update map[string]any, merge bool) map[string]any {
	var doc map[string]any
	if merge && current != nil {
		doc = cloneMap(current)
	} else {
		doc = map[string]any{}
	}

	keys := make([]string, 0, len(update))
	for k := range update {
		keys = append(keys, k)
	}
	// Shorter paths first so "cards" is applied before "cards.c1.title".
	sort.Slice(keys, func(i, j int) bool {
		di, dj := strings.Count(keys[i], "."), strings.Count(keys[j], ".")
		if di != dj {
			return di < dj
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		setPath(doc, strings.Split(k, "."), update[k], merge)
	}
	return doc
}

func setPath(doc map[string]any, path []string, value any, merge bool) {
	parent := doc
	for _, seg := range path[:len(path)-1] {
		child, ok := parent[seg].(map[string]any)
		if !ok {
			if isDelete(value) {
				return
			}
			child = map[string]any{}
			parent[seg] = child
		}
		parent = child
	}

	leaf := path[len(path)-1]
	if isDelete(value) {
		delete(parent, leaf)
		return
	}

	incoming, isMap := value.(map[string]any)
	existing, hadMap := parent[leaf].(map[string]any)
	if merge && isMap && hadMap {
		mergeMaps(existing, incoming)
		return
	}
	parent[leaf] = stripDeletes(value)
}

// mergeMaps deep-merges src into dst. Keys of nested maps are literal
// field names.
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if isDelete(v) {
			delete(dst, k)
			continue
		}
		incoming, isMap := v.(map[string]any)
		existing, hadMap := dst[k].(map[string]any)
		if isMap && hadMap {
			mergeMaps(existing, incoming)
			continue
		}
		dst[k] = stripDeletes(v)
	}
}

// stripDeletes drops delete markers from a value that is being stored
// whole.
func stripDeletes(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	out := make(map[string]any, len(m))
	for k, val := range m {
		if isDelete(val) {
			continue
		}
		out[k] = stripDeletes(val)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
