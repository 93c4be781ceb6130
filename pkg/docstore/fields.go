package docstore

import (
	"strings"
	"time"
)

// ApplyField writes one possibly-dotted field path into doc, resolving the
// write sentinels. Store implementations that merge documents client-side
// share this logic so sentinel semantics cannot drift between backends.
func ApplyField(doc map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	target := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := target[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			target[p] = next
		}
		target = next
	}
	leaf := parts[len(parts)-1]

	switch {
	case IsServerTimestamp(value):
		target[leaf] = time.Now().UnixMilli()
	case IsFieldDelete(value):
		delete(target, leaf)
	default:
		if vals, ok := AsArrayUnion(value); ok {
			arr, _ := target[leaf].([]any)
			for _, v := range vals {
				if !containsValue(arr, v) {
					arr = append(arr, v)
				}
			}
			target[leaf] = arr
			return
		}
		if delta, ok := AsIncrement(value); ok {
			target[leaf] = asInt64(target[leaf]) + delta
			return
		}
		target[leaf] = value
	}
}

func asInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		// JSON-decoded numbers arrive as float64.
		return int64(t)
	default:
		return 0
	}
}

func containsValue(arr []any, v any) bool {
	for _, a := range arr {
		if a == v {
			return true
		}
	}
	return false
}

// DeepCopy copies a document's field tree so snapshots never alias store
// internals.
func DeepCopy(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case map[string]any:
			out[k] = DeepCopy(t)
		case []any:
			arr := make([]any, len(t))
			copy(arr, t)
			out[k] = arr
		default:
			out[k] = v
		}
	}
	return out
}
