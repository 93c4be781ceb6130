package docstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyFieldDottedPath(t *testing.T) {
	doc := map[string]any{}
	ApplyField(doc, "reactions.u1", "❤️")
	ApplyField(doc, "reactions.u2", "👍")

	reactions := doc["reactions"].(map[string]any)
	require.Equal(t, "❤️", reactions["u1"])
	require.Equal(t, "👍", reactions["u2"])

	ApplyField(doc, "reactions.u1", FieldDelete())
	require.NotContains(t, reactions, "u1")
	require.Contains(t, reactions, "u2", "delete touches one key only")
}

func TestApplyFieldIncrementCoercesJSONNumbers(t *testing.T) {
	doc := map[string]any{"a": int64(1), "b": 2, "c": float64(3), "d": "junk"}
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		ApplyField(doc, k, Increment(10))
	}
	require.EqualValues(t, 11, doc["a"])
	require.EqualValues(t, 12, doc["b"])
	require.EqualValues(t, 13, doc["c"])
	require.EqualValues(t, 10, doc["d"], "non-numeric treated as zero")
	require.EqualValues(t, 10, doc["e"], "missing treated as zero")
}

func TestApplyFieldArrayUnion(t *testing.T) {
	doc := map[string]any{}
	ApplyField(doc, "deletedFor", ArrayUnion("u1"))
	ApplyField(doc, "deletedFor", ArrayUnion("u1", "u2"))
	require.Equal(t, []any{"u1", "u2"}, doc["deletedFor"])
}

func TestDeepCopyDoesNotAlias(t *testing.T) {
	orig := map[string]any{
		"nested": map[string]any{"k": "v"},
		"arr":    []any{"a"},
	}
	cp := DeepCopy(orig)
	cp["nested"].(map[string]any)["k"] = "mutated"
	cp["arr"].([]any)[0] = "mutated"

	require.Equal(t, "v", orig["nested"].(map[string]any)["k"])
	require.Equal(t, "a", orig["arr"].([]any)[0])
}
