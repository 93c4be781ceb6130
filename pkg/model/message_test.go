package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHiddenFor(t *testing.T) {
	m := Message{ID: "a", DeletedFor: []string{"u1", "u3"}}
	assert.True(t, m.HiddenFor("u1"))
	assert.False(t, m.HiddenFor("u2"))
}

func TestCloneIsDeep(t *testing.T) {
	orig := Message{
		ID:         "a",
		Reactions:  map[string]string{"u1": "❤️"},
		DeletedFor: []string{"u2"},
		ReplyTo:    &ReplyRef{ID: "b", Text: "quoted"},
	}

	cp := orig.Clone()
	cp.Reactions["u2"] = "👍"
	cp.DeletedFor[0] = "zzz"
	cp.ReplyTo.Text = "mutated"

	require.Len(t, orig.Reactions, 1)
	require.Equal(t, "u2", orig.DeletedFor[0])
	require.Equal(t, "quoted", orig.ReplyTo.Text)
}
