package tempid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextIsUnique(t *testing.T) {
	g, err := NewGenerator(1)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 5000; i++ {
		id := g.Next()
		require.True(t, IsTemp(id))
		_, dup := seen[id]
		require.False(t, dup, "id %s issued twice", id)
		seen[id] = struct{}{}
	}
}

func TestGeneratorsOnDifferentDevicesNeverCollide(t *testing.T) {
	g1, err := NewGenerator(1)
	require.NoError(t, err)
	g2, err := NewGenerator(2)
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 2000; i++ {
		for _, id := range []string{g1.Next(), g2.Next()} {
			_, dup := seen[id]
			require.False(t, dup)
			seen[id] = struct{}{}
		}
	}
}

func TestDeviceBounds(t *testing.T) {
	_, err := NewGenerator(-1)
	require.Error(t, err)
	_, err = NewGenerator(64)
	require.Error(t, err)
	_, err = NewGenerator(63)
	require.NoError(t, err)
}

func TestIsTemp(t *testing.T) {
	require.True(t, IsTemp("tmp-abc123"))
	require.False(t, IsTemp("abc123"))
	require.False(t, IsTemp(""))
}
