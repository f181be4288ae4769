package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUKReplacer(t *testing.T) {
	t.Run("evict fails on an empty replacer", func(t *testing.T) {
		r := NewLRUKReplacer(7, 2)
		_, ok := r.Evict()
		assert.False(t, ok)
	})

	t.Run("frames with fewer than k accesses are preferred over frames at k", func(t *testing.T) {
		r := NewLRUKReplacer(7, 2)

		// frame 1: two accesses, frame 2: one access.
		r.RecordAccess(1)
		r.RecordAccess(2)
		r.RecordAccess(1)
		r.SetEvictable(1, true)
		r.SetEvictable(2, true)

		victim, ok := r.Evict()
		require.True(t, ok)
		assert.Equal(t, 2, victim)
	})

	t.Run("among infinite-distance frames, earliest access wins", func(t *testing.T) {
		r := NewLRUKReplacer(7, 2)

		r.RecordAccess(1)
		r.RecordAccess(2)
		r.RecordAccess(3)
		r.SetEvictable(1, true)
		r.SetEvictable(2, true)
		r.SetEvictable(3, true)

		victim, ok := r.Evict()
		require.True(t, ok)
		assert.Equal(t, 1, victim)
	})

	t.Run("among k-filled frames, the greatest backward k-distance wins", func(t *testing.T) {
		r := NewLRUKReplacer(7, 2)

		r.RecordAccess(1)
		r.RecordAccess(1)
		r.RecordAccess(2)
		r.RecordAccess(2)
		r.SetEvictable(1, true)
		r.SetEvictable(2, true)

		// frame 1's 2nd-most-recent access is older than frame 2's.
		victim, ok := r.Evict()
		require.True(t, ok)
		assert.Equal(t, 1, victim)
	})

	t.Run("non-evictable frames are never picked", func(t *testing.T) {
		r := NewLRUKReplacer(7, 2)

		r.RecordAccess(1)
		r.RecordAccess(2)
		r.SetEvictable(1, false)
		r.SetEvictable(2, true)

		victim, ok := r.Evict()
		require.True(t, ok)
		assert.Equal(t, 2, victim)
	})

	t.Run("size counts only evictable frames", func(t *testing.T) {
		r := NewLRUKReplacer(7, 2)

		r.RecordAccess(1)
		r.RecordAccess(2)
		r.RecordAccess(3)
		r.SetEvictable(1, true)
		r.SetEvictable(2, true)
		r.SetEvictable(3, false)

		assert.Equal(t, 2, r.Size())

		r.SetEvictable(2, false)
		assert.Equal(t, 1, r.Size())
	})

	t.Run("evict removes the victim from the replacer", func(t *testing.T) {
		r := NewLRUKReplacer(7, 2)

		r.RecordAccess(1)
		r.SetEvictable(1, true)

		victim, ok := r.Evict()
		require.True(t, ok)
		assert.Equal(t, 1, victim)
		assert.Equal(t, 0, r.Size())

		_, ok = r.Evict()
		assert.False(t, ok)
	})

	t.Run("remove on a non-evictable frame is a programmer error", func(t *testing.T) {
		r := NewLRUKReplacer(7, 2)

		r.RecordAccess(1)
		r.SetEvictable(1, false)

		err := r.Remove(1)
		assert.Error(t, err)
	})

	t.Run("remove on an unknown frame is a no-op", func(t *testing.T) {
		r := NewLRUKReplacer(7, 2)
		assert.NoError(t, r.Remove(99))
	})

	t.Run("set evictable on an unknown frame is a no-op", func(t *testing.T) {
		r := NewLRUKReplacer(7, 2)
		r.SetEvictable(99, true)
		assert.Equal(t, 0, r.Size())
	})

	t.Run("re-accessing a frame refreshes its history window", func(t *testing.T) {
		r := NewLRUKReplacer(7, 2)

		r.RecordAccess(1)
		r.RecordAccess(1)
		r.SetEvictable(1, true)

		r.RecordAccess(2)
		r.RecordAccess(2)
		r.SetEvictable(2, true)

		// bump frame 1's k-distance history forward so it's now the
		// most-recently-used of the two.
		r.RecordAccess(1)
		r.RecordAccess(1)

		victim, ok := r.Evict()
		require.True(t, ok)
		assert.Equal(t, 2, victim)
	})
}
