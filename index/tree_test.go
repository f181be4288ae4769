package index

import (
	"fmt"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/brambledb/bramble/buffer"
	"github.com/brambledb/bramble/storage/disk"
)

func newTestBufferPool(t *testing.T, size int) *buffer.BufferPool {
	t.Helper()

	dbFile := path.Join(t.TempDir(), "test.db")
	file, err := os.OpenFile(dbFile, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		panic(fmt.Sprintf("failed creating db file: %v", err))
	}

	m, err := disk.NewManager(file, nil)
	require.NoError(t, err)

	s := disk.NewScheduler(m)
	r := buffer.NewLRUKReplacer(size, 2)
	return buffer.NewBufferPool(size, r, s, nil)
}

func newTestTree(t *testing.T, poolSize, leafMax, internalMax int) *BPlusTree[int, string] {
	t.Helper()
	bp := newTestBufferPool(t, poolSize)
	tree, err := New[int, string]("by_id", bp, OrderedComparator[int](), leafMax, internalMax, nil)
	require.NoError(t, err)
	return tree
}

func collect(t *testing.T, tree *BPlusTree[int, string]) []int {
	t.Helper()
	it, err := tree.Begin()
	require.NoError(t, err)
	defer it.Close()

	var keys []int
	for !it.IsEnd() {
		k, _, err := it.Next()
		require.NoError(t, err)
		keys = append(keys, k)
	}
	return keys
}

func TestBPlusTree(t *testing.T) {
	t.Run("get on empty tree finds nothing", func(t *testing.T) {
		tree := newTestTree(t, 32, 4, 4)
		_, ok, err := tree.GetValue(1, nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("insert then get round-trips", func(t *testing.T) {
		tree := newTestTree(t, 32, 4, 4)
		ok, err := tree.Insert(7, "seven", nil)
		require.NoError(t, err)
		assert.True(t, ok)

		val, found, err := tree.GetValue(7, nil)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "seven", val)
	})

	t.Run("duplicate insert is a no-op", func(t *testing.T) {
		tree := newTestTree(t, 32, 4, 4)
		ok1, err := tree.Insert(3, "first", nil)
		require.NoError(t, err)
		assert.True(t, ok1)

		ok2, err := tree.Insert(3, "second", nil)
		require.NoError(t, err)
		assert.False(t, ok2)

		val, _, err := tree.GetValue(3, nil)
		require.NoError(t, err)
		assert.Equal(t, "first", val)
	})

	t.Run("remove of an absent key is a no-op", func(t *testing.T) {
		tree := newTestTree(t, 32, 4, 4)
		_, err := tree.Insert(1, "one", nil)
		require.NoError(t, err)

		err = tree.Remove(99, nil)
		require.NoError(t, err)

		val, found, err := tree.GetValue(1, nil)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "one", val)
	})

	t.Run("leaf splits keep in-order retrieval across a growing fan-out", func(t *testing.T) {
		tree := newTestTree(t, 64, 4, 3)
		for i := 0; i < 50; i++ {
			ok, err := tree.Insert(i, fmt.Sprintf("v%d", i), nil)
			require.NoError(t, err)
			require.True(t, ok)
		}

		for i := 0; i < 50; i++ {
			val, found, err := tree.GetValue(i, nil)
			require.NoError(t, err)
			require.True(t, found, "key %d missing", i)
			assert.Equal(t, fmt.Sprintf("v%d", i), val)
		}

		keys := collect(t, tree)
		require.Len(t, keys, 50)
		for i, k := range keys {
			assert.Equal(t, i, k)
		}
	})

	t.Run("insert out of order still yields a sorted scan", func(t *testing.T) {
		tree := newTestTree(t, 64, 4, 3)
		order := []int{50, 10, 30, 5, 90, 1, 60, 20, 70, 40, 80, 2, 3, 4, 6}
		for _, k := range order {
			_, err := tree.Insert(k, fmt.Sprintf("v%d", k), nil)
			require.NoError(t, err)
		}

		keys := collect(t, tree)
		for i := 1; i < len(keys); i++ {
			assert.Less(t, keys[i-1], keys[i])
		}
		assert.Len(t, keys, len(order))
	})

	t.Run("remove shrinks the tree back to empty", func(t *testing.T) {
		tree := newTestTree(t, 64, 4, 3)
		n := 30
		for i := 0; i < n; i++ {
			_, err := tree.Insert(i, fmt.Sprintf("v%d", i), nil)
			require.NoError(t, err)
		}

		for i := 0; i < n; i++ {
			err := tree.Remove(i, nil)
			require.NoError(t, err)
		}

		assert.True(t, tree.IsEmpty())
		for i := 0; i < n; i++ {
			_, found, err := tree.GetValue(i, nil)
			require.NoError(t, err)
			assert.False(t, found)
		}
	})

	t.Run("remove in reverse order triggers redistribute and coalesce paths", func(t *testing.T) {
		tree := newTestTree(t, 64, 4, 3)
		n := 40
		for i := 0; i < n; i++ {
			_, err := tree.Insert(i, fmt.Sprintf("v%d", i), nil)
			require.NoError(t, err)
		}

		for i := n - 1; i >= 0; i-- {
			err := tree.Remove(i, nil)
			require.NoError(t, err)

			for j := 0; j < i; j++ {
				_, found, err := tree.GetValue(j, nil)
				require.NoError(t, err)
				require.True(t, found, "key %d should still be present after removing %d", j, i)
			}
		}
		assert.True(t, tree.IsEmpty())
	})

	t.Run("begin-at positions the iterator at the lower bound", func(t *testing.T) {
		tree := newTestTree(t, 64, 4, 3)
		for _, k := range []int{2, 4, 6, 8, 10, 12} {
			_, err := tree.Insert(k, fmt.Sprintf("v%d", k), nil)
			require.NoError(t, err)
		}

		it, err := tree.BeginAt(5)
		require.NoError(t, err)
		defer it.Close()

		k, _, err := it.Next()
		require.NoError(t, err)
		assert.Equal(t, 6, k)
	})

	t.Run("iterator over an empty tree is immediately at end", func(t *testing.T) {
		tree := newTestTree(t, 8, 4, 3)
		it, err := tree.Begin()
		require.NoError(t, err)
		assert.True(t, it.IsEnd())
		_, _, err = it.Next()
		assert.ErrorIs(t, err, ErrIteratorExhausted)
	})

	t.Run("concurrent inserts of disjoint keys all survive", func(t *testing.T) {
		tree := newTestTree(t, 128, 4, 4)

		const workers = 8
		const perWorker = 25
		var g errgroup.Group
		for w := 0; w < workers; w++ {
			w := w
			g.Go(func() error {
				for i := 0; i < perWorker; i++ {
					key := w*perWorker + i
					if _, err := tree.Insert(key, fmt.Sprintf("v%d", key), nil); err != nil {
						return err
					}
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		for i := 0; i < workers*perWorker; i++ {
			_, found, err := tree.GetValue(i, nil)
			require.NoError(t, err)
			assert.True(t, found, "key %d missing after concurrent insert", i)
		}
	})

	t.Run("a tree survives being reopened against the same pool", func(t *testing.T) {
		bp := newTestBufferPool(t, 32)
		tree, err := New[int, string]("reopen", bp, OrderedComparator[int](), 4, 4, nil)
		require.NoError(t, err)

		_, err = tree.Insert(1, "one", nil)
		require.NoError(t, err)
		_, err = tree.Insert(2, "two", nil)
		require.NoError(t, err)

		bp.FlushAllPages()

		reopened, err := New[int, string]("reopen", bp, OrderedComparator[int](), 4, 4, nil)
		require.NoError(t, err)
		assert.Equal(t, tree.GetRootPageID(), reopened.GetRootPageID())

		val, found, err := reopened.GetValue(2, nil)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "two", val)
	})
}
