package buffer

import (
	"fmt"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brambledb/bramble/storage/disk"
)

func newTestPool(t *testing.T, size int) *BufferPool {
	t.Helper()

	dbFile := path.Join(t.TempDir(), "test.db")
	file, err := os.OpenFile(dbFile, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		panic(fmt.Sprintf("failed creating db file: %v", err))
	}

	m, err := disk.NewManager(file, nil)
	require.NoError(t, err)

	s := disk.NewScheduler(m)
	r := NewLRUKReplacer(size, 2)
	return NewBufferPool(size, r, s, nil)
}

func TestBufferPool(t *testing.T) {
	t.Run("new page is pinned and zeroed", func(t *testing.T) {
		bp := newTestPool(t, 3)

		pageID, frame, ok := bp.NewPage()
		require.True(t, ok)
		assert.Equal(t, pageID, frame.PageID)
		assert.Equal(t, 1, frame.PinCount())
		assert.Equal(t, make([]byte, disk.PageSize), frame.Data)
	})

	t.Run("fetching a resident page increments the pin count without I/O", func(t *testing.T) {
		bp := newTestPool(t, 3)

		pageID, frame, ok := bp.NewPage()
		require.True(t, ok)
		copy(frame.Data, []byte("hello"))

		fetched, ok := bp.FetchPage(pageID)
		require.True(t, ok)
		assert.Same(t, frame, fetched)
		assert.Equal(t, 2, fetched.PinCount())
	})

	t.Run("unpinning the last pin makes the frame evictable", func(t *testing.T) {
		bp := newTestPool(t, 1)

		pageID, _, ok := bp.NewPage()
		require.True(t, ok)

		assert.True(t, bp.UnpinPage(pageID, false))
		assert.Equal(t, 1, bp.replacer.Size())
	})

	t.Run("unpinning an already-unpinned page fails", func(t *testing.T) {
		bp := newTestPool(t, 1)

		pageID, _, ok := bp.NewPage()
		require.True(t, ok)

		require.True(t, bp.UnpinPage(pageID, false))
		assert.False(t, bp.UnpinPage(pageID, false))
	})

	t.Run("pool of size 3 evicts the correct victim once exhausted", func(t *testing.T) {
		bp := newTestPool(t, 3)

		p0, _, _ := bp.NewPage()
		p1, _, _ := bp.NewPage()
		p2, _, _ := bp.NewPage()

		// unpin all three, then re-pin p0 and p2 below.
		require.True(t, bp.UnpinPage(p0, false))
		require.True(t, bp.UnpinPage(p1, false))
		require.True(t, bp.UnpinPage(p2, false))

		bp.FetchPage(p0)
		bp.FetchPage(p2)
		// p1 is now the only evictable frame.

		p3, frame, ok := bp.NewPage()
		require.True(t, ok)
		assert.NotEqual(t, p1, p3)
		assert.Equal(t, p3, frame.PageID)

		_, stillThere := bp.pageTable[p1]
		assert.False(t, stillThere)
	})

	t.Run("new page fails when every frame is pinned", func(t *testing.T) {
		bp := newTestPool(t, 2)

		bp.NewPage()
		bp.NewPage()

		_, _, ok := bp.NewPage()
		assert.False(t, ok)
	})

	t.Run("dirty flush writes through and clears the dirty bit", func(t *testing.T) {
		bp := newTestPool(t, 3)

		pageID, frame, ok := bp.NewPage()
		require.True(t, ok)
		copy(frame.Data, []byte("payload"))

		require.True(t, bp.UnpinPage(pageID, true))
		assert.True(t, frame.Dirty)

		require.True(t, bp.FlushPage(pageID))
		assert.False(t, frame.Dirty)

		resp := <-bp.scheduler.Schedule(disk.NewReadRequest(pageID))
		require.True(t, resp.Success)
		assert.Equal(t, frame.Data, resp.Data)
	})

	t.Run("dirty bit is a monotone OR across unpins", func(t *testing.T) {
		bp := newTestPool(t, 3)

		pageID, _, ok := bp.NewPage()
		require.True(t, ok)

		frame, _ := bp.FetchPage(pageID)
		require.True(t, bp.UnpinPage(pageID, true))
		require.True(t, bp.UnpinPage(pageID, false))

		assert.True(t, frame.Dirty)
	})

	t.Run("delete page fails while pinned", func(t *testing.T) {
		bp := newTestPool(t, 3)

		pageID, _, ok := bp.NewPage()
		require.True(t, ok)

		assert.False(t, bp.DeletePage(pageID))
	})

	t.Run("delete page frees the frame and the disk slot", func(t *testing.T) {
		bp := newTestPool(t, 3)

		pageID, _, ok := bp.NewPage()
		require.True(t, ok)
		require.True(t, bp.UnpinPage(pageID, false))

		assert.True(t, bp.DeletePage(pageID))
		_, stillThere := bp.pageTable[pageID]
		assert.False(t, stillThere)

		_, _, ok = bp.NewPage()
		assert.True(t, ok)
	})

	t.Run("delete on an absent page id is a no-op success", func(t *testing.T) {
		bp := newTestPool(t, 3)
		assert.True(t, bp.DeletePage(999))
	})

	t.Run("flush all pages writes back every resident page", func(t *testing.T) {
		bp := newTestPool(t, 3)

		p0, f0, _ := bp.NewPage()
		p1, f1, _ := bp.NewPage()
		copy(f0.Data, []byte("a"))
		copy(f1.Data, []byte("b"))
		bp.UnpinPage(p0, true)
		bp.UnpinPage(p1, true)

		bp.FlushAllPages()
		assert.False(t, f0.Dirty)
		assert.False(t, f1.Dirty)
	})
}
