package buffer

import (
	"sync"

	"github.com/brambledb/bramble/storage/disk"
)

// Frame is an in-memory slot holding one page's bytes plus the metadata
// the buffer pool and the tree's latch-crabbing protocol need. PinCount
// and Dirty are mutated only by BufferPool methods, under the pool's
// mutex; Latch belongs exclusively to callers doing lock coupling — the
// pool never acquires it.
type Frame struct {
	ID       int
	PageID   int64
	Data     []byte
	Dirty    bool
	pinCount int

	Latch sync.RWMutex
}

func newFrame(id int) *Frame {
	return &Frame{
		ID:     id,
		PageID: disk.InvalidPageID,
		Data:   make([]byte, disk.PageSize),
	}
}

// PinCount reports the frame's current pin count. Exposed for tests and
// for callers that want to assert no pins are leaked.
func (f *Frame) PinCount() int {
	return f.pinCount
}

func (f *Frame) reset() {
	f.Dirty = false
	f.pinCount = 0
	f.Data = make([]byte, disk.PageSize)
}
