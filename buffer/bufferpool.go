package buffer

import (
	"sync"

	"github.com/brambledb/bramble/storage/disk"
	"github.com/brambledb/bramble/util"
)

// BufferPool caches a bounded set of disk pages in memory. It owns frame
// assignment and pin/dirty bookkeeping only: it never takes a Frame's
// Latch itself, leaving lock coupling to callers (the index package's
// page guards).
type BufferPool struct {
	mu sync.Mutex

	frames    []*Frame
	pageTable map[int64]int // pageID -> frame index
	freeList  []int
	replacer  *LRUKReplacer
	scheduler *disk.Scheduler
	log       util.Logger
}

// NewBufferPool builds a pool of size frames backed by scheduler, evicting
// via replacer when every frame is pinned or in use.
func NewBufferPool(size int, replacer *LRUKReplacer, scheduler *disk.Scheduler, log util.Logger) *BufferPool {
	if log == nil {
		log = util.NopLogger()
	}

	frames := make([]*Frame, size)
	free := make([]int, size)
	for i := range frames {
		frames[i] = newFrame(i)
		free[i] = i
	}

	return &BufferPool{
		frames:    frames,
		pageTable: make(map[int64]int),
		freeList:  free,
		replacer:  replacer,
		scheduler: scheduler,
		log:       log,
	}
}

// NewPage allocates a fresh page id on disk and pins it in a frame,
// returning the frame with its bytes zeroed. Fails if no frame can be
// freed.
func (bp *BufferPool) NewPage() (int64, *Frame, bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	frameIdx, ok := bp.acquireFrame()
	if !ok {
		return disk.InvalidPageID, nil, false
	}

	pageID := bp.scheduler.Manager().AllocatePage()
	frame := bp.installFrame(frameIdx, pageID)
	frame.Data = make([]byte, disk.PageSize)

	return pageID, frame, true
}

// FetchPage returns the frame holding pageID, pinning it, reading it in
// from disk first if it isn't already cached. Fails if the page isn't
// cached and no frame can be freed.
func (bp *BufferPool) FetchPage(pageID int64) (*Frame, bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if idx, ok := bp.pageTable[pageID]; ok {
		frame := bp.frames[idx]
		frame.pinCount++
		bp.replacer.RecordAccess(idx)
		bp.replacer.SetEvictable(idx, false)
		return frame, true
	}

	frameIdx, ok := bp.acquireFrame()
	if !ok {
		return nil, false
	}

	frame := bp.installFrame(frameIdx, pageID)

	resp := <-bp.scheduler.Schedule(disk.NewReadRequest(pageID))
	if !resp.Success {
		bp.log.Error("buffer: failed reading page", "pageId", pageID, "err", resp.Err)
	} else {
		frame.Data = resp.Data
	}

	return frame, true
}

// UnpinPage drops one pin on pageID, marking it dirty if isDirty (an
// unpin only ever turns dirty state on, never off; it is cleared only
// when the page is flushed or its frame is reused). Once the pin count reaches zero the frame becomes evictable.
// Reports false if pageID isn't resident or already has zero pins.
func (bp *BufferPool) UnpinPage(pageID int64, isDirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	idx, ok := bp.pageTable[pageID]
	if !ok {
		return false
	}

	frame := bp.frames[idx]
	if frame.pinCount <= 0 {
		return false
	}

	frame.Dirty = frame.Dirty || isDirty
	frame.pinCount--
	if frame.pinCount == 0 {
		bp.replacer.SetEvictable(idx, true)
	}

	return true
}

// FlushPage writes pageID's bytes to disk regardless of pin count,
// clearing its dirty bit. Reports false if pageID isn't resident.
func (bp *BufferPool) FlushPage(pageID int64) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	idx, ok := bp.pageTable[pageID]
	if !ok {
		return false
	}
	frame := bp.frames[idx]

	resp := <-bp.scheduler.Schedule(disk.NewWriteRequest(pageID, frame.Data))
	if !resp.Success {
		bp.log.Error("buffer: failed flushing page", "pageId", pageID, "err", resp.Err)
		return false
	}

	frame.Dirty = false
	return true
}

// FlushAllPages writes out every resident page.
func (bp *BufferPool) FlushAllPages() {
	bp.mu.Lock()
	ids := make([]int64, 0, len(bp.pageTable))
	for id := range bp.pageTable {
		ids = append(ids, id)
	}
	bp.mu.Unlock()

	for _, id := range ids {
		bp.FlushPage(id)
	}
}

// DeletePage removes a pinned-zero page from the pool and frees its
// backing disk slot. Reports false (and does nothing) if the page is
// still pinned.
func (bp *BufferPool) DeletePage(pageID int64) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	idx, ok := bp.pageTable[pageID]
	if !ok {
		return true
	}

	frame := bp.frames[idx]
	if frame.pinCount > 0 {
		return false
	}

	_ = bp.replacer.Remove(idx)
	delete(bp.pageTable, pageID)
	frame.reset()
	frame.PageID = disk.InvalidPageID
	bp.freeList = append(bp.freeList, idx)

	bp.scheduler.Manager().DeallocatePage(pageID)
	return true
}

// acquireFrame finds a frame to host a new page: a free frame first,
// falling back to evicting the replacer's chosen victim. Must be called
// with mu held.
func (bp *BufferPool) acquireFrame() (int, bool) {
	if n := len(bp.freeList); n > 0 {
		idx := bp.freeList[n-1]
		bp.freeList = bp.freeList[:n-1]
		return idx, true
	}

	victim, ok := bp.replacer.Evict()
	if !ok {
		bp.log.Warn("buffer: pool exhausted, no free or evictable frame")
		return 0, false
	}

	frame := bp.frames[victim]
	if frame.Dirty {
		resp := <-bp.scheduler.Schedule(disk.NewWriteRequest(frame.PageID, frame.Data))
		if !resp.Success {
			bp.log.Error("buffer: failed writing back evicted page", "pageId", frame.PageID, "err", resp.Err)
		}
	}

	delete(bp.pageTable, frame.PageID)
	frame.reset()
	return victim, true
}

// installFrame binds frameIdx to pageID, pinning it and marking it
// non-evictable. Must be called with mu held.
func (bp *BufferPool) installFrame(frameIdx int, pageID int64) *Frame {
	frame := bp.frames[frameIdx]
	frame.PageID = pageID
	frame.pinCount = 1
	bp.pageTable[pageID] = frameIdx

	bp.replacer.RecordAccess(frameIdx)
	bp.replacer.SetEvictable(frameIdx, false)

	return frame
}
