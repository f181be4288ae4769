package index

import "github.com/brambledb/bramble/buffer"

// ReadGuard couples a pinned frame with its latch held shared. Drop
// releases the latch and unpins the page; it is safe to call more than
// once.
type ReadGuard struct {
	bp      *buffer.BufferPool
	frame   *buffer.Frame
	dropped bool
}

func acquireRead(bp *buffer.BufferPool, pageID int64) (*ReadGuard, bool) {
	frame, ok := bp.FetchPage(pageID)
	if !ok {
		return nil, false
	}
	frame.Latch.RLock()
	return &ReadGuard{bp: bp, frame: frame}, true
}

func (g *ReadGuard) Data() []byte   { return g.frame.Data }
func (g *ReadGuard) PageID() int64  { return g.frame.PageID }

func (g *ReadGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.frame.Latch.RUnlock()
	g.bp.UnpinPage(g.frame.PageID, false)
}

// WriteGuard couples a pinned frame with its latch held exclusive.
// MarkDirty records that Drop should unpin the page as dirty.
type WriteGuard struct {
	bp      *buffer.BufferPool
	frame   *buffer.Frame
	latched bool
	dirty   bool
	dropped bool
}

func acquireWrite(bp *buffer.BufferPool, pageID int64) (*WriteGuard, bool) {
	frame, ok := bp.FetchPage(pageID)
	if !ok {
		return nil, false
	}
	frame.Latch.Lock()
	return &WriteGuard{bp: bp, frame: frame, latched: true}, true
}

// acquireWriteNew allocates a fresh page. Its latch is left unacquired:
// nothing else can reach an unlinked page's id yet, so there is no one
// to crab against.
func acquireWriteNew(bp *buffer.BufferPool) (int64, *WriteGuard, bool) {
	pageID, frame, ok := bp.NewPage()
	if !ok {
		return 0, nil, false
	}
	return pageID, &WriteGuard{bp: bp, frame: frame}, true
}

func (g *WriteGuard) Data() []byte  { return g.frame.Data }
func (g *WriteGuard) PageID() int64 { return g.frame.PageID }
func (g *WriteGuard) MarkDirty()    { g.dirty = true }

func (g *WriteGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	if g.latched {
		g.frame.Latch.Unlock()
	}
	g.bp.UnpinPage(g.frame.PageID, g.dirty)
}
