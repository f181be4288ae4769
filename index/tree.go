package index

import (
	"fmt"
	"slices"
	"sync"

	"github.com/brambledb/bramble/buffer"
	"github.com/brambledb/bramble/storage/disk"
	"github.com/brambledb/bramble/util"
)

type operation int

const (
	opSearch operation = iota
	opInsert
	opDelete
)

// guard is whatever acquireRead/acquireWrite hand back: a pinned frame
// with its latch held, released by Drop.
type guard interface {
	Data() []byte
	Drop()
}

// BPlusTree is a concurrent B+-tree index over pages fetched through a
// buffer.BufferPool. Structural changes (split, merge, redistribute,
// root swap) use top-down latch crabbing: a write latches a node,
// proves it safe for the operation, and only then releases every
// ancestor latch still queued on the transaction.
type BPlusTree[K any, V any] struct {
	rootMu sync.RWMutex // guards rootPageID exactly as spec's root-id latch

	name            string
	bp              *buffer.BufferPool
	cmp             Comparator[K]
	rootPageID      int64
	leafMaxSize     int32
	internalMaxSize int32
	header          *headerPage
	log             util.Logger
}

// New opens (or creates, if absent) the named index's root-id record in
// the header page and returns a tree bound to it. A nil log discards
// everything, matching disk.NewManager/buffer.NewBufferPool.
func New[K any, V any](name string, bp *buffer.BufferPool, cmp Comparator[K], leafMaxSize, internalMaxSize int, log util.Logger) (*BPlusTree[K, V], error) {
	if log == nil {
		log = util.NopLogger()
	}

	header, err := loadHeaderPage(bp)
	if err != nil {
		return nil, err
	}

	rootID, ok := header.Roots[name]
	if !ok {
		rootID = disk.InvalidPageID
	}

	return &BPlusTree[K, V]{
		name:            name,
		bp:              bp,
		cmp:             cmp,
		rootPageID:      rootID,
		leafMaxSize:     int32(leafMaxSize),
		internalMaxSize: int32(internalMaxSize),
		header:          header,
		log:             log,
	}, nil
}

// structuralFailure wraps err as a FatalStructuralError and logs it. By
// the time these call sites fail, earlier pages from the same split or
// merge have already been persisted, so the tree may be left with a
// promoted separator or a reparented child that never got linked in;
// per spec, recovering that partial state is out of scope here.
func (t *BPlusTree[K, V]) structuralFailure(op string, err error) error {
	t.log.Error("index: fatal structural abort", "op", op, "err", err)
	return util.NewFatalStructuralError(op, err)
}

func (t *BPlusTree[K, V]) IsEmpty() bool {
	t.rootMu.RLock()
	defer t.rootMu.RUnlock()
	return t.rootPageID == disk.InvalidPageID
}

func (t *BPlusTree[K, V]) GetRootPageID() int64 {
	t.rootMu.RLock()
	defer t.rootMu.RUnlock()
	return t.rootPageID
}

func (t *BPlusTree[K, V]) acquireNodeGuard(pageID int64, op operation) (guard, bool) {
	if op == opSearch {
		g, ok := acquireRead(t.bp, pageID)
		if !ok {
			return nil, false
		}
		return g, true
	}
	g, ok := acquireWrite(t.bp, pageID)
	if !ok {
		return nil, false
	}
	return g, true
}

func nodeIsSafe(h nodeHeader, op operation) bool {
	if op == opInsert {
		if h.isLeaf() {
			return h.Size < h.MaxSize-1
		}
		return h.Size < h.MaxSize
	}
	return int(h.Size) > h.minSize()
}

/*****************************************************************************
 * SEARCH / DESCENT
 *****************************************************************************/

// findLeaf descends from root to the leaf that would hold key (or, with
// leftMost/rightMost, the tree's first or last leaf), latch-coupling
// down. For opSearch, each ancestor's shared latch is dropped as soon as
// the child is latched. For opInsert/opDelete, ancestor write latches are
// queued on txn and released in bulk the first time a node is proven
// safe for the operation.
func (t *BPlusTree[K, V]) findLeaf(key K, op operation, txn *Transaction, leftMost, rightMost bool) (guard, *leafNode[K, V], error) {
	g, ok := t.acquireNodeGuard(t.rootPageID, op)
	if !ok {
		return nil, nil, util.NewBufferPoolExhaustedError()
	}
	if op == opSearch {
		t.rootMu.RUnlock()
	}

	for {
		if peekPageType(g.Data()) == leafPageType {
			leaf, err := decodeNode[leafNode[K, V]](g.Data())
			if err != nil {
				g.Drop()
				return nil, nil, err
			}
			if op != opSearch && nodeIsSafe(leaf.nodeHeader, op) {
				txn.releaseAll()
			}
			return g, &leaf, nil
		}

		internal, err := decodeNode[internalNode[K]](g.Data())
		if err != nil {
			g.Drop()
			return nil, nil, err
		}
		if op != opSearch && nodeIsSafe(internal.nodeHeader, op) {
			txn.releaseAll()
		}

		var childID int64
		switch {
		case leftMost:
			childID = internal.childAt(0)
		case rightMost:
			childID = internal.childAt(len(internal.Children) - 1)
		default:
			childID = internal.lookup(t.cmp, key)
		}

		childGuard, ok := t.acquireNodeGuard(childID, op)
		if !ok {
			g.Drop()
			return nil, nil, util.NewBufferPoolExhaustedError()
		}

		if op == opSearch {
			g.Drop()
		} else {
			parent := g
			txn.pushRelease(func() { parent.Drop() })
		}

		g = childGuard
	}
}

func (t *BPlusTree[K, V]) GetValue(key K, txn *Transaction) (V, bool, error) {
	var zero V
	if txn == nil {
		txn = NewTransaction()
	}

	t.rootMu.RLock()
	if t.rootPageID == disk.InvalidPageID {
		t.rootMu.RUnlock()
		return zero, false, nil
	}

	g, leaf, err := t.findLeaf(key, opSearch, txn, false, false)
	if err != nil {
		return zero, false, err
	}
	defer g.Drop()

	val, ok := leaf.lookup(t.cmp, key)
	return val, ok, nil
}

/*****************************************************************************
 * PERSISTENCE HELPERS
 *****************************************************************************/

func (t *BPlusTree[K, V]) persistLeaf(g *WriteGuard, n *leafNode[K, V]) error {
	data, err := encodeNode(*n, leafPageType)
	if err != nil {
		return err
	}
	copy(g.Data(), data)
	g.MarkDirty()
	return nil
}

func (t *BPlusTree[K, V]) persistInternal(g *WriteGuard, n *internalNode[K]) error {
	data, err := encodeNode(*n, internalPageType)
	if err != nil {
		return err
	}
	copy(g.Data(), data)
	g.MarkDirty()
	return nil
}

func (t *BPlusTree[K, V]) persistInternalFrame(frame *buffer.Frame, n *internalNode[K]) error {
	data, err := encodeNode(*n, internalPageType)
	if err != nil {
		return err
	}
	copy(frame.Data, data)
	return nil
}

// setChildParent rewrites a child page's ParentPageID in place, without
// taking the child's latch: the caller already holds exclusive rights
// over the subtree by virtue of top-down crabbing, and the child may
// even be a node the caller's own ancestor chain is currently
// write-latching (re-latching here would deadlock).
func (t *BPlusTree[K, V]) setChildParent(childPageID, parentPageID int64) error {
	frame, ok := t.bp.FetchPage(childPageID)
	if !ok {
		return util.NewBufferPoolExhaustedError()
	}
	defer t.bp.UnpinPage(childPageID, true)

	switch peekPageType(frame.Data) {
	case leafPageType:
		child, err := decodeNode[leafNode[K, V]](frame.Data)
		if err != nil {
			return err
		}
		child.ParentPageID = parentPageID
		data, err := encodeNode(child, leafPageType)
		if err != nil {
			return err
		}
		copy(frame.Data, data)
	case internalPageType:
		child, err := decodeNode[internalNode[K]](frame.Data)
		if err != nil {
			return err
		}
		child.ParentPageID = parentPageID
		data, err := encodeNode(child, internalPageType)
		if err != nil {
			return err
		}
		copy(frame.Data, data)
	default:
		return fmt.Errorf("index: unknown page type reparenting %d", childPageID)
	}
	return nil
}

/*****************************************************************************
 * INSERT
 *****************************************************************************/

func (t *BPlusTree[K, V]) Insert(key K, value V, txn *Transaction) (bool, error) {
	if txn == nil {
		txn = NewTransaction()
	}

	t.rootMu.Lock()
	txn.pushRelease(func() { t.rootMu.Unlock() })

	if t.rootPageID == disk.InvalidPageID {
		ok, err := t.startNewTree(key, value)
		txn.releaseAll()
		return ok, err
	}

	g, leaf, err := t.findLeaf(key, opInsert, txn, false, false)
	if err != nil {
		txn.releaseAll()
		return false, err
	}
	wg := g.(*WriteGuard)

	before := len(leaf.Keys)
	after := leaf.insert(t.cmp, key, value)
	if after == before {
		txn.releaseAll()
		wg.Drop()
		return false, nil
	}

	if after < int(t.leafMaxSize) {
		if err := t.persistLeaf(wg, leaf); err != nil {
			txn.releaseAll()
			wg.Drop()
			return false, err
		}
		txn.releaseAll()
		wg.Drop()
		return true, nil
	}

	// overflow: split the leaf and promote the separator.
	siblingID, siblingGuard, ok := acquireWriteNew(t.bp)
	if !ok {
		txn.releaseAll()
		wg.Drop()
		return false, util.NewBufferPoolExhaustedError()
	}
	sibling := newLeafNode[K, V](siblingID, leaf.ParentPageID, t.leafMaxSize)
	leaf.moveHalfTo(sibling)
	sibling.NextPageID = leaf.NextPageID
	leaf.NextPageID = siblingID

	if err := t.persistLeaf(wg, leaf); err != nil {
		txn.releaseAll()
		wg.Drop()
		siblingGuard.Drop()
		return false, err
	}
	if err := t.persistLeaf(siblingGuard, sibling); err != nil {
		txn.releaseAll()
		wg.Drop()
		siblingGuard.Drop()
		return false, err
	}

	sepKey := sibling.Keys[0]
	if err := t.insertIntoParent(leaf.PageID, leaf.ParentPageID, siblingID, sepKey, txn); err != nil {
		txn.releaseAll()
		wg.Drop()
		siblingGuard.Drop()
		return false, t.structuralFailure("insert: link split leaf into parent", err)
	}

	txn.releaseAll()
	wg.Drop()
	siblingGuard.Drop()
	return true, nil
}

func (t *BPlusTree[K, V]) startNewTree(key K, value V) (bool, error) {
	pageID, wg, ok := acquireWriteNew(t.bp)
	if !ok {
		return false, util.NewBufferPoolExhaustedError()
	}
	leaf := newLeafNode[K, V](pageID, disk.InvalidPageID, t.leafMaxSize)
	leaf.insert(t.cmp, key, value)
	if err := t.persistLeaf(wg, leaf); err != nil {
		wg.Drop()
		return false, err
	}
	wg.Drop()

	t.rootPageID = pageID
	if err := t.header.insertRecord(t.bp, t.name, pageID); err != nil {
		return false, err
	}
	return true, nil
}

// insertIntoParent wires newPageID into oldPageID's parent, splitting the
// parent (recursively, up to the root) if it overflows. Reparenting of
// any page moved by a parent split happens via setChildParent as part of
// the move, so oldPageID/newPageID's own ParentPageID is always correct
// on disk by the time this returns — callers don't need to patch it.
func (t *BPlusTree[K, V]) insertIntoParent(oldPageID, oldParentID, newPageID int64, sepKey K, txn *Transaction) error {
	if oldParentID == disk.InvalidPageID {
		newRootID, rootGuard, ok := acquireWriteNew(t.bp)
		if !ok {
			return util.NewBufferPoolExhaustedError()
		}
		root := newInternalNode[K](newRootID, disk.InvalidPageID, t.internalMaxSize)
		var sentinel K
		root.Keys = []K{sentinel, sepKey}
		root.Children = []int64{oldPageID, newPageID}
		root.Size = 2

		if err := t.persistInternal(rootGuard, root); err != nil {
			rootGuard.Drop()
			return err
		}
		rootGuard.Drop()

		t.rootPageID = newRootID
		if err := t.header.updateRecord(t.bp, t.name, newRootID); err != nil {
			return err
		}

		if err := t.setChildParent(oldPageID, newRootID); err != nil {
			return err
		}
		return t.setChildParent(newPageID, newRootID)
	}

	// The parent's write latch is still queued on txn (the child below it
	// was unsafe), so fetch it raw rather than latching it a second time.
	parentFrame, ok := t.bp.FetchPage(oldParentID)
	if !ok {
		return util.NewBufferPoolExhaustedError()
	}
	defer t.bp.UnpinPage(oldParentID, true)

	parent, err := decodeNode[internalNode[K]](parentFrame.Data)
	if err != nil {
		return err
	}

	if len(parent.Keys) < int(t.internalMaxSize) {
		parent.insert(t.cmp, sepKey, newPageID)
		return t.persistInternalFrame(parentFrame, &parent)
	}

	// parent overflow: insert into an oversized in-memory copy, then split.
	parent.insert(t.cmp, sepKey, newPageID)

	siblingID, siblingGuard, ok := acquireWriteNew(t.bp)
	if !ok {
		return util.NewBufferPoolExhaustedError()
	}
	defer siblingGuard.Drop()

	sibling := newInternalNode[K](siblingID, parent.ParentPageID, t.internalMaxSize)
	if err := t.moveHalfToInternal(&parent, sibling); err != nil {
		return err
	}

	if err := t.persistInternalFrame(parentFrame, &parent); err != nil {
		return err
	}
	if err := t.persistInternal(siblingGuard, sibling); err != nil {
		return err
	}

	grandSepKey := sibling.Keys[0]
	return t.insertIntoParent(parent.PageID, parent.ParentPageID, siblingID, grandSepKey, txn)
}

func (t *BPlusTree[K, V]) moveHalfToInternal(n, sibling *internalNode[K]) error {
	mid := n.minSize()
	sibling.Keys = append(sibling.Keys, n.Keys[mid:]...)
	sibling.Children = append(sibling.Children, n.Children[mid:]...)
	sibling.Size = int32(len(sibling.Keys))

	movedChildren := append([]int64(nil), n.Children[mid:]...)
	n.Keys = n.Keys[:mid]
	n.Children = n.Children[:mid]
	n.Size = int32(mid)

	for _, childID := range movedChildren {
		if err := t.setChildParent(childID, sibling.PageID); err != nil {
			return err
		}
	}
	return nil
}

/*****************************************************************************
 * REMOVE
 *****************************************************************************/

func (t *BPlusTree[K, V]) Remove(key K, txn *Transaction) error {
	if txn == nil {
		txn = NewTransaction()
	}

	t.rootMu.Lock()
	txn.pushRelease(func() { t.rootMu.Unlock() })

	if t.rootPageID == disk.InvalidPageID {
		txn.releaseAll()
		return nil
	}

	g, leaf, err := t.findLeaf(key, opDelete, txn, false, false)
	if err != nil {
		txn.releaseAll()
		return err
	}
	wg := g.(*WriteGuard)

	before := len(leaf.Keys)
	after := leaf.remove(t.cmp, key)
	if after == before {
		txn.releaseAll()
		wg.Drop()
		return nil
	}

	if err := t.persistLeaf(wg, leaf); err != nil {
		txn.releaseAll()
		wg.Drop()
		return err
	}

	shouldDelete, err := t.handleLeafUnderflow(leaf, txn)
	wg.Drop()
	if err != nil {
		txn.releaseAll()
		return t.structuralFailure("remove: resolve leaf underflow", err)
	}
	if shouldDelete {
		txn.markDeleted(leaf.PageID)
	}

	for _, id := range txn.deletedPages() {
		t.bp.DeletePage(id)
	}
	return nil
}

func (t *BPlusTree[K, V]) adjustRootLeaf(leaf *leafNode[K, V]) (bool, error) {
	if len(leaf.Keys) == 0 {
		t.rootPageID = disk.InvalidPageID
		return true, nil
	}
	return false, nil
}

func (t *BPlusTree[K, V]) adjustRootInternal(n *internalNode[K]) (bool, error) {
	if len(n.Children) == 1 {
		onlyChild := n.Children[0]
		if err := t.setChildParent(onlyChild, disk.InvalidPageID); err != nil {
			return false, err
		}
		t.rootPageID = onlyChild
		if err := t.header.updateRecord(t.bp, t.name, onlyChild); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// handleLeafUnderflow is called after a leaf's entry count drops, having
// already been persisted. It returns whether leaf's own page should be
// deleted by the caller.
func (t *BPlusTree[K, V]) handleLeafUnderflow(leaf *leafNode[K, V], txn *Transaction) (bool, error) {
	if leaf.isRoot() {
		shouldDelete, err := t.adjustRootLeaf(leaf)
		txn.releaseAll()
		return shouldDelete, err
	}
	if int(leaf.Size) >= leaf.minSize() {
		txn.releaseAll()
		return false, nil
	}

	parentFrame, ok := t.bp.FetchPage(leaf.ParentPageID)
	if !ok {
		return false, util.NewBufferPoolExhaustedError()
	}
	parent, err := decodeNode[internalNode[K]](parentFrame.Data)
	if err != nil {
		t.bp.UnpinPage(leaf.ParentPageID, false)
		return false, err
	}

	idx := parent.valueIndex(leaf.PageID)

	if idx > 0 {
		siblingID := parent.childAt(idx - 1)
		siblingFrame, ok := t.bp.FetchPage(siblingID)
		if !ok {
			t.bp.UnpinPage(leaf.ParentPageID, false)
			return false, util.NewBufferPoolExhaustedError()
		}
		siblingFrame.Latch.Lock()
		sibling, err := decodeNode[leafNode[K, V]](siblingFrame.Data)
		if err != nil {
			siblingFrame.Latch.Unlock()
			t.bp.UnpinPage(siblingID, false)
			t.bp.UnpinPage(leaf.ParentPageID, false)
			return false, err
		}

		if int(sibling.Size) > sibling.minSize() {
			sibling.moveLastToFrontOf(leaf)
			parent.setKeyAt(idx, leaf.Keys[0])

			copy(siblingFrame.Data, mustEncode(sibling, leafPageType))
			if err := t.persistInternalFrame(parentFrame, &parent); err != nil {
				siblingFrame.Latch.Unlock()
				t.bp.UnpinPage(siblingID, true)
				t.bp.UnpinPage(leaf.ParentPageID, true)
				return false, err
			}

			txn.releaseAll()
			siblingFrame.Latch.Unlock()
			t.bp.UnpinPage(siblingID, true)
			t.bp.UnpinPage(leaf.ParentPageID, true)
			return false, t.rewriteLeaf(leaf)
		}

		leaf.moveAllTo(&sibling)
		parent.removeAt(idx)
		copy(siblingFrame.Data, mustEncode(sibling, leafPageType))
		siblingFrame.Latch.Unlock()
		t.bp.UnpinPage(siblingID, true)

		shouldDeleteParent, err := t.handleInternalUnderflow(parentFrame, &parent, txn)
		t.bp.UnpinPage(leaf.ParentPageID, true)
		if err != nil {
			return false, err
		}
		if shouldDeleteParent {
			txn.markDeleted(parent.PageID)
		}
		return true, nil
	}

	if idx == len(parent.Children)-1 {
		// no left and no right sibling: parent has a single child, which
		// cannot happen for a non-root internal node under I2/I3, but
		// guard it defensively rather than index out of range.
		txn.releaseAll()
		t.bp.UnpinPage(leaf.ParentPageID, false)
		return false, nil
	}

	siblingID := parent.childAt(idx + 1)
	siblingFrame, ok := t.bp.FetchPage(siblingID)
	if !ok {
		t.bp.UnpinPage(leaf.ParentPageID, false)
		return false, util.NewBufferPoolExhaustedError()
	}
	siblingFrame.Latch.Lock()
	sibling, err := decodeNode[leafNode[K, V]](siblingFrame.Data)
	if err != nil {
		siblingFrame.Latch.Unlock()
		t.bp.UnpinPage(siblingID, false)
		t.bp.UnpinPage(leaf.ParentPageID, false)
		return false, err
	}

	if int(sibling.Size) > sibling.minSize() {
		sibling.moveFirstToEndOf(leaf)
		parent.setKeyAt(idx+1, sibling.Keys[0])

		copy(siblingFrame.Data, mustEncode(sibling, leafPageType))
		if err := t.persistInternalFrame(parentFrame, &parent); err != nil {
			siblingFrame.Latch.Unlock()
			t.bp.UnpinPage(siblingID, true)
			t.bp.UnpinPage(leaf.ParentPageID, true)
			return false, err
		}

		txn.releaseAll()
		siblingFrame.Latch.Unlock()
		t.bp.UnpinPage(siblingID, true)
		t.bp.UnpinPage(leaf.ParentPageID, true)

		// leaf's own page bytes changed; the caller persisted it before
		// this call and its WriteGuard.Drop() does not re-encode, so
		// patch the frame directly.
		return false, t.rewriteLeaf(leaf)
	}

	sibling.moveAllTo(leaf)
	parent.removeAt(idx + 1)
	siblingFrame.Latch.Unlock()
	t.bp.UnpinPage(siblingID, true)
	txn.markDeleted(siblingID)
	// Write leaf back before recursing: the recursion may reparent it
	// via setChildParent, which a later rewrite would overwrite.
	if err := t.rewriteLeaf(leaf); err != nil {
		t.bp.UnpinPage(leaf.ParentPageID, true)
		return false, err
	}

	shouldDeleteParent, err := t.handleInternalUnderflow(parentFrame, &parent, txn)
	t.bp.UnpinPage(leaf.ParentPageID, true)
	if err != nil {
		return false, err
	}
	if shouldDeleteParent {
		txn.markDeleted(parent.PageID)
	}
	return false, nil
}

// rewriteLeaf writes leaf's current in-memory state back into its own
// frame. Used after redistribute/coalesce mutated leaf in place, since
// the caller's WriteGuard.Drop() happens after this returns.
func (t *BPlusTree[K, V]) rewriteLeaf(leaf *leafNode[K, V]) error {
	frame, ok := t.bp.FetchPage(leaf.PageID)
	if !ok {
		return util.NewBufferPoolExhaustedError()
	}
	defer t.bp.UnpinPage(leaf.PageID, true)
	copy(frame.Data, mustEncode(*leaf, leafPageType))
	return nil
}

func mustEncode[T any](n T, tag PageType) []byte {
	data, err := encodeNode(n, tag)
	if err != nil {
		// Encoding a node that was just successfully decoded from a
		// same-sized page cannot fail; a failure here means the page
		// capacity invariant itself has been violated.
		panic(fmt.Sprintf("index: re-encode node: %v", err))
	}
	return data
}

// handleInternalUnderflow mirrors handleLeafUnderflow for internal
// nodes, recursing up the tree. frame is the already-pinned, already
// write-latched (via an ancestor entry still queued on txn, or via the
// caller's own guard for the first call) page backing node.
func (t *BPlusTree[K, V]) handleInternalUnderflow(frame *buffer.Frame, node *internalNode[K], txn *Transaction) (bool, error) {
	// The caller has just removed an entry from node in memory; write it
	// back before any branch below returns.
	copy(frame.Data, mustEncode(*node, internalPageType))
	if node.isRoot() {
		shouldDelete, err := t.adjustRootInternal(node)
		txn.releaseAll()
		return shouldDelete, err
	}
	if int(node.Size) >= node.minSize() {
		txn.releaseAll()
		return false, nil
	}

	parentFrame, ok := t.bp.FetchPage(node.ParentPageID)
	if !ok {
		return false, util.NewBufferPoolExhaustedError()
	}
	parent, err := decodeNode[internalNode[K]](parentFrame.Data)
	if err != nil {
		t.bp.UnpinPage(node.ParentPageID, false)
		return false, err
	}

	idx := parent.valueIndex(node.PageID)

	if idx > 0 {
		siblingID := parent.childAt(idx - 1)
		siblingFrame, ok := t.bp.FetchPage(siblingID)
		if !ok {
			t.bp.UnpinPage(node.ParentPageID, false)
			return false, util.NewBufferPoolExhaustedError()
		}
		siblingFrame.Latch.Lock()
		sibling, err := decodeNode[internalNode[K]](siblingFrame.Data)
		if err != nil {
			siblingFrame.Latch.Unlock()
			t.bp.UnpinPage(siblingID, false)
			t.bp.UnpinPage(node.ParentPageID, false)
			return false, err
		}

		if int(sibling.Size) > sibling.minSize() {
			middleKey := parent.keyAt(idx)
			if err := t.internalMoveLastToFrontOf(&sibling, node, middleKey); err != nil {
				siblingFrame.Latch.Unlock()
				t.bp.UnpinPage(siblingID, true)
				t.bp.UnpinPage(node.ParentPageID, true)
				return false, err
			}
			parent.setKeyAt(idx, node.keyAt(0))

			copy(siblingFrame.Data, mustEncode(sibling, internalPageType))
			if err := t.persistInternalFrame(parentFrame, &parent); err != nil {
				siblingFrame.Latch.Unlock()
				t.bp.UnpinPage(siblingID, true)
				t.bp.UnpinPage(node.ParentPageID, true)
				return false, err
			}
			if err := t.rewriteInternal(node); err != nil {
				siblingFrame.Latch.Unlock()
				t.bp.UnpinPage(siblingID, true)
				t.bp.UnpinPage(node.ParentPageID, true)
				return false, err
			}

			txn.releaseAll()
			siblingFrame.Latch.Unlock()
			t.bp.UnpinPage(siblingID, true)
			t.bp.UnpinPage(node.ParentPageID, true)
			return false, nil
		}

		middleKey := parent.keyAt(idx)
		if err := t.internalMoveAllTo(node, &sibling, middleKey); err != nil {
			siblingFrame.Latch.Unlock()
			t.bp.UnpinPage(siblingID, true)
			t.bp.UnpinPage(node.ParentPageID, true)
			return false, err
		}
		parent.removeAt(idx)
		copy(siblingFrame.Data, mustEncode(sibling, internalPageType))
		siblingFrame.Latch.Unlock()
		t.bp.UnpinPage(siblingID, true)

		shouldDeleteParent, err := t.handleInternalUnderflow(parentFrame, &parent, txn)
		t.bp.UnpinPage(node.ParentPageID, true)
		if err != nil {
			return false, err
		}
		if shouldDeleteParent {
			txn.markDeleted(parent.PageID)
		}
		return true, nil
	}

	if idx == len(parent.Children)-1 {
		txn.releaseAll()
		t.bp.UnpinPage(node.ParentPageID, false)
		return false, nil
	}

	siblingID := parent.childAt(idx + 1)
	siblingFrame, ok := t.bp.FetchPage(siblingID)
	if !ok {
		t.bp.UnpinPage(node.ParentPageID, false)
		return false, util.NewBufferPoolExhaustedError()
	}
	siblingFrame.Latch.Lock()
	sibling, err := decodeNode[internalNode[K]](siblingFrame.Data)
	if err != nil {
		siblingFrame.Latch.Unlock()
		t.bp.UnpinPage(siblingID, false)
		t.bp.UnpinPage(node.ParentPageID, false)
		return false, err
	}

	if int(sibling.Size) > sibling.minSize() {
		middleKey := parent.keyAt(idx + 1)
		if err := t.internalMoveFirstToEndOf(&sibling, node, middleKey); err != nil {
			siblingFrame.Latch.Unlock()
			t.bp.UnpinPage(siblingID, true)
			t.bp.UnpinPage(node.ParentPageID, true)
			return false, err
		}
		parent.setKeyAt(idx+1, sibling.keyAt(0))

		copy(siblingFrame.Data, mustEncode(sibling, internalPageType))
		if err := t.persistInternalFrame(parentFrame, &parent); err != nil {
			siblingFrame.Latch.Unlock()
			t.bp.UnpinPage(siblingID, true)
			t.bp.UnpinPage(node.ParentPageID, true)
			return false, err
		}
		if err := t.rewriteInternal(node); err != nil {
			siblingFrame.Latch.Unlock()
			t.bp.UnpinPage(siblingID, true)
			t.bp.UnpinPage(node.ParentPageID, true)
			return false, err
		}

		txn.releaseAll()
		siblingFrame.Latch.Unlock()
		t.bp.UnpinPage(siblingID, true)
		t.bp.UnpinPage(node.ParentPageID, true)
		return false, nil
	}

	middleKey := parent.keyAt(idx + 1)
	if err := t.internalMoveAllTo(&sibling, node, middleKey); err != nil {
		siblingFrame.Latch.Unlock()
		t.bp.UnpinPage(siblingID, true)
		t.bp.UnpinPage(node.ParentPageID, true)
		return false, err
	}
	parent.removeAt(idx + 1)
	siblingFrame.Latch.Unlock()
	t.bp.UnpinPage(siblingID, true)
	txn.markDeleted(siblingID)
	if err := t.rewriteInternal(node); err != nil {
		t.bp.UnpinPage(node.ParentPageID, true)
		return false, err
	}

	shouldDeleteParent, err := t.handleInternalUnderflow(parentFrame, &parent, txn)
	t.bp.UnpinPage(node.ParentPageID, true)
	if err != nil {
		return false, err
	}
	if shouldDeleteParent {
		txn.markDeleted(parent.PageID)
	}
	return false, nil
}

func (t *BPlusTree[K, V]) rewriteInternal(node *internalNode[K]) error {
	frame, ok := t.bp.FetchPage(node.PageID)
	if !ok {
		return util.NewBufferPoolExhaustedError()
	}
	defer t.bp.UnpinPage(node.PageID, true)
	copy(frame.Data, mustEncode(*node, internalPageType))
	return nil
}

func (t *BPlusTree[K, V]) internalMoveAllTo(n, recipient *internalNode[K], middleKey K) error {
	n.setKeyAt(0, middleKey)
	movedChildren := append([]int64(nil), n.Children...)

	recipient.Keys = append(recipient.Keys, n.Keys...)
	recipient.Children = append(recipient.Children, n.Children...)
	recipient.Size = int32(len(recipient.Keys))

	n.Keys = nil
	n.Children = nil
	n.Size = 0

	for _, childID := range movedChildren {
		if err := t.setChildParent(childID, recipient.PageID); err != nil {
			return err
		}
	}
	return nil
}

func (t *BPlusTree[K, V]) internalMoveFirstToEndOf(n, recipient *internalNode[K], middleKey K) error {
	n.setKeyAt(0, middleKey)
	movedKey, movedChild := n.keyAt(0), n.childAt(0)

	recipient.Keys = append(recipient.Keys, movedKey)
	recipient.Children = append(recipient.Children, movedChild)
	recipient.Size = int32(len(recipient.Keys))

	n.Keys = slices.Delete(n.Keys, 0, 1)
	n.Children = slices.Delete(n.Children, 0, 1)
	n.Size = int32(len(n.Keys))

	return t.setChildParent(movedChild, recipient.PageID)
}

func (t *BPlusTree[K, V]) internalMoveLastToFrontOf(n, recipient *internalNode[K], middleKey K) error {
	last := len(n.Children) - 1
	movedKey, movedChild := n.Keys[last], n.Children[last]
	n.Keys = n.Keys[:last]
	n.Children = n.Children[:last]
	n.Size = int32(len(n.Keys))

	// movedKey lands in slot 0 so the caller can promote it as the new
	// parent separator.
	recipient.setKeyAt(0, middleKey)
	recipient.Keys = slices.Insert(recipient.Keys, 0, movedKey)
	recipient.Children = slices.Insert(recipient.Children, 0, movedChild)
	recipient.Size = int32(len(recipient.Keys))

	return t.setChildParent(movedChild, recipient.PageID)
}
