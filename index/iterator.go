package index

import (
	"errors"

	"github.com/brambledb/bramble/storage/disk"
)

// ErrIteratorExhausted is returned by Next once an Iterator has passed
// its last entry.
var ErrIteratorExhausted = errors.New("index: iterator exhausted")

// Iterator walks a tree's leaves left to right, holding a shared latch
// on exactly one leaf page at a time. An Iterator returned for an empty
// tree is already exhausted.
type Iterator[K any, V any] struct {
	t     *BPlusTree[K, V]
	guard *ReadGuard
	leaf  *leafNode[K, V]
	pos   int
}

func (t *BPlusTree[K, V]) Begin() (*Iterator[K, V], error) {
	if t.IsEmpty() {
		return &Iterator[K, V]{}, nil
	}
	t.rootMu.RLock()
	txn := NewTransaction()
	var zero K
	g, leaf, err := t.findLeaf(zero, opSearch, txn, true, false)
	if err != nil {
		return nil, err
	}
	return &Iterator[K, V]{t: t, guard: g.(*ReadGuard), leaf: leaf, pos: 0}, nil
}

func (t *BPlusTree[K, V]) BeginAt(key K) (*Iterator[K, V], error) {
	if t.IsEmpty() {
		return &Iterator[K, V]{}, nil
	}
	t.rootMu.RLock()
	txn := NewTransaction()
	g, leaf, err := t.findLeaf(key, opSearch, txn, false, false)
	if err != nil {
		return nil, err
	}
	pos := leaf.findPos(t.cmp, key)
	return &Iterator[K, V]{t: t, guard: g.(*ReadGuard), leaf: leaf, pos: pos}, nil
}

func (t *BPlusTree[K, V]) End() (*Iterator[K, V], error) {
	if t.IsEmpty() {
		return &Iterator[K, V]{}, nil
	}
	t.rootMu.RLock()
	txn := NewTransaction()
	var zero K
	g, leaf, err := t.findLeaf(zero, opSearch, txn, false, true)
	if err != nil {
		return nil, err
	}
	return &Iterator[K, V]{t: t, guard: g.(*ReadGuard), leaf: leaf, pos: len(leaf.Keys)}, nil
}

// IsEnd reports whether the iterator has no further entry to yield.
func (it *Iterator[K, V]) IsEnd() bool {
	if it.leaf == nil {
		return true
	}
	return it.pos >= len(it.leaf.Keys) && it.leaf.NextPageID == disk.InvalidPageID
}

// Next returns the current (key, value) and advances past it, crossing
// into the following leaf via its NextPageID link when needed.
func (it *Iterator[K, V]) Next() (K, V, error) {
	var zk K
	var zv V
	if it.IsEnd() {
		return zk, zv, ErrIteratorExhausted
	}

	if it.pos >= len(it.leaf.Keys) {
		nextID := it.leaf.NextPageID
		g, ok := acquireRead(it.t.bp, nextID)
		if !ok {
			return zk, zv, ErrIteratorExhausted
		}
		leaf, err := decodeNode[leafNode[K, V]](g.Data())
		if err != nil {
			g.Drop()
			return zk, zv, err
		}
		it.guard.Drop()
		it.guard = g
		it.leaf = &leaf
		it.pos = 0
	}

	key, val := it.leaf.Keys[it.pos], it.leaf.Values[it.pos]
	it.pos++
	return key, val, nil
}

// Close releases the latch and pin on whatever leaf the iterator
// currently holds. Safe to call on an already-exhausted or empty-tree
// iterator.
func (it *Iterator[K, V]) Close() {
	if it.guard != nil {
		it.guard.Drop()
	}
}
