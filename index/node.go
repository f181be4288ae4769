package index

import (
	"slices"
	"sort"

	"github.com/brambledb/bramble/storage/disk"
)

// leafNode stores (key, value) pairs sorted ascending by key, plus the
// next-page pointer linking leaves in key order.
type leafNode[K any, V any] struct {
	nodeHeader
	NextPageID int64
	Keys       []K
	Values     []V
}

func newLeafNode[K any, V any](pageID, parentID int64, maxSize int32) *leafNode[K, V] {
	return &leafNode[K, V]{
		nodeHeader: nodeHeader{PageType: leafPageType, PageID: pageID, ParentPageID: parentID, MaxSize: maxSize},
		NextPageID: disk.InvalidPageID,
	}
}

// findPos returns the lower-bound index of key: the first position whose
// key is >= the search key.
func (n *leafNode[K, V]) findPos(cmp Comparator[K], key K) int {
	return sort.Search(len(n.Keys), func(i int) bool { return cmp(n.Keys[i], key) >= 0 })
}

func (n *leafNode[K, V]) lookup(cmp Comparator[K], key K) (V, bool) {
	pos := n.findPos(cmp, key)
	var zero V
	if pos >= len(n.Keys) || cmp(n.Keys[pos], key) != 0 {
		return zero, false
	}
	return n.Values[pos], true
}

// insert is idempotent: inserting a key already present is a no-op, and
// the returned size is unchanged from before the call in that case.
func (n *leafNode[K, V]) insert(cmp Comparator[K], key K, value V) int {
	pos := n.findPos(cmp, key)
	if pos < len(n.Keys) && cmp(n.Keys[pos], key) == 0 {
		return len(n.Keys)
	}

	n.Keys = slices.Insert(n.Keys, pos, key)
	n.Values = slices.Insert(n.Values, pos, value)
	n.Size = int32(len(n.Keys))
	return len(n.Keys)
}

func (n *leafNode[K, V]) remove(cmp Comparator[K], key K) int {
	pos := n.findPos(cmp, key)
	if pos >= len(n.Keys) || cmp(n.Keys[pos], key) != 0 {
		return len(n.Keys)
	}

	n.Keys = slices.Delete(n.Keys, pos, pos+1)
	n.Values = slices.Delete(n.Values, pos, pos+1)
	n.Size = int32(len(n.Keys))
	return len(n.Keys)
}

func (n *leafNode[K, V]) moveHalfTo(sibling *leafNode[K, V]) {
	mid := n.minSize()
	sibling.Keys = append(sibling.Keys, n.Keys[mid:]...)
	sibling.Values = append(sibling.Values, n.Values[mid:]...)
	sibling.Size = int32(len(sibling.Keys))

	n.Keys = n.Keys[:mid]
	n.Values = n.Values[:mid]
	n.Size = int32(mid)
}

func (n *leafNode[K, V]) moveAllTo(recipient *leafNode[K, V]) {
	recipient.Keys = append(recipient.Keys, n.Keys...)
	recipient.Values = append(recipient.Values, n.Values...)
	recipient.Size = int32(len(recipient.Keys))
	recipient.NextPageID = n.NextPageID

	n.Keys = nil
	n.Values = nil
	n.Size = 0
}

func (n *leafNode[K, V]) moveFirstToEndOf(recipient *leafNode[K, V]) {
	key, val := n.Keys[0], n.Values[0]
	n.Keys = slices.Delete(n.Keys, 0, 1)
	n.Values = slices.Delete(n.Values, 0, 1)
	n.Size = int32(len(n.Keys))

	recipient.Keys = append(recipient.Keys, key)
	recipient.Values = append(recipient.Values, val)
	recipient.Size = int32(len(recipient.Keys))
}

func (n *leafNode[K, V]) moveLastToFrontOf(recipient *leafNode[K, V]) {
	last := len(n.Keys) - 1
	key, val := n.Keys[last], n.Values[last]
	n.Keys = n.Keys[:last]
	n.Values = n.Values[:last]
	n.Size = int32(len(n.Keys))

	recipient.Keys = slices.Insert(recipient.Keys, 0, key)
	recipient.Values = slices.Insert(recipient.Values, 0, val)
	recipient.Size = int32(len(recipient.Keys))
}

// internalNode stores (key, child page-id) pairs; slot 0's key is an
// unused sentinel, since it acts as the left-most child pointer.
type internalNode[K any] struct {
	nodeHeader
	Keys     []K
	Children []int64
}

func newInternalNode[K any](pageID, parentID int64, maxSize int32) *internalNode[K] {
	return &internalNode[K]{nodeHeader: nodeHeader{PageType: internalPageType, PageID: pageID, ParentPageID: parentID, MaxSize: maxSize}}
}

// findPos searches slots 1..size-1 only; slot 0's key is never compared.
func (n *internalNode[K]) findPos(cmp Comparator[K], key K) int {
	if len(n.Keys) <= 1 {
		return 1
	}
	return 1 + sort.Search(len(n.Keys)-1, func(i int) bool { return cmp(n.Keys[1+i], key) >= 0 })
}

// lookup returns the page-id of the child whose subtree key should
// contain key: the exact-match child on equality, otherwise the child
// immediately to the left of the lower-bound slot.
func (n *internalNode[K]) lookup(cmp Comparator[K], key K) int64 {
	pos := n.findPos(cmp, key)
	if pos < len(n.Keys) && cmp(n.Keys[pos], key) == 0 {
		return n.Children[pos]
	}
	return n.Children[pos-1]
}

func (n *internalNode[K]) insert(cmp Comparator[K], key K, childPageID int64) int {
	pos := n.findPos(cmp, key)
	if pos < len(n.Keys) && cmp(n.Keys[pos], key) == 0 {
		return len(n.Keys)
	}

	n.Keys = slices.Insert(n.Keys, pos, key)
	n.Children = slices.Insert(n.Children, pos, childPageID)
	n.Size = int32(len(n.Keys))
	return len(n.Keys)
}

func (n *internalNode[K]) removeAt(index int) {
	n.Keys = slices.Delete(n.Keys, index, index+1)
	n.Children = slices.Delete(n.Children, index, index+1)
	n.Size = int32(len(n.Keys))
}

func (n *internalNode[K]) valueIndex(childPageID int64) int {
	return slices.Index(n.Children, childPageID)
}

func (n *internalNode[K]) keyAt(i int) K {
	return n.Keys[i]
}

func (n *internalNode[K]) setKeyAt(i int, key K) {
	n.Keys[i] = key
}

func (n *internalNode[K]) childAt(i int) int64 {
	return n.Children[i]
}
