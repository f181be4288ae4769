// Package index implements a concurrent B+-tree keyed on a generic,
// pluggable comparator, with pages paged in and out through a
// buffer.BufferPool.
package index

import (
	"math"

	"github.com/brambledb/bramble/storage/disk"
)

// PageType tags a page's on-disk bytes so a fetch can dispatch to the
// right node decoder without first knowing what it's looking at.
type PageType uint8

const (
	invalidPageType PageType = iota
	leafPageType
	internalPageType
)

// nodeHeader is shared by leafNode and internalNode. A node is the root
// iff its ParentPageID is invalid — the tree never needs to compare a
// node's page id against a separately-tracked root id to answer that.
type nodeHeader struct {
	PageType     PageType
	PageID       int64
	ParentPageID int64
	Size         int32
	MaxSize      int32
}

func (h *nodeHeader) isLeaf() bool {
	return h.PageType == leafPageType
}

func (h *nodeHeader) isRoot() bool {
	return h.ParentPageID == disk.InvalidPageID
}

// minSize is the minimum occupancy a non-root node of this type must
// maintain: ceil((max-1)/2) entries for a leaf, ceil(max/2) children for
// an internal node.
func (h *nodeHeader) minSize() int {
	if h.isLeaf() {
		return int(math.Ceil(float64(h.MaxSize-1) / 2))
	}
	return int(math.Ceil(float64(h.MaxSize) / 2))
}
