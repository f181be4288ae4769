// Package disk implements the byte-addressable page store the buffer pool
// is built on: a blocking, offset-mapped file plus an asynchronous
// per-page request scheduler.
package disk

const (
	// PageSize is the logical page size every caller above this package
	// sees. It is a compile-time constant shared across the engine.
	PageSize = 4096

	// checksumSize is the width of the trailer the manager appends to
	// every physical slot; it never appears in the []byte a caller gets
	// back from ReadPage/WritePage.
	checksumSize = 8

	physicalSlotSize = PageSize + checksumSize

	// InvalidPageID marks the absence of a page.
	InvalidPageID int64 = -1

	// HeaderPageID is the reserved page holding the index_name -> root
	// mapping.
	HeaderPageID int64 = 0

	defaultSlotCapacity = 16
)
