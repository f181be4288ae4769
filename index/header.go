package index

import (
	"fmt"

	"github.com/brambledb/bramble/buffer"
	"github.com/brambledb/bramble/storage/disk"
	"github.com/brambledb/bramble/util"
)

// headerPage is the reserved page-id-zero record: an append-only mapping
// from index name to the root page-id of that index's tree.
type headerPage struct {
	Roots map[string]int64
}

func loadHeaderPage(bp *buffer.BufferPool) (*headerPage, error) {
	frame, ok := bp.FetchPage(disk.HeaderPageID)
	if !ok {
		return nil, fmt.Errorf("index: cannot fetch header page: buffer pool exhausted")
	}
	defer bp.UnpinPage(disk.HeaderPageID, false)

	if isZeroed(frame.Data) {
		return &headerPage{Roots: make(map[string]int64)}, nil
	}

	h, err := util.FromBytes[headerPage](frame.Data)
	if err != nil {
		return nil, fmt.Errorf("index: decode header page: %w", err)
	}
	if h.Roots == nil {
		h.Roots = make(map[string]int64)
	}
	return &h, nil
}

func (h *headerPage) insertRecord(bp *buffer.BufferPool, name string, rootPageID int64) error {
	h.Roots[name] = rootPageID
	return h.flush(bp)
}

func (h *headerPage) updateRecord(bp *buffer.BufferPool, name string, rootPageID int64) error {
	h.Roots[name] = rootPageID
	return h.flush(bp)
}

func (h *headerPage) flush(bp *buffer.BufferPool) error {
	frame, ok := bp.FetchPage(disk.HeaderPageID)
	if !ok {
		return fmt.Errorf("index: cannot fetch header page: buffer pool exhausted")
	}
	defer bp.UnpinPage(disk.HeaderPageID, true)

	data, err := util.ToFixedBytes(*h, disk.PageSize)
	if err != nil {
		return fmt.Errorf("index: encode header page: %w", err)
	}
	copy(frame.Data, data)
	return nil
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}
