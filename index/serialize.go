package index

import (
	"fmt"

	"github.com/brambledb/bramble/storage/disk"
	"github.com/brambledb/bramble/util"
)

// Every page's first byte tells a reader which node type the rest of the
// bytes decode as, so a fetch can dispatch before it knows K or V for a
// leaf's value type.
const pageTypeOffset = 0

func peekPageType(data []byte) PageType {
	return PageType(data[pageTypeOffset])
}

func encodeNode[T any](n T, tag PageType) ([]byte, error) {
	body, err := util.ToFixedBytes(n, disk.PageSize-1)
	if err != nil {
		return nil, fmt.Errorf("index: encode page: %w", err)
	}

	buf := make([]byte, disk.PageSize)
	buf[pageTypeOffset] = byte(tag)
	copy(buf[1:], body)
	return buf, nil
}

func decodeNode[T any](data []byte) (T, error) {
	n, err := util.FromBytes[T](data[1:])
	if err != nil {
		var zero T
		return zero, fmt.Errorf("index: decode page: %w", err)
	}
	return n, nil
}
