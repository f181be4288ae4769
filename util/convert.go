package util

import (
	"fmt"

	"github.com/vmihailenco/msgpack"
)

// ToFixedBytes msgpack-encodes obj into a zero-padded buffer of exactly
// size bytes. It fails if the encoded form doesn't fit, since callers use
// this to pack values into fixed-size pages.
func ToFixedBytes[T any](obj T, size int) ([]byte, error) {
	data, err := msgpack.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if len(data) > size {
		return nil, fmt.Errorf("encode: value occupies %d bytes, exceeds page capacity %d", len(data), size)
	}

	buf := make([]byte, size)
	copy(buf, data)
	return buf, nil
}

// FromBytes decodes a msgpack-encoded value out of a (possibly
// zero-padded) buffer produced by ToFixedBytes.
func FromBytes[T any](data []byte) (T, error) {
	var res T
	if err := msgpack.Unmarshal(data, &res); err != nil {
		return res, fmt.Errorf("decode: %w", err)
	}
	return res, nil
}
