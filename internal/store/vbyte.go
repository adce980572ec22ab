package store

import (
	apperrors "github.com/gpoulter/mscanner-sub000/pkg/errors"
)

// encodeVector serialises a non-decreasing sequence of feature IDs as
// delta-encoded variable-byte data, appended to dst.
//
// Each gap between successive IDs is written in 7-bit groups, most
// significant group first. Every byte except the last of a value has its
// high bit clear; the final byte carries the high bit as the terminal
// marker. The input must be non-decreasing: a decreasing sequence produces
// garbage gaps that decode without error. Callers sort before encoding.
func encodeVector(dst []byte, ids []uint32) []byte {
	var last uint32
	var buf [5]byte
	for _, id := range ids {
		gap := id - last
		last = id
		n := len(buf)
		n--
		buf[n] = 0x80 | byte(gap&0x7f)
		gap >>= 7
		for gap > 0 {
			n--
			buf[n] = byte(gap & 0x7f)
			gap >>= 7
		}
		dst = append(dst, buf[n:]...)
	}
	return dst
}

// decodeVector reverses encodeVector. A payload that ends in the middle of a
// value (no terminal byte) is corrupt.
func decodeVector(payload []byte) ([]uint32, error) {
	ids := make([]uint32, 0, len(payload))
	var gap, last uint32
	pending := false
	for _, b := range payload {
		gap = gap<<7 | uint32(b&0x7f)
		pending = true
		if b&0x80 != 0 {
			last += gap
			ids = append(ids, last)
			gap = 0
			pending = false
		}
	}
	if pending {
		return nil, apperrors.Corruptf("payload ends mid-value after %d ids", len(ids))
	}
	return ids, nil
}
