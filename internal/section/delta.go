package section

import (
	"encoding/binary"

	"ewfkit/ewf"
)

// delta_chunk payload: {chunk-index u64} followed by the stored chunk
// bytes. Delta segments shadow individual chunks of a finished container
// without rewriting it; the last delta_chunk for an index wins.
const deltaHeaderSize = 8

// EncodeDeltaChunk serializes a delta_chunk payload.
func EncodeDeltaChunk(index uint64, stored []byte) []byte {
	buf := make([]byte, deltaHeaderSize+len(stored))
	binary.LittleEndian.PutUint64(buf[0:deltaHeaderSize], index)
	copy(buf[deltaHeaderSize:], stored)
	return buf
}

// DecodeDeltaChunk splits a delta_chunk payload into the shadowed chunk
// index and the stored chunk bytes.
func DecodeDeltaChunk(payload []byte) (uint64, []byte, error) {
	if len(payload) < deltaHeaderSize {
		return 0, nil, ewf.ErrTruncated
	}
	return binary.LittleEndian.Uint64(payload[0:deltaHeaderSize]), payload[deltaHeaderSize:], nil
}
