package section

import (
	"encoding/binary"
	"hash/adler32"

	"ewfkit/ewf"
)

// Sector-range list layout, shared by the session and error2 sections:
// a 12-byte header {count u32, pad u32, adler u32 over the first 8 bytes},
// then count entries of {first-sector u64, sector-count u32}, then an
// Adler-32 over the entries.
const (
	rangeHeaderSize = 12
	rangeEntrySize  = 12
)

// RangesPayloadSize returns the encoded size for n ranges.
func RangesPayloadSize(n int) int {
	return rangeHeaderSize + n*rangeEntrySize + 4
}

// EncodeRanges serializes a sector-range list payload.
func EncodeRanges(ranges []ewf.SectorRange) []byte {
	buf := make([]byte, RangesPayloadSize(len(ranges)))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(ranges)))
	binary.LittleEndian.PutUint32(buf[8:rangeHeaderSize], adler32.Checksum(buf[:8]))

	entries := buf[rangeHeaderSize : rangeHeaderSize+len(ranges)*rangeEntrySize]
	for i, r := range ranges {
		e := entries[i*rangeEntrySize:]
		binary.LittleEndian.PutUint64(e[0:8], r.First)
		binary.LittleEndian.PutUint32(e[8:12], r.Count)
	}
	binary.LittleEndian.PutUint32(buf[len(buf)-4:], adler32.Checksum(entries))
	return buf
}

// DecodeRanges parses a sector-range list payload read at offset.
func DecodeRanges(buf []byte, offset int64) ([]ewf.SectorRange, error) {
	if len(buf) < rangeHeaderSize {
		return nil, ewf.ErrTruncated
	}
	stored := binary.LittleEndian.Uint32(buf[8:rangeHeaderSize])
	computed := adler32.Checksum(buf[:8])
	if stored != computed {
		return nil, &ewf.ChecksumError{
			Kind: ewf.ChecksumSection, At: offset,
			Stored: stored, Computed: computed,
		}
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	if len(buf) < RangesPayloadSize(int(count)) {
		return nil, ewf.ErrTruncated
	}
	entries := buf[rangeHeaderSize : rangeHeaderSize+int(count)*rangeEntrySize]
	storedEntries := binary.LittleEndian.Uint32(buf[rangeHeaderSize+len(entries):])
	computedEntries := adler32.Checksum(entries)
	if storedEntries != computedEntries {
		return nil, &ewf.ChecksumError{
			Kind: ewf.ChecksumSection, At: offset,
			Stored: storedEntries, Computed: computedEntries,
		}
	}
	ranges := make([]ewf.SectorRange, count)
	for i := range ranges {
		e := entries[i*rangeEntrySize:]
		ranges[i] = ewf.SectorRange{
			First: binary.LittleEndian.Uint64(e[0:8]),
			Count: binary.LittleEndian.Uint32(e[8:12]),
		}
	}
	return ranges, nil
}
