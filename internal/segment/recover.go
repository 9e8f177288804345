package segment

import (
	"bytes"
	"encoding/binary"
	"hash/adler32"

	"ewfkit/internal/codec"
)

// Recovered is one chunk rediscovered inside an interrupted sectors run.
type Recovered struct {
	Offset     int64 // absolute file offset of the stored bytes
	Size       uint32
	Compressed bool
}

// RecoverChunks walks the bytes of an open sectors run and rediscovers
// complete chunks. data holds the run's bytes, base its absolute file
// offset, chunkSize the image's chunk size.
//
// There is no table to consult, so boundaries come from the stored forms
// themselves: a zlib stream is self-delimiting and must inflate to
// exactly chunkSize; a raw chunk is chunkSize bytes with a valid trailing
// Adler-32; a fill pattern is eight bytes. The first position that parses
// as none of these ends recovery; anything after it is a partial write
// and gets truncated.
func RecoverChunks(data []byte, base int64, chunkSize int) []Recovered {
	var out []Recovered
	pos := 0
	for pos < len(data) {
		if size, compressed, ok := parseChunkAt(data[pos:], chunkSize); ok {
			out = append(out, Recovered{
				Offset:     base + int64(pos),
				Size:       size,
				Compressed: compressed,
			})
			pos += int(size)
			continue
		}
		run, ok := patternRun(data[pos:], chunkSize)
		if !ok {
			break
		}
		for range run {
			out = append(out, Recovered{
				Offset:     base + int64(pos),
				Size:       codec.PatternSize,
				Compressed: true,
			})
			pos += codec.PatternSize
		}
	}
	return out
}

// parseChunkAt recognizes a deflate stream or a raw checksummed chunk at
// the start of data.
func parseChunkAt(data []byte, chunkSize int) (uint32, bool, bool) {
	if consumed, ok := codec.DecompressPrefix(data, chunkSize); ok && consumed > codec.PatternSize {
		return uint32(consumed), true, true
	}
	if len(data) >= chunkSize+codec.ChecksumSize {
		payload := data[:chunkSize]
		want := binary.LittleEndian.Uint32(data[chunkSize:])
		if adler32.Checksum(payload) == want {
			return uint32(chunkSize + codec.ChecksumSize), false, true
		}
	}
	return 0, false, false
}

// patternRun counts consecutive eight-byte fill patterns starting at
// data. Any eight bytes form a valid pattern, so a run at the very end
// of the data is indistinguishable from a torn write's garbage tail; a
// run is therefore only accepted when a parseable chunk terminates it.
// Trailing pattern chunks of an interrupted segment are deliberately
// dropped rather than risk recovering garbage.
func patternRun(data []byte, chunkSize int) (int, bool) {
	run := 0
	pos := 0
	for {
		if pos >= len(data) {
			return 0, false
		}
		// Probing for a chunk at every step would rescan the tail over
		// and over; inside a run of identical patterns the probe is
		// skipped until the bytes change.
		if run > 0 && !bytes.Equal(data[pos:min(pos+codec.PatternSize, len(data))], data[pos-codec.PatternSize:pos]) {
			if _, _, ok := parseChunkAt(data[pos:], chunkSize); ok {
				return run, true
			}
		}
		if len(data)-pos < codec.PatternSize {
			return 0, false
		}
		run++
		pos += codec.PatternSize
	}
}
