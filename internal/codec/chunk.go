package codec

import (
	"encoding/binary"
	"hash/adler32"

	"ewfkit/ewf"
)

// ChecksumSize is the trailing Adler-32 on a raw stored chunk.
const ChecksumSize = 4

// Options select the encode policy for one container.
type Options struct {
	Level       ewf.CompressionLevel
	EmptyBlock  bool // reduce constant-byte chunks to a fill pattern
	PatternFill bool // reduce repeated eight-byte patterns to a fill pattern
}

// Encoded is a chunk in its stored form. A pattern chunk stores just the
// eight pattern bytes; the compressed table bit is set for it, since a
// genuine zlib stream is always longer than eight bytes and the two cannot
// collide on disk.
type Encoded struct {
	Data  []byte
	Flags ewf.ChunkFlags
}

// Decoded is a chunk restored to payload bytes. Corrupt is set when the
// stored bytes failed decompression or checksum verification; Data then
// carries the best-effort bytes rather than nothing, and the caller
// decides whether to wipe.
type Decoded struct {
	Data    []byte
	Pattern bool
	Corrupt bool
}

// EncodeChunk applies the storage policy ladder to one payload:
//
//  1. compression off and both detectors off: store raw with checksum
//  2. detector match: store the fill pattern
//  3. deflate; fall back to raw when the stream would not actually
//     be smaller than raw storage
func EncodeChunk(payload []byte, opts Options) (Encoded, error) {
	if opts.Level == ewf.CompressionNone && !opts.EmptyBlock && !opts.PatternFill {
		return encodeRaw(payload), nil
	}

	if pattern, ok := detect(payload, opts); ok {
		return Encoded{
			Data:  pattern[:],
			Flags: ewf.ChunkCompressed | ewf.ChunkPatternFill,
		}, nil
	}

	if opts.Level != ewf.CompressionNone {
		comp, err := Compress(payload, opts.Level)
		if err != nil {
			return Encoded{}, err
		}
		if len(comp) < len(payload)+ChecksumSize {
			return Encoded{Data: comp, Flags: ewf.ChunkCompressed}, nil
		}
	}
	return encodeRaw(payload), nil
}

func detect(payload []byte, opts Options) ([PatternSize]byte, bool) {
	var pattern [PatternSize]byte
	if opts.PatternFill {
		if p, ok := DetectPattern(payload); ok {
			return p, true
		}
	}
	if opts.EmptyBlock || opts.PatternFill {
		if b, ok := DetectEmpty(payload); ok {
			for i := range pattern {
				pattern[i] = b
			}
			return pattern, true
		}
	}
	return pattern, false
}

func encodeRaw(payload []byte) Encoded {
	data := make([]byte, len(payload)+ChecksumSize)
	copy(data, payload)
	binary.LittleEndian.PutUint32(data[len(payload):], adler32.Checksum(payload))
	return Encoded{Data: data, Flags: ewf.ChunkHasChecksum}
}

// DecodeChunk restores a stored chunk. compressed is the table entry's
// bit; chunkSize is the expected payload size of this particular chunk
// (the final chunk of an image may be short).
//
// Corrupt stored bytes never fail the call: EnCase-produced containers
// contain truncated deflate streams in the wild, and the read path must
// return what is there and report, not refuse.
func DecodeChunk(stored []byte, compressed bool, chunkSize int) Decoded {
	if compressed {
		if len(stored) == PatternSize {
			var pattern [PatternSize]byte
			copy(pattern[:], stored)
			return Decoded{Data: FillPattern(pattern, chunkSize), Pattern: true}
		}
		out, err := Decompress(stored, chunkSize)
		if err != nil {
			return Decoded{Data: clamp(stored, chunkSize), Corrupt: true}
		}
		if len(out) != chunkSize {
			return Decoded{Data: clamp(out, chunkSize), Corrupt: true}
		}
		return Decoded{Data: out}
	}

	if len(stored) < ChecksumSize {
		return Decoded{Data: clamp(stored, chunkSize), Corrupt: true}
	}
	payload := stored[:len(stored)-ChecksumSize]
	want := binary.LittleEndian.Uint32(stored[len(payload):])
	if adler32.Checksum(payload) != want {
		return Decoded{Data: clamp(payload, chunkSize), Corrupt: true}
	}
	if len(payload) != chunkSize {
		return Decoded{Data: clamp(payload, chunkSize), Corrupt: true}
	}
	return Decoded{Data: payload}
}

// clamp pads or cuts p to size so a corrupt chunk still occupies its full
// slot in the byte stream.
func clamp(p []byte, size int) []byte {
	if len(p) == size {
		return p
	}
	out := make([]byte, size)
	copy(out, p)
	return out
}
