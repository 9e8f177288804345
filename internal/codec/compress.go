// Package codec turns raw chunk payloads into their stored form and back.
// Stored chunks are either deflate (zlib) streams, raw bytes with a
// trailing Adler-32, or an eight-byte fill pattern for content that is
// one byte or one eight-byte pattern repeated.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"ewfkit/ewf"
)

func zlibLevel(level ewf.CompressionLevel) int {
	switch level {
	case ewf.CompressionFast:
		return zlib.BestSpeed
	case ewf.CompressionBest:
		return zlib.BestCompression
	}
	return zlib.NoCompression
}

// Compress deflates p at the given level into a zlib stream.
func Compress(p []byte, level ewf.CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(CompressBound(len(p)))
	w, err := zlib.NewWriterLevel(&buf, zlibLevel(level))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ewf.ErrCompression, err)
	}
	if _, err := w.Write(p); err != nil {
		return nil, fmt.Errorf("%w: %w", ewf.ErrCompression, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", ewf.ErrCompression, err)
	}
	return buf.Bytes(), nil
}

// Decompress inflates a zlib stream. sizeHint is the expected payload size
// and only sizes the output buffer. The zlib trailer verifies the stream's
// own Adler-32; any mismatch surfaces as an error here.
func Decompress(stored []byte, sizeHint int) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(stored))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if sizeHint > 0 {
		buf.Grow(sizeHint)
	}
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecompressPrefix attempts to parse a zlib stream at the start of data
// that inflates to exactly want bytes, and returns how many input bytes
// the stream occupied. Used by crash recovery, where chunk boundaries
// must be rediscovered without a table: deflate streams are
// self-delimiting, and bytes.Reader's byte-at-a-time interface keeps the
// decoder from consuming past the stream end.
func DecompressPrefix(data []byte, want int) (int, bool) {
	br := bytes.NewReader(data)
	r, err := zlib.NewReader(br)
	if err != nil {
		return 0, false
	}
	n, err := io.Copy(io.Discard, r)
	r.Close()
	if err != nil || n != int64(want) {
		return 0, false
	}
	return len(data) - br.Len(), true
}

// CompressBound is the worst-case zlib stream size for n payload bytes.
// Compress uses it to presize its output buffer.
func CompressBound(n int) int {
	return n + n/1000 + 12
}
