package ewfkit

import (
	"errors"
	"fmt"
	"io"

	"ewfkit/ewf"
	"ewfkit/internal/codec"
	"ewfkit/internal/segment"
)

// ReadAt reads len(p) bytes of the logical image starting at off. It
// satisfies io.ReaderAt: a read crossing the end of the image returns
// the bytes up to the end together with io.EOF. Safe for concurrent use.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readAtLocked(p, off)
}

func (h *Handle) readAtLocked(p []byte, off int64) (int, error) {
	switch h.state {
	case stateRead, stateReadWrite:
	case stateEmpty:
		return 0, ewf.ErrNotOpen
	default:
		return 0, fmt.Errorf("%w: handle is write-only", ewf.ErrInvalidArgument)
	}
	if off < 0 {
		return 0, &ewf.OutOfRangeError{Offset: off, Size: int64(len(p))}
	}
	size := int64(h.media.MediaSize)
	if off >= size {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	want := int64(len(p))
	eof := false
	if off+want > size {
		want = size - off
		eof = true
	}

	chunkSize := int64(h.media.ChunkSize())
	n := int64(0)
	for n < want {
		index := uint64((off + n) / chunkSize)
		intra := (off + n) % chunkSize
		data, err := h.chunkAt(index)
		if err != nil {
			return int(n), err
		}
		n += int64(copy(p[n:want], data[intra:]))
	}
	if eof {
		return int(n), io.EOF
	}
	return int(n), nil
}

// Read reads from the stream position, advancing it.
func (h *Handle) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n, err := h.readAtLocked(p, h.offset)
	h.offset += int64(n)
	return n, err
}

// Seek repositions the stream per io.Seeker. The end for SeekEnd is the
// media size.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == stateEmpty {
		return 0, ewf.ErrNotOpen
	}

	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = h.offset
	case io.SeekEnd:
		base = h.size()
	default:
		return 0, fmt.Errorf("%w: whence %d", ewf.ErrInvalidArgument, whence)
	}
	next := base + offset
	if next < 0 {
		return 0, &ewf.OutOfRangeError{Offset: next}
	}
	h.offset = next
	return next, nil
}

// Offset returns the current stream position.
func (h *Handle) Offset() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.offset
}

// size is the logical image size in the current state.
func (h *Handle) size() int64 {
	if h.state == stateWrite {
		return h.written
	}
	return int64(h.media.MediaSize)
}

// chunkAt fetches one decoded chunk through the cache. Concurrent
// readers of the same missing chunk decode once. Callers must not
// mutate the returned slice.
func (h *Handle) chunkAt(index uint64) ([]byte, error) {
	return h.cache.Get(index, func() ([]byte, error) {
		return h.loadChunk(index)
	})
}

// chunkPayloadSize is the expected payload size of chunk index; only the
// final chunk of the image may be short.
func (h *Handle) chunkPayloadSize(index uint64) int {
	chunkSize := int64(h.media.ChunkSize())
	size := h.size()
	start := int64(index) * chunkSize
	if start+chunkSize > size {
		return int(size - start)
	}
	return int(chunkSize)
}

// loadChunk reads and decodes chunk index from its segment. Checksum
// failures and tainted table entries record the chunk's sector range in
// the checksum-error list; the bytes are still returned. A chunk that
// fails decoding or its checksum is zero-filled when the handle is
// configured to wipe; a tainted chunk that decodes cleanly is not.
func (h *Handle) loadChunk(index uint64) ([]byte, error) {
	desc, ok := h.tbl.At(index)
	if !ok {
		return nil, fmt.Errorf("%w: chunk %d beyond table", ewf.ErrInternal, index)
	}
	stored := make([]byte, desc.Size)
	if _, err := h.pool.ReadAt(desc.Segment, stored, desc.Offset); err != nil {
		return nil, err
	}

	dec := codec.DecodeChunk(stored, desc.Flags.Has(ewf.ChunkCompressed), h.chunkPayloadSize(index))
	if dec.Corrupt || desc.Flags.Has(ewf.ChunkTainted) {
		h.recordChecksumError(index)
		if dec.Corrupt && h.cfg.WipeChunkOnError {
			clear(dec.Data)
		}
	}
	return dec.Data, nil
}

func (h *Handle) recordChecksumError(index uint64) {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	h.checksumErrors = ewf.AppendRange(h.checksumErrors, ewf.SectorRange{
		First: index * uint64(h.media.SectorsPerChunk),
		Count: h.media.SectorsPerChunk,
	})
}

// Write appends p to the logical image. Chunks are cut and stored as
// soon as they fill; a trailing partial chunk is held until Close.
func (h *Handle) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.writableState(); err != nil {
		return 0, err
	}

	h.pending = append(h.pending, p...)
	h.written += int64(len(p))
	chunkSize := int(h.media.ChunkSize())
	for len(h.pending) >= chunkSize {
		if err := h.emitChunk(h.pending[:chunkSize]); err != nil {
			return 0, err
		}
		h.pending = h.pending[chunkSize:]
	}
	h.offset = h.written
	return len(p), nil
}

func (h *Handle) writableState() error {
	switch h.state {
	case stateWrite:
		return nil
	case stateEmpty:
		return ewf.ErrNotOpen
	default:
		return ewf.ErrReadOnly
	}
}

// WriteAt writes p at offset off. During acquisition only strictly
// sequential writes are accepted: off must equal the bytes written so
// far. On a read-write handle WriteAt shadows the affected chunks
// through the container's delta file instead.
func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateWrite:
		if off != h.written {
			return 0, fmt.Errorf("%w: acquisition writes must be sequential (offset %d, expected %d)",
				ewf.ErrInvalidArgument, off, h.written)
		}
		h.pending = append(h.pending, p...)
		h.written += int64(len(p))
		chunkSize := int(h.media.ChunkSize())
		for len(h.pending) >= chunkSize {
			if err := h.emitChunk(h.pending[:chunkSize]); err != nil {
				return 0, err
			}
			h.pending = h.pending[chunkSize:]
		}
		return len(p), nil
	case stateReadWrite:
		return h.writeDelta(p, off)
	case stateEmpty:
		return 0, ewf.ErrNotOpen
	default:
		return 0, ewf.ErrReadOnly
	}
}

// emitChunk encodes one payload and appends it to the current segment,
// rolling to the next segment when the budget is exhausted. Called with
// the handle lock held.
func (h *Handle) emitChunk(payload []byte) error {
	if err := h.ensureStarted(); err != nil {
		return err
	}
	enc, err := codec.EncodeChunk(payload, codec.Options{
		Level:       h.cfg.Compression,
		EmptyBlock:  h.cfg.EmptyBlockCompression,
		PatternFill: h.cfg.PatternFillCompression,
	})
	if err != nil {
		return err
	}

	desc, err := h.writer.AppendChunk(enc.Data, enc.Flags)
	if errors.Is(err, segment.ErrSegmentFull) {
		if err := h.writer.Roll(); err != nil {
			return err
		}
		desc, err = h.writer.AppendChunk(enc.Data, enc.Flags)
	}
	if err != nil {
		return err
	}

	h.tbl.Append(desc)
	h.digests.Write(payload)
	return nil
}

// writeDelta overwrites chunks of a finished container by appending
// shadow copies to the delta file. Writes must stay inside the image.
func (h *Handle) writeDelta(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(h.media.MediaSize) {
		return 0, &ewf.OutOfRangeError{Offset: off, Size: int64(len(p))}
	}
	if len(p) == 0 {
		return 0, nil
	}
	if h.delta == nil {
		delta, err := segment.OpenDelta(h.pool, h.provider, h.firstPath, h.deltaFile, h.cfg.Logger)
		if err != nil {
			return 0, err
		}
		h.delta = delta
	}

	chunkSize := int64(h.media.ChunkSize())
	n := int64(0)
	for n < int64(len(p)) {
		index := uint64((off + n) / chunkSize)
		intra := (off + n) % chunkSize

		current, err := h.loadChunk(index)
		if err != nil {
			return int(n), err
		}
		payload := make([]byte, len(current))
		copy(payload, current)
		n += int64(copy(payload[intra:], p[n:]))

		enc, err := codec.EncodeChunk(payload, codec.Options{})
		if err != nil {
			return int(n), err
		}
		desc, err := h.delta.Append(index, enc.Data, enc.Flags)
		if err != nil {
			return int(n), err
		}
		if err := h.tbl.Shadow(index, desc); err != nil {
			return int(n), err
		}
		h.cache.Invalidate(index)
	}
	return int(n), nil
}
