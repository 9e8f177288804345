package ewfkit

import (
	"fmt"

	"ewfkit/ewf"
	"ewfkit/fileio"
	"ewfkit/internal/segment"
)

// Media returns the container's media parameters. During acquisition the
// media size reflects the bytes written so far.
func (h *Handle) Media() ewf.MediaInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	media := h.media
	if h.state == stateWrite {
		media.MediaSize = uint64(h.written)
	}
	return media
}

// Format returns the container's format variant.
func (h *Handle) Format() ewf.Format {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.format
}

// Tainted reports whether structural damage was tolerated while opening
// the container (corrupt descriptors or table copies).
func (h *Handle) Tainted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.tainted
}

// setMedia applies fn to the media parameters. Setters are only valid on
// a write handle before the first chunk is stored.
func (h *Handle) setMedia(fn func(*ewf.MediaInfo)) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == stateEmpty {
		return ewf.ErrNotOpen
	}
	if h.state != stateWrite {
		return ewf.ErrReadOnly
	}
	if h.frozen {
		return ewf.ErrImmutable
	}
	fn(&h.media)
	return nil
}

// SetBytesPerSector sets the sector size of the source device.
func (h *Handle) SetBytesPerSector(n uint32) error {
	if n == 0 {
		return fmt.Errorf("%w: zero bytes per sector", ewf.ErrInvalidArgument)
	}
	return h.setMedia(func(m *ewf.MediaInfo) { m.BytesPerSector = n })
}

// SetSectorsPerChunk sets how many sectors one chunk covers.
func (h *Handle) SetSectorsPerChunk(n uint32) error {
	if n == 0 {
		return fmt.Errorf("%w: zero sectors per chunk", ewf.ErrInvalidArgument)
	}
	return h.setMedia(func(m *ewf.MediaInfo) { m.SectorsPerChunk = n })
}

// SetMediaType sets the source device kind.
func (h *Handle) SetMediaType(t ewf.MediaType) error {
	return h.setMedia(func(m *ewf.MediaInfo) { m.MediaType = t })
}

// SetMediaFlags sets the acquisition qualifier flags.
func (h *Handle) SetMediaFlags(f ewf.MediaFlags) error {
	return h.setMedia(func(m *ewf.MediaInfo) { m.MediaFlags = f })
}

// SetErrorGranularity sets the sector granularity for acquisition error
// bookkeeping.
func (h *Handle) SetErrorGranularity(n uint32) error {
	if n == 0 {
		return fmt.Errorf("%w: zero error granularity", ewf.ErrInvalidArgument)
	}
	return h.setMedia(func(m *ewf.MediaInfo) { m.ErrorGranularity = n })
}

// SetHeaderValue stores an acquisition metadata value (case_number,
// evidence_number, acquiry_date, ...). Valid on a write handle before the
// first chunk is stored; insertion order round-trips.
func (h *Handle) SetHeaderValue(identifier, value string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == stateEmpty {
		return ewf.ErrNotOpen
	}
	if h.state != stateWrite {
		return ewf.ErrReadOnly
	}
	if h.frozen {
		return ewf.ErrImmutable
	}
	if identifier == "" {
		return fmt.Errorf("%w: empty header identifier", ewf.ErrInvalidArgument)
	}
	h.headerValues.Set(identifier, value)
	return nil
}

// HeaderValue returns one acquisition metadata value.
func (h *Handle) HeaderValue(identifier string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.headerValues == nil {
		return "", false
	}
	return h.headerValues.Get(identifier)
}

// HeaderIdentifiers returns the header identifiers in insertion order.
func (h *Handle) HeaderIdentifiers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.headerValues == nil {
		return nil
	}
	return h.headerValues.Identifiers()
}

// HashValue returns a stored image digest (for example "MD5", "SHA1") as
// lowercase hex. On a read handle these come from the digest and hash
// sections. A write handle reports none: the digests are computed during
// Close and written to the container, and Close then resets the handle.
func (h *Handle) HashValue(name string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.hashValues == nil {
		return "", false
	}
	return h.hashValues.Get(name)
}

// HashIdentifiers returns the stored digest names.
func (h *Handle) HashIdentifiers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.hashValues == nil {
		return nil
	}
	return h.hashValues.Identifiers()
}

// AddAcquisitionError records a source sector range that could not be
// read while imaging. Stored in the error2 section at close.
func (h *Handle) AddAcquisitionError(first uint64, count uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.writableState(); err != nil {
		return err
	}
	h.errMu.Lock()
	h.acquisitionErrors = ewf.AppendRange(h.acquisitionErrors, ewf.SectorRange{First: first, Count: count})
	h.errMu.Unlock()
	return nil
}

// AcquisitionErrors returns the unreadable source ranges recorded during
// imaging.
func (h *Handle) AcquisitionErrors() []ewf.SectorRange {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	out := make([]ewf.SectorRange, len(h.acquisitionErrors))
	copy(out, h.acquisitionErrors)
	return out
}

// AddSession records an optical-media session range. Stored in the
// session section at close.
func (h *Handle) AddSession(first uint64, count uint32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.writableState(); err != nil {
		return err
	}
	h.errMu.Lock()
	h.sessions = append(h.sessions, ewf.SectorRange{First: first, Count: count})
	h.errMu.Unlock()
	return nil
}

// Sessions returns the optical-media session ranges.
func (h *Handle) Sessions() []ewf.SectorRange {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	out := make([]ewf.SectorRange, len(h.sessions))
	copy(out, h.sessions)
	return out
}

// ChecksumErrors returns the sector ranges of chunks that failed
// verification on read. The list grows as bad chunks are first touched.
func (h *Handle) ChecksumErrors() []ewf.SectorRange {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	out := make([]ewf.SectorRange, len(h.checksumErrors))
	copy(out, h.checksumErrors)
	return out
}

// ChunkFlags returns the descriptor flags of one chunk.
func (h *Handle) ChunkFlags(index uint64) (ewf.ChunkFlags, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.tbl == nil {
		return 0, false
	}
	desc, ok := h.tbl.At(index)
	if !ok {
		return 0, false
	}
	return desc.Flags, true
}

// ChunkCount returns the number of chunks in the table.
func (h *Handle) ChunkCount() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.tbl == nil {
		return 0
	}
	return h.tbl.Len()
}

// SegmentFilenames returns the container's segment filenames written so
// far on a write handle.
func (h *Handle) SegmentFilenames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.writer == nil {
		return nil
	}
	return h.writer.SegmentPaths()
}

// Glob enumerates the existing segment files of the container whose
// first segment is path, in ascending segment order, using the host
// filesystem.
func Glob(path string) ([]string, error) {
	return GlobWith(nil, path)
}

// GlobWith is Glob over an explicit provider. A nil provider means the
// host filesystem.
func GlobWith(provider fileio.Provider, path string) ([]string, error) {
	if provider == nil {
		provider = fileio.OS()
	}
	return segment.Glob(provider, path)
}
