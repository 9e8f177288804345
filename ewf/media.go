package ewf

// MediaType describes the acquired source device.
type MediaType byte

const (
	MediaTypeRemovable MediaType = 0x00
	MediaTypeFixed     MediaType = 0x01
	MediaTypeOptical   MediaType = 0x03
	MediaTypeSingle    MediaType = 0x0e // logical evidence / single file
	MediaTypeMemory    MediaType = 0x10 // RAM
)

func (t MediaType) String() string {
	switch t {
	case MediaTypeRemovable:
		return "removable"
	case MediaTypeFixed:
		return "fixed"
	case MediaTypeOptical:
		return "optical"
	case MediaTypeSingle:
		return "single-file"
	case MediaTypeMemory:
		return "memory"
	}
	return "unknown"
}

// MediaFlags qualify the acquisition.
type MediaFlags byte

const (
	MediaFlagImage    MediaFlags = 0x01
	MediaFlagPhysical MediaFlags = 0x02
	MediaFlagFastbloc MediaFlags = 0x04
	MediaFlagTableau  MediaFlags = 0x08
)

// CompressionLevel selects the deflate effort for stored chunks.
type CompressionLevel byte

const (
	CompressionNone CompressionLevel = 0x00
	CompressionFast CompressionLevel = 0x01
	CompressionBest CompressionLevel = 0x02
)

func (l CompressionLevel) String() string {
	switch l {
	case CompressionNone:
		return "none"
	case CompressionFast:
		return "fast"
	case CompressionBest:
		return "best"
	}
	return "unknown"
}

// MediaInfo holds the media parameters of a container. They are fixed once
// the first chunk of an acquisition has been written.
type MediaInfo struct {
	BytesPerSector   uint32
	SectorsPerChunk  uint32
	SectorCount      uint64
	MediaSize        uint64
	MediaType        MediaType
	MediaFlags       MediaFlags
	CompressionLevel CompressionLevel
	ErrorGranularity uint32
	GUID             [16]byte
}

// ChunkSize is bytes-per-sector times sectors-per-chunk. Zero when the
// parameters have not been set.
func (m MediaInfo) ChunkSize() uint32 {
	return m.BytesPerSector * m.SectorsPerChunk
}

// ChunkCount is the number of chunks needed for MediaSize bytes, the last
// chunk possibly short.
func (m MediaInfo) ChunkCount() uint64 {
	cs := uint64(m.ChunkSize())
	if cs == 0 || m.MediaSize == 0 {
		return 0
	}
	return (m.MediaSize + cs - 1) / cs
}

// ChunkFlags annotate a chunk descriptor.
type ChunkFlags uint8

const (
	ChunkCompressed ChunkFlags = 1 << iota
	ChunkHasChecksum
	ChunkPatternFill
	ChunkCorrupt
	ChunkDelta
	ChunkTainted
)

// Has reports whether all bits of mask are set.
func (f ChunkFlags) Has(mask ChunkFlags) bool {
	return f&mask == mask
}
