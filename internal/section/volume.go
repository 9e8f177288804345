package section

import (
	"encoding/binary"
	"hash/adler32"

	"ewfkit/ewf"
)

// VolumePayloadSize is the media-parameter payload carried by the volume,
// disk, and data sections. Field offsets below; everything between the
// GUID and the trailing signature bytes is padding, except the exact
// media size stored at offset 60.
const VolumePayloadSize = 1052

const (
	volMediaType        = 0
	volChunkCount       = 4
	volSectorsPerChunk  = 8
	volBytesPerSector   = 12
	volSectorCount      = 16
	volMediaFlags       = 20
	volPalmStart        = 24
	volSmartStart       = 28
	volCompressionLevel = 32
	volErrorGranularity = 36
	volGUID             = 44
	volMediaSize        = 60
	volSignature        = 1043
	volChecksum         = 1048
)

// Volume is the decoded media-parameter payload. MediaSize is the exact
// image byte length; a zero value (containers from writers that leave
// the field as padding) means the image is sector-count whole sectors.
type Volume struct {
	MediaType        ewf.MediaType
	ChunkCount       uint32
	SectorsPerChunk  uint32
	BytesPerSector   uint32
	SectorCount      uint32
	MediaFlags       ewf.MediaFlags
	CompressionLevel ewf.CompressionLevel
	ErrorGranularity uint32
	GUID             [16]byte
	MediaSize        uint64
}

// EncodeVolume serializes the payload. The Adler-32 covers everything
// before the checksum field.
func EncodeVolume(v Volume) []byte {
	buf := make([]byte, VolumePayloadSize)
	buf[volMediaType] = byte(v.MediaType)
	binary.LittleEndian.PutUint32(buf[volChunkCount:], v.ChunkCount)
	binary.LittleEndian.PutUint32(buf[volSectorsPerChunk:], v.SectorsPerChunk)
	binary.LittleEndian.PutUint32(buf[volBytesPerSector:], v.BytesPerSector)
	binary.LittleEndian.PutUint32(buf[volSectorCount:], uint32(v.SectorCount))
	buf[volMediaFlags] = byte(v.MediaFlags)
	buf[volCompressionLevel] = byte(v.CompressionLevel)
	binary.LittleEndian.PutUint32(buf[volErrorGranularity:], v.ErrorGranularity)
	copy(buf[volGUID:volGUID+16], v.GUID[:])
	binary.LittleEndian.PutUint64(buf[volMediaSize:], v.MediaSize)
	binary.LittleEndian.PutUint32(buf[volChecksum:], adler32.Checksum(buf[:volChecksum]))
	return buf
}

// DecodeVolume parses the payload, verifying its checksum.
func DecodeVolume(buf []byte, offset int64) (Volume, error) {
	if len(buf) < VolumePayloadSize {
		return Volume{}, ewf.ErrTruncated
	}
	stored := binary.LittleEndian.Uint32(buf[volChecksum:])
	computed := adler32.Checksum(buf[:volChecksum])
	if stored != computed {
		return Volume{}, &ewf.ChecksumError{
			Kind:     ewf.ChecksumSection,
			At:       offset,
			Stored:   stored,
			Computed: computed,
		}
	}
	v := Volume{
		MediaType:        ewf.MediaType(buf[volMediaType]),
		ChunkCount:       binary.LittleEndian.Uint32(buf[volChunkCount:]),
		SectorsPerChunk:  binary.LittleEndian.Uint32(buf[volSectorsPerChunk:]),
		BytesPerSector:   binary.LittleEndian.Uint32(buf[volBytesPerSector:]),
		SectorCount:      binary.LittleEndian.Uint32(buf[volSectorCount:]),
		MediaFlags:       ewf.MediaFlags(buf[volMediaFlags]),
		CompressionLevel: ewf.CompressionLevel(buf[volCompressionLevel]),
		ErrorGranularity: binary.LittleEndian.Uint32(buf[volErrorGranularity:]),
	}
	copy(v.GUID[:], buf[volGUID:volGUID+16])
	v.MediaSize = binary.LittleEndian.Uint64(buf[volMediaSize:])
	return v, nil
}
