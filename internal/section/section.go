// Package section implements the on-disk framing of segment files: the
// 13-byte file header and the 76-byte section descriptors that chain a
// segment's sections together, plus the payload codecs for every section
// type the engine reads or writes.
//
// All integers are little-endian. Every descriptor and most payloads carry
// an Adler-32 over the bytes preceding the checksum field.
package section

import (
	"encoding/binary"
	"fmt"
	"hash/adler32"

	"ewfkit/ewf"
)

// Section type strings (NUL-padded to 16 bytes on disk).
const (
	TypeHeader  = "header"
	TypeHeader2 = "header2"
	TypeXHeader = "xheader"
	TypeVolume  = "volume"
	TypeDisk    = "disk"
	TypeData    = "data"
	TypeTable   = "table"
	TypeTable2  = "table2"
	TypeSectors = "sectors"
	TypeNext    = "next"
	TypeDone    = "done"
	TypeDigest  = "digest"
	TypeHash    = "hash"
	TypeXHash   = "xhash"
	TypeSession = "session"
	TypeError2  = "error2"
	TypeLTree   = "ltree"
	TypeLType   = "ltype"
	TypeDelta   = "delta_chunk"
)

const (
	// FileHeaderSize is the fixed prologue of every segment file:
	// signature(8), fields-start(1), segment-number(2), fields-end(2).
	FileHeaderSize = 13

	// DescriptorSize is the v1 section descriptor: type(16), next(8),
	// size(8), padding(40), checksum(4).
	DescriptorSize = 76

	descriptorChecksummed = DescriptorSize - 4

	typeFieldSize = 16
)

// EncodeFileHeader serializes the segment file prologue.
func EncodeFileHeader(signature []byte, segmentNumber uint16) []byte {
	buf := make([]byte, FileHeaderSize)
	copy(buf, signature[:8])
	buf[8] = 0x01
	binary.LittleEndian.PutUint16(buf[9:11], segmentNumber)
	// fields-end is two zero bytes
	return buf
}

// DecodeFileHeader validates the prologue and returns the signature family
// and segment number.
func DecodeFileHeader(buf []byte) (ewf.SignatureFamily, uint16, error) {
	if len(buf) < FileHeaderSize {
		return ewf.FamilyNone, 0, ewf.ErrTruncated
	}
	family := ewf.MatchSignature(buf[:8])
	if family == ewf.FamilyNone {
		return ewf.FamilyNone, 0, ewf.ErrSignatureMismatch
	}
	if buf[8] != 0x01 {
		return ewf.FamilyNone, 0, fmt.Errorf("%w: bad fields-start byte %#02x", ewf.ErrSignatureMismatch, buf[8])
	}
	number := binary.LittleEndian.Uint16(buf[9:11])
	return family, number, nil
}

// Descriptor is one section's on-disk header. Offset is where the
// descriptor was read or written; it is not serialized.
type Descriptor struct {
	Type   string
	Next   uint64 // absolute offset of the next section in the segment
	Size   uint64 // total section size including the descriptor
	Offset int64
}

// PayloadSize is the section payload length, zero for terminators and
// placeholder descriptors.
func (d Descriptor) PayloadSize() int64 {
	if d.Size < DescriptorSize {
		return 0
	}
	return int64(d.Size) - DescriptorSize
}

// EncodeDescriptor serializes a v1 section descriptor.
func EncodeDescriptor(d Descriptor) []byte {
	buf := make([]byte, DescriptorSize)
	copy(buf[:typeFieldSize], d.Type)
	binary.LittleEndian.PutUint64(buf[16:24], d.Next)
	binary.LittleEndian.PutUint64(buf[24:32], d.Size)
	// bytes 32..71 stay zero
	binary.LittleEndian.PutUint32(buf[descriptorChecksummed:], adler32.Checksum(buf[:descriptorChecksummed]))
	return buf
}

// DecodeDescriptor parses a v1 section descriptor read at offset. On an
// Adler-32 mismatch the parsed fields are still returned alongside the
// ChecksumError so a scanner can attempt to skip past a damaged section.
func DecodeDescriptor(buf []byte, offset int64) (Descriptor, error) {
	if len(buf) < DescriptorSize {
		return Descriptor{}, ewf.ErrTruncated
	}
	d := Descriptor{
		Type:   trimType(buf[:typeFieldSize]),
		Next:   binary.LittleEndian.Uint64(buf[16:24]),
		Size:   binary.LittleEndian.Uint64(buf[24:32]),
		Offset: offset,
	}
	stored := binary.LittleEndian.Uint32(buf[descriptorChecksummed:DescriptorSize])
	computed := adler32.Checksum(buf[:descriptorChecksummed])
	if stored != computed {
		return d, &ewf.ChecksumError{
			Kind:     ewf.ChecksumSection,
			At:       offset,
			Stored:   stored,
			Computed: computed,
		}
	}
	return d, nil
}

func trimType(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return string(b[:end])
}
