package segment

import (
	"errors"
	"fmt"
	"log/slog"

	"ewfkit/ewf"
	"ewfkit/internal/iopool"
	"ewfkit/internal/section"
)

// maxMetadataPayload bounds how much of a metadata section the scanner
// will pull into memory. Sectors payloads are never read here.
const maxMetadataPayload = 16 << 20

// TableRun pairs a table section with its redundant copy and the sectors
// run the entries index into.
type TableRun struct {
	Table     section.Table
	TableErr  error
	Table2    *section.Table
	Table2Err error

	SectorsStart int64 // absolute offset of the first chunk byte
	SectorsEnd   int64 // absolute offset one past the last chunk byte
}

// DeltaChunk is one shadowing chunk found in a delta segment.
type DeltaChunk struct {
	Index  uint64
	Offset int64 // absolute offset of the stored chunk bytes
	Size   uint32
}

// OpenRun marks an interrupted sectors section: the descriptor was a
// placeholder and the chunk run was never closed. Recovery starts at
// DataStart.
type OpenRun struct {
	DescOffset int64
	DataStart  int64
}

// File is one scanned segment file.
type File struct {
	Entry  int
	Path   string
	Number uint16
	Family ewf.SignatureFamily
	Size   int64

	Tainted          bool
	Terminator       string // "done", "next", or "" when the segment is incomplete
	TerminatorOffset int64

	Volume       *section.Volume
	VolumeOffset int64 // absolute offset of the volume payload

	Tables      []TableRun
	DeltaChunks []DeltaChunk
	OpenSectors *OpenRun

	HeaderPayload  []byte
	Header2Payload []byte
	XHeaderPayload []byte
	LTreePayload   []byte

	DigestPayload  []byte
	DigestOffset   int64
	HashPayload    []byte
	HashOffset     int64
	SessionPayload []byte
	SessionOffset  int64
	Error2Payload  []byte
	Error2Offset   int64
}

// Incomplete reports whether the segment lacks a terminator section.
func (f *File) Incomplete() bool {
	return f.Terminator == ""
}

// Read scans one segment file into its section inventory. Corrupt section
// descriptors taint the segment but do not fail the scan: when the
// damaged descriptor still carries a plausible next offset the scanner
// skips ahead, otherwise it stops at the damage.
func Read(pool *iopool.Pool, entry int, logger *slog.Logger) (*File, error) {
	size, err := pool.Size(entry)
	if err != nil {
		return nil, err
	}

	hdr := make([]byte, section.FileHeaderSize)
	if _, err := pool.ReadAt(entry, hdr, 0); err != nil {
		return nil, fmt.Errorf("%w: segment file header", ewf.ErrTruncated)
	}
	family, number, err := section.DecodeFileHeader(hdr)
	if err != nil {
		return nil, err
	}
	if family == ewf.FamilyEVF2 {
		return nil, fmt.Errorf("%w: EVF2 (Ex01) containers", ewf.ErrUnsupportedFormat)
	}

	f := &File{
		Entry:  entry,
		Path:   pool.Path(entry),
		Number: number,
		Family: family,
		Size:   size,
	}

	var lastSectors *TableRun // pending sectors bounds for the next table
	var pendingSectors [2]int64
	havePendingSectors := false

	off := int64(section.FileHeaderSize)
	buf := make([]byte, section.DescriptorSize)
scan:
	for off+section.DescriptorSize <= size {
		if _, err := pool.ReadAt(entry, buf, off); err != nil {
			f.Tainted = true
			break
		}
		desc, derr := section.DecodeDescriptor(buf, off)
		if derr != nil {
			if !errors.Is(derr, ewf.ErrBadChecksum) {
				return nil, derr
			}
			f.Tainted = true
			logger.Warn("corrupt section descriptor",
				"path", f.Path, "offset", off)
			// Skip ahead when the damaged descriptor still looks sane.
			if desc.Next > uint64(off)+section.DescriptorSize && desc.Next <= uint64(size) {
				off = int64(desc.Next)
				continue
			}
			break
		}

		payloadAt := off + section.DescriptorSize
		switch desc.Type {
		case section.TypeVolume, section.TypeDisk, section.TypeData:
			payload, err := readPayload(pool, entry, desc, payloadAt)
			if err != nil {
				return nil, err
			}
			if f.Volume == nil {
				v, err := section.DecodeVolume(payload, payloadAt)
				if err != nil {
					if !errors.Is(err, ewf.ErrBadChecksum) {
						return nil, err
					}
					f.Tainted = true
				} else {
					f.Volume = &v
					f.VolumeOffset = payloadAt
				}
			}

		case section.TypeHeader, section.TypeHeader2, section.TypeXHeader,
			section.TypeLTree, section.TypeLType:
			payload, err := readPayload(pool, entry, desc, payloadAt)
			if err != nil {
				return nil, err
			}
			switch desc.Type {
			case section.TypeHeader:
				f.HeaderPayload = payload
			case section.TypeHeader2:
				f.Header2Payload = payload
			case section.TypeXHeader:
				f.XHeaderPayload = payload
			default:
				f.LTreePayload = payload
			}

		case section.TypeSectors:
			if desc.Size == 0 {
				// Placeholder descriptor: the acquisition was
				// interrupted with this chunk run open.
				f.OpenSectors = &OpenRun{DescOffset: off, DataStart: payloadAt}
				break scan
			}
			pendingSectors = [2]int64{payloadAt, off + int64(desc.Size)}
			havePendingSectors = true

		case section.TypeTable:
			payload, err := readPayload(pool, entry, desc, payloadAt)
			if err != nil {
				return nil, err
			}
			t, terr := section.DecodeTable(payload, payloadAt)
			if terr != nil && !errors.Is(terr, ewf.ErrBadChecksum) {
				return nil, terr
			}
			run := TableRun{Table: t, TableErr: terr}
			if havePendingSectors {
				run.SectorsStart = pendingSectors[0]
				run.SectorsEnd = pendingSectors[1]
				havePendingSectors = false
			}
			f.Tables = append(f.Tables, run)
			lastSectors = &f.Tables[len(f.Tables)-1]

		case section.TypeTable2:
			payload, err := readPayload(pool, entry, desc, payloadAt)
			if err != nil {
				return nil, err
			}
			t, terr := section.DecodeTable(payload, payloadAt)
			if terr != nil && !errors.Is(terr, ewf.ErrBadChecksum) {
				return nil, terr
			}
			if lastSectors != nil && lastSectors.Table2 == nil {
				lastSectors.Table2 = &t
				lastSectors.Table2Err = terr
			}

		case section.TypeDigest:
			f.DigestPayload, err = readPayload(pool, entry, desc, payloadAt)
			if err != nil {
				return nil, err
			}
			f.DigestOffset = payloadAt

		case section.TypeHash:
			f.HashPayload, err = readPayload(pool, entry, desc, payloadAt)
			if err != nil {
				return nil, err
			}
			f.HashOffset = payloadAt

		case section.TypeSession:
			f.SessionPayload, err = readPayload(pool, entry, desc, payloadAt)
			if err != nil {
				return nil, err
			}
			f.SessionOffset = payloadAt

		case section.TypeError2:
			f.Error2Payload, err = readPayload(pool, entry, desc, payloadAt)
			if err != nil {
				return nil, err
			}
			f.Error2Offset = payloadAt

		case section.TypeDelta:
			payload, err := readPayload(pool, entry, desc, payloadAt)
			if err != nil {
				return nil, err
			}
			index, stored, err := section.DecodeDeltaChunk(payload)
			if err != nil {
				return nil, err
			}
			f.DeltaChunks = append(f.DeltaChunks, DeltaChunk{
				Index:  index,
				Offset: payloadAt + int64(len(payload)-len(stored)),
				Size:   uint32(len(stored)),
			})

		case section.TypeNext, section.TypeDone:
			f.Terminator = desc.Type
			f.TerminatorOffset = off
			break scan
		}

		if desc.Next <= uint64(off) {
			break
		}
		off = int64(desc.Next)
	}

	return f, nil
}

func readPayload(pool *iopool.Pool, entry int, desc section.Descriptor, at int64) ([]byte, error) {
	n := desc.PayloadSize()
	if n == 0 {
		return nil, nil
	}
	if n > maxMetadataPayload {
		return nil, fmt.Errorf("%w: %s section claims %d payload bytes", ewf.ErrTruncated, desc.Type, n)
	}
	payload := make([]byte, n)
	if _, err := pool.ReadAt(entry, payload, at); err != nil {
		return nil, fmt.Errorf("%s section payload: %w", desc.Type, ewf.ErrTruncated)
	}
	return payload, nil
}
