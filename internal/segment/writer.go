package segment

import (
	"errors"
	"fmt"
	"log/slog"

	"ewfkit/ewf"
	"ewfkit/fileio"
	"ewfkit/internal/iopool"
	"ewfkit/internal/logging"
	"ewfkit/internal/section"
	"ewfkit/internal/table"
)

// ErrSegmentFull is returned by AppendChunk when the pending chunk plus
// the sections still owed to this segment would overflow the size budget.
// The caller rolls to the next segment and retries; chunks never split
// across segments.
var ErrSegmentFull = errors.New("segment budget exhausted")

// DefaultBudget is the default per-segment size budget (the EnCase
// default E01 segment size).
const DefaultBudget = 640 << 20

// closingAllowance over-reserves for the metadata sections the final
// segment appends after the tables (error2, session, digest, hash, done).
const closingAllowance = 4096

// StartInfo carries what the first segment's leading sections need.
type StartInfo struct {
	HeaderValues *ewf.Values
	Volume       section.Volume
}

// FinishInfo carries what the final segment's trailing sections need.
// Volume holds the final chunk and sector counts and is also patched
// back over the segment-1 volume payload.
type FinishInfo struct {
	Volume            section.Volume
	Digests           *section.Digests
	AcquisitionErrors []ewf.SectorRange
	Sessions          []ewf.SectorRange
}

// WriterConfig configures a Writer.
type WriterConfig struct {
	Pool   *iopool.Pool
	Format ewf.Format
	Budget int64 // per-segment byte budget; DefaultBudget when zero
	Logger *slog.Logger
}

// Writer is the per-segment write state machine:
//
//	start → header(s) → volume → sectors(open) →
//	        [chunk*] → sectors(close) → table → table2 →
//	        (roll) next → start' | (finish) error2? session? digest? hash? done
//
// Segments after the first lead with a data section instead of the
// header/volume pair.
type Writer struct {
	pool   *iopool.Pool
	format ewf.Format
	budget int64
	logger *slog.Logger

	naming       Naming
	headerValues *ewf.Values
	volume       section.Volume

	entry   int
	number  int
	offset  int64
	started bool

	sectorsDescOffset int64
	sectorsStart      int64
	entries           []section.TableEntry

	// maxChunks bounds chunks per segment by the uncompressed chunk
	// size, the way acquisition tools plan segment capacity. Without it
	// a highly compressible image would pack a whole disk into one
	// segment file.
	maxChunks int

	volumeEntry  int
	volumeOffset int64

	paths []string
}

// SegmentPaths returns the paths of the segments this writer has opened
// or resumed, in order.
func (w *Writer) SegmentPaths() []string {
	out := make([]string, len(w.paths))
	copy(out, w.paths)
	return out
}

// NewWriter returns an idle writer; Start or Resume brings it into a
// segment.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.Pool == nil {
		return nil, errors.New("segment: pool is required")
	}
	budget := cfg.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Writer{
		pool:   cfg.Pool,
		format: cfg.Format,
		budget: budget,
		logger: logging.Default(cfg.Logger).With("component", "segment-writer"),
	}, nil
}

// SegmentNumber returns the segment currently being written, zero before
// Start.
func (w *Writer) SegmentNumber() int {
	return w.number
}

// ChunksInSegment returns the number of chunks appended to the current
// segment.
func (w *Writer) ChunksInSegment() int {
	return len(w.entries)
}

// Start opens the first segment of a fresh container at path and emits
// its leading sections.
func (w *Writer) Start(path string, info StartInfo) error {
	if w.started {
		return ewf.ErrAlreadyOpen
	}
	naming, index, err := ParseName(path)
	if err != nil {
		return err
	}
	if index != 1 {
		return fmt.Errorf("%w: %q is not a first segment name", ewf.ErrInvalidArgument, path)
	}
	w.naming = naming
	w.headerValues = info.HeaderValues
	w.volume = info.Volume
	w.planCapacity()
	w.started = true
	return w.startSegment(1, path)
}

// planCapacity derives the per-segment chunk bound from the budget and
// the uncompressed chunk size.
func (w *Writer) planCapacity() {
	chunkSize := int64(w.volume.BytesPerSector) * int64(w.volume.SectorsPerChunk)
	if chunkSize <= 0 {
		w.maxChunks = section.MaxTableEntries
		return
	}
	n := (w.budget - closingAllowance) / chunkSize
	if n < 1 {
		n = 1
	}
	if n > section.MaxTableEntries {
		n = section.MaxTableEntries
	}
	w.maxChunks = int(n)
}

func (w *Writer) startSegment(number int, path string) error {
	w.entry = w.pool.Add(path, fileio.Create)
	w.number = number
	w.offset = 0
	w.paths = append(w.paths, path)

	hdr := section.EncodeFileHeader(w.format.Signature(), uint16(number))
	if _, err := w.pool.WriteAt(w.entry, hdr, 0); err != nil {
		return err
	}
	w.offset = section.FileHeaderSize

	if number == 1 {
		if err := w.writeLeadingSections(); err != nil {
			return err
		}
	} else {
		if err := w.writeSection(section.TypeData, section.EncodeVolume(w.volume)); err != nil {
			return err
		}
	}
	w.logger.Info("segment opened", "path", path, "number", number)
	return w.openSectors()
}

func (w *Writer) writeLeadingSections() error {
	narrow, err := section.EncodeHeader(w.headerValues, false)
	if err != nil {
		return err
	}
	if w.format.HasHeader2() {
		wide, err := section.EncodeHeader(w.headerValues, true)
		if err != nil {
			return err
		}
		if err := w.writeSection(section.TypeHeader2, wide); err != nil {
			return err
		}
		if err := w.writeSection(section.TypeHeader, narrow); err != nil {
			return err
		}
	} else {
		// Legacy EnCase writes the header twice.
		if err := w.writeSection(section.TypeHeader, narrow); err != nil {
			return err
		}
		if err := w.writeSection(section.TypeHeader, narrow); err != nil {
			return err
		}
	}
	if w.format.HasXHeader() {
		wide, err := section.EncodeHeader(w.headerValues, true)
		if err != nil {
			return err
		}
		if err := w.writeSection(section.TypeXHeader, wide); err != nil {
			return err
		}
	}

	w.volumeEntry = w.entry
	w.volumeOffset = w.offset + section.DescriptorSize
	return w.writeSection(section.TypeVolume, section.EncodeVolume(w.volume))
}

// openSectors reserves the sectors descriptor with a placeholder. The
// real size and next offset are patched in at segment close; a placeholder
// that survives a crash is what recovery keys on.
func (w *Writer) openSectors() error {
	w.sectorsDescOffset = w.offset
	placeholder := section.EncodeDescriptor(section.Descriptor{
		Type: section.TypeSectors,
	})
	if _, err := w.pool.WriteAt(w.entry, placeholder, w.offset); err != nil {
		return err
	}
	w.offset += section.DescriptorSize
	w.sectorsStart = w.offset
	w.entries = w.entries[:0]
	return nil
}

// AppendChunk writes one stored chunk into the open sectors run and
// returns its table descriptor. ErrSegmentFull means the chunk was not
// written and the segment must be rolled first.
func (w *Writer) AppendChunk(data []byte, flags ewf.ChunkFlags) (table.Descriptor, error) {
	if !w.started {
		return table.Descriptor{}, ewf.ErrNotOpen
	}
	if len(w.entries) > 0 {
		if len(w.entries) >= w.maxChunks {
			return table.Descriptor{}, ErrSegmentFull
		}
		rel := w.offset + int64(len(data)) - w.sectorsStart
		if rel > int64(section.EntryOffsetMask) {
			return table.Descriptor{}, ErrSegmentFull
		}
		if w.offset+int64(len(data))+w.closingOverhead() > w.budget {
			return table.Descriptor{}, ErrSegmentFull
		}
	}

	if _, err := w.pool.WriteAt(w.entry, data, w.offset); err != nil {
		return table.Descriptor{}, err
	}
	desc := table.Descriptor{
		Segment: w.entry,
		Offset:  w.offset,
		Size:    uint32(len(data)),
		Flags:   flags,
	}
	w.entries = append(w.entries, section.TableEntry{
		Offset:     uint32(w.offset - w.sectorsStart),
		Compressed: flags.Has(ewf.ChunkCompressed),
	})
	w.offset += int64(len(data))
	return desc, nil
}

// closingOverhead is the space still owed to this segment if one more
// chunk lands in it: patched sectors descriptor (already reserved), both
// table sections, the terminator, and the metadata allowance.
func (w *Writer) closingOverhead() int64 {
	tableSize := int64(section.DescriptorSize + section.TablePayloadSize(len(w.entries)+1))
	return 2*tableSize + section.DescriptorSize + closingAllowance
}

// Roll closes the current segment with a next section and opens the
// successor.
func (w *Writer) Roll() error {
	if !w.started {
		return ewf.ErrNotOpen
	}
	if err := w.closeSegmentTail(section.TypeNext); err != nil {
		return err
	}
	path, err := w.naming.Filename(w.number + 1)
	if err != nil {
		return err
	}
	return w.startSegment(w.number+1, path)
}

// Finish closes the current segment as the container's last: tables,
// optional metadata sections, the done terminator, and the volume patch
// with the final counts.
func (w *Writer) Finish(info FinishInfo) error {
	if !w.started {
		return ewf.ErrNotOpen
	}
	w.volume = info.Volume
	if err := w.closeSectors(); err != nil {
		return err
	}
	if err := w.writeTables(); err != nil {
		return err
	}
	if len(info.AcquisitionErrors) > 0 {
		if err := w.writeSection(section.TypeError2, section.EncodeRanges(info.AcquisitionErrors)); err != nil {
			return err
		}
	}
	if len(info.Sessions) > 0 {
		if err := w.writeSection(section.TypeSession, section.EncodeRanges(info.Sessions)); err != nil {
			return err
		}
	}
	if w.format.HasDigestSections() && info.Digests != nil {
		if err := w.writeSection(section.TypeDigest, section.EncodeDigest(*info.Digests)); err != nil {
			return err
		}
		if err := w.writeSection(section.TypeHash, section.EncodeHash(info.Digests.MD5)); err != nil {
			return err
		}
		if w.format.HasXHeader() {
			if err := w.writeSection(section.TypeXHash, section.EncodeHash(info.Digests.MD5)); err != nil {
				return err
			}
		}
	}
	if err := w.writeTerminator(section.TypeDone); err != nil {
		return err
	}

	// The segment-1 volume was written before the counts were known.
	if _, err := w.pool.WriteAt(w.volumeEntry, section.EncodeVolume(info.Volume), w.volumeOffset); err != nil {
		return err
	}
	w.started = false
	w.logger.Info("container finished", "segments", w.number)
	return nil
}

func (w *Writer) closeSegmentTail(terminator string) error {
	if err := w.closeSectors(); err != nil {
		return err
	}
	if err := w.writeTables(); err != nil {
		return err
	}
	return w.writeTerminator(terminator)
}

// closeSectors patches the placeholder descriptor with the final run
// size.
func (w *Writer) closeSectors() error {
	desc := section.EncodeDescriptor(section.Descriptor{
		Type: section.TypeSectors,
		Next: uint64(w.offset),
		Size: uint64(w.offset - w.sectorsDescOffset),
	})
	_, err := w.pool.WriteAt(w.entry, desc, w.sectorsDescOffset)
	return err
}

func (w *Writer) writeTables() error {
	payload := section.EncodeTable(section.Table{
		BaseOffset: uint64(w.sectorsStart),
		Entries:    w.entries,
	})
	if err := w.writeSection(section.TypeTable, payload); err != nil {
		return err
	}
	return w.writeSection(section.TypeTable2, payload)
}

func (w *Writer) writeSection(typ string, payload []byte) error {
	size := uint64(section.DescriptorSize + len(payload))
	desc := section.EncodeDescriptor(section.Descriptor{
		Type: typ,
		Next: uint64(w.offset) + size,
		Size: size,
	})
	if _, err := w.pool.WriteAt(w.entry, desc, w.offset); err != nil {
		return err
	}
	if _, err := w.pool.WriteAt(w.entry, payload, w.offset+section.DescriptorSize); err != nil {
		return err
	}
	w.offset += int64(size)
	return nil
}

// writeTerminator emits a done or next section: descriptor only, size of
// the descriptor itself, next pointing at its own offset.
func (w *Writer) writeTerminator(typ string) error {
	desc := section.EncodeDescriptor(section.Descriptor{
		Type: typ,
		Next: uint64(w.offset),
		Size: section.DescriptorSize,
	})
	if _, err := w.pool.WriteAt(w.entry, desc, w.offset); err != nil {
		return err
	}
	w.offset += section.DescriptorSize
	return nil
}

// Resume restores the writer into the interrupted segment of an existing
// container. recovered are the chunks salvaged from the open sectors run;
// the segment file is truncated right after the last of them. volumeEntry
// and volumeOffset locate the segment-1 volume payload for the final
// patch; they must belong to a writable pool entry.
func (w *Writer) Resume(firstPath string, f *File, recovered []Recovered, info StartInfo, volumeEntry int, volumeOffset int64) error {
	if w.started {
		return ewf.ErrAlreadyOpen
	}
	naming, _, err := ParseName(firstPath)
	if err != nil {
		return err
	}
	if f.OpenSectors == nil {
		return fmt.Errorf("%w: segment %d has no open chunk run", ewf.ErrInvalidArgument, f.Number)
	}

	w.naming = naming
	w.headerValues = info.HeaderValues
	w.volume = info.Volume
	w.volumeEntry = volumeEntry
	w.volumeOffset = volumeOffset
	w.planCapacity()

	w.entry = w.pool.Add(f.Path, fileio.ReadWrite)
	w.number = int(f.Number)
	w.paths = append(w.paths, f.Path)
	w.sectorsDescOffset = f.OpenSectors.DescOffset
	w.sectorsStart = f.OpenSectors.DataStart

	end := w.sectorsStart
	w.entries = w.entries[:0]
	for _, r := range recovered {
		w.entries = append(w.entries, section.TableEntry{
			Offset:     uint32(r.Offset - w.sectorsStart),
			Compressed: r.Compressed,
		})
		end = r.Offset + int64(r.Size)
	}
	if err := w.pool.Truncate(w.entry, end); err != nil {
		return err
	}
	w.offset = end
	w.started = true
	w.logger.Info("acquisition resumed",
		"path", f.Path, "number", f.Number, "recovered", len(recovered))
	return nil
}

// ResumeNext restores the writer after a crash that landed between
// segments: the last existing segment closed cleanly with a next section,
// so writing continues in a brand-new successor.
func (w *Writer) ResumeNext(firstPath string, lastNumber int, info StartInfo, volumeEntry int, volumeOffset int64) error {
	if w.started {
		return ewf.ErrAlreadyOpen
	}
	naming, _, err := ParseName(firstPath)
	if err != nil {
		return err
	}
	w.naming = naming
	w.headerValues = info.HeaderValues
	w.volume = info.Volume
	w.volumeEntry = volumeEntry
	w.volumeOffset = volumeOffset
	w.planCapacity()
	w.started = true

	path, err := naming.Filename(lastNumber + 1)
	if err != nil {
		return err
	}
	return w.startSegment(lastNumber+1, path)
}
