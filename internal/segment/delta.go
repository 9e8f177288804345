package segment

import (
	"log/slog"

	"ewfkit/ewf"
	"ewfkit/fileio"
	"ewfkit/internal/iopool"
	"ewfkit/internal/logging"
	"ewfkit/internal/section"
	"ewfkit/internal/table"
)

// DeltaWriter appends delta_chunk sections to a container's sibling
// delta file. Each appended chunk shadows one chunk of the finished
// acquisition; the base segments are never touched.
type DeltaWriter struct {
	pool   *iopool.Pool
	logger *slog.Logger

	entry  int
	offset int64
}

// OpenDelta opens (or creates) the first delta file for the container
// whose first segment is basePath. existing is the scanned delta file
// when one is already on disk, nil otherwise; appending resumes over its
// done section.
func OpenDelta(pool *iopool.Pool, provider fileio.Provider, basePath string, existing *File, logger *slog.Logger) (*DeltaWriter, error) {
	naming, err := DeltaNaming(basePath)
	if err != nil {
		return nil, err
	}
	path, err := naming.Filename(1)
	if err != nil {
		return nil, err
	}

	d := &DeltaWriter{
		pool:   pool,
		logger: logging.Default(logger).With("component", "delta-writer"),
	}

	if existing != nil {
		d.entry = pool.Add(path, fileio.ReadWrite)
		if existing.Terminator != "" {
			d.offset = existing.TerminatorOffset
		} else {
			d.offset = existing.Size
		}
		return d, nil
	}

	d.entry = pool.Add(path, fileio.Create)
	hdr := section.EncodeFileHeader(ewf.SignatureEWF, 1)
	if _, err := pool.WriteAt(d.entry, hdr, 0); err != nil {
		return nil, err
	}
	d.offset = section.FileHeaderSize
	d.logger.Info("delta file created", "path", path)
	return d, nil
}

// Append writes one shadowing chunk and returns the descriptor that
// replaces the base chunk's in the table.
func (d *DeltaWriter) Append(index uint64, stored []byte, flags ewf.ChunkFlags) (table.Descriptor, error) {
	payload := section.EncodeDeltaChunk(index, stored)
	size := uint64(section.DescriptorSize + len(payload))
	descBytes := section.EncodeDescriptor(section.Descriptor{
		Type: section.TypeDelta,
		Next: uint64(d.offset) + size,
		Size: size,
	})
	if _, err := d.pool.WriteAt(d.entry, descBytes, d.offset); err != nil {
		return table.Descriptor{}, err
	}
	if _, err := d.pool.WriteAt(d.entry, payload, d.offset+section.DescriptorSize); err != nil {
		return table.Descriptor{}, err
	}
	storedAt := d.offset + section.DescriptorSize + int64(len(payload)-len(stored))
	d.offset += int64(size)
	return table.Descriptor{
		Segment: d.entry,
		Offset:  storedAt,
		Size:    uint32(len(stored)),
		Flags:   flags | ewf.ChunkDelta,
	}, nil
}

// Close terminates the delta file with a done section.
func (d *DeltaWriter) Close() error {
	desc := section.EncodeDescriptor(section.Descriptor{
		Type: section.TypeDone,
		Next: uint64(d.offset),
		Size: section.DescriptorSize,
	})
	_, err := d.pool.WriteAt(d.entry, desc, d.offset)
	return err
}
