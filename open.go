package ewfkit

import (
	"fmt"

	"github.com/google/uuid"

	"ewfkit/ewf"
	"ewfkit/fileio"
	"ewfkit/internal/cache"
	"ewfkit/internal/digest"
	"ewfkit/internal/iopool"
	"ewfkit/internal/segment"
	"ewfkit/internal/section"
	"ewfkit/internal/table"
)

func (h *Handle) newPool() error {
	pool, err := iopool.New(iopool.Config{
		Provider: h.provider,
		Capacity: h.cfg.PoolCapacity,
		Logger:   h.cfg.Logger,
	})
	if err != nil {
		return err
	}
	chunkCache, err := cache.New(h.cfg.CacheSize)
	if err != nil {
		return err
	}
	h.pool = pool
	h.cache = chunkCache
	return nil
}

// openRead scans an existing container and builds the chunk table.
func (h *Handle) openRead(path string, target handleState) error {
	if err := h.newPool(); err != nil {
		return err
	}
	set, err := segment.OpenSet(h.pool, h.provider, path, false, h.logger)
	if err != nil {
		return err
	}
	summary, err := set.Summarize(h.logger)
	if err != nil {
		return err
	}

	h.firstPath = path
	h.format = set.InferFormat()
	tbl, tableTainted := set.BuildTable(h.logger)
	h.tbl = tbl
	h.applyVolume(summary.Volume)
	h.headerValues = summary.HeaderValues
	h.hashValues = ewf.NewValues()
	h.tainted = summary.Tainted || tableTainted
	h.acquisitionErrors = summary.AcquisitionErrors
	h.sessions = summary.Sessions
	if summary.Digests != nil {
		h.applyDigests(*summary.Digests)
	}

	if h.tbl.Len() < h.media.ChunkCount() {
		return fmt.Errorf("%w: table lists %d of %d chunks",
			ewf.ErrTruncated, h.tbl.Len(), h.media.ChunkCount())
	}

	if err := h.loadDeltaSet(path); err != nil {
		return err
	}

	h.state = target
	h.logger.Info("container opened",
		"path", path, "format", h.format, "segments", len(set.Files),
		"chunks", h.tbl.Len(), "media_size", h.media.MediaSize)
	return nil
}

// loadDeltaSet applies the shadow chunks of an existing delta file.
func (h *Handle) loadDeltaSet(basePath string) error {
	naming, err := segment.DeltaNaming(basePath)
	if err != nil {
		return err
	}
	deltaPath, err := naming.Filename(1)
	if err != nil {
		return err
	}
	ok, err := h.provider.Exists(deltaPath)
	if err != nil || !ok {
		return err
	}

	entry := h.pool.Add(deltaPath, fileio.ReadOnly)
	f, err := segment.Read(h.pool, entry, h.logger)
	if err != nil {
		return fmt.Errorf("delta file %s: %w", deltaPath, err)
	}
	for _, dc := range f.DeltaChunks {
		err := h.tbl.Shadow(dc.Index, table.Descriptor{
			Segment: entry,
			Offset:  dc.Offset,
			Size:    dc.Size,
			Flags:   ewf.ChunkHasChecksum,
		})
		if err != nil {
			return fmt.Errorf("delta file %s: %w", deltaPath, err)
		}
	}
	h.deltaFile = f
	h.logger.Info("delta file loaded", "path", deltaPath, "chunks", len(f.DeltaChunks))
	return nil
}

// openWrite prepares a fresh acquisition. Segment 1 is not created until
// the first chunk is emitted, so media parameters and header values can
// still be set.
func (h *Handle) openWrite(path string) error {
	if _, index, err := segment.ParseName(path); err != nil {
		return err
	} else if index != 1 {
		return fmt.Errorf("%w: %q is not a first segment name", ewf.ErrInvalidArgument, path)
	}
	if err := h.newPool(); err != nil {
		return err
	}
	writer, err := segment.NewWriter(segment.WriterConfig{
		Pool:   h.pool,
		Format: h.cfg.Format,
		Budget: h.cfg.SegmentBudget,
		Logger: h.cfg.Logger,
	})
	if err != nil {
		return err
	}

	h.writer = writer
	h.firstPath = path
	h.format = h.cfg.Format
	h.tbl = table.New(0)
	h.headerValues = ewf.NewValues()
	h.hashValues = ewf.NewValues()
	h.digests = digest.NewSet()
	h.media = defaultMedia()
	h.media.GUID = [16]byte(uuid.New())
	h.state = stateWrite
	return nil
}

func defaultMedia() ewf.MediaInfo {
	return ewf.MediaInfo{
		BytesPerSector:   512,
		SectorsPerChunk:  64,
		MediaType:        ewf.MediaTypeFixed,
		MediaFlags:       ewf.MediaFlagPhysical,
		ErrorGranularity: 64,
	}
}

// openResume reattaches to an interrupted acquisition: scan what exists,
// salvage complete chunks from the open sectors run of the last segment,
// truncate the torn tail, and restore the writer state.
func (h *Handle) openResume(path string) error {
	if err := h.newPool(); err != nil {
		return err
	}
	set, err := segment.OpenSet(h.pool, h.provider, path, true, h.logger)
	if err != nil {
		return err
	}
	summary, err := set.Summarize(h.logger)
	if err != nil {
		return err
	}

	h.firstPath = path
	h.format = set.InferFormat()
	tbl, tableTainted := set.BuildTable(h.logger)
	h.tbl = tbl
	h.tainted = tableTainted
	h.applyVolume(summary.Volume)
	h.headerValues = summary.HeaderValues
	h.hashValues = ewf.NewValues()

	writer, err := segment.NewWriter(segment.WriterConfig{
		Pool:   h.pool,
		Format: h.format,
		Budget: h.cfg.SegmentBudget,
		Logger: h.cfg.Logger,
	})
	if err != nil {
		return err
	}
	h.writer = writer

	chunkSize := int(h.media.ChunkSize())
	if chunkSize == 0 {
		return fmt.Errorf("%w: volume section has no chunk geometry", ewf.ErrTruncated)
	}

	// The segment-1 volume payload gets patched with the final counts at
	// close, which needs a writable entry.
	volumeEntry := h.pool.Add(set.Names[0], fileio.ReadWrite)
	volumeOffset := set.Files[0].VolumeOffset

	info := segment.StartInfo{
		HeaderValues: h.headerValues,
		Volume:       h.volumePayload(),
	}

	last := set.Files[len(set.Files)-1]
	switch {
	case last.OpenSectors != nil:
		run := last.OpenSectors
		data := make([]byte, last.Size-run.DataStart)
		if _, err := h.pool.ReadAt(last.Entry, data, run.DataStart); err != nil {
			return fmt.Errorf("reading open chunk run: %w", err)
		}
		recovered := segment.RecoverChunks(data, run.DataStart, chunkSize)
		if err := h.writer.Resume(path, last, recovered, info, volumeEntry, volumeOffset); err != nil {
			return err
		}
		for _, r := range recovered {
			flags := ewf.ChunkHasChecksum
			if r.Compressed {
				flags = ewf.ChunkCompressed
			}
			h.tbl.Append(table.Descriptor{
				Segment: last.Entry,
				Offset:  r.Offset,
				Size:    r.Size,
				Flags:   flags,
			})
		}
	case last.Terminator == section.TypeNext:
		if err := h.writer.ResumeNext(path, int(last.Number), info, volumeEntry, volumeOffset); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: container is already complete", ewf.ErrInvalidArgument)
	}

	// Chunks are always whole on disk; the logical size so far follows
	// from the count. The image digests restart from the stored bytes.
	h.written = int64(h.tbl.Len()) * int64(chunkSize)
	h.media.MediaSize = uint64(h.written)
	h.digests = digest.NewSet()
	for i := uint64(0); i < h.tbl.Len(); i++ {
		data, err := h.loadChunk(i)
		if err != nil {
			return fmt.Errorf("replaying chunk %d: %w", i, err)
		}
		h.digests.Write(data)
	}

	h.started = true
	h.frozen = true
	h.state = stateWrite
	h.logger.Info("acquisition resumed",
		"path", path, "chunks", h.tbl.Len(), "bytes", h.written)
	return nil
}

// ensureStarted emits segment 1's leading sections once the first chunk
// is ready, freezing media parameters and header values.
func (h *Handle) ensureStarted() error {
	if h.started {
		return nil
	}
	err := h.writer.Start(h.firstPath, segment.StartInfo{
		HeaderValues: h.headerValues,
		Volume:       h.volumePayload(),
	})
	if err != nil {
		return err
	}
	h.started = true
	h.frozen = true
	return nil
}

// volumePayload builds the media-parameter payload from the current
// state. Counts are patched with final values at close.
func (h *Handle) volumePayload() section.Volume {
	chunkSize := uint64(h.media.ChunkSize())
	var chunkCount, sectorCount uint64
	if chunkSize > 0 && h.written > 0 {
		chunkCount = (uint64(h.written) + chunkSize - 1) / chunkSize
		sectorCount = (uint64(h.written) + uint64(h.media.BytesPerSector) - 1) / uint64(h.media.BytesPerSector)
	}
	return section.Volume{
		MediaType:        h.media.MediaType,
		ChunkCount:       uint32(chunkCount),
		SectorsPerChunk:  h.media.SectorsPerChunk,
		BytesPerSector:   h.media.BytesPerSector,
		SectorCount:      uint32(sectorCount),
		MediaFlags:       h.media.MediaFlags,
		CompressionLevel: h.cfg.Compression,
		ErrorGranularity: h.media.ErrorGranularity,
		GUID:             h.media.GUID,
		MediaSize:        uint64(h.written),
	}
}

// applyVolume populates the media parameters from a decoded volume
// payload. Writers that treat the media-size field as padding leave it
// zero; the image then spans whole sectors.
func (h *Handle) applyVolume(v section.Volume) {
	size := v.MediaSize
	if size == 0 {
		size = uint64(v.SectorCount) * uint64(v.BytesPerSector)
	}
	h.media = ewf.MediaInfo{
		BytesPerSector:   v.BytesPerSector,
		SectorsPerChunk:  v.SectorsPerChunk,
		SectorCount:      uint64(v.SectorCount),
		MediaSize:        size,
		MediaType:        v.MediaType,
		MediaFlags:       v.MediaFlags,
		CompressionLevel: v.CompressionLevel,
		ErrorGranularity: v.ErrorGranularity,
		GUID:             v.GUID,
	}
}

func (h *Handle) applyDigests(d section.Digests) {
	var zero16 [16]byte
	var zero20 [20]byte
	if d.MD5 != zero16 {
		h.hashValues.Set("MD5", fmt.Sprintf("%x", d.MD5))
	}
	if d.SHA1 != zero20 {
		h.hashValues.Set("SHA1", fmt.Sprintf("%x", d.SHA1))
	}
}

// finishWrite flushes the trailing partial chunk and emits the closing
// sections. Called with the handle lock held.
func (h *Handle) finishWrite() error {
	if len(h.pending) > 0 {
		if err := h.emitChunk(h.pending); err != nil {
			return err
		}
		h.pending = nil
	}
	if err := h.ensureStarted(); err != nil {
		return err
	}

	h.media.MediaSize = uint64(h.written)
	h.media.SectorCount = (h.media.MediaSize + uint64(h.media.BytesPerSector) - 1) / uint64(h.media.BytesPerSector)

	var digests *section.Digests
	if h.digests != nil {
		var d section.Digests
		copy(d.MD5[:], h.digests.MD5())
		copy(d.SHA1[:], h.digests.SHA1())
		digests = &d
		h.hashValues.Set("MD5", h.digests.MD5Hex())
		h.hashValues.Set("SHA1", h.digests.SHA1Hex())
	}

	return h.writer.Finish(segment.FinishInfo{
		Volume:            h.volumePayload(),
		Digests:           digests,
		AcquisitionErrors: h.acquisitionErrors,
		Sessions:          h.sessions,
	})
}
