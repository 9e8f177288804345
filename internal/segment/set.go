package segment

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"ewfkit/ewf"
	"ewfkit/fileio"
	"ewfkit/internal/iopool"
	"ewfkit/internal/section"
	"ewfkit/internal/table"
)

// Set is an opened container: every segment file scanned and validated.
type Set struct {
	Files  []*File
	Names  []string
	Family ewf.SignatureFamily
}

// Summary is the container-level metadata collected from a set's
// sections.
type Summary struct {
	Volume            section.Volume
	HeaderValues      *ewf.Values
	Digests           *section.Digests
	AcquisitionErrors []ewf.SectorRange
	Sessions          []ewf.SectorRange
	Tainted           bool
}

// OpenSet enumerates, scans, and validates the segment files of the
// container whose first segment is firstPath. Segments are scanned in
// parallel; their section inventories stay in segment order.
//
// allowIncomplete admits a missing terminator on the last segment (and a
// trailing next section with no successor) for acquisition resume.
func OpenSet(pool *iopool.Pool, provider fileio.Provider, firstPath string, allowIncomplete bool, logger *slog.Logger) (*Set, error) {
	names, err := Glob(provider, firstPath)
	if err != nil {
		return nil, err
	}

	files := make([]*File, len(names))
	var g errgroup.Group
	for i, name := range names {
		entry := pool.Add(name, fileio.ReadOnly)
		g.Go(func() error {
			f, err := Read(pool, entry, logger)
			if err != nil {
				return fmt.Errorf("segment %s: %w", name, err)
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := &Set{Files: files, Names: names, Family: files[0].Family}
	if err := s.validate(allowIncomplete); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Set) validate(allowIncomplete bool) error {
	last := len(s.Files) - 1
	for i, f := range s.Files {
		if f.Family != s.Family {
			return fmt.Errorf("%w: segment %s signature differs from first segment", ewf.ErrSignatureMismatch, f.Path)
		}
		if int(f.Number) != i+1 {
			return fmt.Errorf("%w: segment %s carries number %d, expected %d", ewf.ErrTruncated, f.Path, f.Number, i+1)
		}
		if f.Incomplete() && (i != last || !allowIncomplete) {
			return fmt.Errorf("%w: segment %s has no terminator section", ewf.ErrTruncated, f.Path)
		}
		if f.Terminator == section.TypeDone && i != last {
			return fmt.Errorf("%w: segment %s ends the container but %d more segment file(s) follow", ewf.ErrInvalidArgument, f.Path, last-i)
		}
	}
	if f := s.Files[last]; f.Terminator == section.TypeNext && !allowIncomplete {
		return fmt.Errorf("%w: segment %d is missing", ewf.ErrTruncated, len(s.Files)+1)
	}
	if s.Files[0].Volume == nil {
		return fmt.Errorf("%w: first segment has no volume section", ewf.ErrTruncated)
	}
	return nil
}

// InferFormat guesses the format variant from the first segment's
// signature and metadata sections.
func (s *Set) InferFormat() ewf.Format {
	f0 := s.Files[0]
	switch s.Family {
	case ewf.FamilyLEF:
		return ewf.FormatL01
	}
	switch {
	case f0.XHeaderPayload != nil:
		return ewf.FormatEWFX
	case f0.Header2Payload != nil:
		// An unfinished acquisition has not written its digest sections
		// yet, so their absence only counts in a set that ends in done.
		last := s.lastFile()
		if last.DigestPayload != nil || last.HashPayload != nil || last.Terminator != section.TypeDone {
			return ewf.FormatEncase6
		}
		return ewf.FormatEncase4
	default:
		return ewf.FormatEncase1
	}
}

func (s *Set) lastFile() *File {
	return s.Files[len(s.Files)-1]
}

// BuildTable merges every segment's table runs into one chunk table, in
// segment then chunk order. Per run: a clean table wins; a corrupt table
// falls back to a clean table2; when both copies are corrupt the richer
// copy is used and its chunks are flagged tainted, keeping the segment
// readable. When both copies are clean but disagree, table2 wins.
//
// The second return reports whether any run needed the tainted path.
func (s *Set) BuildTable(logger *slog.Logger) (*table.Table, bool) {
	capacity := uint64(0)
	if v := s.Files[0].Volume; v != nil {
		capacity = uint64(v.ChunkCount)
	}
	tbl := table.New(capacity)
	anyTainted := false

	for _, f := range s.Files {
		for _, run := range f.Tables {
			chosen, tainted := chooseTable(f, run, logger)
			entries := chosen.Entries
			from := tbl.Len()
			for j, e := range entries {
				abs := int64(chosen.BaseOffset) + int64(e.Offset)
				var size int64
				if j+1 < len(entries) {
					size = int64(entries[j+1].Offset) - int64(e.Offset)
				} else {
					size = run.SectorsEnd - abs
				}
				if size < 0 {
					size = 0
					tainted = true
				}
				flags := ewf.ChunkHasChecksum
				if e.Compressed {
					flags = ewf.ChunkCompressed
				}
				tbl.Append(table.Descriptor{
					Segment: f.Entry,
					Offset:  abs,
					Size:    uint32(size),
					Flags:   flags,
				})
			}
			if tainted {
				tbl.MarkTainted(from, tbl.Len())
				anyTainted = true
			}
		}
	}
	return tbl, anyTainted
}

func chooseTable(f *File, run TableRun, logger *slog.Logger) (section.Table, bool) {
	tableOK := run.TableErr == nil
	table2OK := run.Table2 != nil && run.Table2Err == nil

	switch {
	case tableOK && table2OK:
		if !tablesEqual(run.Table, *run.Table2) {
			logger.Warn("table and table2 disagree, using table2", "path", f.Path)
			return *run.Table2, false
		}
		return run.Table, false
	case tableOK:
		return run.Table, false
	case table2OK:
		logger.Warn("table corrupt, falling back to table2", "path", f.Path)
		return *run.Table2, false
	}

	// Both copies corrupt: keep whichever parsed more entries and taint
	// the covered chunks rather than losing the segment.
	logger.Warn("table and table2 both corrupt, chunks flagged tainted", "path", f.Path)
	chosen := run.Table
	if run.Table2 != nil && len(run.Table2.Entries) > len(chosen.Entries) {
		chosen = *run.Table2
	}
	return chosen, true
}

func tablesEqual(a, b section.Table) bool {
	if a.BaseOffset != b.BaseOffset || len(a.Entries) != len(b.Entries) {
		return false
	}
	for i := range a.Entries {
		if a.Entries[i] != b.Entries[i] {
			return false
		}
	}
	return true
}

// Summarize decodes the container-level metadata sections.
func (s *Set) Summarize(logger *slog.Logger) (Summary, error) {
	f0 := s.Files[0]
	out := Summary{Volume: *f0.Volume}

	switch {
	case f0.HeaderPayload != nil:
		values, err := section.DecodeHeader(f0.HeaderPayload, false)
		if err != nil {
			return Summary{}, fmt.Errorf("header section: %w", err)
		}
		out.HeaderValues = values
	case f0.Header2Payload != nil:
		values, err := section.DecodeHeader(f0.Header2Payload, true)
		if err != nil {
			return Summary{}, fmt.Errorf("header2 section: %w", err)
		}
		out.HeaderValues = values
	default:
		out.HeaderValues = ewf.NewValues()
	}

	for _, f := range s.Files {
		out.Tainted = out.Tainted || f.Tainted

		if f.DigestPayload != nil {
			d, err := section.DecodeDigest(f.DigestPayload, f.DigestOffset)
			if err != nil {
				if !errors.Is(err, ewf.ErrBadChecksum) {
					return Summary{}, err
				}
				logger.Warn("digest section corrupt", "path", f.Path)
				out.Tainted = true
			} else {
				out.Digests = &d
			}
		}
		if f.HashPayload != nil && out.Digests == nil {
			md5, err := section.DecodeHash(f.HashPayload, f.HashOffset)
			if err != nil {
				if !errors.Is(err, ewf.ErrBadChecksum) {
					return Summary{}, err
				}
				logger.Warn("hash section corrupt", "path", f.Path)
				out.Tainted = true
			} else {
				out.Digests = &section.Digests{MD5: md5}
			}
		}
		if f.Error2Payload != nil {
			ranges, err := section.DecodeRanges(f.Error2Payload, f.Error2Offset)
			if err != nil {
				if !errors.Is(err, ewf.ErrBadChecksum) {
					return Summary{}, err
				}
				logger.Warn("error2 section corrupt", "path", f.Path)
				out.Tainted = true
			} else {
				out.AcquisitionErrors = ranges
			}
		}
		if f.SessionPayload != nil {
			ranges, err := section.DecodeRanges(f.SessionPayload, f.SessionOffset)
			if err != nil {
				if !errors.Is(err, ewf.ErrBadChecksum) {
					return Summary{}, err
				}
				logger.Warn("session section corrupt", "path", f.Path)
				out.Tainted = true
			} else {
				out.Sessions = ranges
			}
		}
	}
	return out, nil
}
