package segment

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"ewfkit/ewf"
	"ewfkit/fileio"
	"ewfkit/internal/codec"
	"ewfkit/internal/iopool"
	"ewfkit/internal/logging"
	"ewfkit/internal/section"
)

func testPool(t *testing.T) *iopool.Pool {
	t.Helper()
	p, err := iopool.New(iopool.Config{Provider: fileio.OS()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func testVolume(chunks uint32) section.Volume {
	return section.Volume{
		MediaType:        ewf.MediaTypeFixed,
		ChunkCount:       chunks,
		SectorsPerChunk:  8,
		BytesPerSector:   512,
		SectorCount:      chunks * 8,
		MediaFlags:       ewf.MediaFlagPhysical,
		CompressionLevel: ewf.CompressionNone,
		ErrorGranularity: 8,
	}
}

func testHeaderValues() *ewf.Values {
	v := ewf.NewValues()
	v.Set("case_number", "C-1")
	return v
}

// writeContainer writes count raw chunks of chunkSize bytes and returns
// the payloads.
func writeContainer(t *testing.T, pool *iopool.Pool, path string, count, chunkSize int, budget int64) [][]byte {
	t.Helper()
	w, err := NewWriter(WriterConfig{
		Pool:   pool,
		Format: ewf.FormatEncase6,
		Budget: budget,
	})
	if err != nil {
		t.Fatal(err)
	}
	err = w.Start(path, StartInfo{
		HeaderValues: testHeaderValues(),
		Volume:       testVolume(uint32(count)),
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	rng := rand.New(rand.NewSource(42))
	payloads := make([][]byte, count)
	for i := range payloads {
		payload := make([]byte, chunkSize)
		rng.Read(payload)
		payloads[i] = payload

		enc, err := codec.EncodeChunk(payload, codec.Options{})
		if err != nil {
			t.Fatal(err)
		}
		_, err = w.AppendChunk(enc.Data, enc.Flags)
		if err == ErrSegmentFull {
			if err := w.Roll(); err != nil {
				t.Fatalf("roll: %v", err)
			}
			_, err = w.AppendChunk(enc.Data, enc.Flags)
		}
		if err != nil {
			t.Fatalf("append chunk %d: %v", i, err)
		}
	}

	err = w.Finish(FinishInfo{Volume: testVolume(uint32(count))})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	return payloads
}

func TestWriteScanRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.E01")
	pool := testPool(t)
	logger := logging.Discard()

	const chunks, chunkSize = 10, 4096
	payloads := writeContainer(t, pool, path, chunks, chunkSize, 1<<30)

	set, err := OpenSet(pool, fileio.OS(), path, false, logger)
	if err != nil {
		t.Fatalf("open set: %v", err)
	}
	if len(set.Files) != 1 {
		t.Fatalf("%d segments, want 1", len(set.Files))
	}
	if set.Files[0].Terminator != section.TypeDone {
		t.Errorf("terminator = %q", set.Files[0].Terminator)
	}

	tbl, _ := set.BuildTable(logger)
	if tbl.Len() != chunks {
		t.Fatalf("table has %d chunks, want %d", tbl.Len(), chunks)
	}

	for i := range chunks {
		desc, ok := tbl.At(uint64(i))
		if !ok {
			t.Fatalf("chunk %d missing", i)
		}
		stored := make([]byte, desc.Size)
		if _, err := pool.ReadAt(desc.Segment, stored, desc.Offset); err != nil {
			t.Fatal(err)
		}
		dec := codec.DecodeChunk(stored, desc.Flags.Has(ewf.ChunkCompressed), chunkSize)
		if dec.Corrupt {
			t.Fatalf("chunk %d corrupt", i)
		}
		if !bytes.Equal(dec.Data, payloads[i]) {
			t.Fatalf("chunk %d mismatch", i)
		}
	}

	summary, err := set.Summarize(logger)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := summary.HeaderValues.Get("case_number"); got != "C-1" {
		t.Errorf("case_number = %q", got)
	}
	if summary.Volume.ChunkCount != chunks {
		t.Errorf("volume chunk count = %d", summary.Volume.ChunkCount)
	}
}

func TestSegmentRollProducesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.E01")
	pool := testPool(t)

	const chunks, chunkSize = 30, 4096
	budget := int64(chunkSize * 10)
	writeContainer(t, pool, path, chunks, chunkSize, budget)

	names, err := Glob(fileio.OS(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) < 3 {
		t.Fatalf("%d segments for %d chunks under a 10-chunk budget", len(names), chunks)
	}
	for _, name := range names {
		info, err := os.Stat(name)
		if err != nil {
			t.Fatal(err)
		}
		if info.Size() > budget {
			t.Errorf("segment %s is %d bytes, over the %d budget", name, info.Size(), budget)
		}
	}

	set, err := OpenSet(pool, fileio.OS(), path, false, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	tbl, _ := set.BuildTable(logging.Discard())
	if tbl.Len() != chunks {
		t.Errorf("table has %d chunks after roll, want %d", tbl.Len(), chunks)
	}
	// Chunks land in ascending segment order and never straddle files.
	lastSegment := -1
	for i := range tbl.Len() {
		desc, _ := tbl.At(i)
		if desc.Segment < lastSegment {
			t.Errorf("chunk %d went backwards across segments", i)
		}
		lastSegment = desc.Segment
	}
}

func TestMissingSegmentIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.E01")
	pool := testPool(t)

	writeContainer(t, pool, path, 30, 4096, 4096*10)
	names, err := Glob(fileio.OS(), path)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) < 3 {
		t.Skip("need at least 3 segments")
	}
	// Dropping the final segment leaves the previous one ending in
	// next, which must fail a normal open.
	if err := os.Remove(names[len(names)-1]); err != nil {
		t.Fatal(err)
	}

	pool2 := testPool(t)
	if _, err := OpenSet(pool2, fileio.OS(), path, false, logging.Discard()); err == nil {
		t.Error("open succeeded with a missing final segment")
	}
}

func TestRecoverChunks(t *testing.T) {
	const chunkSize = 4096
	rng := rand.New(rand.NewSource(7))

	var run []byte
	var wantSizes []uint32

	// Compressed chunk.
	text := bytes.Repeat([]byte("recoverable "), chunkSize/12+1)[:chunkSize]
	enc, err := codec.EncodeChunk(text, codec.Options{Level: ewf.CompressionBest})
	if err != nil {
		t.Fatal(err)
	}
	run = append(run, enc.Data...)
	wantSizes = append(wantSizes, uint32(len(enc.Data)))

	// Raw chunk.
	raw := make([]byte, chunkSize)
	rng.Read(raw)
	encRaw, err := codec.EncodeChunk(raw, codec.Options{})
	if err != nil {
		t.Fatal(err)
	}
	run = append(run, encRaw.Data...)
	wantSizes = append(wantSizes, uint32(len(encRaw.Data)))

	// Two pattern chunks, terminated by another raw chunk so the run is
	// unambiguous.
	pat := bytes.Repeat([]byte{0xaa}, chunkSize)
	encPat, err := codec.EncodeChunk(pat, codec.Options{EmptyBlock: true})
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		run = append(run, encPat.Data...)
		wantSizes = append(wantSizes, uint32(len(encPat.Data)))
	}
	run = append(run, encRaw.Data...)
	wantSizes = append(wantSizes, uint32(len(encRaw.Data)))

	// Torn tail: half a raw chunk.
	run = append(run, raw[:chunkSize/2]...)

	recovered := RecoverChunks(run, 1000, chunkSize)
	if len(recovered) != len(wantSizes) {
		t.Fatalf("recovered %d chunks, want %d", len(recovered), len(wantSizes))
	}
	offset := int64(1000)
	for i, r := range recovered {
		if r.Offset != offset {
			t.Errorf("chunk %d offset = %d, want %d", i, r.Offset, offset)
		}
		if r.Size != wantSizes[i] {
			t.Errorf("chunk %d size = %d, want %d", i, r.Size, wantSizes[i])
		}
		offset += int64(r.Size)
	}
	if !recovered[0].Compressed || recovered[1].Compressed {
		t.Error("compressed flags wrong after recovery")
	}
}

func TestRecoverChunksEmptyAndGarbage(t *testing.T) {
	if got := RecoverChunks(nil, 0, 4096); len(got) != 0 {
		t.Errorf("recovered %d chunks from nothing", len(got))
	}
	garbage := []byte{1, 2, 3}
	if got := RecoverChunks(garbage, 0, 4096); len(got) != 0 {
		t.Errorf("recovered %d chunks from garbage", len(got))
	}
}

func TestRecoverDropsTrailingPatterns(t *testing.T) {
	// A pattern run at the end of the data is indistinguishable from a
	// torn write, so it must not be recovered.
	const chunkSize = 4096
	pat := bytes.Repeat([]byte{0x11}, chunkSize)
	enc, err := codec.EncodeChunk(pat, codec.Options{EmptyBlock: true})
	if err != nil {
		t.Fatal(err)
	}
	run := append(append([]byte{}, enc.Data...), enc.Data...)
	if got := RecoverChunks(run, 0, chunkSize); len(got) != 0 {
		t.Errorf("recovered %d trailing pattern chunks, want 0", len(got))
	}
}
