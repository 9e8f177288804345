package ewfkit

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"ewfkit/ewf"
)

// Delta writes shadow chunks of a finished container without touching
// the base segments, and the shadows survive reopening.
func TestDeltaOverwrite(t *testing.T) {
	const chunkSize = 4 << 10
	dir := t.TempDir()
	path := filepath.Join(dir, "evidence.E01")
	source := randomImage(t, 8*chunkSize, 0x5150)

	acquire(t, path, Config{Compression: ewf.CompressionFast}, source, func(h *Handle) {
		h.SetSectorsPerChunk(8)
	})

	patch := []byte("REDACTED-REDACTED-REDACTED")
	patchOff := int64(2*chunkSize + 100)

	h := New(Config{})
	if err := h.Open([]string{path}, ewf.AccessRead|ewf.AccessWrite); err != nil {
		t.Fatalf("open read-write: %v", err)
	}
	if n, err := h.WriteAt(patch, patchOff); err != nil || n != len(patch) {
		t.Fatalf("delta write: n=%d err=%v", n, err)
	}

	want := append([]byte{}, source...)
	copy(want[patchOff:], patch)

	// Visible immediately on the same handle.
	if got := readAll(t, h, len(want)); !bytes.Equal(got, want) {
		t.Error("delta write not visible before close")
	}
	flags, _ := h.ChunkFlags(2)
	if !flags.Has(ewf.ChunkDelta) {
		t.Error("shadowed chunk missing the delta flag")
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	// And after reopening read-only: the delta file is picked up.
	h2 := openRead(t, path, Config{})
	if got := readAll(t, h2, len(want)); !bytes.Equal(got, want) {
		t.Error("delta write lost after reopen")
	}
	flags, _ = h2.ChunkFlags(2)
	if !flags.Has(ewf.ChunkDelta) {
		t.Error("reopened shadowed chunk missing the delta flag")
	}

	// The shadows live in a separate delta file beside the base
	// segments.
	deltaPath := filepath.Join(dir, "evidence.d01")
	if ok, _ := h2.provider.Exists(deltaPath); !ok {
		t.Fatalf("expected delta file at %s", deltaPath)
	}
}

// A delta write spanning chunk boundaries shadows every touched chunk.
func TestDeltaSpansChunks(t *testing.T) {
	const chunkSize = 4 << 10
	dir := t.TempDir()
	path := filepath.Join(dir, "evidence.E01")
	source := randomImage(t, 4*chunkSize, 0x7777)

	acquire(t, path, Config{}, source, func(h *Handle) {
		h.SetSectorsPerChunk(8)
	})

	h := New(Config{})
	if err := h.Open([]string{path}, ewf.AccessRead|ewf.AccessWrite); err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	patch := randomImage(t, chunkSize, 0x8888)
	off := int64(chunkSize/2 + chunkSize) // straddles chunks 1 and 2
	if _, err := h.WriteAt(patch, off); err != nil {
		t.Fatal(err)
	}

	want := append([]byte{}, source...)
	copy(want[off:], patch)
	if got := readAll(t, h, len(want)); !bytes.Equal(got, want) {
		t.Error("straddling delta write mismatch")
	}
	for _, index := range []uint64{1, 2} {
		flags, _ := h.ChunkFlags(index)
		if !flags.Has(ewf.ChunkDelta) {
			t.Errorf("chunk %d not shadowed", index)
		}
	}
}

// Delta writes outside the image are rejected.
func TestDeltaOutOfRange(t *testing.T) {
	const chunkSize = 4 << 10
	dir := t.TempDir()
	path := filepath.Join(dir, "evidence.E01")
	source := randomImage(t, 2*chunkSize, 0x9999)

	acquire(t, path, Config{}, source, func(h *Handle) {
		h.SetSectorsPerChunk(8)
	})

	h := New(Config{})
	if err := h.Open([]string{path}, ewf.AccessRead|ewf.AccessWrite); err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	if _, err := h.WriteAt([]byte{1}, int64(len(source))); !errors.Is(err, ewf.ErrOutOfRange) {
		t.Errorf("write past end: err = %v, want out of range", err)
	}
}
