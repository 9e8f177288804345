package fileio

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOSProviderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")

	p := OS()
	f, err := p.Open(path, Create)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.Write([]byte("segment data")); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Seek(8, io.SeekStart); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(f, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "data" {
		t.Errorf("read %q", buf)
	}
	size, err := f.Size()
	if err != nil {
		t.Fatal(err)
	}
	if size != 12 {
		t.Errorf("size = %d", size)
	}
	if err := f.Truncate(7); err != nil {
		t.Fatal(err)
	}
	if size, _ := f.Size(); size != 7 {
		t.Errorf("size after truncate = %d", size)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOSProviderExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "present")
	if err := os.WriteFile(path, []byte{1}, 0o644); err != nil {
		t.Fatal(err)
	}

	p := OS()
	ok, err := p.Exists(path)
	if err != nil || !ok {
		t.Errorf("Exists(present) = %v, %v", ok, err)
	}
	ok, err = p.Exists(filepath.Join(dir, "absent"))
	if err != nil || ok {
		t.Errorf("Exists(absent) = %v, %v", ok, err)
	}
}

func TestOSProviderOpenMissing(t *testing.T) {
	p := OS()
	if _, err := p.Open(filepath.Join(t.TempDir(), "nope"), ReadOnly); err == nil {
		t.Error("opening a missing file succeeded")
	}
}
