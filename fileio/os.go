package fileio

import (
	"errors"
	"io/fs"
	"os"
)

// OS returns the default provider backed by the host filesystem.
func OS() Provider {
	return osProvider{}
}

type osProvider struct{}

func (osProvider) Open(path string, flag Flag) (File, error) {
	var mode int
	switch flag {
	case ReadOnly:
		mode = os.O_RDONLY
	case ReadWrite:
		mode = os.O_RDWR
	case Create:
		mode = os.O_RDWR | os.O_CREATE | os.O_TRUNC
	default:
		return nil, errors.New("fileio: unknown open flag")
	}
	f, err := os.OpenFile(path, mode, 0o644)
	if err != nil {
		return nil, err
	}
	return &osFile{f: f}, nil
}

func (osProvider) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

type osFile struct {
	f *os.File
}

func (o *osFile) Read(p []byte) (int, error)  { return o.f.Read(p) }
func (o *osFile) Write(p []byte) (int, error) { return o.f.Write(p) }
func (o *osFile) Close() error                { return o.f.Close() }

func (o *osFile) Seek(offset int64, whence int) (int64, error) {
	return o.f.Seek(offset, whence)
}

func (o *osFile) Size() (int64, error) {
	info, err := o.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (o *osFile) Truncate(size int64) error {
	return o.f.Truncate(size)
}
