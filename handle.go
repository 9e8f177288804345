package ewfkit

import (
	"fmt"
	"log/slog"
	"sync"

	"ewfkit/ewf"
	"ewfkit/fileio"
	"ewfkit/internal/cache"
	"ewfkit/internal/digest"
	"ewfkit/internal/iopool"
	"ewfkit/internal/logging"
	"ewfkit/internal/segment"
	"ewfkit/internal/table"
)

type handleState int

const (
	stateEmpty handleState = iota
	stateRead
	stateWrite
	stateReadWrite
)

// Config configures a Handle. The zero value is usable: host filesystem
// access, EnCase 6 output, no compression, default pool and cache sizes.
type Config struct {
	// Provider supplies file access. Defaults to fileio.OS().
	Provider fileio.Provider

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger

	// PoolCapacity bounds concurrently open segment files.
	PoolCapacity int

	// CacheSize bounds the decoded-chunk cache entry count.
	CacheSize int

	// SegmentBudget is the per-segment size budget for writing.
	// Defaults to the EnCase default segment size.
	SegmentBudget int64

	// Format selects the output variant for writing. Defaults to
	// encase6.
	Format ewf.Format

	// Compression selects the deflate effort for stored chunks.
	Compression ewf.CompressionLevel

	// EmptyBlockCompression stores constant-byte chunks as a fill
	// pattern instead of deflating them.
	EmptyBlockCompression bool

	// PatternFillCompression generalizes EmptyBlockCompression to any
	// repeated eight-byte pattern.
	PatternFillCompression bool

	// WipeChunkOnError zero-fills chunks whose checksum fails on read.
	// The failing sector range is recorded either way.
	WipeChunkOnError bool
}

// Handle is one open container. It owns the I/O pool, chunk table, chunk
// cache, codecs, and writer state, and exposes the logical image as a
// byte stream: offset 0 is the first byte of the first chunk, the length
// is the media size.
//
// A Handle supports many concurrent readers and at most one writer.
// Reads of distinct chunks proceed in parallel; concurrent reads of the
// same missing chunk decode once.
type Handle struct {
	cfg      Config
	provider fileio.Provider
	logger   *slog.Logger

	// mu guards the chunk table, writer state, media parameters, and
	// metadata maps. Readers take it shared.
	mu    sync.RWMutex
	state handleState

	pool   *iopool.Pool
	cache  *cache.Cache
	tbl    *table.Table
	writer *segment.Writer
	delta  *segment.DeltaWriter

	firstPath string
	format    ewf.Format
	media     ewf.MediaInfo
	frozen    bool // media parameters and header values locked
	tainted   bool

	headerValues *ewf.Values
	hashValues   *ewf.Values

	offset  int64 // byte-stream position for Read/Write/Seek
	pending []byte
	written int64 // logical bytes committed to chunks plus pending
	digests *digest.Set
	started bool // segment 1 leading sections emitted

	deltaFile *segment.File // scanned existing delta file, if any

	// errMu guards the sector-range lists, which grow on the read path
	// under the shared lock.
	errMu             sync.Mutex
	checksumErrors    []ewf.SectorRange
	acquisitionErrors []ewf.SectorRange
	sessions          []ewf.SectorRange
}

// New returns an empty handle.
func New(cfg Config) *Handle {
	if cfg.Provider == nil {
		cfg.Provider = fileio.OS()
	}
	if cfg.Format == ewf.FormatUnknown {
		cfg.Format = ewf.FormatEncase6
	}
	return &Handle{
		cfg:      cfg,
		provider: cfg.Provider,
		logger:   logging.Default(cfg.Logger).With("component", "handle"),
	}
}

// Open attaches the handle to a container. filenames carries the first
// segment filename (further segment files are enumerated from it; extra
// names are accepted and ignored). access is a combination of the
// ewf.Access flags:
//
//	AccessRead               read an existing container
//	AccessWrite              create a container and acquire into it
//	AccessWrite|AccessResume reopen an interrupted acquisition
//	AccessRead|AccessWrite   read plus delta overwrite of chunks
func (h *Handle) Open(filenames []string, access int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state != stateEmpty {
		return ewf.ErrAlreadyOpen
	}
	if len(filenames) == 0 || filenames[0] == "" {
		return fmt.Errorf("%w: no filenames", ewf.ErrInvalidArgument)
	}
	path := filenames[0]

	var err error
	switch access {
	case ewf.AccessRead:
		err = h.openRead(path, stateRead)
	case ewf.AccessRead | ewf.AccessWrite:
		err = h.openRead(path, stateReadWrite)
	case ewf.AccessWrite:
		err = h.openWrite(path)
	case ewf.AccessWrite | ewf.AccessResume:
		err = h.openResume(path)
	default:
		return fmt.Errorf("%w: access flags %#x", ewf.ErrInvalidArgument, access)
	}
	if err != nil {
		if h.pool != nil {
			h.pool.Close()
		}
		h.reset()
		return err
	}
	return nil
}

// Close flushes pending state, finishes the container when writing, and
// releases every file handle. Closing an already-closed handle is a
// no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateEmpty:
		return nil
	case stateWrite:
		if err := h.finishWrite(); err != nil {
			h.pool.Close()
			h.reset()
			return err
		}
	case stateReadWrite:
		if h.delta != nil {
			if err := h.delta.Close(); err != nil {
				h.pool.Close()
				h.reset()
				return err
			}
		}
	}

	err := h.pool.Close()
	h.logger.Info("handle closed", "path", h.firstPath)
	h.reset()
	return err
}

func (h *Handle) reset() {
	h.state = stateEmpty
	h.pool = nil
	h.cache = nil
	h.tbl = nil
	h.writer = nil
	h.delta = nil
	h.deltaFile = nil
	h.firstPath = ""
	h.media = ewf.MediaInfo{}
	h.frozen = false
	h.tainted = false
	h.headerValues = nil
	h.hashValues = nil
	h.offset = 0
	h.pending = nil
	h.written = 0
	h.digests = nil
	h.started = false
	h.errMu.Lock()
	h.checksumErrors = nil
	h.acquisitionErrors = nil
	h.sessions = nil
	h.errMu.Unlock()
}
