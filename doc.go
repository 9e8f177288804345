// Package ewfkit reads and writes forensic disk-image containers in the
// Expert Witness Compression Format family (EnCase E01, SMART, L01). A
// container stores a bit-exact copy of a source device split across one
// or more segment files, as fixed-size chunks that are individually
// compressed and checksummed, together with acquisition metadata, image
// digests, and sector-range lists.
//
// The central type is Handle: it presents the stored image as one
// contiguous byte stream over the whole segment-file set, with random
// reads across segment boundaries, sequential chunk writes for
// acquisition, resume of an interrupted acquisition, and delta files
// that shadow individual chunks of a finished container.
//
//	h := ewfkit.New(ewfkit.Config{Compression: ewf.CompressionFast})
//	if err := h.Open([]string{"evidence.E01"}, ewf.AccessRead); err != nil {
//		...
//	}
//	defer h.Close()
//	buf := make([]byte, 4096)
//	n, err := h.ReadAt(buf, 0)
//
// The library has no global state. File access goes through the
// fileio.Provider given in Config, so segment files can live on any
// backend that can open, read, write, seek, and size a named stream.
package ewfkit
