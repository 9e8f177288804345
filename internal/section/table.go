package section

import (
	"encoding/binary"
	"hash/adler32"

	"ewfkit/ewf"
)

// Table section layout: a 20-byte header {base-offset u64, entry-count u32,
// pad u32, adler u32 over the first 16 bytes}, then entry-count packed u32
// entries, then an Adler-32 over the entries.
//
// An entry's bit 31 is the compressed flag; bits 0..30 are the chunk's
// file offset relative to base-offset.
const (
	TableHeaderSize     = 20
	TableEntrySize      = 4
	tableHeaderChecksum = 16

	// EntryCompressed masks the compressed bit of a packed entry.
	EntryCompressed = uint32(1) << 31

	// EntryOffsetMask masks the 31-bit relative offset.
	EntryOffsetMask = EntryCompressed - 1

	// MaxTableEntries bounds one table section. Offsets are 31-bit
	// relative, so a table spans at most 2 GiB of chunk data; segment
	// budgets keep real tables far below this.
	MaxTableEntries = 65534
)

// TableEntry is one unpacked table entry.
type TableEntry struct {
	Offset     uint32 // relative to the table's base offset
	Compressed bool
}

// Table is a decoded table or table2 payload.
type Table struct {
	BaseOffset uint64
	Entries    []TableEntry
}

// Pack returns the packed u32 for e.
func (e TableEntry) Pack() uint32 {
	v := e.Offset & EntryOffsetMask
	if e.Compressed {
		v |= EntryCompressed
	}
	return v
}

// TablePayloadSize returns the encoded size for n entries.
func TablePayloadSize(n int) int {
	return TableHeaderSize + n*TableEntrySize + 4
}

// EncodeTable serializes a table payload.
func EncodeTable(t Table) []byte {
	buf := make([]byte, TablePayloadSize(len(t.Entries)))
	binary.LittleEndian.PutUint64(buf[0:8], t.BaseOffset)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(t.Entries)))
	// bytes 12..15 are padding
	binary.LittleEndian.PutUint32(buf[tableHeaderChecksum:TableHeaderSize], adler32.Checksum(buf[:tableHeaderChecksum]))

	entries := buf[TableHeaderSize : TableHeaderSize+len(t.Entries)*TableEntrySize]
	for i, e := range t.Entries {
		binary.LittleEndian.PutUint32(entries[i*TableEntrySize:], e.Pack())
	}
	binary.LittleEndian.PutUint32(buf[len(buf)-4:], adler32.Checksum(entries))
	return buf
}

// DecodeTable parses a table payload read at offset. On a checksum
// mismatch, on the header or the entries, the best-effort table is still returned
// together with the ChecksumError, so the caller can fall back to table2
// or keep the entries flagged as tainted.
func DecodeTable(buf []byte, offset int64) (Table, error) {
	if len(buf) < TableHeaderSize {
		return Table{}, ewf.ErrTruncated
	}
	t := Table{
		BaseOffset: binary.LittleEndian.Uint64(buf[0:8]),
	}
	count := binary.LittleEndian.Uint32(buf[8:12])

	storedHeader := binary.LittleEndian.Uint32(buf[tableHeaderChecksum:TableHeaderSize])
	computedHeader := adler32.Checksum(buf[:tableHeaderChecksum])
	headerErr := storedHeader != computedHeader

	need := TablePayloadSize(int(count))
	if count > MaxTableEntries || len(buf) < need {
		if headerErr {
			// Header is lying about the count; salvage what fits.
			count = uint32((len(buf) - TableHeaderSize - 4) / TableEntrySize)
			need = TablePayloadSize(int(count))
			if need > len(buf) {
				return t, &ewf.ChecksumError{
					Kind: ewf.ChecksumTable, At: offset,
					Stored: storedHeader, Computed: computedHeader,
				}
			}
		} else {
			return t, ewf.ErrTruncated
		}
	}

	entries := buf[TableHeaderSize : TableHeaderSize+int(count)*TableEntrySize]
	t.Entries = make([]TableEntry, count)
	for i := range t.Entries {
		packed := binary.LittleEndian.Uint32(entries[i*TableEntrySize:])
		t.Entries[i] = TableEntry{
			Offset:     packed & EntryOffsetMask,
			Compressed: packed&EntryCompressed != 0,
		}
	}

	storedEntries := binary.LittleEndian.Uint32(buf[TableHeaderSize+len(entries):])
	computedEntries := adler32.Checksum(entries)
	if headerErr || storedEntries != computedEntries {
		stored, computed := storedEntries, computedEntries
		if headerErr {
			stored, computed = storedHeader, computedHeader
		}
		return t, &ewf.ChecksumError{
			Kind: ewf.ChecksumTable, At: offset,
			Stored: stored, Computed: computed,
		}
	}
	return t, nil
}
