// Package ewf defines the shared types of the Expert Witness Compression
// Format family: format variants, media parameters, chunk flags, sector
// ranges, metadata value maps, and the error kinds surfaced by the engine.
//
// The package is a leaf: it has no dependencies on the rest of the module
// and is imported by both the storage internals and the public handle.
package ewf

import "bytes"

// Format identifies the container variant. The variant decides which
// sections a segment file carries and how wide its table offsets are.
type Format int

const (
	FormatUnknown Format = iota

	// FormatEWF is the legacy SMART/Expert Witness format (.s01).
	FormatEWF

	FormatEncase1
	FormatEncase2
	FormatEncase3
	FormatEncase4
	FormatEncase5
	FormatEncase6
	FormatEncase7

	// FormatSMART is ASR Data SMART acquisition (.s01, lowercase sections).
	FormatSMART

	// FormatFTK is FTK Imager SMART acquisition.
	FormatFTK

	FormatLinen5
	FormatLinen6
	FormatLinen7

	// FormatL01 is the logical evidence file variant (.L01).
	FormatL01

	// FormatEWFX is the libewf experimental variant with xheader/xhash.
	FormatEWFX
)

func (f Format) String() string {
	switch f {
	case FormatEWF:
		return "ewf"
	case FormatEncase1:
		return "encase1"
	case FormatEncase2:
		return "encase2"
	case FormatEncase3:
		return "encase3"
	case FormatEncase4:
		return "encase4"
	case FormatEncase5:
		return "encase5"
	case FormatEncase6:
		return "encase6"
	case FormatEncase7:
		return "encase7"
	case FormatSMART:
		return "smart"
	case FormatFTK:
		return "ftk"
	case FormatLinen5:
		return "linen5"
	case FormatLinen6:
		return "linen6"
	case FormatLinen7:
		return "linen7"
	case FormatL01:
		return "lvf"
	case FormatEWFX:
		return "ewfx"
	}
	return "unknown"
}

// HasHeader2 reports whether the variant writes the UTF-16 header2 section.
func (f Format) HasHeader2() bool {
	switch f {
	case FormatEncase2, FormatEncase3, FormatEncase4, FormatEncase5,
		FormatEncase6, FormatEncase7, FormatLinen5, FormatLinen6,
		FormatLinen7, FormatEWFX:
		return true
	}
	return false
}

// HasDigestSections reports whether the variant writes digest and hash
// sections in the final segment.
func (f Format) HasDigestSections() bool {
	switch f {
	case FormatEncase5, FormatEncase6, FormatEncase7, FormatLinen5,
		FormatLinen6, FormatLinen7, FormatEWFX, FormatL01:
		return true
	}
	return false
}

// HasXHeader reports whether the variant writes the xheader/xhash sections.
func (f Format) HasXHeader() bool {
	return f == FormatEWFX
}

// Segment file signatures. The first eight bytes of every segment file.
var (
	SignatureEWF  = []byte{0x45, 0x56, 0x46, 0x09, 0x0d, 0x0a, 0xff, 0x00} // "EVF\t\r\n\xff\x00"
	SignatureEVF2 = []byte{0x45, 0x56, 0x46, 0x32, 0x0d, 0x0a, 0x81, 0x00} // "EVF2\r\n\x81\x00"
	SignatureLEF  = []byte{0x4c, 0x56, 0x46, 0x09, 0x0d, 0x0a, 0xff, 0x00} // "LVF\t\r\n\xff\x00"
)

// SignatureFamily is the container family a signature selects.
type SignatureFamily int

const (
	FamilyNone SignatureFamily = iota
	FamilyEWF                  // E01/s01 and friends, version 1 sections
	FamilyEVF2                 // Ex01, version 2 sections
	FamilyLEF                  // L01 logical evidence
)

// MatchSignature classifies the first eight bytes of a segment file.
func MatchSignature(sig []byte) SignatureFamily {
	if len(sig) < 8 {
		return FamilyNone
	}
	switch {
	case bytes.Equal(sig[:8], SignatureEWF):
		return FamilyEWF
	case bytes.Equal(sig[:8], SignatureEVF2):
		return FamilyEVF2
	case bytes.Equal(sig[:8], SignatureLEF):
		return FamilyLEF
	}
	return FamilyNone
}

// Signature returns the eight-byte signature for the format variant.
func (f Format) Signature() []byte {
	switch f {
	case FormatL01:
		return SignatureLEF
	default:
		return SignatureEWF
	}
}

// Access flags for Handle.Open.
const (
	AccessRead   = 1
	AccessWrite  = 2
	AccessResume = 16
)
