package section

import (
	"encoding/binary"
	"hash/adler32"

	"ewfkit/ewf"
)

// digest payload: MD5(16), SHA1(20), padding(40), checksum(4).
// hash payload: MD5(16), padding(16), checksum(4).
const (
	DigestPayloadSize = 80
	HashPayloadSize   = 36

	digestMD5      = 0
	digestSHA1     = 16
	digestChecksum = 76

	hashMD5      = 0
	hashChecksum = 32
)

// Digests holds the image digests stored in the digest and hash sections.
type Digests struct {
	MD5  [16]byte
	SHA1 [20]byte
}

// EncodeDigest serializes the digest section payload.
func EncodeDigest(d Digests) []byte {
	buf := make([]byte, DigestPayloadSize)
	copy(buf[digestMD5:], d.MD5[:])
	copy(buf[digestSHA1:], d.SHA1[:])
	binary.LittleEndian.PutUint32(buf[digestChecksum:], adler32.Checksum(buf[:digestChecksum]))
	return buf
}

// DecodeDigest parses the digest section payload.
func DecodeDigest(buf []byte, offset int64) (Digests, error) {
	if len(buf) < DigestPayloadSize {
		return Digests{}, ewf.ErrTruncated
	}
	if err := verifyAdler(buf, digestChecksum, offset); err != nil {
		return Digests{}, err
	}
	var d Digests
	copy(d.MD5[:], buf[digestMD5:digestMD5+16])
	copy(d.SHA1[:], buf[digestSHA1:digestSHA1+20])
	return d, nil
}

// EncodeHash serializes the hash section payload (MD5 only).
func EncodeHash(md5 [16]byte) []byte {
	buf := make([]byte, HashPayloadSize)
	copy(buf[hashMD5:], md5[:])
	binary.LittleEndian.PutUint32(buf[hashChecksum:], adler32.Checksum(buf[:hashChecksum]))
	return buf
}

// DecodeHash parses the hash section payload.
func DecodeHash(buf []byte, offset int64) ([16]byte, error) {
	var md5 [16]byte
	if len(buf) < HashPayloadSize {
		return md5, ewf.ErrTruncated
	}
	if err := verifyAdler(buf, hashChecksum, offset); err != nil {
		return md5, err
	}
	copy(md5[:], buf[hashMD5:hashMD5+16])
	return md5, nil
}

func verifyAdler(buf []byte, checksumAt int, offset int64) error {
	stored := binary.LittleEndian.Uint32(buf[checksumAt:])
	computed := adler32.Checksum(buf[:checksumAt])
	if stored != computed {
		return &ewf.ChecksumError{
			Kind:     ewf.ChecksumSection,
			At:       offset,
			Stored:   stored,
			Computed: computed,
		}
	}
	return nil
}
