// Package digest maintains the streaming digests over the logical image.
// MD5 and SHA-1 run side by side on the write path; the results land in
// the digest and hash sections and the handle's hash-value map at close.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"hash"
)

// Set runs MD5 and SHA-1 over one byte stream.
type Set struct {
	md5  hash.Hash
	sha1 hash.Hash
	n    int64
}

// NewSet returns a fresh digest set.
func NewSet() *Set {
	return &Set{
		md5:  md5.New(),
		sha1: sha1.New(),
	}
}

// Write feeds p into both digests. It never fails.
func (s *Set) Write(p []byte) (int, error) {
	s.md5.Write(p)
	s.sha1.Write(p)
	s.n += int64(len(p))
	return len(p), nil
}

// Bytes returns the number of bytes digested so far.
func (s *Set) Bytes() int64 {
	return s.n
}

// MD5 returns the current MD5 digest.
func (s *Set) MD5() []byte {
	return s.md5.Sum(nil)
}

// SHA1 returns the current SHA-1 digest.
func (s *Set) SHA1() []byte {
	return s.sha1.Sum(nil)
}

// MD5Hex returns the current MD5 digest as lowercase hex.
func (s *Set) MD5Hex() string {
	return hex.EncodeToString(s.MD5())
}

// SHA1Hex returns the current SHA-1 digest as lowercase hex.
func (s *Set) SHA1Hex() string {
	return hex.EncodeToString(s.SHA1())
}
