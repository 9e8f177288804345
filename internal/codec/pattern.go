package codec

// PatternSize is the width of the fill pattern a chunk can be reduced to.
// An empty (constant byte) block is the degenerate case of an eight-byte
// pattern, so one detector covers both optimizations.
const PatternSize = 8

// DetectEmpty reports whether p consists of a single repeated byte.
func DetectEmpty(p []byte) (byte, bool) {
	if len(p) == 0 {
		return 0, false
	}
	b := p[0]
	for _, c := range p[1:] {
		if c != b {
			return 0, false
		}
	}
	return b, true
}

// DetectPattern reports whether p is a whole number of repetitions of an
// eight-byte pattern and returns that pattern. Payloads shorter than one
// pattern or not a multiple of the pattern size never match.
func DetectPattern(p []byte) ([PatternSize]byte, bool) {
	var pattern [PatternSize]byte
	if len(p) < PatternSize || len(p)%PatternSize != 0 {
		return pattern, false
	}
	copy(pattern[:], p[:PatternSize])
	for i := PatternSize; i < len(p); i += PatternSize {
		for j := range PatternSize {
			if p[i+j] != pattern[j] {
				return pattern, false
			}
		}
	}
	return pattern, true
}

// FillPattern tiles pattern into a buffer of size bytes. A trailing
// partial repetition is cut short, matching a short final chunk.
func FillPattern(pattern [PatternSize]byte, size int) []byte {
	out := make([]byte, size)
	for i := 0; i < size; i += PatternSize {
		copy(out[i:], pattern[:])
	}
	return out
}
