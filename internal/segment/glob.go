// Package segment implements the segment-file layer: filename enumeration
// for a container's file set, the read-side section scanner, crash
// recovery of an interrupted acquisition, and the write-side state
// machine that emits sections and rolls to the next segment when the
// size budget runs out.
package segment

import (
	"fmt"
	"strings"

	"ewfkit/ewf"
	"ewfkit/fileio"
)

// Naming captures how a container names its segment files so successors
// can be derived: "image.E01" rolls through E02..E99, EAA..EZZ, FAA and
// onward; "image.Ex01" keeps its marker character; lowercase families
// (.s01) roll through lowercase letters.
type Naming struct {
	Stem  string // path up to and including the dot
	First byte   // family letter of the first segment: 'E', 'L', 's', 'd'
	Wide  bool   // four-character extensions (Ex01 family)
	Upper bool   // extension letters are uppercase
}

const (
	extDigitMax  = 99
	extLetterRun = 26 * 26
)

// ParseName splits a first-segment filename into its naming scheme and
// segment index.
func ParseName(path string) (Naming, int, error) {
	dot := strings.LastIndexByte(path, '.')
	if dot < 0 || dot == len(path)-1 {
		return Naming{}, 0, fmt.Errorf("%w: no segment extension on %q", ewf.ErrInvalidArgument, path)
	}
	ext := path[dot+1:]
	n := Naming{Stem: path[:dot+1]}
	switch len(ext) {
	case 3:
		n.First = ext[0]
		n.Wide = false
	case 4:
		if ext[1] != 'x' {
			return Naming{}, 0, fmt.Errorf("%w: bad segment extension %q", ewf.ErrInvalidArgument, ext)
		}
		n.First = ext[0]
		n.Wide = true
	default:
		return Naming{}, 0, fmt.Errorf("%w: bad segment extension %q", ewf.ErrInvalidArgument, ext)
	}
	n.Upper = n.First >= 'A' && n.First <= 'Z'

	tail := ext[len(ext)-2:]
	index, err := parseTail(n, tail)
	if err != nil {
		return Naming{}, 0, err
	}
	return n, index, nil
}

func parseTail(n Naming, tail string) (int, error) {
	if tail[0] >= '0' && tail[0] <= '9' {
		index := int(tail[0]-'0')*10 + int(tail[1]-'0')
		if index == 0 {
			return 0, fmt.Errorf("%w: segment number 00", ewf.ErrInvalidArgument)
		}
		return index, nil
	}
	a, z := letterRange(n.Upper)
	if tail[0] < a || tail[0] > z || tail[1] < a || tail[1] > z {
		return 0, fmt.Errorf("%w: bad segment extension tail %q", ewf.ErrInvalidArgument, tail)
	}
	return extDigitMax + 1 + int(tail[0]-a)*26 + int(tail[1]-a), nil
}

func letterRange(upper bool) (byte, byte) {
	if upper {
		return 'A', 'Z'
	}
	return 'a', 'z'
}

// Filename returns the path of segment index (1-based) under this naming
// scheme. After the two-digit range the tail turns alphabetic and the
// family letter advances every 676 segments; running the family letter
// past the end of the alphabet is an error.
func (n Naming) Filename(index int) (string, error) {
	if index < 1 {
		return "", fmt.Errorf("%w: segment index %d", ewf.ErrInvalidArgument, index)
	}
	var ext string
	if index <= extDigitMax {
		ext = fmt.Sprintf("%c%02d", n.First, index)
	} else {
		m := index - extDigitMax - 1
		a, z := letterRange(n.Upper)
		first := int(n.First) + m/extLetterRun
		if first > int(z) {
			return "", fmt.Errorf("%w: segment index %d exceeds the extension scheme", ewf.ErrInvalidArgument, index)
		}
		rem := m % extLetterRun
		ext = fmt.Sprintf("%c%c%c", byte(first), a+byte(rem/26), a+byte(rem%26))
	}
	if n.Wide {
		ext = ext[:1] + "x" + ext[1:]
	}
	return n.Stem + ext, nil
}

// Glob enumerates the existing segment files of the container whose first
// segment is path, in ascending segment order. The first segment must
// exist; enumeration stops at the first missing successor.
func Glob(provider fileio.Provider, path string) ([]string, error) {
	naming, index, err := ParseName(path)
	if err != nil {
		return nil, err
	}
	if index != 1 {
		return nil, fmt.Errorf("%w: %q is not the first segment", ewf.ErrInvalidArgument, path)
	}
	ok, err := provider.Exists(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("segment %s: %w", path, ewf.ErrInvalidArgument)
	}

	names := []string{path}
	for i := 2; ; i++ {
		name, err := naming.Filename(i)
		if err != nil {
			break
		}
		ok, err := provider.Exists(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		names = append(names, name)
	}
	return names, nil
}

// DeltaNaming returns the naming scheme of the delta file set that
// shadows the container named by base.
func DeltaNaming(base string) (Naming, error) {
	naming, _, err := ParseName(base)
	if err != nil {
		return Naming{}, err
	}
	naming.First = 'd'
	naming.Upper = false
	naming.Wide = false
	return naming, nil
}
