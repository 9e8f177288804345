package section

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"ewfkit/ewf"
	"ewfkit/internal/codec"
)

// The header section carries the acquisition metadata as zlib-compressed
// tab-separated text: a version line, a category line, a line of field
// codes, and a line of values. header2 and xheader are the same text in
// UTF-16LE. Field codes map to the long identifiers the public API uses;
// identifiers without a known code pass through verbatim, so foreign
// metadata survives a round trip.

var headerCodes = []struct{ code, id string }{
	{"c", "case_number"},
	{"n", "evidence_number"},
	{"a", "description"},
	{"e", "examiner_name"},
	{"t", "notes"},
	{"av", "acquiry_software_version"},
	{"ov", "acquiry_operating_system"},
	{"m", "acquiry_date"},
	{"u", "system_date"},
	{"p", "password"},
	{"md", "model"},
	{"sn", "serial_number"},
}

func codeForIdentifier(id string) string {
	for _, m := range headerCodes {
		if m.id == id {
			return m.code
		}
	}
	return id
}

func identifierForCode(code string) string {
	for _, m := range headerCodes {
		if m.code == code {
			return m.id
		}
	}
	return code
}

// headerText serializes values in insertion order.
func headerText(values *ewf.Values) string {
	ids := values.Identifiers()
	codes := make([]string, len(ids))
	vals := make([]string, len(ids))
	for i, id := range ids {
		codes[i] = codeForIdentifier(id)
		vals[i], _ = values.Get(id)
	}
	var b strings.Builder
	b.WriteString("1\nmain\n")
	b.WriteString(strings.Join(codes, "\t"))
	b.WriteByte('\n')
	b.WriteString(strings.Join(vals, "\t"))
	b.WriteString("\n\n")
	return b.String()
}

func parseHeaderText(text string) (*ewf.Values, error) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) < 4 {
		return nil, fmt.Errorf("%w: malformed header text", ewf.ErrTruncated)
	}
	codes := strings.Split(lines[2], "\t")
	vals := strings.Split(lines[3], "\t")
	values := ewf.NewValues()
	for i, code := range codes {
		if code == "" {
			continue
		}
		value := ""
		if i < len(vals) {
			value = vals[i]
		}
		values.Set(identifierForCode(code), value)
	}
	return values, nil
}

var utf16Codec = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)

// EncodeHeader builds the compressed payload of a header section. utf16
// selects the header2/xheader wide encoding.
func EncodeHeader(values *ewf.Values, utf16 bool) ([]byte, error) {
	text := []byte(headerText(values))
	if utf16 {
		wide, err := utf16Codec.NewEncoder().Bytes(text)
		if err != nil {
			return nil, fmt.Errorf("encode header2 text: %w", err)
		}
		text = wide
	}
	return codec.Compress(text, ewf.CompressionBest)
}

// DecodeHeader parses a compressed header payload back into values.
func DecodeHeader(payload []byte, utf16 bool) (*ewf.Values, error) {
	text, err := codec.Decompress(payload, 0)
	if err != nil {
		return nil, fmt.Errorf("inflate header section: %w", err)
	}
	if utf16 {
		narrow, err := utf16Codec.NewDecoder().Bytes(text)
		if err != nil {
			return nil, fmt.Errorf("decode header2 text: %w", err)
		}
		text = narrow
	}
	return parseHeaderText(string(text))
}
