package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sigurn/crc16"
)

// Encoding names the wire representation a caller chose for a payload: the
// literal UTF-8 bytes of a string, or a whitespace-tolerant hex string.
type Encoding string

const (
	EncodingUTF8 Encoding = "utf8"
	EncodingHex  Encoding = "hex"
)

// Codec is the bidirectional, total encoding adapter of §4.H. It never
// touches the port; Decode/Encode are pure functions of their input.
type Codec struct{}

// Decode classifies raw bytes as UTF-8 text or, on decode failure, a
// lowercase space-separated hex string. It never fails: every byte
// sequence has a representation.
func (Codec) Decode(b []byte) (text string, isHex bool) {
	if utf8.Valid(b) {
		return string(b), false
	}
	return formatHex(b), true
}

// Encode turns caller-supplied text back into wire bytes according to the
// encoding the caller declared when they sent it. EncodingUTF8 passes the
// literal bytes of text through (callers are responsible for any needed
// line terminator); EncodingHex parses whitespace-separated hex pairs.
func (Codec) Encode(text string, enc Encoding) ([]byte, error) {
	switch enc {
	case EncodingUTF8, "":
		return []byte(text), nil
	case EncodingHex:
		return parseHex(text)
	default:
		return nil, &Error{Code: CodeData, Err: fmt.Errorf("%w: %q", ErrUnknownEncoding, enc)}
	}
}

// Checksum computes a CRC16/MODBUS checksum over b. It is a plain byte
// utility exposed alongside the Codec for callers that want to validate a
// framed payload themselves; the engine never calls it automatically, so
// it never crosses into the protocol-parsing territory the engine
// otherwise stays out of.
func (Codec) Checksum(b []byte) uint16 {
	table := crc16.MakeTable(crc16.CRC16_MODBUS)
	return crc16.Checksum(b, table)
}

// formatHex renders b as lowercase space-separated hex pairs, e.g.
// "aa bb cc".
func formatHex(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b)*3 - boolToInt(len(b) > 0))
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		const hexDigits = "0123456789abcdef"
		sb.WriteByte(hexDigits[c>>4])
		sb.WriteByte(hexDigits[c&0x0f])
	}
	return sb.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseHex parses a whitespace-tolerant (single or multiple spaces,
// case-insensitive) string of hex digit pairs into bytes, rejecting
// invalid characters or an odd digit count.
func parseHex(s string) ([]byte, error) {
	var digits []byte
	for _, r := range s {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			continue
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
			digits = append(digits, byte(r))
		default:
			return nil, &Error{Code: CodeData, Err: fmt.Errorf("%w: invalid character %q", ErrInvalidHex, r)}
		}
	}
	if len(digits)%2 != 0 {
		return nil, &Error{Code: CodeData, Err: fmt.Errorf("%w: odd number of hex digits", ErrInvalidHex)}
	}
	out := make([]byte, len(digits)/2)
	for i := range out {
		hi, err := hexVal(digits[2*i])
		if err != nil {
			return nil, &Error{Code: CodeData, Err: err}
		}
		lo, err := hexVal(digits[2*i+1])
		if err != nil {
			return nil, &Error{Code: CodeData, Err: err}
		}
		out[i] = hi<<4 | lo
	}
	return out, nil
}

func hexVal(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("%w: invalid hex digit %q", ErrInvalidHex, c)
	}
}
