// Package keycodec provides an order-preserving byte encoding for entity keys.
package keycodec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Key is a comparable entity key: a primitive or an ordered tuple of keys.
// The byte encoding of a key preserves its logical ordering, so cursor
// range scans over encoded keys agree with numeric and string comparison.
type Key interface {
	appendTo(dst []byte) []byte
}

const (
	tagInt    = 0x01
	tagString = 0x02

	// String content bytes 0x00 and 0x01 are escaped behind stringEsc so
	// the terminator is the only 0x00 in an encoding. The terminator then
	// sorts below every content byte, which keeps byte order equal to
	// natural order and guarantees no encoding is a byte-prefix of a
	// longer string's encoding.
	stringTerm = 0x00
	stringEsc  = 0x01
	escZero    = 0x01
	escOne     = 0x02
)

// ErrCorrupt is returned when key bytes cannot be decoded.
var ErrCorrupt = errors.New("keycodec: corrupt key bytes")

// Int is an integer key component. It encodes as a fixed 9 bytes
// (tag + big-endian with the sign bit flipped), so byte order equals
// numeric order over the full int64 range.
type Int int64

func (i Int) appendTo(dst []byte) []byte {
	dst = append(dst, tagInt)
	return binary.BigEndian.AppendUint64(dst, uint64(i)^(1<<63))
}

// String is a string key component. Low content bytes are escaped and the
// encoding is terminated, so byte-lexicographic order equals natural
// string order and no encoding is a prefix of an unrelated key's encoding.
type String string

func (s String) appendTo(dst []byte) []byte {
	dst = append(dst, tagString)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 0x00:
			dst = append(dst, stringEsc, escZero)
		case 0x01:
			dst = append(dst, stringEsc, escOne)
		default:
			dst = append(dst, s[i])
		}
	}
	return append(dst, stringTerm)
}

// Tuple is an ordered sequence of keys. It encodes as the plain
// concatenation of its elements, so the encoding of (parent, seq) is
// exactly the parent's encoding followed by the sequence component.
// A prefix scan over a parent's bytes therefore enumerates its children
// at any nesting depth.
type Tuple []Key

func (t Tuple) appendTo(dst []byte) []byte {
	for _, k := range t {
		dst = k.appendTo(dst)
	}
	return dst
}

// Encode converts a key to its order-preserving byte form.
func Encode(k Key) []byte {
	return k.appendTo(nil)
}

// Decode parses encoded key bytes. A single component decodes to Int or
// String; multiple components decode to a flat Tuple (nesting structure is
// not recoverable from the bytes alone, and does not affect ordering).
func Decode(b []byte) (Key, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrCorrupt)
	}
	var parts Tuple
	for len(b) > 0 {
		k, rest, err := decodeOne(b)
		if err != nil {
			return nil, err
		}
		parts = append(parts, k)
		b = rest
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return parts, nil
}

func decodeOne(b []byte) (Key, []byte, error) {
	switch b[0] {
	case tagInt:
		if len(b) < 9 {
			return nil, nil, fmt.Errorf("%w: truncated integer", ErrCorrupt)
		}
		u := binary.BigEndian.Uint64(b[1:9])
		return Int(u ^ (1 << 63)), b[9:], nil
	case tagString:
		var s []byte
		for i := 1; i < len(b); i++ {
			switch b[i] {
			case stringTerm:
				return String(s), b[i+1:], nil
			case stringEsc:
				if i+1 >= len(b) {
					return nil, nil, fmt.Errorf("%w: truncated escape", ErrCorrupt)
				}
				i++
				switch b[i] {
				case escZero:
					s = append(s, 0x00)
				case escOne:
					s = append(s, 0x01)
				default:
					return nil, nil, fmt.Errorf("%w: invalid escape 0x%02x", ErrCorrupt, b[i])
				}
			default:
				s = append(s, b[i])
			}
		}
		return nil, nil, fmt.Errorf("%w: unterminated string", ErrCorrupt)
	default:
		return nil, nil, fmt.Errorf("%w: unknown tag 0x%02x", ErrCorrupt, b[0])
	}
}

// Compose appends a sequence component to an encoded parent key,
// producing the child key's byte form.
func Compose(parent []byte, seq int64) []byte {
	return Int(seq).appendTo(append([]byte(nil), parent...))
}

// Decompose splits a child key produced by Compose back into the parent's
// encoded key and the trailing sequence component.
func Decompose(child []byte) (parent []byte, seq int64, err error) {
	seq, err = TrailingInt(child)
	if err != nil {
		return nil, 0, err
	}
	return child[:len(child)-9], seq, nil
}

// TrailingInt decodes the final integer component of an encoded key.
func TrailingInt(b []byte) (int64, error) {
	if len(b) < 9 || b[len(b)-9] != tagInt {
		return 0, fmt.Errorf("%w: no trailing integer component", ErrCorrupt)
	}
	u := binary.BigEndian.Uint64(b[len(b)-8:])
	return int64(u ^ (1 << 63)), nil
}
