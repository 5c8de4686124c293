package keycodec

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncode_IntOrdering(t *testing.T) {
	// Byte order must equal numeric order across the full int64 range.
	values := []int64{-1 << 62, -100000, -1, 0, 1, 7, 255, 256, 100000, 1 << 62}

	for i := 1; i < len(values); i++ {
		a := Encode(Int(values[i-1]))
		b := Encode(Int(values[i]))
		if bytes.Compare(a, b) >= 0 {
			t.Errorf("Encode(%d) should sort before Encode(%d)", values[i-1], values[i])
		}
	}
}

func TestEncode_StringOrdering(t *testing.T) {
	values := []string{"", "a", "a\x00", "a\x00b", "a\x01", "a\x01b", "ab", "abc", "b", "ba"}

	for i := 1; i < len(values); i++ {
		a := Encode(String(values[i-1]))
		b := Encode(String(values[i]))
		if bytes.Compare(a, b) >= 0 {
			t.Errorf("Encode(%q) should sort before Encode(%q)", values[i-1], values[i])
		}
	}
}

func TestEncode_StringNotPrefixOfSibling(t *testing.T) {
	// "ab" must not be a byte-prefix of "abc", or prefix scans over one
	// key's children would pick up an unrelated key's records.
	a := Encode(String("ab"))
	b := Encode(String("abc"))
	if bytes.HasPrefix(b, a) {
		t.Errorf("Encode(%q) is a prefix of Encode(%q)", "ab", "abc")
	}
}

func TestEncode_StringNotPrefixOfZeroExtension(t *testing.T) {
	// Extending a string with a zero byte must not produce an encoding
	// that carries the shorter string's bytes as a prefix. If it did, a
	// subtree scan rooted at "a" would sweep up "a\x00b" and everything
	// beneath it.
	tests := []struct {
		short, long string
	}{
		{"a", "a\x00b"},
		{"a", "a\x00"},
		{"a", "a\x01b"},
		{"", "\x00"},
		{"a\x00", "a\x00\x00"},
	}

	for _, tt := range tests {
		short := Encode(String(tt.short))
		long := Encode(String(tt.long))
		if bytes.HasPrefix(long, short) {
			t.Errorf("Encode(%q) is a prefix of Encode(%q)", tt.short, tt.long)
		}
	}
}

func TestEncode_TupleIsConcatenation(t *testing.T) {
	parent := Encode(String("id3"))
	child := Encode(Tuple{String("id3"), Int(2)})

	want := append(append([]byte(nil), parent...), Encode(Int(2))...)
	if !bytes.Equal(child, want) {
		t.Errorf("tuple encoding is not the concatenation of its elements")
	}
	if !bytes.HasPrefix(child, parent) {
		t.Errorf("child encoding does not carry the parent prefix")
	}
}

func TestEncode_NestedTuplePrefix(t *testing.T) {
	// A grandchild's encoding is prefixed by the child's, which is
	// prefixed by the parent's, regardless of nesting depth.
	parent := Encode(String("id3"))
	child := Encode(Tuple{String("id3"), Int(2)})
	grandchild := Encode(Tuple{Tuple{String("id3"), Int(2)}, Int(2)})

	if !bytes.HasPrefix(grandchild, child) {
		t.Errorf("grandchild encoding does not carry the child prefix")
	}
	if !bytes.HasPrefix(grandchild, parent) {
		t.Errorf("grandchild encoding does not carry the parent prefix")
	}
}

func TestDecode_Roundtrip(t *testing.T) {
	tests := []struct {
		name string
		key  Key
	}{
		{"int zero", Int(0)},
		{"int negative", Int(-42)},
		{"int large", Int(1 << 40)},
		{"string empty", String("")},
		{"string plain", String("hello")},
		{"string with zero byte", String("a\x00b")},
		{"string with escape byte", String("a\x01b")},
		{"string of only low bytes", String("\x00\x01\x00")},
		{"string with high byte", String("a\xffb")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(Encode(tt.key))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != tt.key {
				t.Errorf("Decode(Encode(%v)) = %v", tt.key, got)
			}
		})
	}
}

func TestDecode_TupleFlattens(t *testing.T) {
	// Nesting is not recoverable from the bytes; Decode returns the
	// flat component sequence.
	got, err := Decode(Encode(Tuple{Tuple{String("id3"), Int(2)}, Int(1)}))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	tup, ok := got.(Tuple)
	if !ok {
		t.Fatalf("expected Tuple, got %T", got)
	}
	if len(tup) != 3 || tup[0] != String("id3") || tup[1] != Int(2) || tup[2] != Int(1) {
		t.Errorf("unexpected components: %v", tup)
	}
}

func TestDecode_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"unknown tag", []byte{0x7f}},
		{"truncated int", []byte{0x01, 0x00, 0x00}},
		{"unterminated string", []byte{0x02, 'a', 'b'}},
		{"truncated escape", []byte{0x02, 'a', 0x01}},
		{"invalid escape", []byte{0x02, 'a', 0x01, 0x7f, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.in); !errors.Is(err, ErrCorrupt) {
				t.Errorf("expected ErrCorrupt, got %v", err)
			}
		})
	}
}

func TestCompose_Decompose(t *testing.T) {
	parent := Encode(String("id3"))
	child := Compose(parent, 7)

	gotParent, seq, err := Decompose(child)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if !bytes.Equal(gotParent, parent) {
		t.Errorf("Decompose parent = %x, want %x", gotParent, parent)
	}
	if seq != 7 {
		t.Errorf("Decompose seq = %d, want 7", seq)
	}
}

func TestCompose_MatchesTupleEncoding(t *testing.T) {
	// Compose in byte space must agree with encoding the logical tuple.
	fromBytes := Compose(Encode(String("id3")), 2)
	fromKey := Encode(Tuple{String("id3"), Int(2)})
	if !bytes.Equal(fromBytes, fromKey) {
		t.Errorf("Compose = %x, Encode(Tuple) = %x", fromBytes, fromKey)
	}
}

func TestCompose_DoesNotAliasParent(t *testing.T) {
	parent := Encode(String("p"))
	saved := append([]byte(nil), parent...)

	_ = Compose(parent, 0)
	_ = Compose(parent, 1)
	if !bytes.Equal(parent, saved) {
		t.Errorf("Compose mutated the parent bytes")
	}
}

func TestTrailingInt(t *testing.T) {
	b := Encode(Tuple{String("p"), Int(41)})
	n, err := TrailingInt(b)
	if err != nil {
		t.Fatalf("TrailingInt: %v", err)
	}
	if n != 41 {
		t.Errorf("TrailingInt = %d, want 41", n)
	}

	if _, err := TrailingInt(Encode(String("p"))); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt for key without trailing integer, got %v", err)
	}
}
