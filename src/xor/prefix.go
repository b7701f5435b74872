package xor

import (
	"fmt"
	"strings"
)

// Prefix is a bit string of length 0..256. A section covers exactly the names
// matching its prefix.
type Prefix struct {
	name Name
	len  int
}

// NewPrefix builds a prefix of the given bit length whose bits are taken from
// name. Bits beyond the length are zeroed so that equal prefixes compare
// equal.
func NewPrefix(name Name, length int) Prefix {
	p := Prefix{len: length}
	for i := 0; i < length; i++ {
		if name.Bit(i) {
			p.name[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return p
}

// ParsePrefix decodes the "0b010" notation produced by String. The bare "0b"
// is the empty (genesis) prefix.
func ParsePrefix(s string) (Prefix, error) {
	if !strings.HasPrefix(s, "0b") {
		return Prefix{}, fmt.Errorf("prefix must start with 0b: %q", s)
	}
	bits := s[2:]
	if len(bits) > NameLen*8 {
		return Prefix{}, fmt.Errorf("prefix too long: %d bits", len(bits))
	}
	var p Prefix
	p.len = len(bits)
	for i, c := range bits {
		switch c {
		case '0':
		case '1':
			p.name[i/8] |= 1 << (7 - uint(i%8))
		default:
			return Prefix{}, fmt.Errorf("invalid bit %q in prefix %q", c, s)
		}
	}
	return p, nil
}

// Len returns the bit length of the prefix.
func (p Prefix) Len() int {
	return p.len
}

// Matches reports whether the prefix is a bit-prefix of the name.
func (p Prefix) Matches(n Name) bool {
	for i := 0; i < p.len; i++ {
		if p.name.Bit(i) != n.Bit(i) {
			return false
		}
	}
	return true
}

// Child returns the prefix extended by one bit.
func (p Prefix) Child(bit bool) Prefix {
	c := Prefix{name: p.name, len: p.len + 1}
	if bit {
		c.name[p.len/8] |= 1 << (7 - uint(p.len%8))
	}
	return c
}

// Sibling returns the prefix differing only in its last bit.
func (p Prefix) Sibling() Prefix {
	s := p
	if p.len == 0 {
		return s
	}
	i := p.len - 1
	s.name[i/8] ^= 1 << (7 - uint(i%8))
	return s
}

// IsParentOf reports whether c is a one-bit extension of p.
func (p Prefix) IsParentOf(c Prefix) bool {
	return c.len == p.len+1 && p.Matches(c.name)
}

// Name returns the zero-extension of the prefix: the prefix bits followed by
// zeros. This is the reference point for XOR-distance tie-breaks.
func (p Prefix) Name() Name {
	return p.name
}

// Equal reports prefix equality.
func (p Prefix) Equal(other Prefix) bool {
	return p.len == other.len && p.name == other.name
}

// String renders the prefix in 0b notation.
func (p Prefix) String() string {
	var sb strings.Builder
	sb.WriteString("0b")
	for i := 0; i < p.len; i++ {
		if p.name.Bit(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p Prefix) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Prefix) UnmarshalText(text []byte) error {
	parsed, err := ParsePrefix(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
