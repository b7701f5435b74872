package xor

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// NameLen is the byte length of a Name.
const NameLen = 32

// Name is a 256-bit identifier. It is both an opaque identity and a point in
// XOR-metric key space.
type Name [NameLen]byte

// NameFromBytes hashes arbitrary bytes into a Name. Node names are derived
// this way from the node's long-term public key.
func NameFromBytes(data []byte) Name {
	return Name(blake3.Sum256(data))
}

// ParseName decodes a hex string produced by Name.String.
func ParseName(s string) (Name, error) {
	var n Name
	b, err := hex.DecodeString(s)
	if err != nil {
		return n, err
	}
	if len(b) != NameLen {
		return n, fmt.Errorf("name must be %d bytes, got %d", NameLen, len(b))
	}
	copy(n[:], b)
	return n, nil
}

// Bit returns the i'th bit of the name, counting from the most significant.
func (n Name) Bit(i int) bool {
	return n[i/8]&(1<<(7-uint(i%8))) != 0
}

// Distance returns the XOR distance between two names.
func (n Name) Distance(other Name) Name {
	var d Name
	for i := 0; i < NameLen; i++ {
		d[i] = n[i] ^ other[i]
	}
	return d
}

// Cmp compares two names read as unsigned big-endian integers.
func (n Name) Cmp(other Name) int {
	return bytes.Compare(n[:], other[:])
}

// String returns the full hex encoding of the name.
func (n Name) String() string {
	return hex.EncodeToString(n[:])
}

// ShortString returns an abbreviated hex form for logs.
func (n Name) ShortString() string {
	return hex.EncodeToString(n[:3])
}

// MarshalText implements encoding.TextMarshaler so that Names are stable hex
// strings in canonical JSON, including as map keys.
func (n Name) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *Name) UnmarshalText(text []byte) error {
	parsed, err := ParseName(string(text))
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}
