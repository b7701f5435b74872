// Package xor implements 256-bit names and bit-string prefixes over the
// XOR-metric key space. Names identify nodes and sections; prefixes determine
// which names belong to which section. Every name matches exactly one prefix
// in a prefix-disjoint cover of the key space.
package xor
