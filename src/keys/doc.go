// Package keys manages the long-term identity key-pair of a stablemesh node.
//
// Identity keys are BLS12-381 keys. The same curve carries the threshold
// key shares used by elder cohorts (cf. keyset package), so a single
// verification path covers every control-plane signature. A node's name is
// the blake3 hash of its identity public key.
package keys
