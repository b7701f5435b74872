// Package store defines a common interface for the persisted state of a
// stablemesh node: its age, the ordinal sequence, the last snapshot of
// confirmed members, and the chain of section authority proofs.
//
// There are two implementations: InmemStore, backed by plain in-memory
// structures, and BadgerStore, backed by a badger key-value database with an
// InmemStore front for reads.
package store
