package store

import (
	"github.com/stablemesh/stablemesh/src/section"
	"github.com/stablemesh/stablemesh/src/stableset"
)

// Store is an interface for backend stores of section state.
type Store interface {
	// Age returns the node's recorded age.
	Age() uint8
	// SetAge records the node's age.
	SetAge(age uint8) error
	// NextOrdIdx mints the next value of the monotonic ordinal sequence.
	NextOrdIdx() (uint64, error)
	// Members returns the last recorded snapshot of confirmed members.
	Members() ([]stableset.Member, error)
	// SetMembers records a snapshot of confirmed members.
	SetMembers(members []stableset.Member) error
	// LastSap returns the most recent Sap of the chain.
	LastSap() (*section.Sap, error)
	// SapByKey returns the Sap whose cohort group key matches groupKey.
	SapByKey(groupKey []byte) (*section.Sap, error)
	// AppendSap appends a Sap to the chain.
	AppendSap(sap *section.Sap) error
	// SapCount returns the length of the Sap chain.
	SapCount() int
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}
