package store

import (
	cm "github.com/stablemesh/stablemesh/src/common"
	"github.com/stablemesh/stablemesh/src/section"
	"github.com/stablemesh/stablemesh/src/stableset"
)

// InmemStore implements the Store interface with plain in-memory structures.
// It is used for testing and for nodes that do not need to survive restarts.
type InmemStore struct {
	age       uint8
	ordIdx    uint64
	members   []stableset.Member
	saps      []*section.Sap
	sapsByKey map[string]int //hex of group key => chain index
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		sapsByKey: make(map[string]int),
	}
}

// Age implements the Store interface.
func (s *InmemStore) Age() uint8 {
	return s.age
}

// SetAge implements the Store interface.
func (s *InmemStore) SetAge(age uint8) error {
	s.age = age
	return nil
}

// NextOrdIdx implements the Store interface.
func (s *InmemStore) NextOrdIdx() (uint64, error) {
	s.ordIdx++
	return s.ordIdx, nil
}

// Members implements the Store interface.
func (s *InmemStore) Members() ([]stableset.Member, error) {
	res := make([]stableset.Member, len(s.members))
	copy(res, s.members)
	return res, nil
}

// SetMembers implements the Store interface.
func (s *InmemStore) SetMembers(members []stableset.Member) error {
	s.members = make([]stableset.Member, len(members))
	copy(s.members, members)
	return nil
}

// LastSap implements the Store interface.
func (s *InmemStore) LastSap() (*section.Sap, error) {
	if len(s.saps) == 0 {
		return nil, cm.NewStoreErr("Sap", cm.Empty, "last")
	}
	return s.saps[len(s.saps)-1], nil
}

// SapByKey implements the Store interface.
func (s *InmemStore) SapByKey(groupKey []byte) (*section.Sap, error) {
	key := cm.EncodeToString(groupKey)
	idx, ok := s.sapsByKey[key]
	if !ok {
		return nil, cm.NewStoreErr("Sap", cm.KeyNotFound, key)
	}
	return s.saps[idx], nil
}

// AppendSap implements the Store interface.
func (s *InmemStore) AppendSap(sap *section.Sap) error {
	key := cm.EncodeToString(sap.GroupKey())
	if _, ok := s.sapsByKey[key]; ok {
		return cm.NewStoreErr("Sap", cm.KeyAlreadyExists, key)
	}
	s.sapsByKey[key] = len(s.saps)
	s.saps = append(s.saps, sap)
	return nil
}

// SapCount implements the Store interface.
func (s *InmemStore) SapCount() int {
	return len(s.saps)
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
