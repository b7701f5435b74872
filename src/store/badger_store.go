package store

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/dgraph-io/badger"

	cm "github.com/stablemesh/stablemesh/src/common"
	"github.com/stablemesh/stablemesh/src/section"
	"github.com/stablemesh/stablemesh/src/stableset"
)

const (
	agePrefix     = "age"
	ordIdxPrefix  = "ord_idx"
	membersPrefix = "members"
	sapPrefix     = "sap"
	sapCountKey   = "sap_count"
)

// BadgerStore persists section state in a badger database, with an InmemStore
// front for reads. The Sap chain and member snapshot survive restarts.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
}

//NewBadgerStore creates a brand new Store with a new database
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	store := &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
	}
	return store, nil
}

//LoadBadgerStore creates a Store from an existing database
func LoadBadgerStore(path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	store := &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
	}

	if err := store.bootstrap(); err != nil {
		store.db.Close()
		return nil, err
	}

	return store, nil
}

// LoadOrCreateBadgerStore ...
func LoadOrCreateBadgerStore(path string) (*BadgerStore, error) {
	store, err := LoadBadgerStore(path)

	if err != nil {
		store, err = NewBadgerStore(path)

		if err != nil {
			return nil, err
		}
	}

	return store, nil
}

// bootstrap replays the database into the InmemStore front.
func (s *BadgerStore) bootstrap() error {
	if age, err := s.dbGetUint64(agePrefix); err == nil {
		s.inmemStore.SetAge(uint8(age))
	}

	if ord, err := s.dbGetUint64(ordIdxPrefix); err == nil {
		s.inmemStore.ordIdx = ord
	}

	if members, err := s.dbGetMembers(); err == nil {
		s.inmemStore.SetMembers(members)
	}

	count, err := s.dbGetUint64(sapCountKey)
	if err != nil {
		if isDBKeyNotFound(err) {
			return nil
		}
		return err
	}

	for i := 0; i < int(count); i++ {
		sap, err := s.dbGetSap(i)
		if err != nil {
			return err
		}
		if err := s.inmemStore.AppendSap(sap); err != nil {
			return err
		}
	}

	return nil
}

//==============================================================================
//Keys

func sapKey(index int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", sapPrefix, index))
}

//==============================================================================
//Implement the Store interface

// Age implements the Store interface.
func (s *BadgerStore) Age() uint8 {
	return s.inmemStore.Age()
}

// SetAge implements the Store interface.
func (s *BadgerStore) SetAge(age uint8) error {
	if err := s.inmemStore.SetAge(age); err != nil {
		return err
	}
	return s.dbSetUint64(agePrefix, uint64(age))
}

// NextOrdIdx implements the Store interface.
func (s *BadgerStore) NextOrdIdx() (uint64, error) {
	ord, err := s.inmemStore.NextOrdIdx()
	if err != nil {
		return 0, err
	}
	if err := s.dbSetUint64(ordIdxPrefix, ord); err != nil {
		return 0, err
	}
	return ord, nil
}

// Members implements the Store interface.
func (s *BadgerStore) Members() ([]stableset.Member, error) {
	return s.inmemStore.Members()
}

// SetMembers implements the Store interface.
func (s *BadgerStore) SetMembers(members []stableset.Member) error {
	if err := s.inmemStore.SetMembers(members); err != nil {
		return err
	}
	return s.dbSetMembers(members)
}

// LastSap implements the Store interface.
func (s *BadgerStore) LastSap() (*section.Sap, error) {
	return s.inmemStore.LastSap()
}

// SapByKey implements the Store interface.
func (s *BadgerStore) SapByKey(groupKey []byte) (*section.Sap, error) {
	return s.inmemStore.SapByKey(groupKey)
}

// AppendSap implements the Store interface.
func (s *BadgerStore) AppendSap(sap *section.Sap) error {
	index := s.inmemStore.SapCount()
	if err := s.inmemStore.AppendSap(sap); err != nil {
		return err
	}
	if err := s.dbSetSap(index, sap); err != nil {
		return err
	}
	return s.dbSetUint64(sapCountKey, uint64(index+1))
}

// SapCount implements the Store interface.
func (s *BadgerStore) SapCount() int {
	return s.inmemStore.SapCount()
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

//==============================================================================
//DB Methods

func (s *BadgerStore) dbGetUint64(key string) (uint64, error) {
	var valBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		valBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return 0, err
	}

	if len(valBytes) != 8 {
		return 0, cm.NewStoreErr("Uint64", cm.KeyNotFound, key)
	}

	return binary.BigEndian.Uint64(valBytes), nil
}

func (s *BadgerStore) dbSetUint64(key string, val uint64) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	valBytes := make([]byte, 8)
	binary.BigEndian.PutUint64(valBytes, val)

	if err := tx.Set([]byte(key), valBytes); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *BadgerStore) dbGetMembers() ([]stableset.Member, error) {
	var membersBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(membersPrefix))
		if err != nil {
			return err
		}
		membersBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	members := []stableset.Member{}
	if err := unmarshalMembers(membersBytes, &members); err != nil {
		return nil, err
	}

	return members, nil
}

func (s *BadgerStore) dbSetMembers(members []stableset.Member) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	val, err := marshalMembers(members)
	if err != nil {
		return err
	}

	if err := tx.Set([]byte(membersPrefix), val); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *BadgerStore) dbGetSap(index int) (*section.Sap, error) {
	var sapBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sapKey(index))
		if err != nil {
			return err
		}
		sapBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	sap := new(section.Sap)
	if err := sap.Unmarshal(sapBytes); err != nil {
		return nil, err
	}

	return sap, nil
}

func (s *BadgerStore) dbSetSap(index int, sap *section.Sap) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	val, err := sap.Marshal()
	if err != nil {
		return err
	}

	if err := tx.Set(sapKey(index), val); err != nil {
		return err
	}

	return tx.Commit()
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}
