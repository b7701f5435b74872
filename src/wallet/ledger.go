package wallet

import (
	"errors"
	"sync"

	"github.com/dgraph-io/badger"

	cm "github.com/stablemesh/stablemesh/src/common"
)

// maxLegs is the number of distinct transfers one escrow key can fund: a
// split produces two legs, everything else one.
const maxLegs = 2

var (
	// ErrEscrowEmpty is the ledger's rejection of a transfer whose escrow key
	// was already emptied, e.g. because a duplicate handover occurred.
	ErrEscrowEmpty = errors.New("escrow key already emptied")
)

// Ledger is the network-level transfer store. Appends are idempotent by
// transfer id; a transfer from an already-emptied escrow is rejected with
// ErrEscrowEmpty.
type Ledger interface {
	Append(t *Transfer) error
	Fetch(id [32]byte) (*Transfer, bool, error)
}

// InmemLedger implements Ledger in memory, for tests and local runs. Appends
// come from settlement goroutines, so access is serialised.
type InmemLedger struct {
	sync.Mutex
	transfers map[[32]byte]*Transfer
	spent     map[string][][32]byte //hex of escrow key => ids drawn against it
}

// NewInmemLedger ...
func NewInmemLedger() *InmemLedger {
	return &InmemLedger{
		transfers: make(map[[32]byte]*Transfer),
		spent:     make(map[string][][32]byte),
	}
}

// Append implements the Ledger interface.
func (l *InmemLedger) Append(t *Transfer) error {
	l.Lock()
	defer l.Unlock()

	if _, ok := l.transfers[t.ID]; ok {
		// duplicate broadcast of the same transfer is absorbed
		return nil
	}

	from := cm.EncodeToString(t.From)
	if len(l.spent[from]) >= maxLegs {
		return ErrEscrowEmpty
	}

	l.transfers[t.ID] = t
	l.spent[from] = append(l.spent[from], t.ID)
	return nil
}

// Fetch implements the Ledger interface.
func (l *InmemLedger) Fetch(id [32]byte) (*Transfer, bool, error) {
	l.Lock()
	defer l.Unlock()

	t, ok := l.transfers[id]
	return t, ok, nil
}

// SpentBy returns the ids of the transfers drawn against an escrow key, in
// append order.
func (l *InmemLedger) SpentBy(from []byte) [][32]byte {
	l.Lock()
	defer l.Unlock()

	ids := l.spent[cm.EncodeToString(from)]
	out := make([][32]byte, len(ids))
	copy(out, ids)
	return out
}

// BadgerLedger implements Ledger over a badger database, for deployments
// where the node itself hosts its ledger shard.
type BadgerLedger struct {
	db *badger.DB
}

// NewBadgerLedger ...
func NewBadgerLedger(path string) (*BadgerLedger, error) {
	opts := badger.DefaultOptions(path)
	opts.SyncWrites = false
	opts.Logger = nil
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerLedger{db: handle}, nil
}

func transferKey(id [32]byte) []byte {
	return append([]byte("transfer_"), id[:]...)
}

func spentKey(from []byte) []byte {
	return append([]byte("spent_"), from...)
}

// Append implements the Ledger interface.
func (l *BadgerLedger) Append(t *Transfer) error {
	tx := l.db.NewTransaction(true)
	defer tx.Discard()

	if _, err := tx.Get(transferKey(t.ID)); err == nil {
		return nil
	}

	// the spent record concatenates the ids drawn against the escrow key
	var ids []byte
	if item, err := tx.Get(spentKey(t.From)); err == nil {
		ids, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}
	}
	if len(ids)/32 >= maxLegs {
		return ErrEscrowEmpty
	}

	val, err := t.Marshal()
	if err != nil {
		return err
	}
	if err := tx.Set(transferKey(t.ID), val); err != nil {
		return err
	}
	if err := tx.Set(spentKey(t.From), append(ids, t.ID[:]...)); err != nil {
		return err
	}

	return tx.Commit()
}

// Fetch implements the Ledger interface.
func (l *BadgerLedger) Fetch(id [32]byte) (*Transfer, bool, error) {
	var raw []byte
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(transferKey(id))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})

	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	t := new(Transfer)
	if err := t.Unmarshal(raw); err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// SpentBy returns the ids of the transfers drawn against an escrow key, in
// append order.
func (l *BadgerLedger) SpentBy(from []byte) ([][32]byte, error) {
	var ids []byte
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(spentKey(from))
		if err != nil {
			return err
		}
		ids, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([][32]byte, 0, len(ids)/32)
	for i := 0; i+32 <= len(ids); i += 32 {
		var id [32]byte
		copy(id[:], ids[i:i+32])
		out = append(out, id)
	}
	return out, nil
}

// Close ...
func (l *BadgerLedger) Close() error {
	return l.db.Close()
}
