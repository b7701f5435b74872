package wallet

import (
	"bytes"

	"github.com/ugorji/go/codec"
	"github.com/zeebo/blake3"
)

// Transfer is a signed, idempotent ledger operation moving escrow balance
// from one cohort key to another. Its id is deterministic in the two keys, so
// duplicate broadcasts are absorbed by the ledger.
type Transfer struct {
	ID     [32]byte `json:"id"`
	From   []byte   `json:"from"`
	To     []byte   `json:"to"`
	Amount uint64   `json:"amount"`
	Sig    []byte   `json:"sig,omitempty"`
}

// TransferID derives the deterministic id of a transfer between two cohort
// keys.
func TransferID(from, to []byte) [32]byte {
	buf := make([]byte, 0, len(from)+len(to))
	buf = append(buf, from...)
	buf = append(buf, to...)
	return blake3.Sum256(buf)
}

// NewTransfer ...
func NewTransfer(from, to []byte, amount uint64) *Transfer {
	return &Transfer{
		ID:     TransferID(from, to),
		From:   from,
		To:     to,
		Amount: amount,
	}
}

// SignableBytes - canonical json encoding of the transfer without its
// signature
func (t *Transfer) SignableBytes() ([]byte, error) {
	unsigned := *t
	unsigned.Sig = nil

	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(&unsigned); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Marshal ...
func (t *Transfer) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(t); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (t *Transfer) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(t)
}
