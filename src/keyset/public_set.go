package keyset

import (
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/onflow/flow-go/crypto"

	"github.com/stablemesh/stablemesh/src/keys"
)

var (
	// ErrInsufficientShares indicates that Combine was given fewer valid
	// shares than Threshold()+1.
	ErrInsufficientShares = errors.New("not enough valid signature shares")
)

// Threshold returns the BLS threshold t for a cohort of n elders. Combining a
// signature requires t+1 shares, which is a strict two-thirds supermajority
// of the cohort.
func Threshold(n int) int {
	return 2 * n / 3
}

// PublicSet is the public half of a cohort's threshold key: the group public
// key plus the public subkey of every share. A PublicSet identifies its
// cohort; section wallets are addressed by the group key.
type PublicSet struct {
	Group  crypto.PublicKey
	Shares []crypto.PublicKey
}

// PublicSetBytes is the serialisable form of a PublicSet.
type PublicSetBytes struct {
	Group  []byte   `json:"group"`
	Shares [][]byte `json:"shares"`
}

// Size returns the number of shares in the set.
func (ps *PublicSet) Size() int {
	return len(ps.Shares)
}

// Threshold returns the BLS threshold t of this set.
func (ps *PublicSet) Threshold() int {
	return Threshold(ps.Size())
}

// GroupBytes returns the encoded group public key.
func (ps *PublicSet) GroupBytes() []byte {
	return ps.Group.Encode()
}

// SameGroup reports whether the encoded group key matches.
func (ps *PublicSet) SameGroup(groupKey []byte) bool {
	return bytes.Equal(ps.GroupBytes(), groupKey)
}

// Encode dumps the set to its serialisable form.
func (ps *PublicSet) Encode() *PublicSetBytes {
	out := &PublicSetBytes{
		Group:  ps.Group.Encode(),
		Shares: make([][]byte, len(ps.Shares)),
	}
	for i, s := range ps.Shares {
		out.Shares[i] = s.Encode()
	}
	return out
}

// DecodePublicSet rebuilds a PublicSet from its serialisable form.
func DecodePublicSet(b *PublicSetBytes) (*PublicSet, error) {
	group, err := keys.ParsePublicKey(b.Group)
	if err != nil {
		return nil, fmt.Errorf("bad group key: %w", err)
	}
	shares := make([]crypto.PublicKey, len(b.Shares))
	for i, raw := range b.Shares {
		shares[i], err = keys.ParsePublicKey(raw)
		if err != nil {
			return nil, fmt.Errorf("bad share key %d: %w", i, err)
		}
	}
	return &PublicSet{Group: group, Shares: shares}, nil
}

// VerifyShare checks a partial signature over msg against the subkey at the
// given share index.
func (ps *PublicSet) VerifyShare(index int, msg, sig []byte) bool {
	if index < 0 || index >= len(ps.Shares) {
		return false
	}
	ok, err := ps.Shares[index].Verify(sig, msg, crypto.NewBLSKMAC(keys.CohortTag))
	return err == nil && ok
}

// VerifyGroup checks a combined threshold signature over msg against the
// group public key.
func (ps *PublicSet) VerifyGroup(msg, sig []byte) bool {
	ok, err := ps.Group.Verify(sig, msg, crypto.NewBLSKMAC(keys.CohortTag))
	return err == nil && ok
}

// Combine reconstructs the group signature over msg from the provided shares,
// keyed by share index. Shares that do not verify are skipped; if fewer than
// Threshold()+1 remain, ErrInsufficientShares is returned.
func (ps *PublicSet) Combine(msg []byte, shares map[int][]byte) ([]byte, error) {
	// a single-member cohort carries a plain key, its share signature is the
	// group signature
	if ps.Size() == 1 {
		if sig, ok := shares[0]; ok && ps.VerifyShare(0, msg, sig) {
			return sig, nil
		}
		return nil, ErrInsufficientShares
	}

	inspector, err := crypto.NewBLSThresholdSignatureInspector(
		ps.Group,
		ps.Shares,
		ps.Threshold(),
		msg,
		keys.CohortTag,
	)
	if err != nil {
		return nil, fmt.Errorf("combine setup: %w", err)
	}

	for index, sig := range shares {
		ok, err := inspector.VerifyShare(index, sig)
		if err != nil || !ok {
			continue
		}
		if _, err := inspector.TrustedAdd(index, sig); err != nil {
			continue
		}
	}

	if !inspector.EnoughShares() {
		return nil, ErrInsufficientShares
	}

	sig, err := inspector.ThresholdSignature()
	if err != nil {
		return nil, fmt.Errorf("combine: %w", err)
	}
	return sig, nil
}

// DealCohort generates a full threshold key set for a cohort of the given
// size, dealing one private share per elder. This is the bootstrap and test
// stand-in for the distributed key-generation ceremony: the output is shaped
// exactly like the ceremony's.
func DealCohort(n int) ([]crypto.PrivateKey, *PublicSet, error) {
	// the BLS threshold scheme needs at least two participants; a section
	// bootstrapping from a single elder gets a plain key instead
	if n == 1 {
		priv, err := keys.GenerateKey()
		if err != nil {
			return nil, nil, err
		}
		pub := priv.PublicKey()
		set := &PublicSet{Group: pub, Shares: []crypto.PublicKey{pub}}
		return []crypto.PrivateKey{priv}, set, nil
	}

	seed := make([]byte, crypto.SeedMinLenDKG)
	if _, err := rand.Read(seed); err != nil {
		return nil, nil, err
	}

	privShares, pubShares, groupKey, err := crypto.BLSThresholdKeyGen(n, Threshold(n), seed)
	if err != nil {
		return nil, nil, fmt.Errorf("threshold keygen: %w", err)
	}

	return privShares, &PublicSet{Group: groupKey, Shares: pubShares}, nil
}
