package keyset

import (
	"errors"
	"fmt"

	"github.com/onflow/flow-go/crypto"

	"github.com/stablemesh/stablemesh/src/keys"
)

// historyLimit bounds how many retired public key sets are retained. One is
// the invariant (the immediately previous cohort must remain verifiable); a
// little slack absorbs back-to-back handovers.
const historyLimit = 3

var (
	// ErrNotACohortMember is returned by SignShare when the node holds no
	// private key share, i.e. it is not an elder of the current cohort.
	ErrNotACohortMember = errors.New("node is not a member of the current cohort")
)

// KeyStore owns this node's view of the cohort key material. It is mutated
// only by the coordinator.
type KeyStore struct {
	current *PublicSet
	share   crypto.PrivateKey
	index   int
	history []*PublicSet
}

// NewKeyStore creates a KeyStore for the given cohort. share is nil when the
// node is not an elder; index is the node's share index and is ignored when
// share is nil.
func NewKeyStore(current *PublicSet, share crypto.PrivateKey, index int) *KeyStore {
	return &KeyStore{
		current: current,
		share:   share,
		index:   index,
	}
}

// Current returns the current cohort public key set.
func (ks *KeyStore) Current() *PublicSet {
	return ks.current
}

// ShareIndex returns the node's share index in the current set.
func (ks *KeyStore) ShareIndex() int {
	return ks.index
}

// IsElder reports whether the node holds a private share for the current set.
func (ks *KeyStore) IsElder() bool {
	return ks.share != nil
}

// SignShare produces a partial signature over msg with this node's share.
func (ks *KeyStore) SignShare(msg []byte) ([]byte, error) {
	if ks.share == nil {
		return nil, ErrNotACohortMember
	}
	sig, err := ks.share.Sign(msg, crypto.NewBLSKMAC(keys.CohortTag))
	if err != nil {
		return nil, fmt.Errorf("sign share: %w", err)
	}
	return sig, nil
}

// Rotate atomically replaces the current key material and appends the old
// public set to the history. share is nil when the node is not an elder of
// the new cohort.
func (ks *KeyStore) Rotate(newSet *PublicSet, share crypto.PrivateKey, index int) {
	ks.history = append(ks.history, ks.current)
	if len(ks.history) > historyLimit {
		ks.history = ks.history[len(ks.history)-historyLimit:]
	}

	ks.current = newSet
	ks.share = share
	ks.index = index
}

// AdoptShare records a private share for the current set. Used when the
// dealt share of a freshly installed cohort arrives after the decision that
// installed it.
func (ks *KeyStore) AdoptShare(share crypto.PrivateKey, index int) {
	ks.share = share
	ks.index = index
}

// Revoke drops the private share without rotating, e.g. on eviction. The
// public set stays so that the node can keep verifying section messages.
func (ks *KeyStore) Revoke() {
	ks.share = nil
	ks.index = 0
}

// Previous returns the most recently retired public set, or nil.
func (ks *KeyStore) Previous() *PublicSet {
	if len(ks.history) == 0 {
		return nil
	}
	return ks.history[len(ks.history)-1]
}

// Lookup resolves an encoded group key against the current set and the
// history, newest first.
func (ks *KeyStore) Lookup(groupKey []byte) (*PublicSet, bool) {
	if ks.current.SameGroup(groupKey) {
		return ks.current, true
	}
	for i := len(ks.history) - 1; i >= 0; i-- {
		if ks.history[i].SameGroup(groupKey) {
			return ks.history[i], true
		}
	}
	return nil, false
}

// IsCurrentOrPrevious reports whether the encoded group key matches the
// current cohort or the one immediately before it. Votes from older cohorts
// are dropped by the membership engine.
func (ks *KeyStore) IsCurrentOrPrevious(groupKey []byte) bool {
	if ks.current.SameGroup(groupKey) {
		return true
	}
	prev := ks.Previous()
	return prev != nil && prev.SameGroup(groupKey)
}
