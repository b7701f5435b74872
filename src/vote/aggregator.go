package vote

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/onflow/flow-go/crypto"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"

	"github.com/stablemesh/stablemesh/src/keys"
	"github.com/stablemesh/stablemesh/src/keyset"
)

// defaultOutstanding caps the number of proposals with live aggregation
// contexts when no explicit size is configured. A peer flooding novel
// proposals evicts its own oldest context, not our memory.
const defaultOutstanding = 64

var (
	// ErrBadShare indicates a partial signature that does not verify against
	// the share's public subkey over the proposal bytes.
	ErrBadShare = errors.New("partial signature does not verify")

	// ErrDuplicateShareIndex indicates a second, valid share for an index
	// already recorded.
	ErrDuplicateShareIndex = errors.New("share index already recorded")

	// ErrUnknownKeySet indicates a vote claiming a key set this aggregator is
	// not bound to.
	ErrUnknownKeySet = errors.New("vote references an unknown key set")
)

// Proposal is anything with a canonical byte encoding that a cohort can
// threshold-sign.
type Proposal interface {
	SignableBytes() ([]byte, error)
}

// Aggregator collects partial signatures over proposals until a threshold
// signature can be produced. It is bound to exactly one public key set;
// concurrent proposals are tracked independently, and the combined signature
// for a proposal is emitted exactly once.
type Aggregator struct {
	pub     *keyset.PublicSet
	tallies *lru.Cache
	logger  *logrus.Entry
}

type tally struct {
	inspector crypto.ThresholdSignatureInspector
	single    []byte
	done      bool
}

// NewAggregator creates an Aggregator over the given public key set. size
// caps the number of live aggregation contexts; non-positive values fall back
// to the default.
func NewAggregator(pub *keyset.PublicSet, size int, logger *logrus.Entry) *Aggregator {
	if size <= 0 {
		size = defaultOutstanding
	}
	cache, _ := lru.New(size)
	return &Aggregator{
		pub:     pub,
		tallies: cache,
		logger:  logger,
	}
}

// KeySet returns the public set the aggregator is bound to.
func (a *Aggregator) KeySet() *keyset.PublicSet {
	return a.pub
}

// Add feeds one (share index, partial signature) pair for a proposal.
// groupKey is the encoded group key the voter claims to sign under. When the
// verified share count for the proposal reaches threshold+1, the combined
// signature is returned; before that, and for any input after the combined
// signature has been emitted, Add returns (nil, nil).
func (a *Aggregator) Add(p Proposal, groupKey []byte, index int, share []byte) ([]byte, error) {
	if !a.pub.SameGroup(groupKey) {
		return nil, ErrUnknownKeySet
	}

	msg, err := p.SignableBytes()
	if err != nil {
		return nil, fmt.Errorf("encode proposal: %w", err)
	}

	t, err := a.tallyFor(msg)
	if err != nil {
		return nil, err
	}
	if t.done {
		return nil, nil
	}

	// a single-member cohort carries a plain key: its lone share is the group
	// signature, so threshold is reached on the first valid share
	if a.pub.Size() == 1 {
		if index != 0 || !a.pub.VerifyShare(0, msg, share) {
			return nil, ErrBadShare
		}
		t.single = share
		t.done = true

		a.logger.WithFields(logrus.Fields{
			"digest": fmt.Sprintf("%x", blake3.Sum256(msg))[:8],
		}).Debug("Proposal reached threshold")

		return share, nil
	}

	ok, err := t.inspector.VerifyShare(index, share)
	if err != nil || !ok {
		return nil, ErrBadShare
	}

	enough, err := t.inspector.TrustedAdd(index, share)
	if err != nil {
		if crypto.IsDuplicatedSignerError(err) {
			return nil, ErrDuplicateShareIndex
		}
		return nil, fmt.Errorf("record share: %w", err)
	}
	if !enough {
		return nil, nil
	}

	sig, err := t.inspector.ThresholdSignature()
	if err != nil {
		return nil, fmt.Errorf("combine shares: %w", err)
	}
	t.done = true

	a.logger.WithFields(logrus.Fields{
		"digest": fmt.Sprintf("%x", blake3.Sum256(msg))[:8],
	}).Debug("Proposal reached threshold")

	return sig, nil
}

// Shares returns how many verified shares are recorded for the proposal.
func (a *Aggregator) Shares(p Proposal) int {
	msg, err := p.SignableBytes()
	if err != nil {
		return 0
	}
	digest := blake3.Sum256(msg)
	v, ok := a.tallies.Get(digest)
	if !ok {
		return 0
	}
	t := v.(*tally)
	if t.inspector == nil {
		if t.single != nil {
			return 1
		}
		return 0
	}
	count := 0
	for i := 0; i < a.pub.Size(); i++ {
		if has, err := t.inspector.HasShare(i); err == nil && has {
			count++
		}
	}
	return count
}

func (a *Aggregator) tallyFor(msg []byte) (*tally, error) {
	digest := blake3.Sum256(msg)

	if v, ok := a.tallies.Get(digest); ok {
		return v.(*tally), nil
	}

	// the flow threshold scheme refuses sets smaller than two; a plain-key
	// cohort gets a bare tally instead of an inspector
	if a.pub.Size() == 1 {
		t := &tally{}
		a.tallies.Add(digest, t)
		return t, nil
	}

	inspector, err := crypto.NewBLSThresholdSignatureInspector(
		a.pub.Group,
		a.pub.Shares,
		a.pub.Threshold(),
		msg,
		keys.CohortTag,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregation context: %w", err)
	}

	t := &tally{inspector: inspector}
	if evicted := a.tallies.Add(digest, t); evicted {
		a.logger.Debug("Evicted oldest aggregation context")
	}
	return t, nil
}
