package vote

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablemesh/stablemesh/src/common"
	"github.com/stablemesh/stablemesh/src/keyset"
)

type rawProposal []byte

func (p rawProposal) SignableBytes() ([]byte, error) {
	return p, nil
}

func newTestAggregator(t *testing.T, n int) (*Aggregator, []*keyset.KeyStore, *keyset.PublicSet) {
	shares, pub, err := keyset.DealCohort(n)
	require.NoError(t, err)

	stores := make([]*keyset.KeyStore, n)
	for i := range stores {
		stores[i] = keyset.NewKeyStore(pub, shares[i], i)
	}

	agg := NewAggregator(pub, 0, common.NewTestEntry(t, logrus.ErrorLevel))
	return agg, stores, pub
}

// A genesis section has a one-elder cohort with a plain key: the lone share
// must combine immediately instead of tripping the threshold scheme's
// two-participant minimum.
func TestSingleMemberCohort(t *testing.T) {
	agg, stores, pub := newTestAggregator(t, 1)
	p := rawProposal("add the second member")
	msg, _ := p.SignableBytes()

	share, err := stores[0].SignShare(msg)
	require.NoError(t, err)

	full, err := agg.Add(p, pub.GroupBytes(), 0, share)
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.True(t, pub.VerifyGroup(msg, full))
	assert.Equal(t, 1, agg.Shares(p))

	// emitted exactly once
	full, err = agg.Add(p, pub.GroupBytes(), 0, share)
	require.NoError(t, err)
	assert.Nil(t, full)

	// forged shares still bounce
	p2 := rawProposal("another proposal")
	_, err = agg.Add(p2, pub.GroupBytes(), 0, share)
	assert.ErrorIs(t, err, ErrBadShare)
	assert.Equal(t, 0, agg.Shares(p2))
}

func TestAggregateToThreshold(t *testing.T) {
	agg, stores, pub := newTestAggregator(t, 4)
	p := rawProposal("add member J")
	msg, _ := p.SignableBytes()

	// threshold is 2: the first two shares do not combine
	for i := 0; i < 2; i++ {
		share, err := stores[i].SignShare(msg)
		require.NoError(t, err)

		full, err := agg.Add(p, pub.GroupBytes(), i, share)
		require.NoError(t, err)
		assert.Nil(t, full)
	}

	share, err := stores[2].SignShare(msg)
	require.NoError(t, err)

	full, err := agg.Add(p, pub.GroupBytes(), 2, share)
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.True(t, pub.VerifyGroup(msg, full))
}

func TestEmitExactlyOnce(t *testing.T) {
	agg, stores, pub := newTestAggregator(t, 4)
	p := rawProposal("emit once")
	msg, _ := p.SignableBytes()

	var emitted int
	for i := 0; i < 4; i++ {
		share, err := stores[i].SignShare(msg)
		require.NoError(t, err)

		full, err := agg.Add(p, pub.GroupBytes(), i, share)
		require.NoError(t, err)
		if full != nil {
			emitted++
		}
	}
	assert.Equal(t, 1, emitted)
}

func TestBadShareRejected(t *testing.T) {
	agg, stores, pub := newTestAggregator(t, 4)
	p := rawProposal("the proposal")

	// a share over different bytes must not verify over p
	forged, err := stores[0].SignShare([]byte("a different proposal"))
	require.NoError(t, err)

	_, err = agg.Add(p, pub.GroupBytes(), 0, forged)
	assert.ErrorIs(t, err, ErrBadShare)
	assert.Equal(t, 0, agg.Shares(p))
}

// An equivocating peer replays an index that was already recorded. The first
// share counts; a forged second signature is a bad share; a valid duplicate
// is flagged as such. Either way there is no advance toward threshold.
func TestEquivocatingPeer(t *testing.T) {
	agg, stores, pub := newTestAggregator(t, 4)
	p := rawProposal("equivocation round")
	msg, _ := p.SignableBytes()

	share, err := stores[0].SignShare(msg)
	require.NoError(t, err)

	_, err = agg.Add(p, pub.GroupBytes(), 0, share)
	require.NoError(t, err)
	require.Equal(t, 1, agg.Shares(p))

	forged, err := stores[1].SignShare(msg)
	require.NoError(t, err)
	_, err = agg.Add(p, pub.GroupBytes(), 0, forged)
	assert.ErrorIs(t, err, ErrBadShare)

	_, err = agg.Add(p, pub.GroupBytes(), 0, share)
	assert.ErrorIs(t, err, ErrDuplicateShareIndex)

	assert.Equal(t, 1, agg.Shares(p))
}

func TestUnknownKeySet(t *testing.T) {
	agg, stores, _ := newTestAggregator(t, 4)
	_, otherPub, err := keyset.DealCohort(4)
	require.NoError(t, err)

	p := rawProposal("wrong cohort")
	msg, _ := p.SignableBytes()
	share, err := stores[0].SignShare(msg)
	require.NoError(t, err)

	_, err = agg.Add(p, otherPub.GroupBytes(), 0, share)
	assert.ErrorIs(t, err, ErrUnknownKeySet)
}

func TestConcurrentProposalsIndependent(t *testing.T) {
	agg, stores, pub := newTestAggregator(t, 4)

	p1 := rawProposal("proposal one")
	p2 := rawProposal("proposal two")
	msg1, _ := p1.SignableBytes()
	msg2, _ := p2.SignableBytes()

	for i := 0; i < 2; i++ {
		s1, err := stores[i].SignShare(msg1)
		require.NoError(t, err)
		_, err = agg.Add(p1, pub.GroupBytes(), i, s1)
		require.NoError(t, err)

		s2, err := stores[i].SignShare(msg2)
		require.NoError(t, err)
		_, err = agg.Add(p2, pub.GroupBytes(), i, s2)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, agg.Shares(p1))
	assert.Equal(t, 2, agg.Shares(p2))

	// p1 completes without contaminating p2
	s1, err := stores[2].SignShare(msg1)
	require.NoError(t, err)
	full, err := agg.Add(p1, pub.GroupBytes(), 2, s1)
	require.NoError(t, err)
	assert.NotNil(t, full)
	assert.Equal(t, 2, agg.Shares(p2))
}

func TestOutstandingContextsBounded(t *testing.T) {
	agg, stores, pub := newTestAggregator(t, 4)

	first := rawProposal("proposal 0")
	msg, _ := first.SignableBytes()
	share, err := stores[0].SignShare(msg)
	require.NoError(t, err)
	_, err = agg.Add(first, pub.GroupBytes(), 0, share)
	require.NoError(t, err)

	// flood with novel proposals until the first context is evicted
	for i := 1; i <= defaultOutstanding; i++ {
		p := rawProposal(fmt.Sprintf("proposal %d", i))
		m, _ := p.SignableBytes()
		s, err := stores[0].SignShare(m)
		require.NoError(t, err)
		_, err = agg.Add(p, pub.GroupBytes(), 0, s)
		require.NoError(t, err)
	}

	assert.Equal(t, 0, agg.Shares(first))
}

func TestConfiguredCacheSize(t *testing.T) {
	shares, pub, err := keyset.DealCohort(4)
	require.NoError(t, err)
	store := keyset.NewKeyStore(pub, shares[0], 0)

	agg := NewAggregator(pub, 1, common.NewTestEntry(t, logrus.ErrorLevel))

	first := rawProposal("first")
	msg, _ := first.SignableBytes()
	share, err := store.SignShare(msg)
	require.NoError(t, err)
	_, err = agg.Add(first, pub.GroupBytes(), 0, share)
	require.NoError(t, err)
	require.Equal(t, 1, agg.Shares(first))

	// a single novel proposal evicts the only slot
	second := rawProposal("second")
	msg2, _ := second.SignableBytes()
	s2, err := store.SignShare(msg2)
	require.NoError(t, err)
	_, err = agg.Add(second, pub.GroupBytes(), 0, s2)
	require.NoError(t, err)

	assert.Equal(t, 0, agg.Shares(first))
}
