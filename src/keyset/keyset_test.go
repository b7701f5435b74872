package keyset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreshold(t *testing.T) {
	// combining requires Threshold(n)+1 shares, a strict two-thirds
	// supermajority
	assert.Equal(t, 2, Threshold(4))
	assert.Equal(t, 4, Threshold(7))
	assert.Equal(t, 0, Threshold(1))
}

func TestDealCombineVerify(t *testing.T) {
	shares, pub, err := DealCohort(4)
	require.NoError(t, err)
	require.Len(t, shares, 4)
	require.Equal(t, 4, pub.Size())

	msg := []byte("proposal bytes")

	partials := map[int][]byte{}
	for i := 0; i < 3; i++ {
		ks := NewKeyStore(pub, shares[i], i)
		sig, err := ks.SignShare(msg)
		require.NoError(t, err)
		assert.True(t, pub.VerifyShare(i, msg, sig))
		partials[i] = sig
	}

	full, err := pub.Combine(msg, partials)
	require.NoError(t, err)
	assert.True(t, pub.VerifyGroup(msg, full))
	assert.False(t, pub.VerifyGroup([]byte("other"), full))
}

func TestDealSingleMemberCohort(t *testing.T) {
	shares, pub, err := DealCohort(1)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	require.Equal(t, 1, pub.Size())

	msg := []byte("proposal bytes")

	ks := NewKeyStore(pub, shares[0], 0)
	sig, err := ks.SignShare(msg)
	require.NoError(t, err)

	full, err := pub.Combine(msg, map[int][]byte{0: sig})
	require.NoError(t, err)
	assert.True(t, pub.VerifyGroup(msg, full))

	_, err = pub.Combine(msg, map[int][]byte{})
	assert.ErrorIs(t, err, ErrInsufficientShares)
}

func TestCombineInsufficient(t *testing.T) {
	shares, pub, err := DealCohort(4)
	require.NoError(t, err)

	msg := []byte("proposal bytes")

	ks := NewKeyStore(pub, shares[0], 0)
	sig, err := ks.SignShare(msg)
	require.NoError(t, err)

	// threshold is 2, so a single share cannot combine
	_, err = pub.Combine(msg, map[int][]byte{0: sig})
	assert.ErrorIs(t, err, ErrInsufficientShares)
}

func TestCombineSkipsBadShares(t *testing.T) {
	shares, pub, err := DealCohort(4)
	require.NoError(t, err)

	msg := []byte("proposal bytes")

	partials := map[int][]byte{}
	for i := 0; i < 2; i++ {
		ks := NewKeyStore(pub, shares[i], i)
		sig, err := ks.SignShare(msg)
		require.NoError(t, err)
		partials[i] = sig
	}
	// a share signed over different bytes must not count toward the threshold
	ks := NewKeyStore(pub, shares[2], 2)
	bad, err := ks.SignShare([]byte("equivocation"))
	require.NoError(t, err)
	partials[2] = bad

	_, err = pub.Combine(msg, partials)
	assert.ErrorIs(t, err, ErrInsufficientShares)
}

func TestSignShareRequiresMembership(t *testing.T) {
	_, pub, err := DealCohort(4)
	require.NoError(t, err)

	ks := NewKeyStore(pub, nil, 0)
	assert.False(t, ks.IsElder())

	_, err = ks.SignShare([]byte("msg"))
	assert.ErrorIs(t, err, ErrNotACohortMember)
}

func TestRotate(t *testing.T) {
	oldShares, oldPub, err := DealCohort(4)
	require.NoError(t, err)
	newShares, newPub, err := DealCohort(4)
	require.NoError(t, err)

	ks := NewKeyStore(oldPub, oldShares[1], 1)
	ks.Rotate(newPub, newShares[2], 2)

	// new shares sign under the new set only
	msg := []byte("post-rotation")
	sig, err := ks.SignShare(msg)
	require.NoError(t, err)
	assert.True(t, newPub.VerifyShare(2, msg, sig))
	assert.False(t, oldPub.VerifyShare(1, msg, sig))

	// the old public set stays resolvable for the handover tail
	prev := ks.Previous()
	require.NotNil(t, prev)
	assert.True(t, prev.SameGroup(oldPub.GroupBytes()))

	_, ok := ks.Lookup(oldPub.GroupBytes())
	assert.True(t, ok)
	assert.True(t, ks.IsCurrentOrPrevious(oldPub.GroupBytes()))
	assert.True(t, ks.IsCurrentOrPrevious(newPub.GroupBytes()))
}

func TestRevoke(t *testing.T) {
	shares, pub, err := DealCohort(4)
	require.NoError(t, err)

	ks := NewKeyStore(pub, shares[0], 0)
	ks.Revoke()

	assert.False(t, ks.IsElder())
	_, err = ks.SignShare([]byte("msg"))
	assert.ErrorIs(t, err, ErrNotACohortMember)
}

func TestPublicSetRoundTrip(t *testing.T) {
	_, pub, err := DealCohort(4)
	require.NoError(t, err)

	decoded, err := DecodePublicSet(pub.Encode())
	require.NoError(t, err)
	assert.True(t, decoded.SameGroup(pub.GroupBytes()))
	assert.Equal(t, pub.Size(), decoded.Size())
}
