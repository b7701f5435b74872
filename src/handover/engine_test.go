package handover

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablemesh/stablemesh/src/common"
	"github.com/stablemesh/stablemesh/src/keyset"
	"github.com/stablemesh/stablemesh/src/net"
	"github.com/stablemesh/stablemesh/src/section"
	"github.com/stablemesh/stablemesh/src/stableset"
	"github.com/stablemesh/stablemesh/src/xor"
)

func testMembers(tag string, n int) []stableset.Member {
	members := make([]stableset.Member, n)
	for i := range members {
		members[i] = stableset.Member{
			Name:      xor.NameFromBytes([]byte(fmt.Sprintf("%s-%d", tag, i))),
			NetAddr:   fmt.Sprintf("127.0.0.1:%d", 9000+i),
			Age:       uint8(10 + i),
			OrdIdx:    uint64(i + 1),
			PubKeyHex: "0X00",
		}
	}
	return members
}

// dealSignedSap builds a self-signed Sap for a fresh cohort, returning the
// sap along with the cohort's key material.
func dealSignedSap(t *testing.T, prefix xor.Prefix, members []stableset.Member) (*section.Sap, []*keyset.KeyStore) {
	privShares, pub, err := keyset.DealCohort(len(members))
	require.NoError(t, err)

	sap := section.NewSap(prefix, pub, members)
	msg, err := sap.SignableBytes()
	require.NoError(t, err)

	stores := make([]*keyset.KeyStore, len(members))
	partials := map[int][]byte{}
	for i, share := range privShares {
		stores[i] = keyset.NewKeyStore(pub, share, i)
		sig, err := stores[i].SignShare(msg)
		require.NoError(t, err)
		partials[i] = sig
	}
	sap.Sig, err = pub.Combine(msg, partials)
	require.NoError(t, err)
	return sap, stores
}

// testRound builds an outgoing cohort of n elders with engines, rooted at
// prefix, and returns the engines plus the outgoing sap.
func testRound(t *testing.T, prefix xor.Prefix, n int) ([]*Engine, *section.Sap) {
	members := testMembers("elder", n)
	sap, keyStores := dealSignedSap(t, prefix, members)

	engines := make([]*Engine, n)
	for i := range engines {
		pub, err := sap.PublicSet()
		require.NoError(t, err)
		cohort := section.NewCohort(members, pub)
		engines[i] = NewEngine(members[i].Name, prefix, cohort, keyStores[i], 0,
			common.NewTestEntry(t, common.TestLogLevel))
	}
	return engines, sap
}

func TestElderHandoverRound(t *testing.T) {
	prefix, _ := xor.ParsePrefix("0b0")
	engines, outgoingSap := testRound(t, prefix, 7)

	nextSap, _ := dealSignedSap(t, prefix, testMembers("next", 7))
	candidate := section.NewElderHandover(nextSap)

	// every elder proposes the same candidate
	votes := make([]*net.HandoverVote, len(engines))
	for i, e := range engines {
		v, err := e.Propose(candidate)
		require.NoError(t, err)
		votes[i] = v
		assert.Equal(t, Voting, e.State())
	}

	// threshold for 7 shares is 4, so the 5th vote concludes the round
	target := engines[0]
	var decided *Result
	for i, v := range votes {
		res, err := target.HandleVote(v)
		require.NoError(t, err)
		if res.Decided != nil {
			decided = res
			assert.Equal(t, 4, i)
			break
		}
	}
	require.NotNil(t, decided)
	assert.Equal(t, Deciding, target.State())

	// the decision verifies end to end at any receiver
	decision := target.MakeDecision(outgoingSap, decided)
	require.NoError(t, VerifyDecision(decision))

	// tampering with the candidate breaks it
	tampered := *decision
	tampered.Candidate = section.NewElderHandover(outgoingSap)
	assert.Error(t, VerifyDecision(&tampered))
}

func TestSplitRound(t *testing.T) {
	prefix, _ := xor.ParsePrefix("0b")
	engines, outgoingSap := testRound(t, prefix, 7)

	leftSap, _ := dealSignedSap(t, prefix.Child(false), testMembers("left", 7))
	rightSap, _ := dealSignedSap(t, prefix.Child(true), testMembers("right", 7))
	candidate := section.NewSectionSplit(leftSap, rightSap)

	var decided *Result
	for _, e := range engines {
		v, err := e.Propose(candidate)
		require.NoError(t, err)

		res, err := engines[0].HandleVote(v)
		require.NoError(t, err)
		if res.Decided != nil {
			decided = res
			break
		}
	}
	require.NotNil(t, decided)
	assert.Equal(t, section.SectionSplit, decided.Decided.Kind)

	decision := engines[0].MakeDecision(outgoingSap, decided)
	require.NoError(t, VerifyDecision(decision))
}

func TestConflictingCandidateRebroadcast(t *testing.T) {
	prefix, _ := xor.ParsePrefix("0b0")
	engines, _ := testRound(t, prefix, 7)

	sapA, _ := dealSignedSap(t, prefix, testMembers("next-a", 7))
	sapB, _ := dealSignedSap(t, prefix, testMembers("next-b", 7))

	_, err := engines[0].Propose(section.NewElderHandover(sapA))
	require.NoError(t, err)

	voteB, err := engines[1].Propose(section.NewElderHandover(sapB))
	require.NoError(t, err)

	// first conflicting vote: restate our own candidate once
	res, err := engines[0].HandleVote(voteB)
	require.NoError(t, err)
	require.NotNil(t, res.Rebroadcast)
	assert.Equal(t, section.ElderHandover, res.Rebroadcast.Candidate.Kind)

	// further conflicting votes do not restate again
	voteB2, err := engines[2].Propose(section.NewElderHandover(sapB))
	require.NoError(t, err)
	res, err = engines[0].HandleVote(voteB2)
	require.NoError(t, err)
	assert.Nil(t, res.Rebroadcast)
}

func TestVoteVerification(t *testing.T) {
	prefix, _ := xor.ParsePrefix("0b0")
	engines, _ := testRound(t, prefix, 7)

	nextSap, _ := dealSignedSap(t, prefix, testMembers("next", 7))
	candidate := section.NewElderHandover(nextSap)

	v0, err := engines[0].Propose(candidate)
	require.NoError(t, err)
	v1, err := engines[1].Propose(candidate)
	require.NoError(t, err)

	target := engines[2]
	_, err = target.Propose(candidate)
	require.NoError(t, err)

	// vote for another cohort's key is discarded without effect
	alien := *v0
	alien.CohortKey = []byte("another cohort")
	res, err := target.HandleVote(&alien)
	require.NoError(t, err)
	assert.Nil(t, res.Decided)

	// witness/share mismatch is discarded
	stolen := *v0
	stolen.FromName = v1.FromName
	res, err = target.HandleVote(&stolen)
	require.NoError(t, err)
	assert.Nil(t, res.Decided)

	// forged partial signature is discarded
	forged := *v0
	forged.PartialSig = []byte("forged")
	res, err = target.HandleVote(&forged)
	require.NoError(t, err)
	assert.Nil(t, res.Decided)

	// candidate with the wrong prefix is discarded
	wrongSap, _ := dealSignedSap(t, prefix.Sibling(), testMembers("wrong", 7))
	wrong := section.NewElderHandover(wrongSap)
	msg, err := wrong.SignableBytes()
	require.NoError(t, err)
	sig, err := engines[0].keys.SignShare(msg)
	require.NoError(t, err)
	res, err = target.HandleVote(&net.HandoverVote{
		FromName:   v0.FromName,
		Candidate:  wrong,
		CohortKey:  v0.CohortKey,
		ShareIndex: v0.ShareIndex,
		PartialSig: sig,
	})
	require.NoError(t, err)
	assert.Nil(t, res.Decided)
}

func TestRoundRestart(t *testing.T) {
	prefix, _ := xor.ParsePrefix("0b0")
	engines, _ := testRound(t, prefix, 7)

	nextSap, _ := dealSignedSap(t, prefix, testMembers("next", 7))
	candidate := section.NewElderHandover(nextSap)

	target := engines[0]
	_, err := target.Propose(candidate)
	require.NoError(t, err)

	// partitioned round: only 4 of 7 votes arrive, one short of threshold+1
	for _, e := range engines[:4] {
		v, err := e.Propose(candidate)
		require.NoError(t, err)
		res, err := target.HandleVote(v)
		require.NoError(t, err)
		assert.Nil(t, res.Decided)
	}
	assert.Equal(t, Voting, target.State())

	// timeout fires: round restarts
	target.RestartRound()
	assert.Equal(t, Idle, target.State())

	// votes outside a round are refused
	v, err := engines[1].Restate()
	require.NoError(t, err)
	_, err = target.HandleVote(v)
	assert.ErrorIs(t, err, ErrNotVoting)

	// after the heal, a full round succeeds
	_, err = target.Propose(candidate)
	require.NoError(t, err)

	var decided *Result
	for _, e := range engines {
		v, err := e.Restate()
		if err != nil {
			v, err = e.Propose(candidate)
			require.NoError(t, err)
		}
		res, err := target.HandleVote(v)
		require.NoError(t, err)
		if res.Decided != nil {
			decided = res
			break
		}
	}
	require.NotNil(t, decided)
	assert.Equal(t, Deciding, target.State())
}
