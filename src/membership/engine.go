package membership

import (
	"crypto/rand"

	"github.com/onflow/flow-go/crypto"
	"github.com/sirupsen/logrus"

	"github.com/stablemesh/stablemesh/src/keys"
	"github.com/stablemesh/stablemesh/src/keyset"
	"github.com/stablemesh/stablemesh/src/net"
	"github.com/stablemesh/stablemesh/src/section"
	"github.com/stablemesh/stablemesh/src/stableset"
	"github.com/stablemesh/stablemesh/src/store"
	"github.com/stablemesh/stablemesh/src/vote"
	"github.com/stablemesh/stablemesh/src/xor"
)

// voteKey is the idempotence key of vote application.
type voteKey struct {
	subject xor.Name
	kind    net.VoteKind
	witness xor.Name
}

// Engine turns local events and peer votes into stable-set mutations. It
// borrows the key store, the stable set and the store from the coordinator,
// which owns them.
type Engine struct {
	ident      crypto.PrivateKey
	localName  xor.Name
	prefix     xor.Prefix
	elderCount int
	cacheSize  int

	joinsAllowed    bool
	proofDataSize   uint64
	proofDifficulty uint8

	stable *stableset.StableSet
	cohort *section.Cohort
	keys   *keyset.KeyStore
	agg    *vote.Aggregator
	store  store.Store

	seen       map[voteKey]bool
	challenges map[xor.Name]*net.ResourceChallenge

	logger *logrus.Entry
}

// NewEngine ...
func NewEngine(
	ident crypto.PrivateKey,
	prefix xor.Prefix,
	elderCount int,
	cacheSize int,
	cohort *section.Cohort,
	keyStore *keyset.KeyStore,
	st store.Store,
	stable *stableset.StableSet,
	logger *logrus.Entry,
) *Engine {
	return &Engine{
		ident:           ident,
		localName:       keys.NameOf(ident.PublicKey()),
		prefix:          prefix,
		elderCount:      elderCount,
		cacheSize:       cacheSize,
		joinsAllowed:    true,
		proofDataSize:   DefaultProofDataSize,
		proofDifficulty: DefaultProofDifficulty,
		stable:          stable,
		cohort:          cohort,
		keys:            keyStore,
		agg:             vote.NewAggregator(cohort.Keys, cacheSize, logger),
		store:           st,
		seen:            make(map[voteKey]bool),
		challenges:      make(map[xor.Name]*net.ResourceChallenge),
		logger:          logger,
	}
}

// VoteOutcome describes what a vote application did.
type VoteOutcome struct {
	// Changed reports whether the stable set recorded anything new; the
	// caller re-broadcasts the vote iff it did.
	Changed bool
	// Promoted and Demoted are the members that crossed the supermajority
	// threshold as a result of this vote.
	Promoted []stableset.Member
	Demoted  []stableset.Member
	// HandoverNeeded is set when a promotion or demotion made the ideal
	// cohort diverge from the current one.
	HandoverNeeded bool
	// Split is set when the section can split into its two children.
	Split bool
}

// HandleVote verifies and applies one peer vote. Unverifiable votes and votes
// from cohorts retired more than one step are dropped silently. The returned
// error is reserved for store failures.
func (e *Engine) HandleVote(v *net.MembershipVote) (*VoteOutcome, error) {
	out := &VoteOutcome{}

	key := voteKey{v.Subject.Name, v.Kind, v.Witness}
	if e.seen[key] {
		return out, nil
	}

	if !e.keys.IsCurrentOrPrevious(v.CohortKey) {
		e.logger.WithFields(logrus.Fields{
			"witness": v.Witness.ShortString(),
			"kind":    v.Kind.String(),
		}).Debug("Dropping vote from retired cohort")
		return out, nil
	}

	if !e.witnessMatches(v) {
		e.logger.WithField("witness", v.Witness.ShortString()).Debug("Dropping vote with witness/share mismatch")
		return out, nil
	}

	if !e.verifyShare(v) {
		return out, nil
	}

	e.seen[key] = true

	var changed bool
	switch v.Kind {
	case net.VoteAdd:
		changed = e.stable.Add(v.Subject, v.Witness)
	case net.VoteRemove:
		changed = e.stable.Remove(v.Subject, v.Witness)
	default:
		e.logger.WithField("kind", int(v.Kind)).Debug("Dropping vote of unknown kind")
		return out, nil
	}

	if !changed {
		return out, nil
	}
	out.Changed = true

	before := memberNames(e.stable.Members())
	if e.stable.ProcessReady(e.cohort.Names()) {
		after := e.stable.Members()
		out.Promoted, out.Demoted = diffMembers(before, after)
		out.HandoverNeeded = e.Diverged()
		_, _, out.Split = e.SplitReady()

		if err := e.store.SetMembers(after); err != nil {
			return out, err
		}

		e.logger.WithFields(logrus.Fields{
			"promoted": len(out.Promoted),
			"demoted":  len(out.Demoted),
			"members":  len(after),
		}).Debug("Stable set advanced")
	}

	return out, nil
}

// verifyShare checks the partial signature of a vote. Votes under the current
// cohort run through the aggregator so that threshold tracking and
// equivocation detection stay in one place; votes under the previous cohort
// are only share-verified.
func (e *Engine) verifyShare(v *net.MembershipVote) bool {
	if e.cohort.Keys.SameGroup(v.CohortKey) {
		if _, err := e.agg.Add(v.Proposal(), v.CohortKey, v.ShareIndex, v.PartialSig); err != nil {
			e.logger.WithFields(logrus.Fields{
				"witness": v.Witness.ShortString(),
				"error":   err,
			}).Debug("Dropping unverifiable vote")
			return false
		}
		return true
	}

	pub, ok := e.keys.Lookup(v.CohortKey)
	if !ok {
		return false
	}
	msg, err := v.Proposal().SignableBytes()
	if err != nil {
		return false
	}
	if !pub.VerifyShare(v.ShareIndex, msg, v.PartialSig) {
		e.logger.WithField("witness", v.Witness.ShortString()).Debug("Dropping unverifiable vote from previous cohort")
		return false
	}
	return true
}

// witnessMatches pins the claimed share index to the witness's position in
// the cohort that the vote names.
func (e *Engine) witnessMatches(v *net.MembershipVote) bool {
	if e.cohort.Keys.SameGroup(v.CohortKey) {
		idx, ok := e.cohort.IndexOf(v.Witness)
		return ok && idx == v.ShareIndex
	}

	sap, err := e.store.SapByKey(v.CohortKey)
	if err != nil {
		return false
	}
	for i, m := range sap.Members {
		if m.Name == v.Witness {
			return i == v.ShareIndex
		}
	}
	return false
}

// WitnessVote produces this node's own vote over a membership change. The
// caller feeds it back through HandleVote and broadcasts it.
func (e *Engine) WitnessVote(subject stableset.Member, kind net.VoteKind) (*net.MembershipVote, error) {
	proposal := &net.MembershipProposal{Subject: subject, Kind: kind}
	msg, err := proposal.SignableBytes()
	if err != nil {
		return nil, err
	}

	sig, err := e.keys.SignShare(msg)
	if err != nil {
		return nil, err
	}

	return &net.MembershipVote{
		Subject:    subject,
		Kind:       kind,
		Witness:    e.localName,
		CohortKey:  e.keys.Current().GroupBytes(),
		ShareIndex: e.keys.ShareIndex(),
		PartialSig: sig,
	}, nil
}

// HandleJoinRequest runs the elder side of the join flow. The first request
// from a candidate is answered with a resource challenge; the second, which
// carries the solution, with an acceptance and this elder's Add vote, or with
// a rejection.
func (e *Engine) HandleJoinRequest(req *net.JoinRequest) (*net.JoinResponse, *net.MembershipVote, error) {
	resp := &net.JoinResponse{FromName: e.localName}

	if !e.keys.IsElder() || !e.joinsAllowed || !e.prefix.Matches(req.Candidate.Name) {
		resp.Reject = &net.JoinReject{Reason: net.JoinsDisallowed}
		return resp, nil, nil
	}

	if req.Proof == nil {
		ch, err := NewChallenge(e.ident, e.proofDataSize, e.proofDifficulty)
		if err != nil {
			return nil, nil, err
		}
		e.challenges[req.Candidate.Name] = ch
		resp.Challenge = ch
		return resp, nil, nil
	}

	ch, ok := e.challenges[req.Candidate.Name]
	if !ok || !VerifyProof(ch, req.Proof) {
		e.logger.WithField("candidate", req.Candidate.Name.ShortString()).Debug("Rejecting join with failed resource proof")
		resp.Reject = &net.JoinReject{Reason: net.ResourceProofFailed}
		return resp, nil, nil
	}
	delete(e.challenges, req.Candidate.Name)

	v, err := e.WitnessVote(req.Candidate, net.VoteAdd)
	if err != nil {
		return nil, nil, err
	}

	e.logger.WithField("candidate", req.Candidate.Name.ShortString()).Debug("Witnessing admission")

	resp.Accepted = true
	if sap, err := e.store.LastSap(); err == nil {
		resp.Sap = sap
	}
	return resp, v, nil
}

// NewProbe mints a liveness probe with a fresh nonce.
func (e *Engine) NewProbe() (*net.SectionProbe, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return &net.SectionProbe{FromName: e.localName, Nonce: nonce}, nil
}

// AnswerProbe proves this node's liveness by signing the probe nonce with its
// identity key.
func (e *Engine) AnswerProbe(p *net.SectionProbe) (*net.ProbeResponse, error) {
	sig, err := keys.Sign(e.ident, p.Nonce)
	if err != nil {
		return nil, err
	}
	return &net.ProbeResponse{FromName: e.localName, NonceSig: sig}, nil
}

// VerifyProbeResponse checks that the probed member signed our nonce.
func (e *Engine) VerifyProbeResponse(target stableset.Member, nonce []byte, resp *net.ProbeResponse) bool {
	if resp == nil || resp.FromName != target.Name {
		return false
	}
	pub, err := target.PublicKey()
	if err != nil {
		return false
	}
	return keys.Verify(pub, nonce, resp.NonceSig)
}

// Rotate points the engine at a freshly installed cohort and prefix. Vote
// contexts and idempotence records of the old cohort are dropped; the key
// store retains the old public set so that late votes still verify.
func (e *Engine) Rotate(prefix xor.Prefix, cohort *section.Cohort) {
	e.prefix = prefix
	e.cohort = cohort
	e.agg = vote.NewAggregator(cohort.Keys, e.cacheSize, e.logger)
	e.seen = make(map[voteKey]bool)
	e.challenges = make(map[xor.Name]*net.ResourceChallenge)
}

// SetJoinsAllowed toggles whether this elder admits new candidates.
func (e *Engine) SetJoinsAllowed(allowed bool) {
	e.joinsAllowed = allowed
}

// LocalName ...
func (e *Engine) LocalName() xor.Name {
	return e.localName
}

// Prefix ...
func (e *Engine) Prefix() xor.Prefix {
	return e.prefix
}

// Cohort ...
func (e *Engine) Cohort() *section.Cohort {
	return e.cohort
}

// StableSet ...
func (e *Engine) StableSet() *stableset.StableSet {
	return e.stable
}

func memberNames(members []stableset.Member) map[xor.Name]stableset.Member {
	out := make(map[xor.Name]stableset.Member, len(members))
	for _, m := range members {
		out[m.Name] = m
	}
	return out
}

func diffMembers(before map[xor.Name]stableset.Member, after []stableset.Member) (promoted, demoted []stableset.Member) {
	afterByName := memberNames(after)

	for _, m := range after {
		if prev, ok := before[m.Name]; !ok || prev != m {
			promoted = append(promoted, m)
		}
	}
	for name, m := range before {
		if _, ok := afterByName[name]; !ok {
			demoted = append(demoted, m)
		}
	}
	return promoted, demoted
}
