package handover

import (
	"bytes"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/stablemesh/stablemesh/src/keyset"
	"github.com/stablemesh/stablemesh/src/net"
	"github.com/stablemesh/stablemesh/src/section"
	"github.com/stablemesh/stablemesh/src/vote"
	"github.com/stablemesh/stablemesh/src/xor"
)

// State follows the round lifecycle: Idle until a divergence is detected,
// Voting while shares accumulate, Deciding once a candidate reached
// threshold.
type State int

const (
	// Idle ...
	Idle State = iota
	// Voting ...
	Voting
	// Deciding ...
	Deciding
)

// String ...
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Voting:
		return "Voting"
	case Deciding:
		return "Deciding"
	default:
		return "Unknown"
	}
}

var (
	// ErrNotVoting is returned when a vote arrives outside a round.
	ErrNotVoting = errors.New("no handover round in progress")

	// ErrBadDecision is returned for a HandoverDecision that does not carry a
	// verifiable cohort signature over a valid candidate.
	ErrBadDecision = errors.New("handover decision does not verify")
)

// Engine runs one vote round per handover attempt over candidate elder
// cohorts. It borrows the cohort and key store from the coordinator.
type Engine struct {
	localName xor.Name
	prefix    xor.Prefix
	cohort    *section.Cohort
	keys      *keyset.KeyStore

	state       State
	local       *section.Candidate
	localBytes  []byte
	rebroadcast bool

	agg       *vote.Aggregator
	cacheSize int

	logger *logrus.Entry
}

// NewEngine ...
func NewEngine(
	localName xor.Name,
	prefix xor.Prefix,
	cohort *section.Cohort,
	keyStore *keyset.KeyStore,
	cacheSize int,
	logger *logrus.Entry,
) *Engine {
	return &Engine{
		localName: localName,
		prefix:    prefix,
		cohort:    cohort,
		keys:      keyStore,
		state:     Idle,
		agg:       vote.NewAggregator(cohort.Keys, cacheSize, logger),
		cacheSize: cacheSize,
		logger:    logger,
	}
}

// State ...
func (e *Engine) State() State {
	return e.state
}

// Preferred returns the candidate this elder is voting for in the current
// round, or nil.
func (e *Engine) Preferred() *section.Candidate {
	return e.local
}

// Propose opens a round (or re-keys a restarted one) with this elder's local
// preferred candidate and returns the vote to broadcast. The candidate must
// validate against the current prefix.
func (e *Engine) Propose(candidate *section.Candidate) (*net.HandoverVote, error) {
	if err := candidate.Validate(e.prefix); err != nil {
		return nil, err
	}

	msg, err := candidate.SignableBytes()
	if err != nil {
		return nil, err
	}

	sig, err := e.keys.SignShare(msg)
	if err != nil {
		return nil, err
	}

	e.state = Voting
	e.local = candidate
	e.localBytes = msg
	e.rebroadcast = false

	e.logger.WithFields(logrus.Fields{
		"kind":  candidate.Kind.String(),
		"state": e.state.String(),
	}).Debug("Proposing handover candidate")

	return &net.HandoverVote{
		FromName:   e.localName,
		Candidate:  candidate,
		CohortKey:  e.keys.Current().GroupBytes(),
		ShareIndex: e.keys.ShareIndex(),
		PartialSig: sig,
	}, nil
}

// Result describes what a handover vote did.
type Result struct {
	// Rebroadcast, when set, is this elder's own vote to send once more
	// because a peer voted for a different candidate.
	Rebroadcast *net.HandoverVote
	// Decided and Sig are set when a candidate reached threshold: Sig is the
	// outgoing cohort's combined signature over the candidate.
	Decided *section.Candidate
	Sig     []byte
}

// HandleVote verifies and applies one peer vote. Votes that do not name the
// local current cohort, or whose candidate does not validate, are discarded.
func (e *Engine) HandleVote(v *net.HandoverVote) (*Result, error) {
	if e.state != Voting {
		return nil, ErrNotVoting
	}

	res := &Result{}

	if !e.cohort.Keys.SameGroup(v.CohortKey) {
		e.logger.WithField("from", v.FromName.ShortString()).Debug("Dropping handover vote for another cohort")
		return res, nil
	}

	if idx, ok := e.cohort.IndexOf(v.FromName); !ok || idx != v.ShareIndex {
		e.logger.WithField("from", v.FromName.ShortString()).Debug("Dropping handover vote with witness/share mismatch")
		return res, nil
	}

	if err := v.Candidate.Validate(e.prefix); err != nil {
		e.logger.WithFields(logrus.Fields{
			"from":  v.FromName.ShortString(),
			"error": err,
		}).Debug("Dropping handover vote with invalid candidate")
		return res, nil
	}

	sig, err := e.agg.Add(v.Candidate, v.CohortKey, v.ShareIndex, v.PartialSig)
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"from":  v.FromName.ShortString(),
			"error": err,
		}).Debug("Dropping unverifiable handover vote")
		return res, nil
	}

	if sig != nil {
		e.state = Deciding
		res.Decided = v.Candidate
		res.Sig = sig

		e.logger.WithFields(logrus.Fields{
			"kind":  v.Candidate.Kind.String(),
			"state": e.state.String(),
		}).Debug("Handover candidate reached threshold")

		return res, nil
	}

	// a peer voted for a different candidate: restate our own vote once, but
	// do not change it
	msg, err := v.Candidate.SignableBytes()
	if err != nil {
		return res, nil
	}
	if !bytes.Equal(msg, e.localBytes) && !e.rebroadcast && e.local != nil {
		e.rebroadcast = true
		own, err := e.Restate()
		if err != nil {
			return res, err
		}
		res.Rebroadcast = own
	}

	return res, nil
}

// Restate re-signs the current local candidate without resetting the round.
func (e *Engine) Restate() (*net.HandoverVote, error) {
	if e.local == nil {
		return nil, ErrNotVoting
	}

	sig, err := e.keys.SignShare(e.localBytes)
	if err != nil {
		return nil, err
	}

	return &net.HandoverVote{
		FromName:   e.localName,
		Candidate:  e.local,
		CohortKey:  e.keys.Current().GroupBytes(),
		ShareIndex: e.keys.ShareIndex(),
		PartialSig: sig,
	}, nil
}

// MakeDecision assembles the decision broadcast from a concluded round.
// outgoingSap is the Sap under which the current cohort rules; receivers
// verify the combined signature against its key set.
func (e *Engine) MakeDecision(outgoingSap *section.Sap, res *Result) *net.HandoverDecision {
	return &net.HandoverDecision{
		FromName:    e.localName,
		Candidate:   res.Decided,
		OutgoingSap: outgoingSap,
		Sig:         res.Sig,
	}
}

// VerifyDecision checks a HandoverDecision end to end: the outgoing Sap is
// self-consistent, the candidate validates against the outgoing prefix, and
// the outgoing cohort's combined signature covers the candidate.
func VerifyDecision(d *net.HandoverDecision) error {
	if d.Candidate == nil || d.OutgoingSap == nil {
		return ErrBadDecision
	}

	if err := d.OutgoingSap.VerifySelfSigned(); err != nil {
		return err
	}

	if err := d.Candidate.Validate(d.OutgoingSap.Prefix); err != nil {
		return err
	}

	pub, err := d.OutgoingSap.PublicSet()
	if err != nil {
		return err
	}

	msg, err := d.Candidate.SignableBytes()
	if err != nil {
		return err
	}

	if !pub.VerifyGroup(msg, d.Sig) {
		return ErrBadDecision
	}

	return nil
}

// RestartRound drops the round state after a timeout. The caller re-derives a
// candidate from the stable set and calls Propose again.
func (e *Engine) RestartRound() {
	e.state = Idle
	e.local = nil
	e.localBytes = nil
	e.rebroadcast = false
	e.agg = vote.NewAggregator(e.cohort.Keys, e.cacheSize, e.logger)

	e.logger.WithField("state", e.state.String()).Debug("Handover round restarted")
}

// Rotate points the engine at a freshly installed cohort and prefix, re-entering
// Idle under the new context.
func (e *Engine) Rotate(prefix xor.Prefix, cohort *section.Cohort) {
	e.prefix = prefix
	e.cohort = cohort
	e.RestartRound()
}
