package net

import (
	"bytes"

	"github.com/ugorji/go/codec"

	"github.com/stablemesh/stablemesh/src/section"
	"github.com/stablemesh/stablemesh/src/stableset"
	"github.com/stablemesh/stablemesh/src/xor"
)

// VoteKind discriminates membership vote directions.
type VoteKind uint8

const (
	// VoteAdd witnesses an admission.
	VoteAdd VoteKind = iota
	// VoteRemove witnesses an eviction.
	VoteRemove
)

// String ...
func (k VoteKind) String() string {
	switch k {
	case VoteAdd:
		return "Add"
	case VoteRemove:
		return "Remove"
	default:
		return "Unknown"
	}
}

// JoinRejectReason enumerates why an elder refused a join.
type JoinRejectReason uint8

const (
	// JoinsDisallowed ...
	JoinsDisallowed JoinRejectReason = iota
	// NodeNotReachable ...
	NodeNotReachable
	// ResourceProofFailed ...
	ResourceProofFailed
)

// String ...
func (r JoinRejectReason) String() string {
	switch r {
	case JoinsDisallowed:
		return "JoinsDisallowed"
	case NodeNotReachable:
		return "NodeNotReachable"
	case ResourceProofFailed:
		return "ResourceProofFailed"
	default:
		return "Unknown"
	}
}

// ResourceChallenge is issued by an elder to a join candidate. The candidate
// must produce a proof-of-work solution over the nonce before its join
// request accumulates votes. NonceSig authenticates the challenge issuer.
type ResourceChallenge struct {
	DataSize   uint64 `json:"data_size"`
	Difficulty uint8  `json:"difficulty"`
	Nonce      []byte `json:"nonce"`
	NonceSig   []byte `json:"nonce_sig"`
}

// ProofResponse is the candidate's solution to a ResourceChallenge.
type ProofResponse struct {
	Nonce    []byte `json:"nonce"`
	Solution []byte `json:"solution"`
}

// JoinRequest asks an elder to admit a candidate into the section. The first
// request carries no proof and is answered with a challenge; the second
// carries the solution.
type JoinRequest struct {
	Candidate stableset.Member `json:"candidate"`
	Proof     *ProofResponse   `json:"proof,omitempty"`
}

// JoinReject ...
type JoinReject struct {
	Reason JoinRejectReason `json:"reason"`
	Addr   string           `json:"addr,omitempty"`
}

// JoinResponse is the elder's answer to a JoinRequest: a challenge to solve,
// a rejection, or an acceptance after which admission votes start flowing.
// Sap carries the section's current authority so that the candidate can
// verify the votes that confirm it.
type JoinResponse struct {
	FromName  xor.Name           `json:"from_name"`
	Challenge *ResourceChallenge `json:"challenge,omitempty"`
	Reject    *JoinReject        `json:"reject,omitempty"`
	Accepted  bool               `json:"accepted"`
	Sap       *section.Sap       `json:"sap,omitempty"`
}

// MembershipProposal is the value that membership vote shares sign: the
// subject member and the vote direction. The witness identity travels
// alongside the signature, outside the signed bytes, so that all witnesses
// of the same change sign identical bytes.
type MembershipProposal struct {
	Subject stableset.Member `json:"subject"`
	Kind    VoteKind         `json:"kind"`
}

// SignableBytes - canonical json encoding of the proposal
func (p *MembershipProposal) SignableBytes() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(p); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// MembershipVote carries one elder's witness of a membership change.
// CohortKey is the encoded group key of the cohort the witness signs under;
// ShareIndex is the witness's share index in that cohort.
type MembershipVote struct {
	Subject    stableset.Member `json:"subject"`
	Kind       VoteKind         `json:"kind"`
	Witness    xor.Name         `json:"witness"`
	CohortKey  []byte           `json:"cohort_key"`
	ShareIndex int              `json:"share_index"`
	PartialSig []byte           `json:"partial_sig"`
}

// Proposal returns the signed value of the vote.
func (v *MembershipVote) Proposal() *MembershipProposal {
	return &MembershipProposal{Subject: v.Subject, Kind: v.Kind}
}

// VoteAck acknowledges receipt of a vote or decision.
type VoteAck struct {
	FromName xor.Name `json:"from_name"`
	Known    bool     `json:"known"`
}

// HandoverVote carries one elder's partial signature over a handover
// candidate.
type HandoverVote struct {
	FromName   xor.Name           `json:"from_name"`
	Candidate  *section.Candidate `json:"candidate"`
	CohortKey  []byte             `json:"cohort_key"`
	ShareIndex int                `json:"share_index"`
	PartialSig []byte             `json:"partial_sig"`
}

// HandoverDecision announces a concluded handover: the decided candidate,
// the outgoing cohort's Sap, and the outgoing cohort's combined threshold
// signature over the candidate.
type HandoverDecision struct {
	FromName    xor.Name           `json:"from_name"`
	Candidate   *section.Candidate `json:"candidate"`
	OutgoingSap *section.Sap       `json:"outgoing_sap"`
	Sig         []byte             `json:"sig"`
}

// ShareGrant hands a successor cohort member the private key share dealt for
// it by the round's dealer. Sap is the successor authority the share belongs
// to; ShareIndex is the recipient's position in its member list.
type ShareGrant struct {
	FromName   xor.Name     `json:"from_name"`
	Sap        *section.Sap `json:"sap"`
	ShareIndex int          `json:"share_index"`
	Share      []byte       `json:"share"`
}

// SectionProbe challenges a member to prove liveness by signing the nonce.
type SectionProbe struct {
	FromName xor.Name `json:"from_name"`
	Nonce    []byte   `json:"nonce"`
}

// ProbeResponse ...
type ProbeResponse struct {
	FromName xor.Name `json:"from_name"`
	NonceSig []byte   `json:"nonce_sig"`
}
