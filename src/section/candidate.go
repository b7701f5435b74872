package section

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ugorji/go/codec"

	"github.com/stablemesh/stablemesh/src/xor"
)

// CandidateKind discriminates the two handover outcomes.
type CandidateKind uint8

const (
	// ElderHandover is a handover to one successor cohort for the same
	// prefix.
	ElderHandover CandidateKind = iota
	// SectionSplit is a handover to two successor cohorts, one per child
	// prefix.
	SectionSplit
)

// String ...
func (k CandidateKind) String() string {
	switch k {
	case ElderHandover:
		return "ElderHandover"
	case SectionSplit:
		return "SectionSplit"
	default:
		return "Unknown"
	}
}

var (
	// ErrMalformedCandidate ...
	ErrMalformedCandidate = errors.New("candidate saps do not match its kind")

	// ErrSplitPrefixes indicates split saps whose prefixes are not the two
	// children of the current prefix.
	ErrSplitPrefixes = errors.New("split saps are not children of the current prefix")

	// ErrWrongPrefix indicates a successor sap for a different prefix.
	ErrWrongPrefix = errors.New("successor sap prefix does not match the section")
)

// Candidate is a proposed handover outcome: either one successor cohort for
// the same prefix, or two successor cohorts for the two child prefixes. Each
// embedded Sap is self-signed by its new cohort's key.
type Candidate struct {
	Kind  CandidateKind `json:"kind"`
	Next  *Sap          `json:"next,omitempty"`
	Left  *Sap          `json:"left,omitempty"`
	Right *Sap          `json:"right,omitempty"`
}

// NewElderHandover ...
func NewElderHandover(next *Sap) *Candidate {
	return &Candidate{Kind: ElderHandover, Next: next}
}

// NewSectionSplit orders the two successor saps by child prefix: left is the
// zero child, right the one child.
func NewSectionSplit(a, b *Sap) *Candidate {
	if a.Prefix.Len() > 0 && a.Prefix.Name().Bit(a.Prefix.Len()-1) {
		a, b = b, a
	}
	return &Candidate{Kind: SectionSplit, Left: a, Right: b}
}

// Saps returns the successor saps: one for an elder handover, two for a
// split.
func (c *Candidate) Saps() []*Sap {
	switch c.Kind {
	case ElderHandover:
		return []*Sap{c.Next}
	case SectionSplit:
		return []*Sap{c.Left, c.Right}
	}
	return nil
}

// Validate checks the candidate's shape against the section's current prefix:
// kind-specific sap presence, prefix relationships, and each sap's
// self-signature.
func (c *Candidate) Validate(current xor.Prefix) error {
	switch c.Kind {
	case ElderHandover:
		if c.Next == nil || c.Left != nil || c.Right != nil {
			return ErrMalformedCandidate
		}
		if !c.Next.Prefix.Equal(current) {
			return ErrWrongPrefix
		}
	case SectionSplit:
		if c.Next != nil || c.Left == nil || c.Right == nil {
			return ErrMalformedCandidate
		}
		if !current.Child(false).Equal(c.Left.Prefix) || !current.Child(true).Equal(c.Right.Prefix) {
			return ErrSplitPrefixes
		}
	default:
		return fmt.Errorf("unknown candidate kind %d", c.Kind)
	}

	for _, sap := range c.Saps() {
		if err := sap.VerifySelfSigned(); err != nil {
			return err
		}
	}
	return nil
}

// SignableBytes returns the canonical encoding of the candidate. Handover
// votes carry partial signatures over these bytes.
func (c *Candidate) SignableBytes() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(c); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}
