package section

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ugorji/go/codec"

	"github.com/stablemesh/stablemesh/src/keyset"
	"github.com/stablemesh/stablemesh/src/stableset"
	"github.com/stablemesh/stablemesh/src/xor"
)

var (
	// ErrSapNotSigned ...
	ErrSapNotSigned = errors.New("sap carries no signature")

	// ErrSapBadSignature indicates a self-signature that does not verify
	// against the Sap's own embedded key set.
	ErrSapBadSignature = errors.New("sap self-signature does not verify")
)

// Sap is a Section Authority Proof: the signed tuple of a prefix, the
// cohort's public key set, and the cohort members. The signature is the
// cohort's own threshold signature over the tuple, which makes the Sap the
// portable certificate of "this cohort ruled this prefix".
type Sap struct {
	Prefix  xor.Prefix             `json:"prefix"`
	KeySet  *keyset.PublicSetBytes `json:"key_set"`
	Members []stableset.Member     `json:"members"`
	Sig     []byte                 `json:"sig"`
}

// NewSap builds an unsigned Sap over the given cohort.
func NewSap(prefix xor.Prefix, pub *keyset.PublicSet, members []stableset.Member) *Sap {
	return &Sap{
		Prefix:  prefix,
		KeySet:  pub.Encode(),
		Members: members,
	}
}

// SignableBytes returns the canonical encoding of the Sap without its
// signature. This is what cohort shares sign.
func (s *Sap) SignableBytes() ([]byte, error) {
	unsigned := Sap{
		Prefix:  s.Prefix,
		KeySet:  s.KeySet,
		Members: s.Members,
	}
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(unsigned); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// PublicSet decodes the embedded cohort key set.
func (s *Sap) PublicSet() (*keyset.PublicSet, error) {
	return keyset.DecodePublicSet(s.KeySet)
}

// GroupKey returns the encoded group public key of the Sap's cohort. Section
// wallets are addressed by this key.
func (s *Sap) GroupKey() []byte {
	return s.KeySet.Group
}

// ElderNames returns the names of the cohort members, in Sap order.
func (s *Sap) ElderNames() []xor.Name {
	names := make([]xor.Name, len(s.Members))
	for i, m := range s.Members {
		names[i] = m.Name
	}
	return names
}

// VerifySelfSigned checks that the Sap's signature verifies against its own
// embedded key set, i.e. that the cohort has proved it holds the matching
// private key shares.
func (s *Sap) VerifySelfSigned() error {
	if len(s.Sig) == 0 {
		return ErrSapNotSigned
	}
	pub, err := s.PublicSet()
	if err != nil {
		return fmt.Errorf("sap key set: %w", err)
	}
	msg, err := s.SignableBytes()
	if err != nil {
		return err
	}
	if !pub.VerifyGroup(msg, s.Sig) {
		return ErrSapBadSignature
	}
	return nil
}

// Marshal - canonical json encoding of the full Sap, signature included
func (s *Sap) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(s); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal ...
func (s *Sap) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(s)
}
