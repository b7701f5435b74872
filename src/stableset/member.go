package stableset

import (
	"github.com/onflow/flow-go/crypto"

	"github.com/stablemesh/stablemesh/src/common"
	"github.com/stablemesh/stablemesh/src/keys"
	"github.com/stablemesh/stablemesh/src/xor"
)

// Member is a node confirmed (or being confirmed) into a section: the node's
// identity plus the ord_idx minted by the section when the member was first
// confirmed. OrdIdx gives a stable total order between members that carry the
// same name after a relocation rejoin.
type Member struct {
	Name      xor.Name `json:"name"`
	NetAddr   string   `json:"net_addr"`
	Age       uint8    `json:"age"`
	OrdIdx    uint64   `json:"ord_idx"`
	PubKeyHex string   `json:"pub_key"`
}

// NewMember builds a Member from an identity public key. The name is derived
// from the key.
func NewMember(pub crypto.PublicKey, netAddr string, age uint8, ordIdx uint64) Member {
	return Member{
		Name:      keys.NameOf(pub),
		NetAddr:   netAddr,
		Age:       age,
		OrdIdx:    ordIdx,
		PubKeyHex: common.EncodeToString(pub.Encode()),
	}
}

// PublicKey decodes the member's identity public key.
func (m Member) PublicKey() (crypto.PublicKey, error) {
	raw, err := common.DecodeFromString(m.PubKeyHex)
	if err != nil {
		return nil, err
	}
	return keys.ParsePublicKey(raw)
}

// Equal reports full equality, not just same name.
func (m Member) Equal(other Member) bool {
	return m == other
}
