package node

import (
	"github.com/onflow/flow-go/crypto"

	"github.com/stablemesh/stablemesh/src/common"
	"github.com/stablemesh/stablemesh/src/keys"
	"github.com/stablemesh/stablemesh/src/xor"
)

//Validator holds the node's long-term identity
type Validator struct {
	Key     crypto.PrivateKey
	Moniker string

	name     xor.Name
	pubBytes []byte
	pubHex   string
}

//NewValidator is a factory method for a Validator
func NewValidator(key crypto.PrivateKey, moniker string) *Validator {
	return &Validator{
		Key:     key,
		Moniker: moniker,
		name:    keys.NameOf(key.PublicKey()),
	}
}

//Name returns the validator's section name, derived from its public key
func (v *Validator) Name() xor.Name {
	return v.name
}

//PublicKeyBytes returns the validator's public key as a byte array
func (v *Validator) PublicKeyBytes() []byte {
	if len(v.pubBytes) == 0 {
		v.pubBytes = v.Key.PublicKey().Encode()
	}
	return v.pubBytes
}

//PublicKeyHex returns the validator's public key as a hex string
func (v *Validator) PublicKeyHex() string {
	if len(v.pubHex) == 0 {
		v.pubHex = common.EncodeToString(v.PublicKeyBytes())
	}
	return v.pubHex
}
