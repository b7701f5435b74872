package keys

import (
	"crypto/rand"
	"fmt"

	"github.com/onflow/flow-go/crypto"

	"github.com/stablemesh/stablemesh/src/xor"
)

// Domain separation tags. Identity signatures and cohort share signatures
// must never verify against one another.
const (
	IdentityTag = "stablemesh_identity"
	CohortTag   = "stablemesh_cohort"
)

// GenerateKey produces a fresh BLS12-381 identity key from the OS entropy
// source.
func GenerateKey() (crypto.PrivateKey, error) {
	seed := make([]byte, crypto.KeyGenSeedMinLenBLSBLS12381)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return crypto.GeneratePrivateKey(crypto.BLSBLS12381, seed)
}

// ParsePrivateKey decodes a raw private key dump.
func ParsePrivateKey(raw []byte) (crypto.PrivateKey, error) {
	return crypto.DecodePrivateKey(crypto.BLSBLS12381, raw)
}

// ParsePublicKey decodes a raw public key dump.
func ParsePublicKey(raw []byte) (crypto.PublicKey, error) {
	return crypto.DecodePublicKey(crypto.BLSBLS12381, raw)
}

// NameOf derives a node name from its identity public key.
func NameOf(pub crypto.PublicKey) xor.Name {
	return xor.NameFromBytes(pub.Encode())
}

// Sign signs msg with the identity key under the identity domain tag.
func Sign(priv crypto.PrivateKey, msg []byte) ([]byte, error) {
	sig, err := priv.Sign(msg, crypto.NewBLSKMAC(IdentityTag))
	if err != nil {
		return nil, fmt.Errorf("identity sign: %w", err)
	}
	return sig, nil
}

// Verify checks an identity signature.
func Verify(pub crypto.PublicKey, msg, sig []byte) bool {
	ok, err := pub.Verify(sig, msg, crypto.NewBLSKMAC(IdentityTag))
	return err == nil && ok
}
