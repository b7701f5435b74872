package membership

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math/bits"

	"github.com/onflow/flow-go/crypto"
	"github.com/zeebo/blake3"

	"github.com/stablemesh/stablemesh/src/keys"
	"github.com/stablemesh/stablemesh/src/net"
)

const (
	// DefaultProofDataSize is the number of nonce-derived bytes a join
	// candidate must hash through to answer a challenge.
	DefaultProofDataSize = 1 << 16

	// DefaultProofDifficulty is the required number of leading zero bits in
	// the proof digest.
	DefaultProofDifficulty = 8

	maxProofIterations = 1 << 24
)

// ErrProofExhausted is returned when no solution was found within the
// iteration bound. With sane difficulties this does not happen.
var ErrProofExhausted = errors.New("no proof solution within iteration bound")

// NewChallenge mints a resource-proof challenge. The nonce is signed with the
// issuer's identity key so the candidate can tell challenges from real elders
// apart from junk.
func NewChallenge(ident crypto.PrivateKey, dataSize uint64, difficulty uint8) (*net.ResourceChallenge, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	sig, err := keys.Sign(ident, nonce)
	if err != nil {
		return nil, err
	}

	return &net.ResourceChallenge{
		DataSize:   dataSize,
		Difficulty: difficulty,
		Nonce:      nonce,
		NonceSig:   sig,
	}, nil
}

// SolveChallenge searches for a solution to the challenge by brute force.
func SolveChallenge(ch *net.ResourceChallenge) (*net.ProofResponse, error) {
	for c := uint64(0); c < maxProofIterations; c++ {
		sol := make([]byte, 8)
		binary.BigEndian.PutUint64(sol, c)
		if proofDigestOK(ch, sol) {
			return &net.ProofResponse{Nonce: ch.Nonce, Solution: sol}, nil
		}
	}
	return nil, ErrProofExhausted
}

// VerifyProof checks a candidate's solution against the challenge it was
// issued.
func VerifyProof(ch *net.ResourceChallenge, resp *net.ProofResponse) bool {
	if resp == nil || !bytes.Equal(ch.Nonce, resp.Nonce) {
		return false
	}
	return proofDigestOK(ch, resp.Solution)
}

// proofDigestOK hashes data_size bytes of nonce-derived padding followed by
// the solution, and checks the difficulty bound. Hashing through the padding
// is what makes the proof cost proportional to data_size.
func proofDigestOK(ch *net.ResourceChallenge, sol []byte) bool {
	if len(ch.Nonce) == 0 {
		return false
	}

	h := blake3.New()
	remaining := int(ch.DataSize)
	for remaining > 0 {
		chunk := ch.Nonce
		if remaining < len(chunk) {
			chunk = chunk[:remaining]
		}
		h.Write(chunk)
		remaining -= len(chunk)
	}
	h.Write(sol)

	return leadingZeroBits(h.Sum(nil)) >= int(ch.Difficulty)
}

func leadingZeroBits(b []byte) int {
	n := 0
	for _, x := range b {
		if x == 0 {
			n += 8
			continue
		}
		n += bits.LeadingZeros8(x)
		break
	}
	return n
}
