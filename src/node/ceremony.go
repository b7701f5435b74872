package node

import (
	"github.com/onflow/flow-go/crypto"

	"github.com/stablemesh/stablemesh/src/keyset"
	"github.com/stablemesh/stablemesh/src/section"
	"github.com/stablemesh/stablemesh/src/stableset"
	"github.com/stablemesh/stablemesh/src/xor"
)

// dealSuccessor builds the self-signed Sap of a successor cohort, standing in
// for the key-generation ceremony: the elder assembling the candidate deals
// the shares and hands them out through InstallShares once a handover round
// for the candidate concludes. A distributed ceremony slots in here without
// touching the rest of the handover flow.
func dealSuccessor(prefix xor.Prefix, members []stableset.Member) (*section.Sap, []crypto.PrivateKey, error) {
	shares, pub, err := keyset.DealCohort(len(members))
	if err != nil {
		return nil, nil, err
	}

	sap := section.NewSap(prefix, pub, members)
	msg, err := sap.SignableBytes()
	if err != nil {
		return nil, nil, err
	}

	partials := make(map[int][]byte, len(shares))
	for i, share := range shares {
		ks := keyset.NewKeyStore(pub, share, i)
		sig, err := ks.SignShare(msg)
		if err != nil {
			return nil, nil, err
		}
		partials[i] = sig
	}

	sap.Sig, err = pub.Combine(msg, partials)
	if err != nil {
		return nil, nil, err
	}

	return sap, shares, nil
}
