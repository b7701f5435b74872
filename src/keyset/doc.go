// Package keyset holds a cohort's BLS threshold key material: the shared
// public key set that identifies the cohort, and, when this node is an elder,
// its private key share. The store keeps a bounded history of prior public
// key sets so that artefacts signed by a recently retired cohort remain
// verifiable during handover tails.
package keyset
