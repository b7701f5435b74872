// Package wallet manages a cohort's escrow balance and the transfers that
// move it to successor cohorts.
//
// Each installed cohort controls one wallet, keyed by its group public key.
// The Manager accumulates deposits and per-member work counters while the
// cohort sits, and on handover derives the outgoing transfers from the
// decision itself: one full-balance transfer for an elder handover, or a
// near-even pair for a section split. Transfer ids are derived from the
// escrow keys involved, so every elder of the outgoing cohort computes the
// same transfers independently and the ledger can absorb duplicates.
//
// The Ledger enforces the escrow discipline: a transfer id is appended at
// most once, and an escrow key is emptied by at most two distinct legs.
// Settle pushes transfers at the ledger with exponential backoff until they
// land, the retry budget runs out, or the ledger reports the escrow already
// emptied by another elder.
package wallet
