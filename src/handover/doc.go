// Package handover implements the elder-handover engine: one vote round per
// handover attempt, run by the outgoing cohort over candidate successor
// cohorts. A candidate is either a single successor cohort for the same
// prefix, or two successor cohorts after a split.
//
// Each elder signs its locally preferred candidate with its cohort share;
// when threshold+1 shares agree on one candidate, the combined signature is
// the outgoing cohort's endorsement and the round concludes with a
// HandoverDecision broadcast. Rounds that expire without threshold are
// restarted from a fresh derivation of the stable set.
package handover
