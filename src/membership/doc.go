// Package membership implements the section's membership engine: it turns
// join requests, probe failures and peer votes into stable-set mutations,
// derives the ideal elder cohort from the confirmed members, and flags when a
// handover or a split is due.
//
// Vote application is idempotent, keyed by (subject, kind, witness). Votes
// are accepted from the current cohort and from the cohort one rotation
// behind it; anything older, and anything that does not verify, is dropped
// silently.
package membership
