// Package vote implements the signed-vote aggregator: it collects partial
// BLS signatures over proposals and produces a threshold-combined signature
// once enough distinct, individually verified shares have been recorded for
// the same proposal. One aggregator instance serves one public key set; the
// membership and handover engines each run their own.
package vote
