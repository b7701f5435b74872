// Package section defines the portable artefacts of section authority: the
// Sap (Section Authority Proof), the handover candidate carrying one or two
// successor Saps, and the cohort value type naming the current elders. These
// are pure value types with canonical encodings; the handover engine votes
// over them and the wallet manager derives transfers from them.
package section
