// Package stableset implements the replicated membership data structure of a
// section. It tracks confirmed members alongside pending joiners and leavers
// with their witness sets, and promotes or demotes entries once a
// supermajority of the current elder cohort has witnessed the change. The
// structure is pure: it performs no I/O and is driven entirely by the
// membership engine.
package stableset
