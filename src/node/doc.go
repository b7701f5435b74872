// Package node implements the reactive component of a stablemesh node.
//
// This is the part of stablemesh that drives the membership, handover and
// wallet engines from a single dispatch loop. Node implements a state machine
// with four states: Joining, Running, Leaving, and Shutdown. All engine
// mutations happen on the dispatch goroutine (or under the same lock), so the
// engines themselves stay free of synchronisation.
//
// # Membership
//
// Confirmed members exchange signed membership votes over the custom RPC
// protocol defined in the net package. An elder that witnesses an admission
// or a departure signs a vote with its cohort key share and broadcasts it;
// every node feeds received votes through the membership engine, which admits
// or removes a member once a supermajority of the sitting cohort has
// witnessed the same change. Liveness is checked with periodic probes; a
// member that fails its probe is voted out.
//
// # Joining
//
// A node that does not belong to a recorded section enters the Joining state
// and sends a JoinRequest to a configured contact. The elder answers with a
// resource challenge; the candidate solves it and resubmits. On acceptance
// the response carries the section's current Sap, which the candidate
// installs before waiting for the admission votes that confirm it. A node
// leaving cleanly witnesses its own removal upon capturing a SIGINT signal.
//
// # Handover
//
// When confirmed changes make the ideal elder cohort diverge from the
// sitting one, or the section grows large enough to split, elders open a
// handover vote round over a candidate successor authority. A round that
// collects a threshold of shares concludes with a HandoverDecision carrying
// the outgoing cohort's combined signature; every member that verifies the
// decision rotates onto the successor Sap. Stalled rounds restart on a
// jittered timer. The outgoing elders settle the section wallet into the
// successor escrow key(s) as part of the rotation.
package node
