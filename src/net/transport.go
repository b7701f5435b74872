package net

// Transport provides an interface for network transports
// to allow a node to communicate with other nodes.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns a channel that can be used to
	// consume and respond to RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Join, MembershipVote, HandoverVote, HandoverDecision, ShareGrant, and
	// Probe send the appropriate RPC to the target node.

	Join(target string, args *JoinRequest, resp *JoinResponse) error

	MembershipVote(target string, args *MembershipVote, resp *VoteAck) error

	HandoverVote(target string, args *HandoverVote, resp *VoteAck) error

	HandoverDecision(target string, args *HandoverDecision, resp *VoteAck) error

	ShareGrant(target string, args *ShareGrant, resp *VoteAck) error

	Probe(target string, args *SectionProbe, resp *ProbeResponse) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
