// Package net implements transports to communicate between stablemesh nodes.
//
// This package contains implementations of the Transport interface, which is
// used by stablemesh nodes to send and receive RPC requests (JoinRequest,
// MembershipVote, HandoverVote, etc.). There are two implementations:
//
// - Inmem: in-memory transport used only for testing
//
// - TCP: communicating over plain TCP
//
// TCP
//
// Each RPC request is framed by a single byte indicating the message type,
// followed by the json encoded request. The response is an error string
// followed by the json encoded response object.
//
// To use a TCP transport, set the following configuration options in the
// Config object (cf config package):
//
// - BindAddr: the IP:PORT of the TCP socket that the node binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other nodes.
// If BindAddr is a local address not reachable by other peers, it is usefull
// to set AdvertiseAddr to the reachable public address.
package net
