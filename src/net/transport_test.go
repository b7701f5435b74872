package net

import (
	"reflect"
	"testing"
	"time"

	"github.com/stablemesh/stablemesh/src/common"
	"github.com/stablemesh/stablemesh/src/keys"
	"github.com/stablemesh/stablemesh/src/stableset"
	"github.com/stablemesh/stablemesh/src/xor"
)

const (
	INMEM = iota
	TCP
	numTestTransports // NOTE: must be last
)

func NewTestTransport(ttype int, addr string, t *testing.T) Transport {
	switch ttype {
	case INMEM:
		_, it := NewInmemTransport(addr)
		return it
	case TCP:
		tt, err := NewTCPTransport(addr, "", 2, time.Second, 2*time.Second, common.NewTestEntry(t, common.TestLogLevel))
		if err != nil {
			t.Fatal(err)
		}
		go tt.Listen()
		return tt
	default:
		panic("Unknown transport type")
	}
}

func testMember(t *testing.T, addr string, age uint8, ord uint64) stableset.Member {
	key, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return stableset.NewMember(key.PublicKey(), addr, age, ord)
}

// connect wires two transports together if they are in-memory, and returns
// them ready for an outbound request from trans2 to trans1.
func connect(trans1, trans2 Transport, addr1, addr2 string) {
	if itrans1, ok := trans1.(*InmemTransport); ok {
		itrans2 := trans2.(*InmemTransport)
		itrans1.Connect(addr2, trans2)
		itrans2.Connect(addr1, trans1)
	}
}

func TestTransport_StartStop(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans := NewTestTransport(ttype, "127.0.0.1:0", t)
		if err := trans.Close(); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}

func TestTransport_Join(t *testing.T) {
	addr1 := "127.0.0.1:1234"
	addr2 := "127.0.0.1:1235"
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, addr1, t)
		defer trans1.Close()
		rpcCh := trans1.Consumer()

		candidate := testMember(t, addr2, 4, 0)

		// Make the RPC request
		args := JoinRequest{
			Candidate: candidate,
		}
		resp := JoinResponse{
			FromName: xor.NameFromBytes([]byte("elder")),
			Challenge: &ResourceChallenge{
				DataSize:   1024,
				Difficulty: 4,
				Nonce:      []byte("nonce"),
				NonceSig:   []byte("sig"),
			},
		}

		// Listen for a request
		go func() {
			select {
			case rpc := <-rpcCh:
				// Verify the command
				req := rpc.Command.(*JoinRequest)
				if !reflect.DeepEqual(req, &args) {
					t.Errorf("command mismatch: %#v %#v", *req, args)
				}
				rpc.Respond(&resp, nil)

			case <-time.After(200 * time.Millisecond):
				t.Errorf("timeout")
			}
		}()

		// Transport 2 makes outbound request
		trans2 := NewTestTransport(ttype, addr2, t)
		defer trans2.Close()

		connect(trans1, trans2, addr1, addr2)

		var out JoinResponse
		if err := trans2.Join(trans1.LocalAddr(), &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}

		// Verify the response
		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}
	}
}

func TestTransport_MembershipVote(t *testing.T) {
	addr1 := "127.0.0.1:1236"
	addr2 := "127.0.0.1:1237"
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, addr1, t)
		defer trans1.Close()
		rpcCh := trans1.Consumer()

		subject := testMember(t, "127.0.0.1:9999", 5, 12)

		args := MembershipVote{
			Subject:    subject,
			Kind:       VoteAdd,
			Witness:    xor.NameFromBytes([]byte("witness")),
			CohortKey:  []byte("group"),
			ShareIndex: 3,
			PartialSig: []byte("share"),
		}
		resp := VoteAck{
			FromName: xor.NameFromBytes([]byte("elder")),
			Known:    true,
		}

		go func() {
			select {
			case rpc := <-rpcCh:
				req := rpc.Command.(*MembershipVote)
				if !reflect.DeepEqual(req, &args) {
					t.Errorf("command mismatch: %#v %#v", *req, args)
				}
				rpc.Respond(&resp, nil)

			case <-time.After(200 * time.Millisecond):
				t.Errorf("timeout")
			}
		}()

		trans2 := NewTestTransport(ttype, addr2, t)
		defer trans2.Close()

		connect(trans1, trans2, addr1, addr2)

		var out VoteAck
		if err := trans2.MembershipVote(trans1.LocalAddr(), &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}

		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}
	}
}

func TestTransport_Probe(t *testing.T) {
	addr1 := "127.0.0.1:1238"
	addr2 := "127.0.0.1:1239"
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, addr1, t)
		defer trans1.Close()
		rpcCh := trans1.Consumer()

		args := SectionProbe{
			FromName: xor.NameFromBytes([]byte("prober")),
			Nonce:    []byte("nonce"),
		}
		resp := ProbeResponse{
			FromName: xor.NameFromBytes([]byte("target")),
			NonceSig: []byte("sig"),
		}

		go func() {
			select {
			case rpc := <-rpcCh:
				req := rpc.Command.(*SectionProbe)
				if !reflect.DeepEqual(req, &args) {
					t.Errorf("command mismatch: %#v %#v", *req, args)
				}
				rpc.Respond(&resp, nil)

			case <-time.After(200 * time.Millisecond):
				t.Errorf("timeout")
			}
		}()

		trans2 := NewTestTransport(ttype, addr2, t)
		defer trans2.Close()

		connect(trans1, trans2, addr1, addr2)

		var out ProbeResponse
		if err := trans2.Probe(trans1.LocalAddr(), &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}

		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}
	}
}

func TestMembershipProposal_SignableBytes(t *testing.T) {
	subject := testMember(t, "127.0.0.1:9999", 5, 12)

	v1 := MembershipVote{Subject: subject, Kind: VoteRemove, Witness: xor.NameFromBytes([]byte("w1"))}
	v2 := MembershipVote{Subject: subject, Kind: VoteRemove, Witness: xor.NameFromBytes([]byte("w2"))}

	b1, err := v1.Proposal().SignableBytes()
	if err != nil {
		t.Fatal(err)
	}
	b2, err := v2.Proposal().SignableBytes()
	if err != nil {
		t.Fatal(err)
	}

	// Witness identity must not leak into the signed bytes.
	if !reflect.DeepEqual(b1, b2) {
		t.Fatalf("proposal bytes differ across witnesses: %s %s", b1, b2)
	}

	v3 := MembershipVote{Subject: subject, Kind: VoteAdd}
	b3, err := v3.Proposal().SignableBytes()
	if err != nil {
		t.Fatal(err)
	}
	if reflect.DeepEqual(b1, b3) {
		t.Fatal("proposal bytes should differ across vote kinds")
	}
}
