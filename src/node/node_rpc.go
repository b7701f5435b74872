package node

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stablemesh/stablemesh/src/handover"
	"github.com/stablemesh/stablemesh/src/membership"
	"github.com/stablemesh/stablemesh/src/net"
	"github.com/stablemesh/stablemesh/src/stableset"
)

func (n *Node) requestJoin(target string, candidate stableset.Member, proof *net.ProofResponse) (net.JoinResponse, error) {
	args := net.JoinRequest{
		Candidate: candidate,
		Proof:     proof,
	}

	var out net.JoinResponse

	err := n.trans.Join(target, &args, &out)

	return out, err
}

func (n *Node) processRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case *net.JoinRequest:
		n.processJoinRequest(rpc, cmd)
	case *net.MembershipVote:
		n.processMembershipVote(rpc, cmd)
	case *net.HandoverVote:
		n.processHandoverVote(rpc, cmd)
	case *net.HandoverDecision:
		n.processHandoverDecision(rpc, cmd)
	case *net.ShareGrant:
		n.processShareGrant(rpc, cmd)
	case *net.SectionProbe:
		n.processSectionProbe(rpc, cmd)
	default:
		n.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		rpc.Respond(nil, fmt.Errorf("unexpected command"))
	}
}

func (n *Node) processJoinRequest(rpc net.RPC, cmd *net.JoinRequest) {
	n.logger.WithFields(logrus.Fields{
		"candidate": cmd.Candidate.Name.ShortString(),
		"proof":     cmd.Proof != nil,
	}).Debug("process JoinRequest")

	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	if n.membership == nil {
		rpc.Respond(&net.JoinResponse{
			FromName: n.validator.Name(),
			Reject:   &net.JoinReject{Reason: net.JoinsDisallowed},
		}, nil)
		return
	}

	resp, ownVote, err := n.membership.HandleJoinRequest(cmd)

	n.logger.WithFields(logrus.Fields{
		"accepted":  resp != nil && resp.Accepted,
		"challenge": resp != nil && resp.Challenge != nil,
		"rpc_err":   err,
	}).Debug("Responding to JoinRequest")

	rpc.Respond(resp, err)

	if ownVote != nil {
		n.applyVote(ownVote)
		n.broadcastMembershipVote(ownVote)
	}
}

func (n *Node) processMembershipVote(rpc net.RPC, cmd *net.MembershipVote) {
	n.logger.WithFields(logrus.Fields{
		"subject": cmd.Subject.Name.ShortString(),
		"kind":    cmd.Kind.String(),
		"witness": cmd.Witness.ShortString(),
	}).Debug("process MembershipVote")

	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	ack := &net.VoteAck{FromName: n.validator.Name(), Known: true}

	if n.membership == nil {
		rpc.Respond(ack, nil)
		return
	}

	out := n.applyVote(cmd)
	ack.Known = out == nil || !out.Changed

	rpc.Respond(ack, nil)

	// pass fresh votes along so that one witness reaches the whole section
	if out != nil && out.Changed {
		n.broadcastMembershipVote(cmd)
	}
}

func (n *Node) processHandoverVote(rpc net.RPC, cmd *net.HandoverVote) {
	n.logger.WithFields(logrus.Fields{
		"from": cmd.FromName.ShortString(),
	}).Debug("process HandoverVote")

	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	ack := &net.VoteAck{FromName: n.validator.Name()}

	if n.handover == nil {
		rpc.Respond(ack, nil)
		return
	}

	res, err := n.handover.HandleVote(cmd)
	if errors.Is(err, handover.ErrNotVoting) {
		// the dealer saw the divergence before we did; adopt its candidate if
		// its roster matches our own derivation, and join the round
		if own := n.adoptCandidate(cmd.Candidate); own != nil {
			if ores, oerr := n.handover.HandleVote(own); oerr == nil {
				n.finishRound(ores)
			}
			n.broadcastHandoverVote(own)
			res, err = n.handover.HandleVote(cmd)
		} else {
			err = nil
		}
	}
	if err != nil && !errors.Is(err, handover.ErrNotVoting) {
		n.logger.WithError(err).Error("Handling handover vote")
	}

	rpc.Respond(ack, nil)

	n.finishRound(res)
}

func (n *Node) processHandoverDecision(rpc net.RPC, cmd *net.HandoverDecision) {
	n.logger.WithFields(logrus.Fields{
		"from": cmd.FromName.ShortString(),
		"kind": cmd.Candidate.Kind.String(),
	}).Debug("process HandoverDecision")

	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	err := n.applyDecision(cmd)
	if err != nil {
		n.logger.WithError(err).Error("Applying handover decision")
	}

	rpc.Respond(&net.VoteAck{FromName: n.validator.Name()}, err)
}

func (n *Node) processShareGrant(rpc net.RPC, cmd *net.ShareGrant) {
	n.logger.WithFields(logrus.Fields{
		"from":  cmd.FromName.ShortString(),
		"index": cmd.ShareIndex,
	}).Debug("process ShareGrant")

	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	err := n.acceptShareGrant(cmd)
	if err != nil {
		n.logger.WithError(err).Error("Accepting share grant")
	}

	rpc.Respond(&net.VoteAck{FromName: n.validator.Name(), Known: err == nil}, nil)
}

func (n *Node) processSectionProbe(rpc net.RPC, cmd *net.SectionProbe) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	if n.membership == nil {
		rpc.Respond(nil, fmt.Errorf("not a section member"))
		return
	}

	resp, err := n.membership.AnswerProbe(cmd)
	rpc.Respond(resp, err)
}

// canvassElder runs the challenge round trip against one elder.
func (n *Node) canvassElder(target string, candidate stableset.Member) error {
	resp, err := n.requestJoin(target, candidate, nil)
	if err != nil {
		return err
	}
	if resp.Challenge == nil {
		return nil
	}

	proof, err := membership.SolveChallenge(resp.Challenge)
	if err != nil {
		return err
	}

	_, err = n.requestJoin(target, candidate, proof)
	return err
}

// join runs the candidate side of the admission flow: request, solve the
// resource challenge, and wait for the section's votes to confirm us.
func (n *Node) join() error {
	n.logger.Debug("JOINING")

	if n.conf.JoinAddr == "" {
		n.logger.Error("No join address configured and no recorded section")
		n.Shutdown()
		return nil
	}

	ord, err := n.store.NextOrdIdx()
	if err != nil {
		n.logger.WithError(err).Error("Minting ord_idx")
		n.Shutdown()
		return err
	}

	candidate := stableset.NewMember(n.validator.Key.PublicKey(), n.trans.AdvertiseAddr(), initialAge, ord)

	start := time.Now()
	resp, err := n.requestJoin(n.conf.JoinAddr, candidate, nil)
	elapsed := time.Since(start)
	n.logger.WithField("duration", elapsed.Nanoseconds()).Debug("requestJoin()")

	if err != nil {
		n.logger.Error("Cannot join:", n.conf.JoinAddr, err)
		time.Sleep(time.Second)
		return err
	}

	if resp.Challenge != nil {
		proof, err := membership.SolveChallenge(resp.Challenge)
		if err != nil {
			n.logger.WithError(err).Error("Solving resource challenge")
			n.Shutdown()
			return err
		}

		resp, err = n.requestJoin(n.conf.JoinAddr, candidate, proof)
		if err != nil {
			n.logger.Error("Cannot join:", n.conf.JoinAddr, err)
			time.Sleep(time.Second)
			return err
		}
	}

	if resp.Reject != nil || !resp.Accepted || resp.Sap == nil {
		// The JoinRequest was explicitly refused by the section. This is not
		// an error.
		reason := "unknown"
		if resp.Reject != nil {
			reason = resp.Reject.Reason.String()
		}
		n.logger.WithField("reason", reason).Debug("JoinRequest refused. Shutting down.")
		n.Shutdown()
		return nil
	}

	if err := resp.Sap.VerifySelfSigned(); err != nil {
		n.logger.WithError(err).Error("Join response carries an unverifiable Sap")
		n.Shutdown()
		return err
	}

	n.coreLock.Lock()
	err = n.install(resp.Sap, nil, 0)
	if err == nil {
		n.stable.Reset(resp.Sap.Members)
	}
	n.coreLock.Unlock()
	if err != nil {
		n.logger.WithError(err).Error("Installing section authority")
		n.Shutdown()
		return err
	}

	n.logger.WithField("from", resp.FromName.ShortString()).Debug("Join accepted, canvassing remaining elders")

	// every elder issues its own challenge and witnesses independently; the
	// admission confirms once a supermajority of the cohort has witnessed it
	for _, elder := range resp.Sap.Members {
		if elder.Name == resp.FromName || elder.NetAddr == "" || elder.NetAddr == n.trans.AdvertiseAddr() {
			continue
		}
		if err := n.canvassElder(elder.NetAddr, candidate); err != nil {
			n.logger.WithError(err).WithField("elder", elder.Name.ShortString()).Debug("Canvassing elder")
		}
	}

	// admission votes flow to the candidate too; we are confirmed once our
	// own entry crosses the supermajority
	timeout := time.After(n.conf.JoinTimeout)
	for {
		select {
		case rpc := <-n.netCh:
			n.processRPC(rpc)

			n.coreLock.Lock()
			_, confirmed := n.stable.MemberByName(n.validator.Name())
			n.coreLock.Unlock()

			if confirmed {
				n.logger.Debug("Admission confirmed => Running")
				n.setState(Running)
				return nil
			}
		case <-timeout:
			n.logger.Error("Timeout waiting for admission confirmation")
			n.Shutdown()
			return nil
		case <-n.shutdownCh:
			return nil
		}
	}
}
