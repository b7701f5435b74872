package node

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/onflow/flow-go/crypto"
	"github.com/sirupsen/logrus"

	"github.com/stablemesh/stablemesh/src/common"
	"github.com/stablemesh/stablemesh/src/handover"
	"github.com/stablemesh/stablemesh/src/keys"
	"github.com/stablemesh/stablemesh/src/keyset"
	"github.com/stablemesh/stablemesh/src/membership"
	"github.com/stablemesh/stablemesh/src/net"
	"github.com/stablemesh/stablemesh/src/section"
	"github.com/stablemesh/stablemesh/src/stableset"
	"github.com/stablemesh/stablemesh/src/store"
	"github.com/stablemesh/stablemesh/src/wallet"
	"github.com/stablemesh/stablemesh/src/xor"
)

// initialAge is the age a candidate proposes for itself on first admission.
const initialAge = 5

//Node is the coordinator: it owns the section state and runs the engines
//from a single dispatch loop.
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	validator *Validator

	trans net.Transport
	netCh <-chan net.RPC

	store  store.Store
	ledger wallet.Ledger

	prefix     xor.Prefix
	stable     *stableset.StableSet
	keyStore   *keyset.KeyStore
	membership *membership.Engine
	handover   *handover.Engine
	wallet     *wallet.Manager

	// shares dealt for successor cohorts, keyed by encoded group key, until
	// a handover decision installs or discards them
	pendingShares map[string][]crypto.PrivateKey

	coreLock sync.Mutex

	sigintCh   chan os.Signal
	shutdownCh chan struct{}

	controlTimer *ControlTimer

	settleCtx    context.Context
	settleCancel context.CancelFunc

	start time.Time
}

//NewNode is a factory method that returns a Node instance
func NewNode(conf *Config,
	validator *Validator,
	st store.Store,
	trans net.Transport,
	ledger wallet.Ledger,
) *Node {
	//Prepare sigintCh to relay SIGINT system calls
	sigintCh := make(chan os.Signal, 1)
	signal.Notify(sigintCh, os.Interrupt, syscall.SIGINT)

	settleCtx, settleCancel := context.WithCancel(context.Background())

	node := Node{
		validator:     validator,
		conf:          conf,
		logger:        conf.Logger.WithField("this_node", validator.Name().ShortString()),
		trans:         trans,
		netCh:         trans.Consumer(),
		store:         st,
		ledger:        ledger,
		stable:        stableset.NewStableSet(),
		pendingShares: make(map[string][]crypto.PrivateKey),
		sigintCh:      sigintCh,
		shutdownCh:    make(chan struct{}),
		controlTimer:  NewRandomControlTimer(),
		settleCtx:     settleCtx,
		settleCancel:  settleCancel,
	}

	return &node
}

//Init initialises the node from its store: a node with a recorded section
//resumes as a confirmed member, anything else starts joining.
func (n *Node) Init() error {
	n.start = time.Now()

	sap, err := n.store.LastSap()
	if err != nil {
		n.logger.Debug("No recorded section => Joining")
		n.setState(Joining)
		return nil
	}

	if err := n.install(sap, nil, 0); err != nil {
		return err
	}

	members, err := n.store.Members()
	if err != nil || len(members) == 0 {
		members = sap.Members
	}
	n.stable.Reset(members)

	if _, ok := n.stable.MemberByName(n.validator.Name()); ok {
		n.logger.Debug("Node belongs to recorded section => Running")
		n.setState(Running)
	} else {
		n.logger.Debug("Node not in recorded section => Joining")
		n.setState(Joining)
	}

	return nil
}

//InitElder initialises the node as a sitting elder of the given section, with
//its private key share. The caller provides the share because the key
//ceremony runs outside the node.
func (n *Node) InitElder(sap *section.Sap, share crypto.PrivateKey, shareIndex int) error {
	n.start = time.Now()

	if err := n.install(sap, share, shareIndex); err != nil {
		return err
	}

	members, err := n.store.Members()
	if err != nil || len(members) == 0 {
		members = sap.Members
	}
	n.stable.Reset(members)
	if err := n.store.SetMembers(members); err != nil {
		return err
	}

	n.setState(Running)
	return nil
}

//BootstrapSection starts a brand new section ruled by this node alone. Used
//to seed the first section of a network.
func (n *Node) BootstrapSection(prefix xor.Prefix) error {
	ord, err := n.store.NextOrdIdx()
	if err != nil {
		return err
	}

	self := stableset.NewMember(n.validator.Key.PublicKey(), n.trans.AdvertiseAddr(), initialAge, ord)

	sap, shares, err := dealSuccessor(prefix, []stableset.Member{self})
	if err != nil {
		return err
	}

	if err := n.store.SetAge(initialAge); err != nil {
		return err
	}

	return n.InitElder(sap, shares[0], 0)
}

//InstallShares hands the node the private shares of a successor cohort dealt
//elsewhere, ahead of the decision that installs it.
func (n *Node) InstallShares(groupKey []byte, shares []crypto.PrivateKey) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	n.pendingShares[common.EncodeToString(groupKey)] = shares
}

// install points the node at a section authority: it appends the Sap to the
// store if it is new, rotates the key material, and rotates or creates the
// engines. The caller seeds the stable set. coreLock must be held except
// during initialisation.
func (n *Node) install(sap *section.Sap, share crypto.PrivateKey, shareIndex int) error {
	pub, err := sap.PublicSet()
	if err != nil {
		return err
	}
	cohort := section.NewCohort(sap.Members, pub)

	if last, lastErr := n.store.LastSap(); lastErr != nil || !bytes.Equal(last.GroupKey(), sap.GroupKey()) {
		if err := n.store.AppendSap(sap); err != nil {
			return err
		}
	}

	n.prefix = sap.Prefix

	if n.keyStore == nil {
		n.keyStore = keyset.NewKeyStore(pub, share, shareIndex)
	} else {
		n.keyStore.Rotate(pub, share, shareIndex)
	}

	if n.membership == nil {
		n.membership = membership.NewEngine(n.validator.Key, sap.Prefix, n.conf.ElderCount,
			n.conf.CacheSize, cohort, n.keyStore, n.store, n.stable, n.logger)
		n.membership.SetJoinsAllowed(n.conf.JoinsAllowed)
		n.handover = handover.NewEngine(n.validator.Name(), sap.Prefix, cohort, n.keyStore,
			n.conf.CacheSize, n.logger)
	} else {
		n.membership.Rotate(sap.Prefix, cohort)
		n.handover.Rotate(sap.Prefix, cohort)
	}

	n.wallet = wallet.NewManager(sap.GroupKey(), n.conf.RetryMaxElapsed, n.logger)

	n.logger.WithFields(logrus.Fields{
		"prefix": sap.Prefix.String(),
		"elders": len(sap.Members),
		"elder":  n.keyStore.IsElder(),
	}).Debug("Section authority installed")

	return nil
}

//RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	go n.Run()
}

//Run invokes the main loop of the node
func (n *Node) Run() {
	//The ControlTimer paces the handover round timeout.
	go n.controlTimer.Run(n.conf.HandoverTimeout)

	//React to SIGINT regardless of the state of the node.
	go n.doBackgroundWork()

	for {
		state := n.getState()

		n.logger.WithField("state", state.String()).Debug("Run loop")

		switch state {
		case Joining:
			n.join()
		case Running:
			n.run()
		case Leaving, Shutdown:
			return
		}
	}
}

func (n *Node) doBackgroundWork() {
	for {
		select {
		case <-n.shutdownCh:
			return
		case <-n.sigintCh:
			n.logger.Debug("Reacting to SIGINT - LEAVE")
			n.Leave()
			os.Exit(0)
		}
	}
}

// run is the single dispatch loop of a confirmed member: every engine
// mutation happens on this goroutine.
func (n *Node) run() {
	n.logger.Debug("RUNNING")

	probeTicker := time.NewTicker(n.conf.ProbeInterval)
	defer probeTicker.Stop()

	for {
		select {
		case rpc := <-n.netCh:
			n.processRPC(rpc)
		case <-n.controlTimer.tickCh:
			n.onRoundTimeout()
			n.resetTimer()
		case <-probeTicker.C:
			n.probeRandomMember()
		case <-n.shutdownCh:
			return
		}
	}
}

func (n *Node) resetTimer() {
	select {
	case n.controlTimer.resetCh <- n.conf.HandoverTimeout:
	default:
	}
}

// onRoundTimeout restarts a stalled handover round from the current stable
// set. The dealer deals a fresh candidate and re-broadcasts; the other elders
// fall back to Idle and adopt the new candidate when it arrives.
func (n *Node) onRoundTimeout() {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	if n.handover == nil || n.handover.State() != handover.Voting {
		return
	}

	n.logger.Debug("Handover round timed out, restarting")
	n.handover.RestartRound()
	n.maybeStartHandover()
}

// reactTo applies the side effects of a membership outcome: a node that saw
// itself evicted shuts down, and a diverged or split-ready section starts a
// handover round.
func (n *Node) reactTo(out *membership.VoteOutcome) {
	if out == nil {
		return
	}

	for _, m := range out.Demoted {
		if m.Name == n.validator.Name() {
			n.logger.Warn("Evicted from section")
			n.keyStore.Revoke()
			go n.Shutdown()
			return
		}
	}

	if out.HandoverNeeded || out.Split {
		n.maybeStartHandover()
	}
}

// handoverDealer elects the elder that deals the successor keys for the next
// round: the lowest-named sitting elder still in the stable set. Every elder
// derives the same dealer from the same state, so exactly one candidate
// circulates per round.
func (n *Node) handoverDealer() (xor.Name, bool) {
	var dealer xor.Name
	found := false
	for _, m := range n.membership.Cohort().Members {
		if _, ok := n.stable.MemberByName(m.Name); !ok {
			continue
		}
		if !found || m.Name.Cmp(dealer) < 0 {
			dealer = m.Name
			found = true
		}
	}
	return dealer, found
}

// maybeStartHandover opens a handover round when this elder sees the stable
// set diverge from the sitting cohort. Only the round's dealer derives a
// candidate: it deals the successor keys, standing in for the key ceremony,
// hands each successor elder its share, and broadcasts its vote. The other
// elders join through adoptCandidate when the dealer's vote arrives.
// coreLock must be held.
func (n *Node) maybeStartHandover() {
	if n.handover == nil || n.handover.State() != handover.Idle {
		return
	}
	if n.keyStore == nil || !n.keyStore.IsElder() {
		return
	}

	if dealer, ok := n.handoverDealer(); !ok || dealer != n.validator.Name() {
		return
	}

	var cand *section.Candidate
	var granted [][]crypto.PrivateKey

	if _, _, split := n.membership.SplitReady(); split {
		leftElders, rightElders := n.membership.ChildElders()

		leftSap, leftShares, err := dealSuccessor(n.prefix.Child(false), leftElders)
		if err != nil {
			n.logger.WithError(err).Error("Dealing left successor cohort")
			return
		}
		rightSap, rightShares, err := dealSuccessor(n.prefix.Child(true), rightElders)
		if err != nil {
			n.logger.WithError(err).Error("Dealing right successor cohort")
			return
		}

		n.pendingShares[common.EncodeToString(leftSap.GroupKey())] = leftShares
		n.pendingShares[common.EncodeToString(rightSap.GroupKey())] = rightShares

		cand = section.NewSectionSplit(leftSap, rightSap)
		granted = [][]crypto.PrivateKey{leftShares, rightShares}
	} else if n.membership.Diverged() {
		ideal := n.membership.IdealCohort()

		sap, shares, err := dealSuccessor(n.prefix, ideal)
		if err != nil {
			n.logger.WithError(err).Error("Dealing successor cohort")
			return
		}

		n.pendingShares[common.EncodeToString(sap.GroupKey())] = shares

		cand = section.NewElderHandover(sap)
		granted = [][]crypto.PrivateKey{shares}
	} else {
		return
	}

	v, err := n.handover.Propose(cand)
	if err != nil {
		n.logger.WithError(err).Error("Proposing handover candidate")
		return
	}

	n.resetTimer()

	for i, sap := range cand.Saps() {
		n.distributeShares(sap, granted[i])
	}

	res, err := n.handover.HandleVote(v)
	if err != nil {
		n.logger.WithError(err).Error("Applying own handover vote")
		return
	}
	n.finishRound(res)

	n.broadcastHandoverVote(v)
}

// adoptCandidate joins a round the dealer opened: the candidate is adopted
// when its member roster matches this elder's own derivation from the stable
// set. Returns this elder's vote over the candidate, or nil. coreLock must be
// held.
func (n *Node) adoptCandidate(cand *section.Candidate) *net.HandoverVote {
	if cand == nil || n.handover == nil || n.handover.State() != handover.Idle {
		return nil
	}
	if n.keyStore == nil || !n.keyStore.IsElder() {
		return nil
	}

	switch cand.Kind {
	case section.ElderHandover:
		if cand.Next == nil || !sameRoster(cand.Next.Members, n.membership.IdealCohort()) {
			return nil
		}
	case section.SectionSplit:
		if cand.Left == nil || cand.Right == nil {
			return nil
		}
		if _, _, split := n.membership.SplitReady(); !split {
			return nil
		}
		left, right := n.membership.ChildElders()
		if !sameRoster(cand.Left.Members, left) || !sameRoster(cand.Right.Members, right) {
			return nil
		}
	default:
		return nil
	}

	v, err := n.handover.Propose(cand)
	if err != nil {
		n.logger.WithError(err).Debug("Adopting handover candidate")
		return nil
	}

	n.resetTimer()

	return v
}

func sameRoster(a, b []stableset.Member) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name {
			return false
		}
	}
	return true
}

// distributeShares hands each successor cohort member its dealt private
// share. Sends run on worker goroutines; a member whose grant is lost picks
// its share up when the dealer re-deals on the next round timeout.
func (n *Node) distributeShares(sap *section.Sap, shares []crypto.PrivateKey) {
	for i, m := range sap.Members {
		if i >= len(shares) || m.Name == n.validator.Name() || m.NetAddr == "" {
			continue
		}
		grant := &net.ShareGrant{
			FromName:   n.validator.Name(),
			Sap:        sap,
			ShareIndex: i,
			Share:      shares[i].Encode(),
		}
		target := m.NetAddr
		n.goFunc(func() {
			var ack net.VoteAck
			if err := n.trans.ShareGrant(target, grant, &ack); err != nil {
				n.logger.WithError(err).WithField("target", target).Debug("Sending share grant")
			}
		})
	}
}

// acceptShareGrant verifies a dealt share against the granted Sap and files
// it for the decision that installs the cohort. A grant for the cohort
// already installed, i.e. the decision overtook the grant, goes straight into
// the key store. coreLock must be held.
func (n *Node) acceptShareGrant(g *net.ShareGrant) error {
	if g.Sap == nil {
		return errors.New("share grant carries no sap")
	}
	if err := g.Sap.VerifySelfSigned(); err != nil {
		return err
	}

	idx := g.ShareIndex
	if idx < 0 || idx >= len(g.Sap.Members) || g.Sap.Members[idx].Name != n.validator.Name() {
		return errors.New("share grant does not address this node")
	}

	share, err := keys.ParsePrivateKey(g.Share)
	if err != nil {
		return err
	}

	pub, err := g.Sap.PublicSet()
	if err != nil {
		return err
	}
	if idx >= len(pub.Shares) || !share.PublicKey().Equals(pub.Shares[idx]) {
		return errors.New("share does not match the granted key set")
	}

	if n.keyStore != nil && n.keyStore.Current().SameGroup(g.Sap.GroupKey()) {
		n.keyStore.AdoptShare(share, idx)
		n.logger.Debug("Adopted late share grant for the installed cohort")
		return nil
	}

	shares := make([]crypto.PrivateKey, len(g.Sap.Members))
	shares[idx] = share
	n.pendingShares[common.EncodeToString(g.Sap.GroupKey())] = shares
	return nil
}

// finishRound reacts to a handover vote result. coreLock must be held.
func (n *Node) finishRound(res *handover.Result) {
	if res == nil {
		return
	}

	if res.Rebroadcast != nil {
		n.broadcastHandoverVote(res.Rebroadcast)
	}

	if res.Decided == nil {
		return
	}

	outgoing, err := n.store.LastSap()
	if err != nil {
		n.logger.WithError(err).Error("Reading outgoing Sap")
		return
	}

	decision := n.handover.MakeDecision(outgoing, res)

	n.broadcastDecision(decision)

	if err := n.applyDecision(decision); err != nil {
		n.logger.WithError(err).Error("Applying own handover decision")
	}
}

// applyDecision verifies a handover decision and rotates the node onto the
// successor authority. Decisions for an outgoing cohort that was already
// rotated away are ignored. coreLock must be held.
func (n *Node) applyDecision(d *net.HandoverDecision) error {
	if err := handover.VerifyDecision(d); err != nil {
		return err
	}

	last, err := n.store.LastSap()
	if err == nil && !bytes.Equal(last.GroupKey(), d.OutgoingSap.GroupKey()) {
		n.logger.Debug("Ignoring handover decision for a retired cohort")
		return nil
	}

	// a rotation abandons whatever transfer retry the previous one left in
	// flight
	n.settleCancel()
	n.settleCtx, n.settleCancel = context.WithCancel(context.Background())

	// the outgoing cohort's elders move the escrow balance before rotating
	if n.keyStore != nil && n.keyStore.IsElder() && n.wallet != nil && !n.wallet.Settled() {
		transfers, werr := n.wallet.BuildTransfers(d.OutgoingSap, d.Candidate)
		if werr != nil {
			n.logger.WithError(werr).Error("Building handover transfers")
		} else {
			outgoingWallet := n.wallet
			settleCtx := n.settleCtx
			n.goFunc(func() {
				if serr := outgoingWallet.Settle(settleCtx, n.ledger, transfers); serr != nil {
					n.logger.WithError(serr).Error("Settling outgoing wallet")
				}
			})
		}
	}

	// follow the successor that covers this node's name
	var next *section.Sap
	switch d.Candidate.Kind {
	case section.ElderHandover:
		next = d.Candidate.Next
	case section.SectionSplit:
		if d.Candidate.Left.Prefix.Matches(n.validator.Name()) {
			next = d.Candidate.Left
		} else {
			next = d.Candidate.Right
		}
	}

	var share crypto.PrivateKey
	shareIndex := 0
	if shares, ok := n.pendingShares[common.EncodeToString(next.GroupKey())]; ok {
		for i, m := range next.Members {
			if m.Name == n.validator.Name() && i < len(shares) {
				share = shares[i]
				shareIndex = i
				break
			}
		}
	}
	n.pendingShares = make(map[string][]crypto.PrivateKey)

	if err := n.install(next, share, shareIndex); err != nil {
		return err
	}

	// members outside the new prefix belong to the sibling section now
	members, err := n.store.Members()
	if err != nil {
		members = n.stable.Members()
	}
	kept := members[:0:0]
	for _, m := range members {
		if next.Prefix.Matches(m.Name) {
			kept = append(kept, m)
		}
	}
	n.stable.Reset(kept)
	if err := n.store.SetMembers(kept); err != nil {
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"prefix":  next.Prefix.String(),
		"kind":    d.Candidate.Kind.String(),
		"members": len(kept),
	}).Debug("Handover decision applied")

	return nil
}

// probeRandomMember challenges one random confirmed member to prove liveness
// and witnesses its removal when the proof fails.
func (n *Node) probeRandomMember() {
	n.coreLock.Lock()
	if n.membership == nil {
		n.coreLock.Unlock()
		return
	}

	var others []stableset.Member
	for _, m := range n.stable.Members() {
		if m.Name != n.validator.Name() {
			others = append(others, m)
		}
	}
	if len(others) == 0 {
		n.coreLock.Unlock()
		return
	}
	target := others[rand.Intn(len(others))]

	probe, err := n.membership.NewProbe()
	n.coreLock.Unlock()
	if err != nil {
		n.logger.WithError(err).Error("Minting probe")
		return
	}

	n.goFunc(func() {
		var resp net.ProbeResponse
		err := n.trans.Probe(target.NetAddr, probe, &resp)

		n.coreLock.Lock()
		defer n.coreLock.Unlock()

		if err == nil && n.membership.VerifyProbeResponse(target, probe.Nonce, &resp) {
			return
		}

		n.logger.WithField("target", target.Name.ShortString()).Debug("Probe failed, witnessing removal")

		if !n.keyStore.IsElder() {
			return
		}
		v, verr := n.membership.WitnessVote(target, net.VoteRemove)
		if verr != nil {
			n.logger.WithError(verr).Error("Witnessing removal")
			return
		}
		n.applyVote(v)
		n.broadcastMembershipVote(v)
	})
}

// applyVote runs one vote through the membership engine and reacts to the
// outcome. coreLock must be held.
func (n *Node) applyVote(v *net.MembershipVote) *membership.VoteOutcome {
	out, err := n.membership.HandleVote(v)
	if err != nil {
		n.logger.WithError(err).Error("Applying membership vote")
		return out
	}
	n.reactTo(out)
	return out
}

//Leave causes the node to leave the section gracefully, witnessing its own
//removal so that peers do not have to detect the silence.
func (n *Node) Leave() error {
	n.logger.Debug("LEAVING")

	defer n.Shutdown()

	n.setState(Leaving)

	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	if n.membership == nil || n.keyStore == nil || !n.keyStore.IsElder() {
		return nil
	}

	self, ok := n.stable.MemberByName(n.validator.Name())
	if !ok {
		return nil
	}

	v, err := n.membership.WitnessVote(self, net.VoteRemove)
	if err != nil {
		n.logger.WithError(err).Error("Witnessing own departure")
		return err
	}

	n.broadcastMembershipVote(v)

	return nil
}

//Shutdown shuts down the node
func (n *Node) Shutdown() {
	if n.getState() != Shutdown {
		n.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.setState(Shutdown)

		//Stop and wait for concurrent operations
		close(n.shutdownCh)

		n.coreLock.Lock()
		cancel := n.settleCancel
		n.coreLock.Unlock()
		cancel()

		n.waitRoutines()

		n.controlTimer.Shutdown()

		//transport and store should only be closed once all concurrent
		//operations are finished otherwise they will panic trying to use
		//closed objects
		n.trans.Close()

		n.store.Close()
	}
}

// broadcast helpers. Targets are computed under coreLock; the sends happen on
// worker goroutines.

func (n *Node) memberTargets(extra ...string) []string {
	seen := map[string]bool{n.trans.AdvertiseAddr(): true}
	var targets []string

	add := func(addr string) {
		if addr != "" && !seen[addr] {
			seen[addr] = true
			targets = append(targets, addr)
		}
	}

	for _, m := range n.stable.Members() {
		add(m.NetAddr)
	}
	if n.membership != nil {
		for _, m := range n.membership.Cohort().Members {
			add(m.NetAddr)
		}
	}
	for _, addr := range extra {
		add(addr)
	}
	return targets
}

func (n *Node) cohortTargets() []string {
	seen := map[string]bool{n.trans.AdvertiseAddr(): true}
	var targets []string
	if n.membership == nil {
		return nil
	}
	for _, m := range n.membership.Cohort().Members {
		if m.NetAddr != "" && !seen[m.NetAddr] {
			seen[m.NetAddr] = true
			targets = append(targets, m.NetAddr)
		}
	}
	return targets
}

func (n *Node) broadcastMembershipVote(v *net.MembershipVote) {
	for _, target := range n.memberTargets(v.Subject.NetAddr) {
		target := target
		n.goFunc(func() {
			var ack net.VoteAck
			if err := n.trans.MembershipVote(target, v, &ack); err != nil {
				n.logger.WithError(err).WithField("target", target).Debug("Sending membership vote")
			}
		})
	}
}

func (n *Node) broadcastHandoverVote(v *net.HandoverVote) {
	for _, target := range n.cohortTargets() {
		target := target
		n.goFunc(func() {
			var ack net.VoteAck
			if err := n.trans.HandoverVote(target, v, &ack); err != nil {
				n.logger.WithError(err).WithField("target", target).Debug("Sending handover vote")
			}
		})
	}
}

func (n *Node) broadcastDecision(d *net.HandoverDecision) {
	for _, target := range n.memberTargets() {
		target := target
		n.goFunc(func() {
			var ack net.VoteAck
			if err := n.trans.HandoverDecision(target, d, &ack); err != nil {
				n.logger.WithError(err).WithField("target", target).Debug("Sending handover decision")
			}
		})
	}
}

//GetStats returns stats
func (n *Node) GetStats() map[string]string {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	s := map[string]string{
		"state":   n.getState().String(),
		"moniker": n.validator.Moniker,
		"name":    n.validator.Name().String(),
	}

	if n.membership != nil {
		s["prefix"] = n.prefix.String()
		s["members"] = strconv.Itoa(n.stable.Len())
		s["elders"] = strconv.Itoa(n.membership.Cohort().Size())
		s["is_elder"] = strconv.FormatBool(n.keyStore.IsElder())
		s["saps"] = strconv.Itoa(n.store.SapCount())
		s["handover_state"] = n.handover.State().String()
		s["wallet_balance"] = strconv.FormatUint(n.wallet.Balance(), 10)
	}

	return s
}

//Name returns the node's section name
func (n *Node) Name() xor.Name {
	return n.validator.Name()
}

//Prefix returns the node's current section prefix
func (n *Node) Prefix() xor.Prefix {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.prefix
}

//GetMembers returns the confirmed members of the section
func (n *Node) GetMembers() []stableset.Member {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.stable.Members()
}

//GetCohort returns the sitting elder cohort
func (n *Node) GetCohort() []stableset.Member {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	if n.membership == nil {
		return nil
	}
	return n.membership.Cohort().Members
}

//GetLastSap returns the current section authority proof from the store
func (n *Node) GetLastSap() (*section.Sap, error) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.store.LastSap()
}

//GetWallet returns the section wallet manager
func (n *Node) GetWallet() *wallet.Manager {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.wallet
}
