package wallet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"github.com/stablemesh/stablemesh/src/section"
	"github.com/stablemesh/stablemesh/src/xor"
)

const (
	retryBase = 500 * time.Millisecond
	retryCap  = 10 * time.Second
)

var (
	// ErrWorkNotMonotonic is returned when a work counter would move
	// backwards.
	ErrWorkNotMonotonic = errors.New("work counters are strictly increasing")

	// ErrMalformedCandidate ...
	ErrMalformedCandidate = errors.New("handover candidate carries no successor sap")
)

// Manager tracks the section's escrow balance and per-member work counters,
// and turns handover decisions into ledger transfers. It is owned by the
// coordinator; one Manager instance exists per installed cohort.
type Manager struct {
	escrowKey  []byte
	balance    uint64
	work       map[xor.Name]uint64
	settled    bool
	maxElapsed time.Duration

	logger *logrus.Entry
}

// NewManager opens the wallet of a freshly installed cohort.
func NewManager(escrowKey []byte, maxElapsed time.Duration, logger *logrus.Entry) *Manager {
	return &Manager{
		escrowKey:  escrowKey,
		work:       make(map[xor.Name]uint64),
		maxElapsed: maxElapsed,
		logger:     logger,
	}
}

// EscrowKey ...
func (m *Manager) EscrowKey() []byte {
	return m.escrowKey
}

// Balance ...
func (m *Manager) Balance() uint64 {
	return m.balance
}

// Settled reports whether the wallet's balance has been moved to a successor.
func (m *Manager) Settled() bool {
	return m.settled
}

// Deposit credits the escrow balance. Driven by evidence crossing the section
// boundary, and by incoming transfers from a predecessor cohort.
func (m *Manager) Deposit(amount uint64) {
	m.balance += amount
}

// RecordWork advances a member's work counter to the given value. Counters
// are opaque and strictly increasing.
func (m *Manager) RecordWork(name xor.Name, counter uint64) error {
	if counter <= m.work[name] {
		return ErrWorkNotMonotonic
	}
	m.work[name] = counter
	return nil
}

// WorkOf ...
func (m *Manager) WorkOf(name xor.Name) uint64 {
	return m.work[name]
}

// Work returns a copy of the work counters.
func (m *Manager) Work() map[xor.Name]uint64 {
	out := make(map[xor.Name]uint64, len(m.work))
	for n, c := range m.work {
		out[n] = c
	}
	return out
}

// ApplyIncoming credits a transfer addressed to this wallet's escrow key.
func (m *Manager) ApplyIncoming(t *Transfer) bool {
	if !bytes.Equal(t.To, m.escrowKey) {
		return false
	}
	m.balance += t.Amount
	return true
}

// BuildTransfers constructs the transfer(s) a handover decision implies,
// atomically and deterministically: reinvoking on the same (outgoing sap,
// candidate) yields transfers with identical ids and amounts.
//
// An elder handover moves the full balance to the successor key. A split
// moves ceil(balance/2) and floor(balance/2) to the two successor keys, the
// greater key first.
func (m *Manager) BuildTransfers(outgoingSap *section.Sap, candidate *section.Candidate) ([]*Transfer, error) {
	from := outgoingSap.GroupKey()

	switch candidate.Kind {
	case section.ElderHandover:
		if candidate.Next == nil {
			return nil, ErrMalformedCandidate
		}
		return []*Transfer{NewTransfer(from, candidate.Next.GroupKey(), m.balance)}, nil

	case section.SectionSplit:
		if candidate.Left == nil || candidate.Right == nil {
			return nil, ErrMalformedCandidate
		}

		first, second := candidate.Left.GroupKey(), candidate.Right.GroupKey()
		if bytes.Compare(first, second) < 0 {
			first, second = second, first
		}

		half := m.balance / 2
		return []*Transfer{
			NewTransfer(from, first, m.balance-half),
			NewTransfer(from, second, half),
		}, nil

	default:
		return nil, fmt.Errorf("unknown candidate kind %d", candidate.Kind)
	}
}

// Settle appends the transfers to the ledger, retrying transient failures
// with exponential backoff bounded by the retry budget. A rejection means the
// escrow was already emptied; the wallet is then treated as settled. The
// context is cancelled when the outgoing cohort rotates away, at which point
// the transfer is abandoned.
func (m *Manager) Settle(ctx context.Context, ledger Ledger, transfers []*Transfer) error {
	backoff, err := retry.NewExponential(retryBase)
	if err != nil {
		return err
	}
	backoff = retry.WithCappedDuration(retryCap, backoff)
	backoff = retry.WithMaxDuration(m.maxElapsed, backoff)

	for _, t := range transfers {
		t := t
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := ledger.Append(t); err != nil {
				if errors.Is(err, ErrEscrowEmpty) {
					m.logger.WithField("id", fmt.Sprintf("%x", t.ID[:4])).Warn("Ledger rejected transfer, treating wallet as settled")
					return nil
				}
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	m.settled = true
	return nil
}
