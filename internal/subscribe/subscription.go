package subscribe

import (
	"sync"

	"github.com/leapstack-labs/livegate/internal/paginate"
)

// State of a subscription's recomputation lifecycle.
type State string

const (
	// StateIdle means the subscription is waiting for an advance.
	StateIdle State = "idle"
	// StateRecomputing means a recomputation is in flight.
	StateRecomputing State = "recomputing"
	// StateClosed is terminal.
	StateClosed State = "closed"
)

// Subscription is one registered live query on a client channel.
type Subscription struct {
	id      string
	channel *Channel
	request paginate.Request

	mu sync.Mutex
	// fingerprint of the last pushed result; pushes are suppressed
	// while it is unchanged.
	fingerprint uint64
	state       State
	// pending latches an advance that arrived mid-recomputation so
	// the worker loops exactly once more.
	pending bool
	seq     uint64
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// ClientID returns the owning client's identifier.
func (s *Subscription) ClientID() string {
	return s.channel.clientID
}

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// markDirty requests a recomputation for the given dataset sequence.
// It reports whether the caller should start a worker; if one is
// already in flight the advance is latched instead.
func (s *Subscription) markDirty(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return false
	}
	s.seq = seq
	if s.state == StateRecomputing {
		s.pending = true
		return false
	}
	s.state = StateRecomputing
	return true
}

// settle is called by the worker after one recomputation pass. It
// reports whether a latched advance requires another pass.
func (s *Subscription) settle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return false
	}
	if s.pending {
		s.pending = false
		return true
	}
	s.state = StateIdle
	return false
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.state = StateClosed
	s.pending = false
	s.mu.Unlock()
}

// swapFingerprint records the latest result fingerprint and reports
// whether it differs from the previous one.
func (s *Subscription) swapFingerprint(fp uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fingerprint == fp {
		return false
	}
	s.fingerprint = fp
	return true
}

func (s *Subscription) currentSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
