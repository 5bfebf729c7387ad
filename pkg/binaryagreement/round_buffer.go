package binaryagreement

import "sync"

// RoundBuffer stores received messages keyed by round, then phase.
// Messages for future rounds are kept until that round is reached.
// Once closed it silently refuses new messages.
type RoundBuffer struct {
	mu     sync.RWMutex
	rounds map[uint64]map[Phase][]Message
	size   int
	closed bool
}

func NewRoundBuffer() *RoundBuffer {
	return &RoundBuffer{rounds: make(map[uint64]map[Phase][]Message)}
}

// Record appends msg and reports whether it was kept.
func (rb *RoundBuffer) Record(msg Message) bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if rb.closed {
		return false
	}
	phases, ok := rb.rounds[msg.Round]
	if !ok {
		phases = make(map[Phase][]Message, 2)
		rb.rounds[msg.Round] = phases
	}
	phases[msg.Phase] = append(phases[msg.Phase], msg)
	rb.size++
	return true
}

// Collect returns a copy of the messages for (round, phase) in arrival order.
func (rb *RoundBuffer) Collect(round uint64, phase Phase) []Message {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	msgs := rb.rounds[round][phase]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// Prune drops every round below minRound and returns how many messages
// were discarded.
func (rb *RoundBuffer) Prune(minRound uint64) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	dropped := 0
	for round, phases := range rb.rounds {
		if round >= minRound {
			continue
		}
		for _, msgs := range phases {
			dropped += len(msgs)
		}
		delete(rb.rounds, round)
	}
	rb.size -= dropped
	return dropped
}

// Len is the number of buffered messages.
func (rb *RoundBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}

// Rounds is the number of distinct rounds with buffered messages.
func (rb *RoundBuffer) Rounds() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.rounds)
}

// Close makes every later Record a no-op.
func (rb *RoundBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.closed = true
}
