package binaryagreement

import "context"

// Channel carries messages to other nodes. Send is best effort: a nil
// error does not promise delivery, and the engine never waits for or
// retries a failed send.
type Channel interface {
	Send(ctx context.Context, target int, msg Message) error
}

// Observer receives one report per finished round.
type Observer interface {
	ObserveRound(report RoundReport)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(RoundReport)

func (f ObserverFunc) ObserveRound(r RoundReport) { f(r) }

// RoundReport describes what a node saw and did in one round.
type RoundReport struct {
	NodeID    int
	Round     uint64
	Proposals Tally
	Votes     Tally
	Candidate Value
	// CandidateFromCoin is set when no proposal majority formed and the
	// node's estimate was unknown.
	CandidateFromCoin bool
	Decided           bool
	// Value is the decided value, or the coin adopted for the next round.
	Value Value
	// Err carries ErrExceededRoundCap when the round passed the cap.
	Err error
}
