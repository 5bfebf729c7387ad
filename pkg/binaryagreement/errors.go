package binaryagreement

import "errors"

var (
	// ErrNotReady is returned by Start while not every peer is reachable.
	ErrNotReady = errors.New("peers are not ready")
	// ErrAlreadyDecided is returned by Start once a value was decided.
	ErrAlreadyDecided = errors.New("consensus already decided")
	ErrAlreadyRunning = errors.New("consensus already running")
	ErrStopped        = errors.New("node is stopped")
	ErrFaulty         = errors.New("node is faulty")

	// ErrMalformedMessage marks a message that fails validation. It is
	// dropped at the receiver and never reaches the round loop.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrPeerUnreachable is returned by a Channel that could not hand a
	// message to its target. The engine swallows it.
	ErrPeerUnreachable = errors.New("peer unreachable")
	// ErrExceededRoundCap is reported to observers when the round cap is
	// passed without a decision. It is a liveness warning only.
	ErrExceededRoundCap = errors.New("exceeded round cap")
)
