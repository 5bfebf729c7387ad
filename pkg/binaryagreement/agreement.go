package binaryagreement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meta-node-blockchain/benor/pkg/logger"
	"github.com/meta-node-blockchain/benor/pkg/loggerfile"
)

const (
	DefaultRoundCap  = 50
	DefaultPhaseWait = 200 * time.Millisecond
	DefaultBackoff   = 10 * time.Millisecond
)

// Config is fixed at construction.
type Config struct {
	NodeID       int
	NumNodes     int
	NumFaulty    int
	InitialValue Value
	// Faulty nodes never send and discard every delivery.
	Faulty bool
	// PhaseWait is how long the engine collects messages after each
	// broadcast. The wait is never cut short by an early quorum.
	PhaseWait time.Duration
	// Backoff is the pause between an undecided round and the next one.
	Backoff  time.Duration
	RoundCap uint64
	// HaltOnRoundCap ends the round loop once the cap is passed instead
	// of only warning.
	HaltOnRoundCap bool
	Coin           Coin
}

func (c Config) Validate() error {
	if c.NumNodes < 1 {
		return fmt.Errorf("num nodes must be positive, got %d", c.NumNodes)
	}
	if c.NumFaulty < 0 || c.NumFaulty >= c.NumNodes {
		return fmt.Errorf("num faulty must be in [0,%d), got %d", c.NumNodes, c.NumFaulty)
	}
	if c.NodeID < 0 || c.NodeID >= c.NumNodes {
		return fmt.Errorf("node id %d outside [0,%d)", c.NodeID, c.NumNodes)
	}
	if !c.InitialValue.IsBinary() {
		return fmt.Errorf("initial value must be 0 or 1, got %d", c.InitialValue)
	}
	if c.PhaseWait <= 0 {
		return fmt.Errorf("phase wait must be positive, got %v", c.PhaseWait)
	}
	if c.Backoff < 0 {
		return fmt.Errorf("backoff must not be negative, got %v", c.Backoff)
	}
	return nil
}

type Option func(*Engine)

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithReadiness sets the predicate Start consults before leaving Idle.
func WithReadiness(ready func() bool) Option {
	return func(e *Engine) {
		if ready != nil {
			e.ready = ready
		}
	}
}

// WithTraceLog mirrors round progress into a per-node file.
func WithTraceLog(fl *loggerfile.FileLogger) Option {
	return func(e *Engine) { e.trace = fl }
}

// Engine runs the Ben-Or round loop for one node. All state below mu is
// written only by the round goroutine, except killed/state which Stop
// also sets.
type Engine struct {
	cfg      Config
	channel  Channel
	peers    []int
	buffer   *RoundBuffer
	observer Observer
	ready    func() bool
	trace    *loggerfile.FileLogger

	mu      sync.RWMutex
	state   State
	killed  bool
	x       Value
	decided bool
	k       uint64
	cancel  context.CancelFunc
	warned  bool

	done     chan struct{}
	doneOnce sync.Once
}

func NewEngine(cfg Config, channel Channel, opts ...Option) (*Engine, error) {
	if cfg.Coin == nil {
		cfg.Coin = HashCoin
	}
	if cfg.RoundCap == 0 {
		cfg.RoundCap = DefaultRoundCap
	}
	if cfg.PhaseWait == 0 {
		cfg.PhaseWait = DefaultPhaseWait
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if channel == nil {
		return nil, errors.New("invalid engine config: nil channel")
	}

	peers := make([]int, 0, cfg.NumNodes-1)
	for id := 0; id < cfg.NumNodes; id++ {
		if id != cfg.NodeID {
			peers = append(peers, id)
		}
	}

	e := &Engine{
		cfg:     cfg,
		channel: channel,
		peers:   peers,
		buffer:  NewRoundBuffer(),
		ready:   func() bool { return true },
		state:   StateIdle,
		x:       cfg.InitialValue,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if cfg.Faulty {
		e.buffer.Close()
	}
	return e, nil
}

// Start leaves Idle and launches the round loop without blocking.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.Faulty {
		return ErrFaulty
	}
	switch e.state {
	case StateDecided:
		return ErrAlreadyDecided
	case StateRunning:
		return ErrAlreadyRunning
	case StateStopped:
		return ErrStopped
	case StateHalted:
		return ErrExceededRoundCap
	}
	if !e.ready() {
		return ErrNotReady
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.state = StateRunning
	e.k = 1

	logger.Info("Node %d starting consensus with value %s (N=%d, F=%d)", e.cfg.NodeID, e.x, e.cfg.NumNodes, e.cfg.NumFaulty)
	e.trace.Info("start x=%s N=%d F=%d", e.x, e.cfg.NumNodes, e.cfg.NumFaulty)
	go e.run(ctx)
	return nil
}

// Stop kills the node. It never fails and may be called repeatedly. The
// loop exits at its next checkpoint; sends already in flight complete.
func (e *Engine) Stop() {
	e.mu.Lock()
	wasKilled := e.killed
	e.killed = true
	e.state = StateStopped
	cancel := e.cancel
	e.mu.Unlock()

	e.buffer.Close()
	if cancel != nil {
		cancel()
	} else {
		e.closeDone()
	}
	if !wasKilled {
		logger.Info("Node %d stopping", e.cfg.NodeID)
		e.trace.Info("stop")
	}
}

// Deliver buffers an inbound message. It reports whether the message was
// kept; malformed, stale or post-kill messages are dropped silently.
func (e *Engine) Deliver(msg Message) bool {
	if e.cfg.Faulty {
		return false
	}
	if err := msg.Validate(e.cfg.NumNodes); err != nil {
		logger.Debug("Node %d dropping message: %v", e.cfg.NodeID, err)
		return false
	}

	e.mu.RLock()
	killed, state, k := e.killed, e.state, e.k
	e.mu.RUnlock()

	if killed || state == StateDecided || state == StateHalted {
		return false
	}
	if msg.Round < k {
		logger.Trace("Node %d dropping stale %s (current round %d)", e.cfg.NodeID, msg, k)
		return false
	}
	return e.buffer.Record(msg)
}

func (e *Engine) run(ctx context.Context) {
	defer e.closeDone()

	for {
		k, x, ok := e.roundStart()
		if !ok {
			return
		}

		var capErr error
		if k > e.cfg.RoundCap {
			capErr = ErrExceededRoundCap
			e.warnRoundCap(k)
			if e.cfg.HaltOnRoundCap {
				e.halt(k)
				e.observe(RoundReport{NodeID: e.cfg.NodeID, Round: k, Value: x, Err: capErr})
				return
			}
		}

		// Propose phase.
		e.broadcast(ctx, NewProposal(e.cfg.NodeID, k, x))
		if !sleep(ctx, e.cfg.PhaseWait) {
			return
		}

		proposals := CountValues(e.buffer.Collect(k, Propose))
		candidate, formed := proposalCandidate(proposals, e.cfg.NumNodes, e.cfg.NumFaulty)
		fromCoin := false
		if !formed {
			if x.IsBinary() {
				candidate = x
			} else {
				candidate = e.cfg.Coin.Flip(k, e.cfg.NodeID)
				fromCoin = true
			}
			e.markUnknown(k)
		}
		e.trace.Info("round %d proposals %s candidate %s", k, proposals, candidate)

		// Vote phase.
		e.broadcast(ctx, NewVote(e.cfg.NodeID, k, candidate))
		if !sleep(ctx, e.cfg.PhaseWait) {
			return
		}

		votes := CountValues(e.buffer.Collect(k, Vote))
		report := RoundReport{
			NodeID:            e.cfg.NodeID,
			Round:             k,
			Proposals:         proposals,
			Votes:             votes,
			Candidate:         candidate,
			CandidateFromCoin: fromCoin,
			Err:               capErr,
		}
		e.trace.Info("round %d votes %s", k, votes)

		if v, ok := voteDecision(votes, e.cfg.NumNodes); ok {
			if e.decide(k, v) {
				report.Decided = true
				report.Value = v
				e.observe(report)
			}
			return
		}

		next := e.cfg.Coin.Flip(k, e.cfg.NodeID)
		if !e.advance(k, next) {
			return
		}
		report.Value = next
		e.observe(report)

		if !sleep(ctx, e.cfg.Backoff) {
			return
		}
	}
}

func (e *Engine) roundStart() (uint64, Value, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.killed || e.state != StateRunning {
		return 0, Unknown, false
	}
	return e.k, e.x, true
}

func (e *Engine) active() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.killed && e.state == StateRunning
}

// broadcast records msg locally, then fans it out to every peer. Sends
// are detached from the loop context so Stop does not abort them.
func (e *Engine) broadcast(ctx context.Context, msg Message) {
	if !e.active() {
		return
	}
	e.buffer.Record(msg)

	sendCtx := context.WithoutCancel(ctx)
	for _, peer := range e.peers {
		go func(target int) {
			if err := e.channel.Send(sendCtx, target, msg); err != nil {
				logger.Debug("Node %d: %s to node %d not sent: %v", e.cfg.NodeID, msg.Phase, target, err)
			}
		}(peer)
	}
}

func (e *Engine) markUnknown(k uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning && !e.killed && e.k == k {
		e.x = Unknown
	}
}

func (e *Engine) decide(k uint64, v Value) bool {
	e.mu.Lock()
	if e.state != StateRunning || e.killed {
		e.mu.Unlock()
		return false
	}
	e.x = v
	e.decided = true
	e.state = StateDecided
	e.mu.Unlock()

	logger.Info("🏆 Node %d DECIDED %s at round %d", e.cfg.NodeID, v, k)
	e.trace.Info("round %d decided %s", k, v)
	return true
}

func (e *Engine) advance(k uint64, next Value) bool {
	e.mu.Lock()
	if e.state != StateRunning || e.killed {
		e.mu.Unlock()
		return false
	}
	e.x = next
	e.k = k + 1
	e.mu.Unlock()

	dropped := e.buffer.Prune(k)
	logger.Debug("Node %d advancing to round %d with coin %s (pruned %d messages)", e.cfg.NodeID, k+1, next, dropped)
	e.trace.Info("round %d undecided, coin %s", k, next)
	return true
}

func (e *Engine) halt(k uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning && !e.killed {
		e.state = StateHalted
		e.trace.Info("round %d halted at round cap", k)
	}
}

func (e *Engine) warnRoundCap(k uint64) {
	e.mu.Lock()
	first := !e.warned
	e.warned = true
	e.mu.Unlock()
	if first {
		logger.Warn("Node %d passed round cap %d without deciding (round %d)", e.cfg.NodeID, e.cfg.RoundCap, k)
	}
}

func (e *Engine) observe(r RoundReport) {
	if e.observer != nil {
		e.observer.ObserveRound(r)
	}
}

func (e *Engine) closeDone() {
	e.doneOnce.Do(func() { close(e.done) })
}

// sleep waits d unless ctx ends first; it reports whether to continue.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Engine) ID() int { return e.cfg.NodeID }

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Round is the current round number k.
func (e *Engine) Round() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.k
}

// Decision returns the decided value once there is one.
func (e *Engine) Decision() (Value, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.decided {
		return Unknown, false
	}
	return e.x, true
}

// Done is closed when the round loop has exited, or on Stop if it never
// started.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) Buffer() *RoundBuffer { return e.buffer }

// Snapshot is the getState view. Faulty nodes report only killed.
func (e *Engine) Snapshot() NodeState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.cfg.Faulty {
		return NodeState{Killed: e.killed}
	}
	x, decided, k := e.x, e.decided, e.k
	return NodeState{Killed: e.killed, X: &x, Decided: &decided, K: &k}
}
