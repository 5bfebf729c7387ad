package binaryagreement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memNet hands messages straight to the target engine.
type memNet struct {
	mu      sync.RWMutex
	engines map[int]*Engine
}

func (n *memNet) Send(_ context.Context, target int, msg Message) error {
	n.mu.RLock()
	e := n.engines[target]
	n.mu.RUnlock()
	if e == nil {
		return ErrPeerUnreachable
	}
	e.Deliver(msg)
	return nil
}

type nopChannel struct{}

func (nopChannel) Send(context.Context, int, Message) error { return ErrPeerUnreachable }

type reportLog struct {
	mu      sync.Mutex
	reports []RoundReport
}

func (l *reportLog) ObserveRound(r RoundReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, r)
}

func (l *reportLog) all() []RoundReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]RoundReport(nil), l.reports...)
}

// newNet builds one engine per value. A nil entry in faulty marks nothing.
func newNet(t *testing.T, numFaulty int, values []Value, faulty map[int]bool, coin Coin, obs Observer) []*Engine {
	t.Helper()
	net := &memNet{engines: make(map[int]*Engine)}
	engines := make([]*Engine, len(values))
	for id, v := range values {
		cfg := Config{
			NodeID:       id,
			NumNodes:     len(values),
			NumFaulty:    numFaulty,
			InitialValue: v,
			Faulty:       faulty[id],
			PhaseWait:    60 * time.Millisecond,
			Backoff:      time.Millisecond,
			Coin:         coin,
		}
		var opts []Option
		if obs != nil {
			opts = append(opts, WithObserver(obs))
		}
		e, err := NewEngine(cfg, net, opts...)
		require.NoError(t, err)
		engines[id] = e
		net.engines[id] = e
	}
	t.Cleanup(func() {
		for _, e := range engines {
			e.Stop()
		}
	})
	return engines
}

func startAll(t *testing.T, engines []*Engine) {
	t.Helper()
	for _, e := range engines {
		if e.Config().Faulty {
			continue
		}
		require.NoError(t, e.Start())
	}
}

func waitDone(t *testing.T, e *Engine, timeout time.Duration) {
	t.Helper()
	select {
	case <-e.Done():
	case <-time.After(timeout):
		t.Fatalf("node %d did not finish within %v", e.ID(), timeout)
	}
}

func TestConfigValidate(t *testing.T) {
	base := Config{NodeID: 0, NumNodes: 4, NumFaulty: 1, InitialValue: One, PhaseWait: time.Millisecond}
	assert.NoError(t, base.Validate())

	bad := base
	bad.NumFaulty = 4
	assert.Error(t, bad.Validate())

	bad = base
	bad.NodeID = 4
	assert.Error(t, bad.Validate())

	bad = base
	bad.InitialValue = Unknown
	assert.Error(t, bad.Validate())

	bad = base
	bad.Backoff = -time.Second
	assert.Error(t, bad.Validate())
}

func TestNewEngineDefaults(t *testing.T) {
	e, err := NewEngine(Config{NodeID: 1, NumNodes: 3, InitialValue: Zero}, nopChannel{})
	require.NoError(t, err)

	cfg := e.Config()
	assert.Equal(t, uint64(DefaultRoundCap), cfg.RoundCap)
	assert.Equal(t, DefaultPhaseWait, cfg.PhaseWait)
	assert.NotNil(t, cfg.Coin)
	assert.Equal(t, StateIdle, e.State())

	_, err = NewEngine(Config{NodeID: 0, NumNodes: 3, InitialValue: Zero}, nil)
	assert.Error(t, err)
}

func TestSnapshotIdle(t *testing.T) {
	e, err := NewEngine(Config{NodeID: 0, NumNodes: 3, InitialValue: One}, nopChannel{})
	require.NoError(t, err)

	s := e.Snapshot()
	assert.False(t, s.Killed)
	require.NotNil(t, s.X)
	assert.Equal(t, One, *s.X)
	assert.False(t, *s.Decided)
	assert.Equal(t, uint64(0), *s.K)
}

func TestUnanimousProposalsDecideInFirstRound(t *testing.T) {
	engines := newNet(t, 0, []Value{Zero, Zero, Zero}, nil, HashCoin, nil)
	startAll(t, engines)

	for _, e := range engines {
		waitDone(t, e, 2*time.Second)
		v, ok := e.Decision()
		require.True(t, ok)
		assert.Equal(t, Zero, v)
		assert.Equal(t, uint64(1), e.Round())
		assert.Equal(t, StateDecided, e.State())
	}
}

func TestMajorityProposalWins(t *testing.T) {
	engines := newNet(t, 0, []Value{Zero, One, One}, nil, HashCoin, nil)
	startAll(t, engines)

	for _, e := range engines {
		waitDone(t, e, 2*time.Second)
		v, ok := e.Decision()
		require.True(t, ok)
		assert.Equal(t, One, v)
	}
}

func TestDecidesWithOneDeadPeer(t *testing.T) {
	log := &reportLog{}
	engines := newNet(t, 1, []Value{Zero, One, One, One}, map[int]bool{3: true}, HashCoin, log)
	startAll(t, engines)

	for _, e := range engines[:3] {
		waitDone(t, e, 2*time.Second)
		v, ok := e.Decision()
		require.True(t, ok)
		assert.Equal(t, One, v)
	}
	_, ok := engines[3].Decision()
	assert.False(t, ok)

	var decided int
	for _, r := range log.all() {
		if r.Decided {
			decided++
			assert.Equal(t, uint64(1), r.Round)
			assert.Equal(t, 2, r.Proposals.One)
			assert.Equal(t, 3, r.Votes.One)
		}
	}
	assert.Equal(t, 3, decided)
}

func TestSplitResolvedByCommonCoin(t *testing.T) {
	engines := newNet(t, 0, []Value{Zero, One}, nil, CommonCoin, nil)
	startAll(t, engines)

	waitDone(t, engines[0], 5*time.Second)
	waitDone(t, engines[1], 5*time.Second)

	v0, ok0 := engines[0].Decision()
	v1, ok1 := engines[1].Decision()
	require.True(t, ok0)
	require.True(t, ok1)
	assert.Equal(t, v0, v1)
	assert.Greater(t, engines[0].Round(), uint64(1))
}

func TestStartTransitions(t *testing.T) {
	e, err := NewEngine(Config{NodeID: 0, NumNodes: 1, InitialValue: One, PhaseWait: 5 * time.Millisecond}, nopChannel{})
	require.NoError(t, err)

	require.NoError(t, e.Start())
	assert.ErrorIs(t, e.Start(), ErrAlreadyRunning)

	waitDone(t, e, time.Second)
	v, ok := e.Decision()
	require.True(t, ok)
	assert.Equal(t, One, v)
	assert.ErrorIs(t, e.Start(), ErrAlreadyDecided)

	e.Stop()
	assert.Equal(t, StateStopped, e.State())
	assert.ErrorIs(t, e.Start(), ErrStopped)

	s := e.Snapshot()
	assert.True(t, s.Killed)
	assert.True(t, *s.Decided)
	assert.Equal(t, One, *s.X)
}

func TestStartNotReady(t *testing.T) {
	ready := false
	e, err := NewEngine(Config{NodeID: 0, NumNodes: 3, InitialValue: Zero}, nopChannel{},
		WithReadiness(func() bool { return ready }))
	require.NoError(t, err)

	assert.ErrorIs(t, e.Start(), ErrNotReady)
	assert.Equal(t, StateIdle, e.State())

	ready = true
	assert.NoError(t, e.Start())
	e.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	e, err := NewEngine(Config{NodeID: 0, NumNodes: 3, InitialValue: Zero}, nopChannel{})
	require.NoError(t, err)

	e.Stop()
	e.Stop()
	waitDone(t, e, time.Second)
	assert.True(t, e.Snapshot().Killed)
	assert.ErrorIs(t, e.Start(), ErrStopped)
	assert.False(t, e.Deliver(NewProposal(1, 1, One)))
}

func TestStopInterruptsPhaseWait(t *testing.T) {
	e, err := NewEngine(Config{NodeID: 0, NumNodes: 3, InitialValue: Zero, PhaseWait: 10 * time.Second}, nopChannel{})
	require.NoError(t, err)
	require.NoError(t, e.Start())

	e.Stop()
	waitDone(t, e, time.Second)
	_, ok := e.Decision()
	assert.False(t, ok)
}

func TestDeliverFiltersMessages(t *testing.T) {
	e, err := NewEngine(Config{NodeID: 0, NumNodes: 3, InitialValue: Zero, PhaseWait: 10 * time.Second}, nopChannel{})
	require.NoError(t, err)

	// Idle nodes keep early traffic.
	assert.True(t, e.Deliver(NewProposal(1, 1, One)))

	require.NoError(t, e.Start())
	defer e.Stop()

	assert.False(t, e.Deliver(NewProposal(1, 0, One)), "stale round")
	assert.True(t, e.Deliver(NewVote(2, 7, Zero)), "future round")
	assert.False(t, e.Deliver(NewVote(5, 1, Zero)), "unknown sender")
	assert.False(t, e.Deliver(Message{Sender: 1, Round: 1, Phase: Vote, Value: Unknown}))

	assert.Len(t, e.Buffer().Collect(7, Vote), 1)
}

func TestUnknownEstimateWithoutMajority(t *testing.T) {
	log := &reportLog{}
	e, err := NewEngine(Config{
		NodeID:       0,
		NumNodes:     3,
		InitialValue: One,
		PhaseWait:    80 * time.Millisecond,
		Coin:         ParityCoin,
	}, nopChannel{}, WithObserver(log))
	require.NoError(t, err)
	require.NoError(t, e.Start())
	defer e.Stop()

	assert.Eventually(t, func() bool {
		s := e.Snapshot()
		return *s.X == Unknown
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return e.Round() == 2 }, 2*time.Second, 5*time.Millisecond)

	reports := log.all()
	require.NotEmpty(t, reports)
	first := reports[0]
	assert.Equal(t, uint64(1), first.Round)
	assert.False(t, first.Decided)
	assert.Equal(t, One, first.Candidate)
	assert.Equal(t, Tally{One: 1}, first.Votes)
	assert.Equal(t, ParityCoin.Flip(1, 0), first.Value)
}

func TestHaltOnRoundCap(t *testing.T) {
	log := &reportLog{}
	e, err := NewEngine(Config{
		NodeID:         0,
		NumNodes:       3,
		InitialValue:   Zero,
		PhaseWait:      2 * time.Millisecond,
		RoundCap:       2,
		HaltOnRoundCap: true,
	}, nopChannel{}, WithObserver(log))
	require.NoError(t, err)
	require.NoError(t, e.Start())
	defer e.Stop()

	waitDone(t, e, 2*time.Second)
	reports := log.all()
	require.Len(t, reports, 3)
	assert.ErrorIs(t, reports[2].Err, ErrExceededRoundCap)
	assert.Equal(t, uint64(3), reports[2].Round)
	_, ok := e.Decision()
	assert.False(t, ok)

	assert.Equal(t, StateHalted, e.State())
	assert.True(t, e.State().Terminal())
	assert.ErrorIs(t, e.Start(), ErrExceededRoundCap)
	assert.False(t, e.Deliver(NewProposal(1, 3, One)))
	s := e.Snapshot()
	assert.False(t, s.Killed)
	assert.False(t, *s.Decided)

	e.Stop()
	assert.Equal(t, StateStopped, e.State())
}

func TestFaultyEngine(t *testing.T) {
	e, err := NewEngine(Config{NodeID: 2, NumNodes: 3, InitialValue: One, Faulty: true}, nopChannel{})
	require.NoError(t, err)

	assert.ErrorIs(t, e.Start(), ErrFaulty)
	assert.False(t, e.Deliver(NewProposal(0, 1, One)))
	assert.Equal(t, 0, e.Buffer().Len())

	s := e.Snapshot()
	assert.False(t, s.Killed)
	assert.Nil(t, s.X)
	assert.Nil(t, s.Decided)
	assert.Nil(t, s.K)

	e.Stop()
	assert.True(t, e.Snapshot().Killed)
}
