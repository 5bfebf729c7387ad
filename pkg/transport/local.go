// Package transport holds the in-process network used by simulations.
package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/meta-node-blockchain/benor/pkg/binaryagreement"
)

// Receiver is anything that accepts delivered messages, usually a node.
type Receiver interface {
	Deliver(msg binaryagreement.Message) bool
}

type Option func(*LocalNetwork)

// WithDropRate drops each message with probability p.
func WithDropRate(p float64) Option {
	return func(n *LocalNetwork) { n.dropRate = p }
}

// WithMaxLatency delays each message by a random duration in [0, d].
func WithMaxLatency(d time.Duration) Option {
	return func(n *LocalNetwork) { n.maxLatency = d }
}

func WithSeed(seed int64) Option {
	return func(n *LocalNetwork) { n.rng = rand.New(rand.NewSource(seed)) }
}

// LocalNetwork routes messages between nodes of one process.
type LocalNetwork struct {
	mu    sync.RWMutex
	nodes map[int]Receiver
	down  map[int]bool

	dropRate   float64
	maxLatency time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewLocalNetwork(opts ...Option) *LocalNetwork {
	n := &LocalNetwork{
		nodes: make(map[int]Receiver),
		down:  make(map[int]bool),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *LocalNetwork) Register(id int, r Receiver) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nodes[id] = r
}

// Disconnect cuts a node off in both directions.
func (n *LocalNetwork) Disconnect(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[id] = true
}

func (n *LocalNetwork) Reconnect(id int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.down, id)
}

// Reachable reports whether id is registered and connected.
func (n *LocalNetwork) Reachable(id int) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.nodes[id]
	return ok && !n.down[id]
}

// Registered is the number of registered nodes.
func (n *LocalNetwork) Registered() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.nodes)
}

// Transport returns the sending side for one node.
func (n *LocalNetwork) Transport(nodeID int) *LocalTransport {
	return &LocalTransport{nodeID: nodeID, network: n}
}

func (n *LocalNetwork) route(from, to int) (Receiver, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.down[from] {
		return nil, fmt.Errorf("%w: node %d is disconnected", binaryagreement.ErrPeerUnreachable, from)
	}
	r, ok := n.nodes[to]
	if !ok || n.down[to] {
		return nil, fmt.Errorf("%w: node %d", binaryagreement.ErrPeerUnreachable, to)
	}
	return r, nil
}

// sample returns whether to drop the message and how long to delay it.
func (n *LocalNetwork) sample() (bool, time.Duration) {
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	if n.dropRate > 0 && n.rng.Float64() < n.dropRate {
		return true, 0
	}
	if n.maxLatency <= 0 {
		return false, 0
	}
	return false, time.Duration(n.rng.Int63n(int64(n.maxLatency) + 1))
}

// LocalTransport implements binaryagreement.Channel over a LocalNetwork.
type LocalTransport struct {
	nodeID  int
	network *LocalNetwork
}

func (lt *LocalTransport) ID() int {
	return lt.nodeID
}

// Send blocks for the sampled latency, then hands msg to the target.
func (lt *LocalTransport) Send(ctx context.Context, target int, msg binaryagreement.Message) error {
	if _, err := lt.network.route(lt.nodeID, target); err != nil {
		return err
	}
	drop, delay := lt.network.sample()
	if drop {
		return fmt.Errorf("%w: message to node %d dropped", binaryagreement.ErrPeerUnreachable, target)
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	// The link may have gone down while the message was in flight.
	r, err := lt.network.route(lt.nodeID, target)
	if err != nil {
		return err
	}
	r.Deliver(msg)
	return nil
}
