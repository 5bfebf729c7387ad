// Package node wraps a consensus engine with the runtime surface a host
// process serves: state queries, health, raw message intake and the
// start/stop controls.
package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/meta-node-blockchain/benor/pkg/binaryagreement"
	"github.com/meta-node-blockchain/benor/pkg/common"
	"github.com/meta-node-blockchain/benor/pkg/core"
	"github.com/meta-node-blockchain/benor/pkg/logger"
	"github.com/meta-node-blockchain/benor/pkg/loggerfile"
	t_network "github.com/meta-node-blockchain/benor/types/network"
)

type Health int

const (
	Live Health = iota
	Faulty
)

func (h Health) String() string {
	if h == Faulty {
		return "faulty"
	}
	return "live"
}

type Option func(*Node)

func WithObserver(o binaryagreement.Observer) Option {
	return func(n *Node) { n.engineOpts = append(n.engineOpts, binaryagreement.WithObserver(o)) }
}

// WithTraceLog mirrors engine progress into fl; the node closes it on Stop.
func WithTraceLog(fl *loggerfile.FileLogger) Option {
	return func(n *Node) {
		n.trace = fl
		n.engineOpts = append(n.engineOpts, binaryagreement.WithTraceLog(fl))
	}
}

// WithReady marks the node ready from construction, for transports with
// no discovery step.
func WithReady() Option {
	return func(n *Node) { n.ready.Store(true) }
}

var _ core.Module = (*Node)(nil)

// Node is the runtime around one engine.
type Node struct {
	engine     *binaryagreement.Engine
	ready      atomic.Bool
	trace      *loggerfile.FileLogger
	engineOpts []binaryagreement.Option
}

func New(cfg binaryagreement.Config, channel binaryagreement.Channel, opts ...Option) (*Node, error) {
	n := &Node{}
	for _, opt := range opts {
		opt(n)
	}
	n.engineOpts = append(n.engineOpts, binaryagreement.WithReadiness(n.ready.Load))

	engine, err := binaryagreement.NewEngine(cfg, channel, n.engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create node %d: %w", cfg.NodeID, err)
	}
	n.engine = engine
	return n, nil
}

func (n *Node) ID() int { return n.engine.ID() }

func (n *Node) Engine() *binaryagreement.Engine { return n.engine }

// SetReady records that every peer is reachable. Start fails with
// ErrNotReady until then.
func (n *Node) SetReady(ready bool) {
	n.ready.Store(ready)
	if ready {
		logger.Debug("Node %d sees every peer", n.ID())
	}
}

func (n *Node) Ready() bool { return n.ready.Load() }

func (n *Node) Start() error { return n.engine.Start() }

func (n *Node) Stop() {
	n.engine.Stop()
	n.trace.Close()
}

func (n *Node) Deliver(msg binaryagreement.Message) bool { return n.engine.Deliver(msg) }

// DeliverMessage decodes a transport payload and hands it to the engine.
// Only decoding failures are reported; a well formed message the engine
// drops is still a nil error.
func (n *Node) DeliverMessage(raw []byte, contentType string) error {
	codec, ok := binaryagreement.CodecForContentType(contentType)
	if !ok {
		return fmt.Errorf("%w: unsupported content type %q", binaryagreement.ErrMalformedMessage, contentType)
	}
	msg, err := codec.Unmarshal(raw)
	if err != nil {
		return err
	}
	if err := msg.Validate(n.engine.Config().NumNodes); err != nil {
		return err
	}
	n.engine.Deliver(msg)
	return nil
}

func (n *Node) GetState() binaryagreement.NodeState { return n.engine.Snapshot() }

func (n *Node) HealthCheck() Health {
	if n.engine.Config().Faulty {
		return Faulty
	}
	return Live
}

func (n *Node) CommandHandlers() map[string]func(t_network.Request) error {
	return map[string]func(t_network.Request) error{
		common.CmdStatus:   n.handleStatus,
		common.CmdGetState: n.handleGetState,
		common.CmdMessage:  n.handleMessage,
		common.CmdStart:    n.handleStart,
		common.CmdStop:     n.handleStop,
	}
}

func replyText(r t_network.Request, status int, text string) error {
	return r.Reply(status, common.ContentTypeText, []byte(text))
}

func (n *Node) handleStatus(r t_network.Request) error {
	h := n.HealthCheck()
	if h == Faulty {
		return replyText(r, http.StatusInternalServerError, h.String())
	}
	return replyText(r, http.StatusOK, h.String())
}

func (n *Node) handleGetState(r t_network.Request) error {
	body, err := json.Marshal(n.GetState())
	if err != nil {
		return err
	}
	return r.Reply(http.StatusOK, common.ContentTypeJSON, body)
}

func (n *Node) handleMessage(r t_network.Request) error {
	if n.GetState().Killed {
		return binaryagreement.ErrStopped
	}
	// Malformed payloads are dropped without telling the sender.
	if err := n.DeliverMessage(r.Body(), r.ContentType()); err != nil {
		logger.Debug("Node %d dropped message: %v", n.ID(), err)
	}
	return replyText(r, http.StatusOK, "Message received")
}

func (n *Node) handleStart(r t_network.Request) error {
	err := n.Start()
	switch {
	case err == nil:
		return replyText(r, http.StatusOK, "Consensus started")
	case errors.Is(err, binaryagreement.ErrAlreadyDecided):
		return replyText(r, http.StatusOK, "Consensus already decided")
	case errors.Is(err, binaryagreement.ErrAlreadyRunning):
		return replyText(r, http.StatusOK, "Consensus already running")
	case errors.Is(err, binaryagreement.ErrExceededRoundCap):
		return replyText(r, http.StatusOK, "Consensus halted at round cap")
	}
	return err
}

func (n *Node) handleStop(r t_network.Request) error {
	n.Stop()
	return replyText(r, http.StatusOK, "Consensus stopped")
}
