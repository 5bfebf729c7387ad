// Package simulation runs a whole consensus network in one process, on
// either the in-memory transport or real HTTP sockets.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meta-node-blockchain/benor/pkg/binaryagreement"
	"github.com/meta-node-blockchain/benor/pkg/config"
	"github.com/meta-node-blockchain/benor/pkg/journal"
	"github.com/meta-node-blockchain/benor/pkg/logger"
	"github.com/meta-node-blockchain/benor/pkg/loggerfile"
	"github.com/meta-node-blockchain/benor/pkg/network"
	"github.com/meta-node-blockchain/benor/pkg/node"
	"github.com/meta-node-blockchain/benor/pkg/storage"
	"github.com/meta-node-blockchain/benor/pkg/transport"
)

// Cluster owns every node of one run.
type Cluster struct {
	cfg     config.ClusterConfig
	runID   string
	configs []config.NodeConfig
	nodes   []*node.Node

	local   *transport.LocalNetwork
	servers []*network.Server
	addrs   map[int]string

	traceDB storage.Storage
	journal *journal.Journal
	started time.Time
}

// NewCluster builds every node. HTTP clusters also bind their listeners
// here, so a port clash fails construction rather than Start.
func NewCluster(cfg config.ClusterConfig) (c *Cluster, err error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cluster config: %w", err)
	}

	c = &Cluster{
		cfg:     cfg,
		runID:   uuid.NewString(),
		configs: cfg.NodeConfigs(),
		addrs:   make(map[int]string, cfg.NumNodes),
	}
	defer func() {
		if err != nil {
			c.Stop()
		}
	}()

	if cfg.Trace.Type != "" {
		c.traceDB, err = storage.LoadDb(cfg.Trace.Path, cfg.Trace.Type)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace store: %w", err)
		}
		c.journal = journal.New(c.traceDB, c.runID)
	}
	if cfg.LogDir != "" {
		loggerfile.SetGlobalLogDir(cfg.LogDir)
		if err := loggerfile.NewLogCleaner(cfg.LogDir).CleanLogs(); err != nil {
			return nil, err
		}
	}

	switch cfg.Transport {
	case config.TRANSPORT_LOCAL:
		err = c.buildLocal()
	case config.TRANSPORT_HTTP:
		err = c.buildHTTP()
	}
	if err != nil {
		return nil, err
	}
	logger.Info("Cluster %s built: N=%d F=%d transport=%s", c.runID, cfg.NumNodes, cfg.NumFaulty, cfg.Transport)
	return c, nil
}

func (c *Cluster) nodeOptions(id int) ([]node.Option, error) {
	var opts []node.Option
	if c.journal != nil {
		opts = append(opts, node.WithObserver(c.journal))
	}
	if c.cfg.LogDir != "" {
		fl, err := loggerfile.NewFileLogger(loggerfile.NodeLogFile(id))
		if err != nil {
			return nil, err
		}
		opts = append(opts, node.WithTraceLog(fl))
	}
	return opts, nil
}

func (c *Cluster) newNode(nc config.NodeConfig, ch binaryagreement.Channel) (*node.Node, error) {
	engineCfg, err := nc.Engine()
	if err != nil {
		return nil, err
	}
	opts, err := c.nodeOptions(nc.ID)
	if err != nil {
		return nil, err
	}
	return node.New(engineCfg, ch, opts...)
}

func (c *Cluster) buildLocal() error {
	opts := []transport.Option{
		transport.WithDropRate(c.cfg.DropRate),
		transport.WithMaxLatency(c.cfg.MaxLatency.Std()),
	}
	c.local = transport.NewLocalNetwork(opts...)
	for _, nc := range c.configs {
		n, err := c.newNode(nc, c.local.Transport(nc.ID))
		if err != nil {
			return err
		}
		c.nodes = append(c.nodes, n)
		c.local.Register(nc.ID, n)
	}
	return nil
}

func (c *Cluster) buildHTTP() error {
	codec, err := binaryagreement.CodecByName(c.cfg.Codec)
	if err != nil {
		return err
	}
	listeners := make([]net.Listener, 0, len(c.configs))
	for _, nc := range c.configs {
		l, err := net.Listen("tcp", nc.ConnectionAddress)
		if err != nil {
			for _, open := range listeners {
				open.Close()
			}
			return fmt.Errorf("node %d cannot listen on %s: %w", nc.ID, nc.ConnectionAddress, err)
		}
		listeners = append(listeners, l)
		// Port 0 is resolved here, before any peer list is handed out.
		c.addrs[nc.ID] = l.Addr().String()
	}

	limits := map[string]int{}
	if c.cfg.MessageRateLimit > 0 {
		limits["message"] = c.cfg.MessageRateLimit
	}
	for i, nc := range c.configs {
		peers := make(map[int]string, len(c.addrs)-1)
		for id, addr := range c.addrs {
			if id != nc.ID {
				peers[id] = addr
			}
		}
		n, err := c.newNode(nc, network.NewHTTPChannel(peers, codec, 0))
		if err != nil {
			for _, l := range listeners[i:] {
				l.Close()
			}
			return err
		}
		c.nodes = append(c.nodes, n)

		srv := network.NewServer(c.addrs[nc.ID], network.NewHandler(n.CommandHandlers(), limits))
		srv.Serve(listeners[i])
		c.servers = append(c.servers, srv)
	}
	return nil
}

func (c *Cluster) RunID() string { return c.runID }

func (c *Cluster) Journal() *journal.Journal { return c.journal }

func (c *Cluster) Nodes() []*node.Node { return c.nodes }

func (c *Cluster) Node(id int) *node.Node { return c.nodes[id] }

// Addr is the HTTP address of a node, empty on the local transport.
func (c *Cluster) Addr(id int) string { return c.addrs[id] }

// Start waits until every node is reachable, then starts all non-faulty
// nodes concurrently.
func (c *Cluster) Start(ctx context.Context) error {
	if c.local == nil {
		if err := network.WaitForPeers(ctx, c.addrs, 0); err != nil {
			return fmt.Errorf("%w: %v", binaryagreement.ErrNotReady, err)
		}
	}
	for _, n := range c.nodes {
		n.SetReady(true)
	}

	c.started = time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for _, n := range c.nodes {
		if n.HealthCheck() == node.Faulty {
			continue
		}
		n := n
		g.Go(func() error {
			if c.local != nil {
				return n.Start()
			}
			return c.startOverHTTP(ctx, n.ID())
		})
	}
	return g.Wait()
}

func (c *Cluster) startOverHTTP(ctx context.Context, id int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+c.addrs[id]+"/start", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("start node %d: %w", id, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("start node %d: status %d", id, resp.StatusCode)
	}
	return nil
}

// Kill stops a node mid-run and, on the local transport, cuts it off.
func (c *Cluster) Kill(id int) {
	if c.local != nil {
		c.local.Disconnect(id)
	}
	c.nodes[id].Stop()
}

// Wait blocks until every non-faulty, non-killed node has left its round
// loop, or ctx ends.
func (c *Cluster) Wait(ctx context.Context) error {
	for _, n := range c.nodes {
		if n.HealthCheck() == node.Faulty {
			continue
		}
		select {
		case <-n.Engine().Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Run is Start, then Wait bounded by the configured timeout, then Report.
// A timeout still yields a report.
func (c *Cluster) Run(ctx context.Context) (Report, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout.Std())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		return Report{}, err
	}
	err := c.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("Cluster %s timed out after %v", c.runID, c.cfg.Timeout.Std())
	}
	return c.Report(), err
}

// Stop kills every node and releases listeners and the trace store.
func (c *Cluster) Stop() {
	for _, n := range c.nodes {
		n.Stop()
	}
	for _, srv := range c.servers {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		srv.Stop(ctx)
		cancel()
	}
	if c.traceDB != nil {
		if err := c.traceDB.Close(); err != nil {
			logger.Warn("Cluster %s: closing trace store: %v", c.runID, err)
		}
	}
}
