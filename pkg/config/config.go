package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/meta-node-blockchain/benor/pkg/binaryagreement"
	"github.com/meta-node-blockchain/benor/pkg/storage"
)

const (
	TRANSPORT_LOCAL = "local"
	TRANSPORT_HTTP  = "http"

	DefaultBasePort = 3000
	DefaultHost     = "127.0.0.1"
	DefaultTimeout  = 30 * time.Second
)

// Duration reads "200ms" style strings or plain nanosecond numbers.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// PeerConfig is one entry of a node's peer list.
type PeerConfig struct {
	Id                int    `json:"id"`
	ConnectionAddress string `json:"connection_address"`
}

// TraceConfig selects where round reports are journaled. An empty type
// disables the journal.
type TraceConfig struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// EngineConfig holds the knobs shared by a single node and a cluster.
type EngineConfig struct {
	PhaseWait        Duration    `json:"phase_wait"`
	Backoff          Duration    `json:"backoff"`
	RoundCap         uint64      `json:"round_cap"`
	HaltOnRoundCap   bool        `json:"halt_on_round_cap"`
	Coin             string      `json:"coin"`
	Codec            string      `json:"codec"`
	MessageRateLimit int         `json:"message_rate_limit"`
	LogDir           string      `json:"log_dir"`
	Trace            TraceConfig `json:"trace"`
}

func (c *EngineConfig) applyDefaults() {
	if c.PhaseWait == 0 {
		c.PhaseWait = Duration(binaryagreement.DefaultPhaseWait)
	}
	if c.Backoff == 0 {
		c.Backoff = Duration(binaryagreement.DefaultBackoff)
	}
	if c.RoundCap == 0 {
		c.RoundCap = binaryagreement.DefaultRoundCap
	}
}

func (c EngineConfig) validate() error {
	if c.PhaseWait <= 0 {
		return fmt.Errorf("phase_wait must be positive")
	}
	if c.Backoff < 0 {
		return fmt.Errorf("backoff must not be negative")
	}
	if c.MessageRateLimit < 0 {
		return fmt.Errorf("message_rate_limit must not be negative")
	}
	if _, err := binaryagreement.CoinByName(c.Coin); err != nil {
		return err
	}
	if _, err := binaryagreement.CodecByName(c.Codec); err != nil {
		return err
	}
	switch c.Trace.Type {
	case "", storage.STORAGE_TYPE_MEMORY_DB:
	case storage.STORAGE_TYPE_LEVEL_DB, storage.STORAGE_TYPE_BADGER_DB:
		if c.Trace.Path == "" {
			return fmt.Errorf("trace type %q needs a path", c.Trace.Type)
		}
	default:
		return fmt.Errorf("unknown trace type %q", c.Trace.Type)
	}
	return nil
}

// NodeConfig is everything one node process needs.
type NodeConfig struct {
	ID                int          `json:"id"`
	NumNodes          int          `json:"num_nodes"`
	NumFaulty         int          `json:"num_faulty"`
	InitialValue      int          `json:"initial_value"`
	IsFaulty          bool         `json:"is_faulty"`
	ConnectionAddress string       `json:"connection_address"`
	Peers             []PeerConfig `json:"peers"`
	EngineConfig
}

func checkSizes(numNodes, numFaulty int) error {
	if numNodes < 1 {
		return fmt.Errorf("num_nodes must be at least 1, got %d", numNodes)
	}
	if numFaulty < 0 || numNodes-numFaulty < 1 {
		return fmt.Errorf("num_faulty must be in [0,%d), got %d", numNodes, numFaulty)
	}
	return nil
}

func (c *NodeConfig) Validate() error {
	if err := checkSizes(c.NumNodes, c.NumFaulty); err != nil {
		return err
	}
	if c.ID < 0 || c.ID >= c.NumNodes {
		return fmt.Errorf("id %d outside [0,%d)", c.ID, c.NumNodes)
	}
	if c.InitialValue != 0 && c.InitialValue != 1 {
		return fmt.Errorf("initial_value must be 0 or 1, got %d", c.InitialValue)
	}
	seen := make(map[int]bool, len(c.Peers))
	for _, p := range c.Peers {
		if p.Id < 0 || p.Id >= c.NumNodes {
			return fmt.Errorf("peer id %d outside [0,%d)", p.Id, c.NumNodes)
		}
		if seen[p.Id] {
			return fmt.Errorf("duplicate peer id %d", p.Id)
		}
		seen[p.Id] = true
	}
	return c.EngineConfig.validate()
}

// PeerAddresses maps every other node id to its address.
func (c *NodeConfig) PeerAddresses() map[int]string {
	peers := make(map[int]string, len(c.Peers))
	for _, p := range c.Peers {
		if p.Id != c.ID {
			peers[p.Id] = p.ConnectionAddress
		}
	}
	return peers
}

// Engine converts the file form into the engine's Config.
func (c *NodeConfig) Engine() (binaryagreement.Config, error) {
	coin, err := binaryagreement.CoinByName(c.Coin)
	if err != nil {
		return binaryagreement.Config{}, err
	}
	return binaryagreement.Config{
		NodeID:         c.ID,
		NumNodes:       c.NumNodes,
		NumFaulty:      c.NumFaulty,
		InitialValue:   binaryagreement.Value(c.InitialValue),
		Faulty:         c.IsFaulty,
		PhaseWait:      c.PhaseWait.Std(),
		Backoff:        c.Backoff.Std(),
		RoundCap:       c.RoundCap,
		HaltOnRoundCap: c.HaltOnRoundCap,
		Coin:           coin,
	}, nil
}

// ClusterConfig describes a whole simulated network.
type ClusterConfig struct {
	NumNodes  int `json:"num_nodes"`
	NumFaulty int `json:"num_faulty"`
	// InitialValues has one entry per node. Left empty, node i starts
	// with i mod 2.
	InitialValues []int    `json:"initial_values"`
	FaultyNodes   []int    `json:"faulty_nodes"`
	Transport     string   `json:"transport"`
	Host          string   `json:"host"`
	BasePort      int      `json:"base_port"`
	DropRate      float64  `json:"drop_rate"`
	MaxLatency    Duration `json:"max_latency"`
	Timeout       Duration `json:"timeout"`
	EngineConfig
}

func (c *ClusterConfig) ApplyDefaults() {
	if c.Transport == "" {
		c.Transport = TRANSPORT_LOCAL
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.BasePort == 0 {
		c.BasePort = DefaultBasePort
	}
	if c.Timeout == 0 {
		c.Timeout = Duration(DefaultTimeout)
	}
	c.EngineConfig.applyDefaults()
}

func (c *ClusterConfig) Validate() error {
	if err := checkSizes(c.NumNodes, c.NumFaulty); err != nil {
		return err
	}
	if len(c.InitialValues) != 0 && len(c.InitialValues) != c.NumNodes {
		return fmt.Errorf("initial_values has %d entries, want %d", len(c.InitialValues), c.NumNodes)
	}
	for i, v := range c.InitialValues {
		if v != 0 && v != 1 {
			return fmt.Errorf("initial_values[%d] must be 0 or 1, got %d", i, v)
		}
	}
	seen := make(map[int]bool, len(c.FaultyNodes))
	for _, id := range c.FaultyNodes {
		if id < 0 || id >= c.NumNodes {
			return fmt.Errorf("faulty node %d outside [0,%d)", id, c.NumNodes)
		}
		if seen[id] {
			return fmt.Errorf("faulty node %d listed twice", id)
		}
		seen[id] = true
	}
	if len(c.FaultyNodes) == c.NumNodes {
		return errors.New("at least one node must be non-faulty")
	}
	switch c.Transport {
	case TRANSPORT_LOCAL, TRANSPORT_HTTP:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("drop_rate must be in [0,1], got %v", c.DropRate)
	}
	if c.MaxLatency < 0 {
		return fmt.Errorf("max_latency must not be negative")
	}
	if c.BasePort < 0 || c.BasePort+c.NumNodes > 65535 {
		return fmt.Errorf("base_port %d leaves no room for %d nodes", c.BasePort, c.NumNodes)
	}
	return c.EngineConfig.validate()
}

func (c *ClusterConfig) Address(id int) string {
	return fmt.Sprintf("%s:%d", c.Host, c.BasePort+id)
}

// NodeConfigs expands the cluster into one NodeConfig per node.
func (c *ClusterConfig) NodeConfigs() []NodeConfig {
	faulty := make(map[int]bool, len(c.FaultyNodes))
	for _, id := range c.FaultyNodes {
		faulty[id] = true
	}
	peers := make([]PeerConfig, c.NumNodes)
	for id := range peers {
		peers[id] = PeerConfig{Id: id, ConnectionAddress: c.Address(id)}
	}

	nodes := make([]NodeConfig, c.NumNodes)
	for id := range nodes {
		value := id % 2
		if len(c.InitialValues) == c.NumNodes {
			value = c.InitialValues[id]
		}
		nodes[id] = NodeConfig{
			ID:                id,
			NumNodes:          c.NumNodes,
			NumFaulty:         c.NumFaulty,
			InitialValue:      value,
			IsFaulty:          faulty[id],
			ConnectionAddress: c.Address(id),
			Peers:             peers,
			EngineConfig:      c.EngineConfig,
		}
	}
	return nodes
}

func readJSON(filename string, v any) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("could not read config file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("could not unmarshal json: %w", err)
	}
	return nil
}

func LoadConfigFromFile(filename string) (*NodeConfig, error) {
	var config NodeConfig
	if err := readJSON(filename, &config); err != nil {
		return nil, err
	}
	config.EngineConfig.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return &config, nil
}

func LoadClusterConfigFromFile(filename string) (*ClusterConfig, error) {
	var config ClusterConfig
	if err := readJSON(filename, &config); err != nil {
		return nil, err
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return &config, nil
}
