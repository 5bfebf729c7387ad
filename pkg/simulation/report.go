package simulation

import (
	"time"

	"github.com/meta-node-blockchain/benor/pkg/binaryagreement"
	"github.com/meta-node-blockchain/benor/pkg/node"
)

type NodeReport struct {
	ID           int
	Faulty       bool
	InitialValue binaryagreement.Value
	State        binaryagreement.NodeState
}

// Decision returns the node's decided value, if any.
func (r NodeReport) Decision() (binaryagreement.Value, bool) {
	if r.State.Decided == nil || !*r.State.Decided || r.State.X == nil {
		return binaryagreement.Unknown, false
	}
	return *r.State.X, true
}

type Report struct {
	RunID   string
	Elapsed time.Duration
	Nodes   []NodeReport

	// Decided counts non-faulty nodes that decided.
	Decided int
	Correct int
	// Agreement holds when no two decided nodes disagree.
	Agreement bool
	// Validity holds when every decision was some correct node's
	// initial value.
	Validity bool
	// Value is the agreed decision, Unknown when nobody decided or
	// agreement failed.
	Value binaryagreement.Value
}

func (r Report) AllDecided() bool { return r.Correct > 0 && r.Decided == r.Correct }

func (c *Cluster) Report() Report {
	rep := Report{
		RunID:     c.runID,
		Agreement: true,
		Validity:  true,
		Value:     binaryagreement.Unknown,
	}
	if !c.started.IsZero() {
		rep.Elapsed = time.Since(c.started)
	}

	for i, n := range c.nodes {
		rep.Nodes = append(rep.Nodes, NodeReport{
			ID:           n.ID(),
			Faulty:       n.HealthCheck() == node.Faulty,
			InitialValue: binaryagreement.Value(c.configs[i].InitialValue),
			State:        n.GetState(),
		})
	}

	inputs := make(map[binaryagreement.Value]bool, 2)
	for _, nr := range rep.Nodes {
		if !nr.Faulty {
			rep.Correct++
			inputs[nr.InitialValue] = true
		}
	}

	for _, nr := range rep.Nodes {
		if nr.Faulty {
			continue
		}
		v, ok := nr.Decision()
		if !ok {
			continue
		}
		rep.Decided++
		if !inputs[v] {
			rep.Validity = false
		}
		if rep.Value == binaryagreement.Unknown {
			rep.Value = v
		} else if rep.Value != v {
			rep.Agreement = false
		}
	}
	if !rep.Agreement {
		rep.Value = binaryagreement.Unknown
	}
	return rep
}
