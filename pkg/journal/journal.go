// Package journal keeps a per-run trace of every finished round. It is
// written for later analysis and never read back by a running node.
package journal

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/near/borsh-go"

	"github.com/meta-node-blockchain/benor/pkg/binaryagreement"
	"github.com/meta-node-blockchain/benor/pkg/logger"
	"github.com/meta-node-blockchain/benor/pkg/storage"
)

// Record is the borsh layout of one round report.
type Record struct {
	NodeID            int32
	Round             uint64
	ProposalsZero     uint32
	ProposalsOne      uint32
	VotesZero         uint32
	VotesOne          uint32
	Candidate         int8
	CandidateFromCoin bool
	Decided           bool
	Value             int8
	Err               string
	UnixNano          int64
}

func NewRecord(r binaryagreement.RoundReport, at time.Time) Record {
	rec := Record{
		NodeID:            int32(r.NodeID),
		Round:             r.Round,
		ProposalsZero:     uint32(r.Proposals.Zero),
		ProposalsOne:      uint32(r.Proposals.One),
		VotesZero:         uint32(r.Votes.Zero),
		VotesOne:          uint32(r.Votes.One),
		Candidate:         int8(r.Candidate),
		CandidateFromCoin: r.CandidateFromCoin,
		Decided:           r.Decided,
		Value:             int8(r.Value),
		UnixNano:          at.UnixNano(),
	}
	if r.Err != nil {
		rec.Err = r.Err.Error()
	}
	return rec
}

func (r Record) Proposals() binaryagreement.Tally {
	return binaryagreement.Tally{Zero: int(r.ProposalsZero), One: int(r.ProposalsOne)}
}

func (r Record) Votes() binaryagreement.Tally {
	return binaryagreement.Tally{Zero: int(r.VotesZero), One: int(r.VotesOne)}
}

func (r Record) Outcome() binaryagreement.Value { return binaryagreement.Value(r.Value) }

// Journal implements binaryagreement.Observer on top of a Storage.
type Journal struct {
	db    storage.Storage
	runID string

	mu  sync.Mutex
	err error
}

// New opens a journal for one run. An empty runID gets a fresh UUID.
func New(db storage.Storage, runID string) *Journal {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Journal{db: db, runID: runID}
}

func (j *Journal) RunID() string { return j.runID }

func nodePrefix(runID string, nodeID int) []byte {
	return []byte(fmt.Sprintf("run/%s/node/%d/round/", runID, nodeID))
}

// Key is zero padded so byte order matches round order.
func Key(runID string, nodeID int, round uint64) []byte {
	return append(nodePrefix(runID, nodeID), fmt.Sprintf("%020d", round)...)
}

func (j *Journal) ObserveRound(r binaryagreement.RoundReport) {
	if err := j.Append(r); err != nil {
		logger.Warn("Journal %s: failed to record round %d of node %d: %v", j.runID, r.Round, r.NodeID, err)
		j.mu.Lock()
		if j.err == nil {
			j.err = err
		}
		j.mu.Unlock()
	}
}

func (j *Journal) Append(r binaryagreement.RoundReport) error {
	data, err := borsh.Serialize(NewRecord(r, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to encode round record: %w", err)
	}
	return j.db.Put(Key(j.runID, r.NodeID, r.Round), data)
}

// Rounds returns the node's records in round order.
func (j *Journal) Rounds(nodeID int) ([]Record, error) {
	iter := storage.WithPrefix(j.db.GetIterator(), nodePrefix(j.runID, nodeID))
	defer iter.Release()

	var records []Record
	for iter.Next() {
		value := append([]byte(nil), iter.Value()...)
		var rec Record
		if err := borsh.Deserialize(&rec, value); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", iter.Key(), err)
		}
		records = append(records, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return records, nil
}

// Err is the first write failure seen by ObserveRound.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}
