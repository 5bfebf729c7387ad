package binaryagreement

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is a binary consensus value. Unknown is only ever reported for
// observation while no majority has formed; it is never decided.
type Value int8

const (
	Unknown Value = -1
	Zero    Value = 0
	One     Value = 1
)

// IsBinary reports whether v is Zero or One.
func (v Value) IsBinary() bool { return v == Zero || v == One }

func (v Value) String() string {
	switch v {
	case Zero:
		return "0"
	case One:
		return "1"
	default:
		return "?"
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsBinary() {
		return []byte(strconv.Itoa(int(v))), nil
	}
	return []byte(`"?"`), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case "0":
		*v = Zero
	case "1":
		*v = One
	case `"?"`:
		*v = Unknown
	default:
		return fmt.Errorf("%w: value %s", ErrMalformedMessage, data)
	}
	return nil
}

// ValueFromInt converts a wire integer to a binary Value.
func ValueFromInt(i int64) (Value, error) {
	switch i {
	case 0:
		return Zero, nil
	case 1:
		return One, nil
	}
	return Unknown, fmt.Errorf("%w: value %d is not binary", ErrMalformedMessage, i)
}

// Phase names the half of a round a message belongs to.
type Phase uint8

const (
	Propose Phase = iota + 1
	Vote
)

func (p Phase) String() string {
	switch p {
	case Propose:
		return "PROPOSE"
	case Vote:
		return "VOTE"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

func (p Phase) Valid() bool { return p == Propose || p == Vote }

// ParsePhase accepts the wire names PROPOSE and VOTE.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "PROPOSE":
		return Propose, nil
	case "VOTE":
		return Vote, nil
	}
	return 0, fmt.Errorf("%w: unknown phase %q", ErrMalformedMessage, s)
}

// State is the engine's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateDecided
	StateStopped
	// StateHalted is reached when the loop gives up at the round cap.
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDecided:
		return "decided"
	case StateStopped:
		return "stopped"
	case StateHalted:
		return "halted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further round activity can happen.
func (s State) Terminal() bool {
	return s == StateDecided || s == StateStopped || s == StateHalted
}

// NodeState is the observable snapshot of one node. Nil fields are absent,
// which is how a faulty node reports itself.
type NodeState struct {
	Killed  bool    `json:"killed"`
	X       *Value  `json:"x"`
	Decided *bool   `json:"decided"`
	K       *uint64 `json:"k"`
}

func (s NodeState) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Tally counts distinct senders per value for one (round, phase).
type Tally struct {
	Zero int
	One  int
}

func (t Tally) Count(v Value) int {
	switch v {
	case Zero:
		return t.Zero
	case One:
		return t.One
	}
	return 0
}

func (t Tally) Total() int { return t.Zero + t.One }

func (t Tally) String() string { return fmt.Sprintf("0:%d 1:%d", t.Zero, t.One) }
