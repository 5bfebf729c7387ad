package binaryagreement

import (
	"encoding/json"
	"fmt"
	"math"
)

// Message is one protocol message. It is only meaningful for the round
// and phase it names.
type Message struct {
	Sender int
	Round  uint64
	Phase  Phase
	Value  Value
}

func NewProposal(sender int, round uint64, v Value) Message {
	return Message{Sender: sender, Round: round, Phase: Propose, Value: v}
}

func NewVote(sender int, round uint64, v Value) Message {
	return Message{Sender: sender, Round: round, Phase: Vote, Value: v}
}

func (m Message) String() string {
	return fmt.Sprintf("%s(k=%d, from=%d, v=%s)", m.Phase, m.Round, m.Sender, m.Value)
}

// Validate checks the message is well formed for a network of numNodes.
func (m Message) Validate(numNodes int) error {
	if !m.Phase.Valid() {
		return fmt.Errorf("%w: unknown phase %d", ErrMalformedMessage, m.Phase)
	}
	if !m.Value.IsBinary() {
		return fmt.Errorf("%w: value %d is not binary", ErrMalformedMessage, m.Value)
	}
	if m.Sender < 0 || m.Sender >= numNodes {
		return fmt.Errorf("%w: sender %d outside [0,%d)", ErrMalformedMessage, m.Sender, numNodes)
	}
	if m.Round > math.MaxInt64 {
		return fmt.Errorf("%w: round %d out of range", ErrMalformedMessage, m.Round)
	}
	return nil
}

// wireMessage is the JSON transport payload. Pointer fields let the
// decoder tell a missing field from a zero one.
type wireMessage struct {
	Sender *int64  `json:"sender"`
	Round  *int64  `json:"round"`
	Phase  *string `json:"phase"`
	Value  *int64  `json:"value"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	sender := int64(m.Sender)
	round := int64(m.Round)
	phase := m.Phase.String()
	value := int64(m.Value)
	return json.Marshal(wireMessage{Sender: &sender, Round: &round, Phase: &phase, Value: &value})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if w.Sender == nil || w.Round == nil || w.Phase == nil || w.Value == nil {
		return fmt.Errorf("%w: missing field", ErrMalformedMessage)
	}
	if *w.Round < 0 {
		return fmt.Errorf("%w: negative round %d", ErrMalformedMessage, *w.Round)
	}
	if *w.Sender < 0 || *w.Sender > math.MaxInt32 {
		return fmt.Errorf("%w: sender %d out of range", ErrMalformedMessage, *w.Sender)
	}
	phase, err := ParsePhase(*w.Phase)
	if err != nil {
		return err
	}
	value, err := ValueFromInt(*w.Value)
	if err != nil {
		return err
	}
	*m = Message{Sender: int(*w.Sender), Round: uint64(*w.Round), Phase: phase, Value: value}
	return nil
}
