package binaryagreement

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	ContentTypeJSON  = "application/json"
	ContentTypeProto = "application/x-protobuf"
)

// Codec turns messages into transport payloads and back. Decoding only
// checks structure; callers still run Message.Validate against N.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(Message) ([]byte, error)
	Unmarshal([]byte) (Message, error)
}

var (
	JSONCodec  Codec = jsonCodec{}
	ProtoCodec Codec = protoCodec{}
)

// CodecByName resolves the codec names used in configuration files.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSONCodec, nil
	case "proto", "protobuf":
		return ProtoCodec, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// CodecForContentType picks a codec from an HTTP Content-Type header.
// An empty header means JSON.
func CodecForContentType(contentType string) (Codec, bool) {
	if contentType == "" {
		return JSONCodec, true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, false
	}
	switch mediaType {
	case ContentTypeJSON:
		return JSONCodec, true
	case ContentTypeProto:
		return ProtoCodec, true
	}
	return nil, false
}

type jsonCodec struct{}

func (jsonCodec) Name() string        { return "json" }
func (jsonCodec) ContentType() string { return ContentTypeJSON }

func (jsonCodec) Marshal(m Message) ([]byte, error) { return json.Marshal(m) }

func (jsonCodec) Unmarshal(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		if errors.Is(err, ErrMalformedMessage) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return m, nil
}

// Field numbers of the binary encoding.
const (
	fieldSender protowire.Number = 1
	fieldRound  protowire.Number = 2
	fieldPhase  protowire.Number = 3
	fieldValue  protowire.Number = 4
)

// protoCodec writes the message as a protobuf record with four varint
// fields. Every field is always emitted so absence can be detected.
type protoCodec struct{}

func (protoCodec) Name() string        { return "proto" }
func (protoCodec) ContentType() string { return ContentTypeProto }

func (protoCodec) Marshal(m Message) ([]byte, error) {
	if m.Sender < 0 {
		return nil, fmt.Errorf("%w: negative sender %d", ErrMalformedMessage, m.Sender)
	}
	b := make([]byte, 0, 16)
	b = protowire.AppendTag(b, fieldSender, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Sender))
	b = protowire.AppendTag(b, fieldRound, protowire.VarintType)
	b = protowire.AppendVarint(b, m.Round)
	b = protowire.AppendTag(b, fieldPhase, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Phase))
	b = protowire.AppendTag(b, fieldValue, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Value))
	return b, nil
}

func (protoCodec) Unmarshal(data []byte) (Message, error) {
	var (
		m    Message
		seen uint8
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		data = data[n:]

		if typ != protowire.VarintType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldSender:
			if v > math.MaxInt32 {
				return Message{}, fmt.Errorf("%w: sender %d out of range", ErrMalformedMessage, v)
			}
			m.Sender = int(v)
			seen |= 1
		case fieldRound:
			if v > math.MaxInt64 {
				return Message{}, fmt.Errorf("%w: round %d out of range", ErrMalformedMessage, v)
			}
			m.Round = v
			seen |= 2
		case fieldPhase:
			if v != uint64(Propose) && v != uint64(Vote) {
				return Message{}, fmt.Errorf("%w: unknown phase %d", ErrMalformedMessage, v)
			}
			m.Phase = Phase(v)
			seen |= 4
		case fieldValue:
			if v > 1 {
				return Message{}, fmt.Errorf("%w: value %d is not binary", ErrMalformedMessage, v)
			}
			m.Value = Value(v)
			seen |= 8
		}
	}
	if seen != 0x0f {
		return Message{}, fmt.Errorf("%w: missing field", ErrMalformedMessage)
	}
	return m, nil
}
