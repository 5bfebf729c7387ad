package binaryagreement

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestJSONWireFormat(t *testing.T) {
	data, err := JSONCodec.Marshal(NewVote(2, 5, One))
	require.NoError(t, err)
	assert.JSONEq(t, `{"sender":2,"round":5,"phase":"VOTE","value":1}`, string(data))

	msg, err := JSONCodec.Unmarshal([]byte(`{"sender":1,"round":3,"phase":"PROPOSE","value":0}`))
	require.NoError(t, err)
	assert.Equal(t, NewProposal(1, 3, Zero), msg)
}

func TestJSONRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"missing value":  `{"sender":1,"round":3,"phase":"VOTE"}`,
		"bad phase":      `{"sender":1,"round":3,"phase":"COMMIT","value":0}`,
		"non binary":     `{"sender":1,"round":3,"phase":"VOTE","value":2}`,
		"negative round": `{"sender":1,"round":-1,"phase":"VOTE","value":0}`,
		"negative id":    `{"sender":-3,"round":1,"phase":"VOTE","value":0}`,
		"not json":       `sender=1`,
		"truncated":      `{"sender":1,`,
	}
	for name, payload := range cases {
		_, err := JSONCodec.Unmarshal([]byte(payload))
		assert.ErrorIs(t, err, ErrMalformedMessage, name)
	}
}

func TestProtoCodec(t *testing.T) {
	in := NewVote(3, 1<<40, Zero)
	data, err := ProtoCodec.Marshal(in)
	require.NoError(t, err)

	out, err := ProtoCodec.Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// Unknown length-delimited fields are skipped.
	extra := protowire.AppendTag(append([]byte(nil), data...), 9, protowire.BytesType)
	extra = protowire.AppendBytes(extra, []byte("ignored"))
	out, err = ProtoCodec.Unmarshal(extra)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = ProtoCodec.Unmarshal(data[:len(data)-2])
	assert.ErrorIs(t, err, ErrMalformedMessage)

	bad := protowire.AppendTag(nil, fieldPhase, protowire.VarintType)
	bad = protowire.AppendVarint(bad, 1<<8+1)
	_, err = ProtoCodec.Unmarshal(bad)
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestCodecLookup(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())

	c, err = CodecByName("protobuf")
	require.NoError(t, err)
	assert.Equal(t, ContentTypeProto, c.ContentType())

	_, err = CodecByName("xml")
	assert.Error(t, err)

	c, ok := CodecForContentType("application/json; charset=utf-8")
	assert.True(t, ok)
	assert.Equal(t, JSONCodec, c)

	c, ok = CodecForContentType("")
	assert.True(t, ok)
	assert.Equal(t, JSONCodec, c)

	_, ok = CodecForContentType("text/plain")
	assert.False(t, ok)
}

func TestMessageValidate(t *testing.T) {
	assert.NoError(t, NewProposal(0, 1, One).Validate(3))
	assert.ErrorIs(t, NewProposal(3, 1, One).Validate(3), ErrMalformedMessage)
	assert.ErrorIs(t, Message{Sender: 0, Round: 1, Phase: 9, Value: One}.Validate(3), ErrMalformedMessage)
	assert.ErrorIs(t, NewVote(0, 1, Unknown).Validate(3), ErrMalformedMessage)
}

func TestNodeStateJSON(t *testing.T) {
	x, decided, k := Unknown, false, uint64(4)
	data, err := json.Marshal(NodeState{X: &x, Decided: &decided, K: &k})
	require.NoError(t, err)
	assert.JSONEq(t, `{"killed":false,"x":"?","decided":false,"k":4}`, string(data))

	data, err = json.Marshal(NodeState{Killed: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"killed":true,"x":null,"decided":null,"k":null}`, string(data))

	var s NodeState
	require.NoError(t, json.Unmarshal([]byte(`{"killed":false,"x":1,"decided":true,"k":2}`), &s))
	assert.Equal(t, One, *s.X)
	assert.True(t, *s.Decided)
}
