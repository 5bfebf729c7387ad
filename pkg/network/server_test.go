package network

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ba "github.com/meta-node-blockchain/benor/pkg/binaryagreement"
	"github.com/meta-node-blockchain/benor/pkg/node"
)

func newTestNode(t *testing.T, cfg ba.Config, ch ba.Channel, opts ...node.Option) *node.Node {
	t.Helper()
	if cfg.PhaseWait == 0 {
		cfg.PhaseWait = 40 * time.Millisecond
	}
	n, err := node.New(cfg, ch, opts...)
	require.NoError(t, err)
	t.Cleanup(n.Stop)
	return n
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func post(t *testing.T, url, contentType, payload string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, contentType, strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServerEndpoints(t *testing.T) {
	n := newTestNode(t, ba.Config{NodeID: 0, NumNodes: 3, InitialValue: ba.One, PhaseWait: time.Second}, NewHTTPChannel(nil, nil, 0))
	srv := httptest.NewServer(NewServer("", NewHandler(n.CommandHandlers(), nil)))
	defer srv.Close()

	code, body := get(t, srv.URL+"/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "live", body)

	code, body = get(t, srv.URL+"/getState")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"killed":false,"x":1,"decided":false,"k":0}`, body)

	code, _ = get(t, srv.URL+"/start")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	resp, err := http.Post(srv.URL+"/message", ba.ContentTypeJSON, strings.NewReader(`{"sender":1,"round":1,"phase":"PROPOSE","value":0}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, n.Engine().Buffer().Collect(1, ba.Propose), 1)

	for _, payload := range []string{
		`{"sender":1}`,
		`{"sender":1,"round":1,"phase":"PROPOSE","value":7}`,
		`{"sender":1,"round":-1,"phase":"PROPOSE","value":0}`,
		`sender=1`,
	} {
		code, body := post(t, srv.URL+"/message", ba.ContentTypeJSON, payload)
		assert.Equal(t, http.StatusOK, code, payload)
		assert.Equal(t, "Message received", body, payload)
	}
	assert.Len(t, n.Engine().Buffer().Collect(1, ba.Propose), 1)

	code, _ = get(t, srv.URL+"/message")
	assert.Equal(t, http.StatusMethodNotAllowed, code)

	code, _ = get(t, srv.URL+"/nowhere")
	assert.Equal(t, http.StatusNotFound, code)

	n.SetReady(true)
	code, body = get(t, srv.URL+"/start")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Consensus started", body)

	code, _ = get(t, srv.URL+"/start")
	assert.Equal(t, http.StatusOK, code)

	code, body = get(t, srv.URL+"/stop")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Consensus stopped", body)

	code, _ = get(t, srv.URL+"/start")
	assert.Equal(t, http.StatusBadRequest, code)

	resp, err = http.Post(srv.URL+"/message", ba.ContentTypeJSON, strings.NewReader(`{"sender":1,"round":2,"phase":"VOTE","value":0}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var state ba.NodeState
	_, body = get(t, srv.URL+"/getState")
	require.NoError(t, json.Unmarshal([]byte(body), &state))
	assert.True(t, state.Killed)
}

func TestServerFaultyNode(t *testing.T) {
	n := newTestNode(t, ba.Config{NodeID: 2, NumNodes: 3, InitialValue: ba.Zero, Faulty: true}, NewHTTPChannel(nil, nil, 0), node.WithReady())
	srv := httptest.NewServer(NewServer("", NewHandler(n.CommandHandlers(), nil)))
	defer srv.Close()

	code, body := get(t, srv.URL+"/status")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "faulty", body)

	_, body = get(t, srv.URL+"/getState")
	assert.JSONEq(t, `{"killed":false,"x":null,"decided":null,"k":null}`, body)

	code, _ = get(t, srv.URL+"/start")
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestServerRateLimit(t *testing.T) {
	n := newTestNode(t, ba.Config{NodeID: 0, NumNodes: 2, InitialValue: ba.Zero}, NewHTTPChannel(nil, nil, 0))
	srv := httptest.NewServer(NewServer("", NewHandler(n.CommandHandlers(), map[string]int{"status": 1})))
	defer srv.Close()

	code, _ := get(t, srv.URL+"/status")
	assert.Equal(t, http.StatusOK, code)
	code, _ = get(t, srv.URL+"/status")
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestHTTPChannelUnreachable(t *testing.T) {
	ch := NewHTTPChannel(map[int]string{1: "127.0.0.1:1"}, ba.ProtoCodec, 200*time.Millisecond)
	err := ch.Send(context.Background(), 1, ba.NewVote(0, 1, ba.One))
	assert.ErrorIs(t, err, ba.ErrPeerUnreachable)

	err = ch.Send(context.Background(), 5, ba.NewVote(0, 1, ba.One))
	assert.ErrorIs(t, err, ba.ErrPeerUnreachable)
}

func TestWaitForPeers(t *testing.T) {
	n := newTestNode(t, ba.Config{NodeID: 0, NumNodes: 2, InitialValue: ba.Zero}, NewHTTPChannel(nil, nil, 0))
	srv := httptest.NewServer(NewServer("", NewHandler(n.CommandHandlers(), nil)))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, WaitForPeers(ctx, map[int]string{0: srv.URL}, 10*time.Millisecond))

	ctx, cancel = context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.Error(t, WaitForPeers(ctx, map[int]string{1: "127.0.0.1:1"}, 10*time.Millisecond))
}

// Three nodes on real sockets reach agreement through HTTPChannel.
func TestHTTPClusterDecides(t *testing.T) {
	const numNodes = 3
	values := []ba.Value{ba.Zero, ba.One, ba.One}

	listeners := make([]net.Listener, numNodes)
	addrs := make(map[int]string, numNodes)
	for id := range listeners {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners[id] = l
		addrs[id] = l.Addr().String()
	}

	nodes := make([]*node.Node, numNodes)
	for id := range nodes {
		peers := make(map[int]string)
		for pid, addr := range addrs {
			if pid != id {
				peers[pid] = addr
			}
		}
		codec := ba.JSONCodec
		if id == 1 {
			codec = ba.ProtoCodec
		}
		nodes[id] = newTestNode(t, ba.Config{
			NodeID:       id,
			NumNodes:     numNodes,
			InitialValue: values[id],
			PhaseWait:    150 * time.Millisecond,
		}, NewHTTPChannel(peers, codec, time.Second))

		srv := NewServer(addrs[id], NewHandler(nodes[id].CommandHandlers(), nil))
		srv.Serve(listeners[id])
		t.Cleanup(func() { srv.Stop(context.Background()) })
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, WaitForPeers(ctx, addrs, 10*time.Millisecond))
	for _, n := range nodes {
		n.SetReady(true)
	}
	for id := range nodes {
		code, _ := get(t, "http://"+addrs[id]+"/start")
		require.Equal(t, http.StatusOK, code)
	}

	for _, n := range nodes {
		select {
		case <-n.Engine().Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("node %d did not decide", n.ID())
		}
		v, ok := n.Engine().Decision()
		require.True(t, ok)
		assert.Equal(t, ba.One, v)
	}
}

func TestStatusForError(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusForError(ba.ErrStopped))
	assert.Equal(t, http.StatusServiceUnavailable, StatusForError(ba.ErrNotReady))
	assert.Equal(t, http.StatusTooManyRequests, StatusForError(ErrRateLimited))
	assert.Equal(t, http.StatusNotFound, StatusForError(ErrUnknownCommand))
	assert.Equal(t, http.StatusInternalServerError, StatusForError(ba.ErrMalformedMessage))
}
