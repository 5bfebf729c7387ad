package network

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meta-node-blockchain/benor/pkg/binaryagreement"
)

const DefaultSendTimeout = 2 * time.Second

// HTTPChannel posts encoded messages to each peer's /message endpoint.
type HTTPChannel struct {
	peers   map[int]string
	codec   binaryagreement.Codec
	client  *http.Client
	timeout time.Duration
}

func NewHTTPChannel(peers map[int]string, codec binaryagreement.Codec, timeout time.Duration) *HTTPChannel {
	if codec == nil {
		codec = binaryagreement.JSONCodec
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	copied := make(map[int]string, len(peers))
	for id, addr := range peers {
		copied[id] = addr
	}
	return &HTTPChannel{
		peers:   copied,
		codec:   codec,
		client:  &http.Client{},
		timeout: timeout,
	}
}

func peerURL(addr, path string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/") + path
	}
	return "http://" + addr + path
}

func (c *HTTPChannel) Send(ctx context.Context, target int, msg binaryagreement.Message) error {
	addr, ok := c.peers[target]
	if !ok {
		return fmt.Errorf("%w: no address for node %d", binaryagreement.ErrPeerUnreachable, target)
	}
	body, err := c.codec.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, peerURL(addr, "/message"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", c.codec.ContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", binaryagreement.ErrPeerUnreachable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: node %d answered %d", binaryagreement.ErrPeerUnreachable, target, resp.StatusCode)
	}
	return nil
}
