package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/meta-node-blockchain/benor/pkg/logger"
)

const DefaultProbeInterval = 100 * time.Millisecond

// Probe asks a peer for /status. Any HTTP answer counts as reachable; a
// faulty peer answers 500 but is still up.
func Probe(ctx context.Context, client *http.Client, addr string) (live bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, peerURL(addr, "/status"), nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK, nil
}

// WaitForPeers polls every peer concurrently until each one answers or
// ctx ends.
func WaitForPeers(ctx context.Context, peers map[int]string, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	client := &http.Client{Timeout: interval * 5}
	g, ctx := errgroup.WithContext(ctx)
	for id, addr := range peers {
		id, addr := id, addr
		g.Go(func() error {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				if _, err := Probe(ctx, client, addr); err == nil {
					logger.Debug("Peer %d at %s is up", id, addr)
					return nil
				}
				select {
				case <-ctx.Done():
					return fmt.Errorf("peer %d at %s never answered: %w", id, addr, ctx.Err())
				case <-ticker.C:
				}
			}
		})
	}
	return g.Wait()
}
