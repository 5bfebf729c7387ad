package network

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/meta-node-blockchain/benor/types/network"
)

var (
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrUnknownCommand = errors.New("unknown command")
)

// Handler routes requests by command name. Commands with a limit get a
// token bucket allowing that many requests per second.
type Handler struct {
	routes   map[string]func(network.Request) error
	limiters map[string]*rate.Limiter
	mutex    sync.RWMutex
}

func NewHandler(
	routes map[string]func(network.Request) error,
	limits map[string]int,
) *Handler {
	if routes == nil {
		routes = make(map[string]func(network.Request) error)
	}

	h := &Handler{
		routes:   routes,
		limiters: make(map[string]*rate.Limiter),
	}
	for command, limitPerSecond := range limits {
		if limitPerSecond > 0 {
			h.limiters[command] = rate.NewLimiter(rate.Limit(limitPerSecond), limitPerSecond)
		}
	}
	return h
}

// Register adds or replaces the handler for command.
func (h *Handler) Register(command string, route func(network.Request) error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.routes[command] = route
}

func (h *Handler) HandleRequest(r network.Request) error {
	if r == nil {
		return errors.New("nil request")
	}
	cmd := r.Command()
	if cmd == "" {
		return fmt.Errorf("%w: empty command", ErrUnknownCommand)
	}

	h.mutex.RLock()
	limiter, limited := h.limiters[cmd]
	route, exists := h.routes[cmd]
	h.mutex.RUnlock()

	// Allow consumes a token without blocking.
	if limited && !limiter.Allow() {
		return fmt.Errorf("%w for command %s", ErrRateLimited, cmd)
	}
	if !exists || route == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
	return route(r)
}
