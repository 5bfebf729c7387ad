package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/meta-node-blockchain/benor/pkg/binaryagreement"
	"github.com/meta-node-blockchain/benor/pkg/common"
	"github.com/meta-node-blockchain/benor/pkg/logger"
	t_network "github.com/meta-node-blockchain/benor/types/network"
)

type route struct {
	method  string
	command string
}

var routes = map[string]route{
	"/status":   {http.MethodGet, common.CmdStatus},
	"/getState": {http.MethodGet, common.CmdGetState},
	"/message":  {http.MethodPost, common.CmdMessage},
	"/start":    {http.MethodGet, common.CmdStart},
	"/stop":     {http.MethodGet, common.CmdStop},
}

// Server exposes one node's commands over HTTP.
type Server struct {
	addr    string
	handler t_network.Handler
	server  *http.Server

	mu       sync.Mutex
	listener net.Listener
}

func NewServer(addr string, handler t_network.Handler) *Server {
	s := &Server{addr: addr, handler: handler}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Listen binds the configured address and serves in the background.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.Serve(l)
	return nil
}

// Serve takes ownership of l and serves on it in the background.
func (s *Server) Serve(l net.Listener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	logger.Info("Listening on %s", l.Addr())
	go func() {
		err := s.server.Serve(l)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server on %s stopped: %v", l.Addr(), err)
		}
	}()
}

// Addr is the bound address once serving, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt, ok := routes[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if r.Method != rt.method {
		w.Header().Set("Allow", rt.method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := NewRequest(rt.command, w, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.handler.HandleRequest(req); err != nil {
		if !req.Replied() {
			req.Reply(StatusForError(err), common.ContentTypeText, []byte(err.Error()))
		}
		return
	}
	if !req.Replied() {
		w.WriteHeader(http.StatusNoContent)
	}
}

// StatusForError maps handler errors onto HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnknownCommand):
		return http.StatusNotFound
	case errors.Is(err, binaryagreement.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, binaryagreement.ErrStopped):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
