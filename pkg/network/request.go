package network

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/meta-node-blockchain/benor/types/network"
)

// maxBodySize bounds a request body; protocol messages are tiny.
const maxBodySize = 64 << 10

// Request adapts one HTTP exchange to network.Request.
type Request struct {
	command     string
	body        []byte
	contentType string

	writer  http.ResponseWriter
	mu      sync.Mutex
	replied bool
}

func NewRequest(command string, w http.ResponseWriter, r *http.Request) (*Request, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		if len(body) > maxBodySize {
			return nil, fmt.Errorf("request body exceeds %d bytes", maxBodySize)
		}
	}
	return &Request{
		command:     command,
		body:        body,
		contentType: r.Header.Get("Content-Type"),
		writer:      w,
	}, nil
}

var _ network.Request = (*Request)(nil)

func (r *Request) Command() string     { return r.command }
func (r *Request) Body() []byte        { return r.body }
func (r *Request) ContentType() string { return r.contentType }

func (r *Request) Reply(status int, contentType string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.replied {
		return nil
	}
	r.replied = true
	if contentType != "" {
		r.writer.Header().Set("Content-Type", contentType)
	}
	r.writer.WriteHeader(status)
	_, err := r.writer.Write(body)
	return err
}

func (r *Request) Replied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replied
}
