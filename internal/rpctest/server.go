// Package rpctest provides an in-process Solana JSON-RPC endpoint for tests.
package rpctest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// Error is a JSON-RPC error object
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HandlerFunc answers one JSON-RPC call. A non-nil *Error is sent instead of the result.
type HandlerFunc func(params []json.RawMessage) (interface{}, *Error)

type request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Server is a fake ledger node. Handlers may be swapped while requests are in flight.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	handlers   map[string]HandlerFunc
	calls      map[string]int
	lastParams map[string][]json.RawMessage
	delay      time.Duration
	httpStatus int
}

// NewServer starts a fake node that is closed when the test ends.
// getHealth answers "ok" unless overridden.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		handlers:   make(map[string]HandlerFunc),
		calls:      make(map[string]int),
		lastParams: make(map[string][]json.RawMessage),
	}
	s.Handle("getHealth", func([]json.RawMessage) (interface{}, *Error) {
		return "ok", nil
	})
	s.Server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.Close)

	return s
}

// Handle registers the handler for method
func (s *Server) Handle(method string, h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// SetDelay makes every call wait d before answering
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// FailHTTP makes every call answer with a bare HTTP status. Zero restores normal behaviour.
func (s *Server) FailHTTP(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.httpStatus = status
}

// Calls returns how many times method was invoked
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// LastParams returns the params of the most recent call to method
func (s *Server) LastParams(method string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastParams[method]
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, response{JSONRPC: "2.0", ID: json.RawMessage("null"), Error: &Error{Code: -32700, Message: "Parse error"}})
		return
	}

	s.mu.Lock()
	s.calls[req.Method]++
	s.lastParams[req.Method] = req.Params
	handler, ok := s.handlers[req.Method]
	delay := s.delay
	status := s.httpStatus
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}

	resp := response{JSONRPC: "2.0", ID: req.ID}
	if !ok {
		resp.Error = &Error{Code: -32601, Message: "Method not found"}
	} else {
		resp.Result, resp.Error = handler(req.Params)
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
