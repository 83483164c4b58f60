package interceptor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/shibukawa/pyplusplus"
	"github.com/shibukawa/pyplusplus/parser"
	"github.com/shibukawa/pyplusplus/rewriter"
)

// Rewriter lowers one source unit
type Rewriter interface {
	Rewrite(unit pyplusplus.SourceUnit) (*rewriter.Unit, error)
}

// Request operations
const (
	OpHello   = "hello"
	OpRewrite = "rewrite"
	OpFail    = "fail"
)

// Error kinds reported to the bootstrap
const (
	KindExtension = "extension"
	KindHost      = "host"
	KindProtocol  = "protocol"
	KindInternal  = "internal"
)

// Request is one newline-delimited message from the bootstrap
type Request struct {
	Op      string `json:"op"`
	Token   string `json:"token"`
	Name    string `json:"name,omitempty"`
	Source  []byte `json:"source,omitempty"`
	Version string `json:"version,omitempty"`
	PID     int    `json:"pid,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Response answers a Request
type Response struct {
	OK        bool                  `json:"ok"`
	Unchanged bool                  `json:"unchanged,omitempty"`
	Source    []byte                `json:"source,omitempty"`
	Rewrites  int                   `json:"rewrites,omitempty"`
	Map       *rewriter.PositionMap `json:"map,omitempty"`
	Error     *ErrorInfo            `json:"error,omitempty"`
}

// ErrorInfo describes a rejected source in original coordinates
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// Server answers rewrite requests from hooked interpreters. Each connection
// is served on its own goroutine.
type Server struct {
	listener net.Listener
	addr     string
	dir      string
	token    string
	engine   Rewriter
	logger   *log.Logger

	hellos   atomic.Int64
	requests atomic.Int64
	failure  atomic.Pointer[string]

	wg     sync.WaitGroup
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// NewServer listens on a private unix socket, or on loopback TCP where unix
// sockets are unavailable
func NewServer(engine Rewriter, logger *log.Logger) (*Server, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	s := &Server{
		token:  uuid.NewString(),
		engine: engine,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}

	if runtime.GOOS == "windows" {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, &InjectionError{Reason: "cannot open rewrite service", Err: err}
		}

		s.listener = ln
		s.addr = "tcp:" + ln.Addr().String()

		return s, nil
	}

	dir, err := os.MkdirTemp("", "pyplusplus-")
	if err != nil {
		return nil, &InjectionError{Reason: "cannot open rewrite service", Err: err}
	}

	path := filepath.Join(dir, "rewrite.sock")

	ln, err := net.Listen("unix", path)
	if err != nil {
		os.RemoveAll(dir)
		return nil, &InjectionError{Reason: "cannot open rewrite service", Err: err}
	}

	s.listener = ln
	s.dir = dir
	s.addr = "unix:" + path

	return s, nil
}

// Addr is the address handed to the bootstrap
func (s *Server) Addr() string { return s.addr }

// Token authenticates requests of this session
func (s *Server) Token() string { return s.token }

// Attached reports whether any interpreter installed the hook
func (s *Server) Attached() bool { return s.hellos.Load() > 0 }

// Requests counts rewrite requests served
func (s *Server) Requests() int64 { return s.requests.Load() }

// Failure returns the reason an interpreter reported for not attaching
func (s *Server) Failure() (string, bool) {
	reason := s.failure.Load()
	if reason == nil {
		return "", false
	}

	return *reason, true
}

// Serve accepts connections until ctx ends or the server is closed
func (s *Server) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.logger.Printf("rewrite service: accept: %v", err)
			}

			return
		}

		if !s.track(conn) {
			conn.Close()
			return
		}

		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)

			s.handle(conn)
		}()
	}
}

// Close stops accepting, drops open connections and removes the socket
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	err := s.listener.Close()

	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	if s.dir != "" {
		os.RemoveAll(s.dir)
	}

	if errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	s.conns[conn] = struct{}{}
	s.wg.Add(1)

	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	conn.Close()
}

func (s *Server) handle(conn net.Conn) {
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Printf("rewrite service: bad request: %v", err)
			}

			return
		}

		resp := s.Handle(req)
		if err := enc.Encode(resp); err != nil {
			s.logger.Printf("rewrite service: reply: %v", err)
			return
		}

		if resp.Error != nil && resp.Error.Kind == KindProtocol {
			return
		}
	}
}

// Handle answers a single request
func (s *Server) Handle(req Request) Response {
	if req.Token != s.token {
		return failed(KindProtocol, ErrBadToken.Error())
	}

	switch req.Op {
	case OpHello:
		s.hellos.Add(1)
		s.logger.Printf("rewrite service: interpreter %s attached (pid %d)", req.Version, req.PID)

		return Response{OK: true}
	case OpFail:
		reason := req.Reason
		s.failure.Store(&reason)
		s.logger.Printf("rewrite service: interpreter failed to attach: %s", reason)

		return Response{OK: true}
	case OpRewrite:
		s.requests.Add(1)
		return s.rewrite(req)
	default:
		return failed(KindProtocol, fmt.Sprintf("%v: %q", ErrUnknownOp, req.Op))
	}
}

func (s *Server) rewrite(req Request) Response {
	unit, err := pyplusplus.NewSourceUnit(req.Name, req.Source)
	if err != nil {
		return failed(KindProtocol, err.Error())
	}

	lowered, err := s.engine.Rewrite(unit)
	if err != nil {
		return errorResponse(err)
	}

	if lowered.Rewrites == 0 {
		return Response{OK: true, Unchanged: true}
	}

	return Response{OK: true, Source: lowered.Source, Rewrites: lowered.Rewrites, Map: &lowered.Map}
}

func errorResponse(err error) Response {
	var (
		extErr  *parser.ExtensionSyntaxError
		hostErr *parser.HostSyntaxError
	)

	switch {
	case errors.As(err, &extErr):
		return Response{Error: &ErrorInfo{
			Kind:    KindExtension,
			Message: extErr.Message,
			Line:    extErr.Position.Line,
			Column:  extErr.Position.Column,
		}}
	case errors.As(err, &hostErr):
		return Response{Error: &ErrorInfo{
			Kind:    KindHost,
			Message: hostErr.Message,
			Line:    hostErr.Position.Line,
			Column:  hostErr.Position.Column,
		}}
	default:
		return failed(KindInternal, err.Error())
	}
}

func failed(kind, message string) Response {
	return Response{Error: &ErrorInfo{Kind: kind, Message: message}}
}
