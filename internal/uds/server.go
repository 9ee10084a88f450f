package uds

import (
	"context"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/vibeflow/taskvibe/internal/logging"
)

// HandlerFunc serves one request. ctx is cancelled when the connection
// deadline passes or the server stops.
type HandlerFunc func(ctx context.Context, req *Request) *Response

type Server struct {
	socketPath  string
	listener    net.Listener
	handlers    map[string]HandlerFunc
	mu          sync.RWMutex
	connTimeout time.Duration
	logger      *log.Logger
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

func NewServer(socketPath string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		socketPath:  socketPath,
		handlers:    make(map[string]HandlerFunc),
		connTimeout: 30 * time.Second,
		logger:      logging.Discard(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Server) SetConnTimeout(d time.Duration) {
	s.connTimeout = d
}

func (s *Server) SetLogger(l *log.Logger) {
	s.logger = l
}

func (s *Server) Handle(command string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[command] = handler
}

func (s *Server) Start() error {
	// Remove a stale socket left by a crashed daemon.
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.listener = listener

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop closes the listener, waits for in-flight requests and removes the
// socket file.
func (s *Server) Stop() error {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.socketPath)
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Warn("accept failed", "err", err)
				continue
			}
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in connection handler", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	deadline := time.Now().Add(s.connTimeout)
	_ = conn.SetDeadline(deadline)
	ctx, cancel := context.WithDeadline(s.ctx, deadline)
	defer cancel()

	var req Request
	if err := ReadFrame(conn, &req); err != nil {
		s.logger.Warn("read request failed", "err", err)
		return
	}

	started := time.Now()
	resp := s.processRequest(ctx, &req)
	if resp.Success {
		s.logger.Debug("request served", "command", req.Command, "elapsed", time.Since(started))
	} else {
		s.logger.Info("request failed", "command", req.Command, "code", resp.Error.Code, "elapsed", time.Since(started))
	}

	if err := WriteFrame(conn, resp); err != nil {
		s.logger.Warn("write response failed", "command", req.Command, "err", err)
	}
}

func (s *Server) processRequest(ctx context.Context, req *Request) *Response {
	if req.ProtocolVersion != ProtocolVersion {
		return ErrorResponse(
			ErrCodeProtocolMismatch,
			fmt.Sprintf("protocol version mismatch: got %d, expected %d", req.ProtocolVersion, ProtocolVersion),
		)
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Command]
	s.mu.RUnlock()

	if !ok {
		return ErrorResponse(
			ErrCodeUnknownCommand,
			fmt.Sprintf("unknown command: %q", req.Command),
		)
	}

	resp := handler(ctx, req)
	if resp == nil {
		return ErrorResponse(ErrCodeInternal, fmt.Sprintf("handler for %q returned no response", req.Command))
	}
	return resp
}
