package ipc

import (
	"net"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/kartikbazzad/chronodb/internal/chronodb"
	"github.com/kartikbazzad/chronodb/internal/config"
	"github.com/kartikbazzad/chronodb/internal/logger"
	"github.com/kartikbazzad/chronodb/internal/metrics"
)

// Server accepts unix-socket connections and feeds frames to the handler.
// Connection handlers run on a bounded goroutine pool when MaxConnections
// is set.
type Server struct {
	cfg         *config.Config
	logger      *logger.Logger
	handler     *Handler
	listener    net.Listener
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
	connections map[net.Conn]bool
	connMu      sync.Mutex
	connPool    *ants.Pool
}

func NewServer(db *chronodb.DB, cfg *config.Config, log *logger.Logger) *Server {
	return &Server{
		cfg:         cfg,
		logger:      log,
		handler:     NewHandler(db, log.With("handler")),
		connections: make(map[net.Conn]bool),
	}
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := os.RemoveAll(s.cfg.IPC.SocketPath); err != nil {
		s.logger.Warn("Failed to remove old socket: %v", err)
	}

	listener, err := net.Listen("unix", s.cfg.IPC.SocketPath)
	if err != nil {
		return err
	}
	s.listener = listener
	s.running = true

	if s.cfg.IPC.MaxConnections > 0 {
		connPool, err := ants.NewPool(s.cfg.IPC.MaxConnections, ants.WithPanicHandler(func(v any) {
			s.logger.Error("Connection handler panic: %v", v)
		}))
		if err == nil {
			s.connPool = connPool
		}
	}

	s.logger.Info("IPC server listening on %s", s.cfg.IPC.SocketPath)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.running = false
	s.mu.Unlock()

	// Close active connections to unblock pending reads.
	s.connMu.Lock()
	for conn := range s.connections {
		conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()

	if s.connPool != nil {
		_ = s.connPool.ReleaseTimeout(3 * time.Second)
		s.connPool = nil
	}

	s.logger.Info("IPC server stopped")
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return
			}
			s.logger.Error("Accept error: %v", err)
			continue
		}

		s.connMu.Lock()
		s.connections[conn] = true
		s.connMu.Unlock()

		s.wg.Add(1)
		if s.connPool != nil {
			conn := conn
			if err := s.connPool.Submit(func() {
				defer s.wg.Done()
				s.handleConnection(conn)
			}); err != nil {
				s.wg.Done()
				conn.Close()
				s.connMu.Lock()
				delete(s.connections, conn)
				s.connMu.Unlock()
				s.logger.Error("Failed to submit connection handler: %v", err)
			}
		} else {
			go func() {
				defer s.wg.Done()
				s.handleConnection(conn)
			}()
		}
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	metrics.IPCConnectionStarted()
	defer func() {
		conn.Close()
		s.connMu.Lock()
		delete(s.connections, conn)
		s.connMu.Unlock()
		metrics.IPCConnectionEnded()
	}()

	for {
		data, err := ReadFrame(conn)
		if err != nil {
			s.logger.Debug("Connection closed: %v", err)
			return
		}

		frame, err := DecodeRequest(data)
		if err != nil {
			s.logger.Error("Failed to decode request: %v", err)
			continue
		}

		response := s.handler.Handle(frame)
		responseData, err := EncodeResponse(response)
		if err != nil {
			s.logger.Error("Failed to encode response: %v", err)
			continue
		}

		if err := WriteFrame(conn, responseData); err != nil {
			s.logger.Error("Failed to write response: %v", err)
			return
		}
	}
}
