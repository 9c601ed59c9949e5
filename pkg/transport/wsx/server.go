// pkg/transport/wsx/server.go
package wsx

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/joeydtaylor/steeze-lua/pkg/manifest"
	"go.uber.org/zap"
)

// Opcode selects the frame type of an outbound message.
type Opcode int

const (
	Text   Opcode = websocket.TextMessage
	Binary Opcode = websocket.BinaryMessage
)

// Behavior receives the lifecycle events of one route. Open runs before the
// first Message, and Close runs exactly once after the last Message. All
// three run on the connection's own goroutine.
type Behavior struct {
	Open    func(c *Conn)
	Message func(c *Conn, data []byte, op Opcode)
	Close   func(c *Conn, code int, reason []byte)
}

// Server upgrades requests and tracks live connections.
type Server struct {
	cfg      manifest.WebSocket
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewServer(cfg manifest.WebSocket, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:   cfg,
		log:   log.Named("websocket"),
		conns: make(map[*Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:    cfg.ReadBuffer,
			WriteBufferSize:   cfg.WriteBuffer,
			EnableCompression: cfg.Compression,
		},
	}
	if cfg.AllowAllOrigins {
		s.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
	return s
}

// Handler upgrades the request and drives b for the connection's lifetime.
func (s *Server) Handler(b Behavior) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("websocket upgrade failed",
				zap.String("path", r.URL.Path),
				zap.String("remoteAddr", r.RemoteAddr),
				zap.Error(err))
			return
		}

		c := newConn(s, ws, r)
		s.track(c)
		defer s.untrack(c)

		go c.writePump()

		if b.Open != nil {
			b.Open(c)
		}
		code, reason := c.readPump(b.Message)
		c.shutdown()
		if b.Close != nil {
			b.Close(c, code, reason)
		}
	})
}

// CloseAll starts a going-away close handshake on every live connection.
func (s *Server) CloseAll() {
	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}

// Len is the number of live connections.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(c *Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
