// pkg/transport/wsx/conn.go
package wsx

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joeydtaylor/steeze-lua/pkg/manifest"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const writeWait = 10 * time.Second

type outbound struct {
	op   int
	data []byte
}

// Conn is one upgraded connection. Send and Close are safe for concurrent
// use and never block on the network.
type Conn struct {
	srv    *Server
	ws     *websocket.Conn
	remote string

	send     chan outbound
	closeReq chan []byte
	stop     chan struct{}
	stopOnce sync.Once
	closing  atomic.Bool

	peerCode int // set by the close handler on the read goroutine
	peerText string

	limiter *rate.Limiter
}

func newConn(s *Server, ws *websocket.Conn, r *http.Request) *Conn {
	c := &Conn{
		srv:      s,
		ws:       ws,
		remote:   r.RemoteAddr,
		send:     make(chan outbound, s.cfg.SendQueue),
		closeReq: make(chan []byte, 1),
		stop:     make(chan struct{}),
	}
	if s.cfg.MaxMessagesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(s.cfg.MaxMessagesPerSecond), s.cfg.Burst)
	}
	if s.cfg.ReadLimit > 0 {
		ws.SetReadLimit(s.cfg.ReadLimit)
	}
	// The server's read timeout still applies to the hijacked conn.
	if s.cfg.PingIntervalMS > 0 {
		pongWait := manifest.Millis(s.cfg.PongWaitMS)
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	} else {
		_ = ws.SetReadDeadline(time.Time{})
	}
	ws.SetCloseHandler(c.onPeerClose)
	return c
}

// onPeerClose records the peer's close frame and echoes it. When the server
// started the handshake the echo fails with ErrCloseSent, which completes it.
func (c *Conn) onPeerClose(code int, text string) error {
	c.peerCode, c.peerText = code, text
	msg := websocket.FormatCloseMessage(code, "")
	err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return nil
}

func (c *Conn) RemoteAddr() string { return c.remote }

// Send queues data as one frame. It returns false once the connection is
// closing or when the send queue is full.
func (c *Conn) Send(data []byte, op Opcode) bool {
	if c.closing.Load() {
		return false
	}
	msg := outbound{op: int(op), data: append([]byte(nil), data...)}
	select {
	case c.send <- msg:
		return true
	default:
		c.srv.log.Warn("websocket send queue full, dropping message",
			zap.String("remoteAddr", c.remote), zap.Int("bytes", len(data)))
		return false
	}
}

// Close starts a normal close handshake after queued messages are written.
// It returns false if the connection was already closing.
func (c *Conn) Close() bool {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

func (c *Conn) closeWith(code int, reason string) bool {
	if !c.closing.CompareAndSwap(false, true) {
		return false
	}
	c.closeReq <- websocket.FormatCloseMessage(code, reason)
	return true
}

// readPump delivers frames until the connection ends and reports the close
// code and reason. A connection lost without a close frame reports 1006.
func (c *Conn) readPump(onMessage func(*Conn, []byte, Opcode)) (int, []byte) {
	for {
		op, data, err := c.ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return ce.Code, []byte(ce.Text)
			}
			if c.peerCode != 0 {
				return c.peerCode, []byte(c.peerText)
			}
			c.srv.log.Debug("websocket read ended", zap.String("remoteAddr", c.remote), zap.Error(err))
			return websocket.CloseAbnormalClosure, nil
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.srv.log.Warn("websocket message rate exceeded, dropping frame",
				zap.String("remoteAddr", c.remote), zap.Int("bytes", len(data)))
			continue
		}
		if onMessage != nil {
			onMessage(c, data, Opcode(op))
		}
	}
}

func (c *Conn) writePump() {
	var tick <-chan time.Time
	if c.srv.cfg.PingIntervalMS > 0 {
		t := time.NewTicker(manifest.Millis(c.srv.cfg.PingIntervalMS))
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case m := <-c.send:
			if !c.write(m) {
				return
			}
		case frame := <-c.closeReq:
			for len(c.send) > 0 {
				if !c.write(<-c.send) {
					return
				}
			}
			_ = c.ws.WriteControl(websocket.CloseMessage, frame, time.Now().Add(writeWait))
			// Give the peer close_grace to answer before the read fails.
			_ = c.ws.SetReadDeadline(time.Now().Add(manifest.Millis(c.srv.cfg.CloseGraceMS)))
		case <-tick:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = c.ws.Close()
				return
			}
		case <-c.stop:
			return
		}
	}
}

func (c *Conn) write(m outbound) bool {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(m.op, m.data); err != nil {
		c.srv.log.Debug("websocket write failed", zap.String("remoteAddr", c.remote), zap.Error(err))
		_ = c.ws.Close()
		return false
	}
	return true
}

// shutdown stops the writer and releases the socket once reading is over.
func (c *Conn) shutdown() {
	c.stopOnce.Do(func() {
		c.closing.Store(true)
		close(c.stop)
		_ = c.ws.Close()
	})
}
