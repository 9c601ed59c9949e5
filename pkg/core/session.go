package core

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/joeydtaylor/steeze-lua/pkg/transport/wsx"
	lua "github.com/yuin/gopher-lua"
)

// SessionState is the lifecycle position of a websocket session.
type SessionState int

const (
	Opening SessionState = iota
	Open
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Opening:
		return "opening"
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// Session is the server-side record of one websocket connection. Its
// state, proxy and user state are only touched with the guard held.
type Session struct {
	ID    string
	conn  *wsx.Conn
	state SessionState

	proxy     *lua.LUserData
	userState *lua.LTable
}

func (s *Session) State() SessionState { return s.state }

// Sessions indexes live sessions by id and by connection.
type Sessions struct {
	mu     sync.Mutex
	byID   map[string]*Session
	byConn map[*wsx.Conn]*Session
}

func newSessions() *Sessions {
	return &Sessions{
		byID:   make(map[string]*Session),
		byConn: make(map[*wsx.Conn]*Session),
	}
}

// open allocates a session in the Opening state with an id that no live
// session uses.
func (ss *Sessions) open(conn *wsx.Conn) (*Session, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for {
		id, err := newSessionID()
		if err != nil {
			return nil, err
		}
		if _, taken := ss.byID[id]; taken {
			continue
		}
		s := &Session{ID: id, conn: conn, state: Opening}
		ss.byID[id] = s
		ss.byConn[conn] = s
		return s, nil
	}
}

func (ss *Sessions) lookup(conn *wsx.Conn) *Session {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.byConn[conn]
}

func (ss *Sessions) remove(s *Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.byID, s.ID)
	delete(ss.byConn, s.conn)
}

// Get returns the live session with id.
func (ss *Sessions) Get(id string) (*Session, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	s, ok := ss.byID[id]
	return s, ok
}

func (ss *Sessions) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.byID)
}

// newSessionID returns 36 random hex digits grouped 8-4-4-4-16. The
// grouping is cosmetic; no UUID version or variant bits are set.
func newSessionID() (string, error) {
	var b [18]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	h := hex.EncodeToString(b[:])
	return h[0:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:36], nil
}
