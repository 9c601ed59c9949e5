package core

import (
	"github.com/joeydtaylor/steeze-lua/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-lua/pkg/script"
	"github.com/joeydtaylor/steeze-lua/pkg/transport/wsx"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

const websocketTypeName = "steeze.websocket"

func registerWebSocketType(L *lua.LState) {
	mt := L.NewTypeMetatable(websocketTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"send":             wsSend,
		"close":            wsClose,
		"get_id":           wsGetID,
		"state":            wsState,
		"getRemoteAddress": wsGetRemoteAddress,
	}))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		s := checkSession(L, 1)
		L.Push(lua.LString("websocket " + s.ID))
		return 1
	}))
}

func checkSession(L *lua.LState, n int) *Session {
	ud := L.CheckUserData(n)
	s, ok := ud.Value.(*Session)
	if !ok {
		L.ArgError(n, "websocket expected")
		return nil
	}
	return s
}

// wsSend queues a frame; kind is "text" (default) or "binary". It returns
// false once the session is no longer open.
func wsSend(L *lua.LState) int {
	s := checkSession(L, 1)
	data := L.CheckString(2)
	op := wsx.Text
	if L.OptString(3, "text") == "binary" {
		op = wsx.Binary
	}
	if s.state != Open {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LBool(s.conn.Send([]byte(data), op)))
	return 1
}

func wsClose(L *lua.LState) int {
	s := checkSession(L, 1)
	if s.state != Open {
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LBool(s.conn.Close()))
	return 1
}

func wsGetID(L *lua.LState) int {
	L.Push(lua.LString(checkSession(L, 1).ID))
	return 1
}

// wsState returns the per-session table scripts can keep data in.
func wsState(L *lua.LState) int {
	L.Push(checkSession(L, 1).userState)
	return 1
}

func wsGetRemoteAddress(L *lua.LState) int {
	L.Push(lua.LString(hostOnly(checkSession(L, 1).conn.RemoteAddr())))
	return 1
}

// websocketBehavior drives the open, message and close events of one
// route through the script handler h.
func (a *App) websocketBehavior(pattern string, h script.Handle) wsx.Behavior {
	log := a.log.With(zap.String("route", pattern))
	return wsx.Behavior{
		Open: func(conn *wsx.Conn) {
			s, err := a.sessions.open(conn)
			if err != nil {
				log.Error("websocket session id", zap.Error(err))
				conn.Close()
				return
			}
			metrics.SessionOpened()
			a.interp.Enter(func(c *script.Call) {
				L := c.State()
				s.userState = L.NewTable()
				s.proxy = L.NewUserData()
				s.proxy.Value = s
				L.SetMetatable(s.proxy, L.GetTypeMetatable(websocketTypeName))
				s.state = Open
				_, _ = c.Invoke(script.KindWebSocket, h, lua.LString("open"), s.proxy)
			})
		},
		Message: func(conn *wsx.Conn, data []byte, _ wsx.Opcode) {
			s := a.sessions.lookup(conn)
			if s == nil {
				return
			}
			a.interp.Enter(func(c *script.Call) {
				_, _ = c.Invoke(script.KindWebSocket, h, lua.LString("message"), s.proxy, lua.LString(data))
			})
		},
		Close: func(conn *wsx.Conn, code int, reason []byte) {
			s := a.sessions.lookup(conn)
			if s == nil {
				return
			}
			a.interp.Enter(func(c *script.Call) {
				s.state = Closed
				_, _ = c.Invoke(script.KindWebSocket, h, lua.LString("close"), s.proxy, lua.LNumber(code), lua.LString(reason))
			})
			a.sessions.remove(s)
			metrics.SessionClosed()
			log.Debug("websocket session closed", zap.String("session", s.ID), zap.Int("code", code))
		},
	}
}
