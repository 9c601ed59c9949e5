package core

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joeydtaylor/steeze-lua/pkg/script"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

var sessionIDPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{16}$`)

func wsURL(f *fixture, path string) string {
	return "ws" + strings.TrimPrefix(f.url, "http") + path
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// events returns the script's events table as a Go slice.
func (f *fixture) events() []string {
	var out []string
	f.srv.Interpreter().Enter(func(c *script.Call) {
		t, ok := c.State().GetGlobal("events").(*lua.LTable)
		if !ok {
			return
		}
		t.ForEach(func(_, v lua.LValue) { out = append(out, v.String()) })
	})
	return out
}

func TestWebSocketEventOrder(t *testing.T) {
	f := start(t, `
		events = {}
		app.ws("/chat", function(event, ws, a, b)
			if event == "open" then
				events[#events+1] = "open"
			elseif event == "message" then
				events[#events+1] = "message(" .. a .. ")"
				ws:send("echo:" .. a)
			elseif event == "close" then
				events[#events+1] = "close(" .. a .. "," .. b .. ")"
				closed_send = ws:send("late")
				closed_close = ws:close()
			end
		end)
	`)
	c := dialWS(t, wsURL(f, "/chat"))

	for _, m := range []string{"m1", "m2"} {
		require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(m)))
		_, got, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, "echo:"+m, string(got))
	}
	require.NoError(t, c.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	require.Eventually(t, func() bool { return len(f.events()) == 4 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"open", "message(m1)", "message(m2)", "close(1000,bye)"}, f.events())
	assert.Equal(t, lua.LFalse, f.global("closed_send"))
	assert.Equal(t, lua.LFalse, f.global("closed_close"))
	assert.Eventually(t, func() bool { return f.srv.App().Sessions().Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketSessionIDsUnique(t *testing.T) {
	f := start(t, `
		app.ws("/id", function(event, ws)
			if event == "open" then ws:send(ws:get_id()) end
		end)
	`)

	const n = 20
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		c := dialWS(t, wsURL(f, "/id"))
		_, id, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Regexp(t, sessionIDPattern, string(id))
		assert.False(t, seen[string(id)], "duplicate id %s", id)
		seen[string(id)] = true

		s, ok := f.srv.App().Sessions().Get(string(id))
		require.True(t, ok)
		assert.Equal(t, Open, s.State())
	}
	assert.Equal(t, n, f.srv.App().Sessions().Len())
}

func TestWebSocketStateAndBinarySend(t *testing.T) {
	f := start(t, `
		app.ws("/count", function(event, ws, data)
			local st = ws:state()
			if event == "open" then
				st.count = 0
			elseif event == "message" then
				st.count = st.count + 1
				ws:send(tostring(st.count), "binary")
				if data == "stop" then ws:close() end
			end
		end)
	`)
	c := dialWS(t, wsURL(f, "/count"))

	for i, m := range []string{"a", "b", "stop"} {
		require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(m)))
		op, got, err := c.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.BinaryMessage, op)
		assert.Equal(t, string(rune('1'+i)), string(got))
	}

	_, _, err := c.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)
}

func TestWebSocketFaultIsSwallowed(t *testing.T) {
	f := start(t, `
		app.ws("/fragile", function(event, ws, data)
			if event == "message" and data == "explode" then error("socket handler broke") end
			if event == "message" then ws:send("still here") end
		end)
	`)
	c := dialWS(t, wsURL(f, "/fragile"))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("explode")))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("again")))
	_, got, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "still here", string(got))
	assert.Equal(t, 1, f.logs.FilterMessage("script fault").Len())
}

func TestSessionIDFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		id, err := newSessionID()
		require.NoError(t, err)
		assert.Len(t, id, 40)
		assert.Regexp(t, sessionIDPattern, id)
	}
}

func TestWebSocketScriptCloseReportsNormalClosure(t *testing.T) {
	f := start(t, `
		events = {}
		app.ws("/bye", function(event, ws, a, b)
			if event == "message" then
				events[#events+1] = "message(" .. a .. ")"
				ws:close()
			elseif event == "close" then
				events[#events+1] = "close(" .. a .. "," .. b .. ")"
			end
		end)
	`)
	c := dialWS(t, wsURL(f, "/bye"))

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("leave")))
	_, _, err := c.ReadMessage()
	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseNormalClosure, ce.Code)

	require.Eventually(t, func() bool { return len(f.events()) == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"message(leave)", "close(1000,)"}, f.events())
}
