package core

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/joeydtaylor/steeze-lua/pkg/transport/httpx"
	lua "github.com/yuin/gopher-lua"
)

const responseTypeName = "steeze.response"

// responseProxy is the script's view of an in-flight response. Like the
// request proxy it is released when the native invocation returns.
type responseProxy struct {
	res      *httpx.Response
	r        *http.Request
	released bool
}

func registerResponseType(L *lua.LState) {
	mt := L.NewTypeMetatable(responseTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"writeStatus":             resWriteStatus,
		"writeHeader":             resWriteHeader,
		"send":                    resSend,
		"finish":                  resSend,
		"ended":                   resEnded,
		"getRemoteAddress":        resGetRemoteAddress,
		"getProxiedRemoteAddress": resGetProxiedRemoteAddress,
		"closeConnection":         resCloseConnection,
	}))
}

func newResponseProxy(L *lua.LState, p *responseProxy) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = p
	L.SetMetatable(ud, L.GetTypeMetatable(responseTypeName))
	return ud
}

func checkResponse(L *lua.LState, n int) *responseProxy {
	ud := L.CheckUserData(n)
	p, ok := ud.Value.(*responseProxy)
	if !ok {
		L.ArgError(n, "response expected")
		return nil
	}
	if p.released {
		L.RaiseError("response used after its callback returned")
		return nil
	}
	return p
}

// checkOpen additionally rejects writes once the response is terminated.
func checkOpen(L *lua.LState, n int) *responseProxy {
	p := checkResponse(L, n)
	if p.res.Terminated() {
		L.RaiseError("%s", httpx.ErrResponseEnded.Error())
		return nil
	}
	return p
}

// resWriteStatus accepts a code (404) or a status line ("404 Not Found").
func resWriteStatus(L *lua.LState) int {
	p := checkOpen(L, 1)
	var code int
	switch v := L.CheckAny(2).(type) {
	case lua.LNumber:
		code = int(v)
	case lua.LString:
		fields := strings.Fields(string(v))
		if len(fields) > 0 {
			code, _ = strconv.Atoi(fields[0])
		}
	}
	if code < 100 || code > 999 {
		L.ArgError(2, "invalid status")
		return 0
	}
	p.res.SetStatus(code)
	L.Push(L.Get(1))
	return 1
}

func resWriteHeader(L *lua.LState) int {
	p := checkOpen(L, 1)
	p.res.Header().Add(L.CheckString(2), L.CheckString(3))
	L.Push(L.Get(1))
	return 1
}

// resSend writes the body and terminates the response. Terminating twice
// raises an error in the calling script.
func resSend(L *lua.LState) int {
	p := checkOpen(L, 1)
	body := L.OptString(2, "")
	if err := p.res.End([]byte(body)); err != nil {
		L.RaiseError("%s", err.Error())
	}
	return 0
}

func resEnded(L *lua.LState) int {
	p := checkResponse(L, 1)
	L.Push(lua.LBool(p.res.Terminated()))
	return 1
}

func resGetRemoteAddress(L *lua.LState) int {
	p := checkResponse(L, 1)
	L.Push(lua.LString(hostOnly(p.res.RemoteAddr())))
	return 1
}

// resGetProxiedRemoteAddress prefers the first X-Forwarded-For hop, then
// X-Real-IP, then the peer address.
func resGetProxiedRemoteAddress(L *lua.LState) int {
	p := checkResponse(L, 1)
	L.Push(lua.LString(proxiedAddress(p.r)))
	return 1
}

func resCloseConnection(L *lua.LState) int {
	p := checkResponse(L, 1)
	p.res.Close()
	return 0
}

func proxiedAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return hostOnly(r.RemoteAddr)
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
