package core

import (
	"net/http"
	"strings"

	"github.com/joeydtaylor/steeze-lua/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-lua/pkg/script"
	"github.com/joeydtaylor/steeze-lua/pkg/transport/httpx"
	lua "github.com/yuin/gopher-lua"
)

const requestTypeName = "steeze.request"

// requestProxy is the script's view of an in-flight request. It is only
// valid during the native invocation that created it.
type requestProxy struct {
	r        *http.Request
	auth     *auth.Middleware
	released bool
}

func registerRequestType(L *lua.LState) {
	methods := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"getHeader":    reqGetHeader,
		"setHeader":    reqSetHeader,
		"getUrl":       reqGetURL,
		"getMethod":    reqGetMethod,
		"getQuery":     reqGetQuery,
		"getParameter": reqGetParameter,
		"getUser":      reqGetUser,
	})
	mt := L.NewTypeMetatable(requestTypeName)
	L.SetField(mt, "__index", L.NewFunction(func(L *lua.LState) int {
		p := checkRequest(L, 1)
		switch key := L.CheckString(2); key {
		case "method":
			L.Push(lua.LString(strings.ToLower(p.r.Method)))
		case "url":
			L.Push(lua.LString(p.r.URL.Path))
		case "query":
			L.Push(lua.LString(p.r.URL.RawQuery))
		default:
			L.Push(methods.RawGetString(key))
		}
		return 1
	}))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		p := checkRequest(L, 1)
		L.Push(lua.LString("request " + p.r.Method + " " + p.r.URL.Path))
		return 1
	}))
}

func newRequestProxy(L *lua.LState, p *requestProxy) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = p
	L.SetMetatable(ud, L.GetTypeMetatable(requestTypeName))
	return ud
}

func checkRequest(L *lua.LState, n int) *requestProxy {
	ud := L.CheckUserData(n)
	p, ok := ud.Value.(*requestProxy)
	if !ok {
		L.ArgError(n, "request expected")
		return nil
	}
	if p.released {
		L.RaiseError("request used after its callback returned")
		return nil
	}
	return p
}

func reqGetHeader(L *lua.LState) int {
	p := checkRequest(L, 1)
	L.Push(lua.LString(p.r.Header.Get(L.CheckString(2))))
	return 1
}

// reqSetHeader rewrites a request header; later middleware and the handler
// observe the new value.
func reqSetHeader(L *lua.LState) int {
	p := checkRequest(L, 1)
	p.r.Header.Set(L.CheckString(2), L.CheckString(3))
	L.Push(L.Get(1))
	return 1
}

func reqGetURL(L *lua.LState) int {
	p := checkRequest(L, 1)
	L.Push(lua.LString(p.r.URL.Path))
	return 1
}

func reqGetMethod(L *lua.LState) int {
	p := checkRequest(L, 1)
	L.Push(lua.LString(strings.ToLower(p.r.Method)))
	return 1
}

// reqGetQuery returns the raw query string, or the first value of key.
func reqGetQuery(L *lua.LState) int {
	p := checkRequest(L, 1)
	if L.GetTop() < 2 {
		L.Push(lua.LString(p.r.URL.RawQuery))
		return 1
	}
	vals, ok := p.r.URL.Query()[L.CheckString(2)]
	if !ok || len(vals) == 0 {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(vals[0]))
	return 1
}

// reqGetParameter looks a path parameter up by name, or by zero-based
// position when given a number.
func reqGetParameter(L *lua.LState) int {
	p := checkRequest(L, 1)
	keys, values := httpx.PathParams(p.r)
	switch v := L.CheckAny(2).(type) {
	case lua.LNumber:
		i := int(v)
		if i < 0 || i >= len(values) {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(lua.LString(values[i]))
	default:
		name := L.CheckString(2)
		for i, k := range keys {
			if k == name {
				L.Push(lua.LString(values[i]))
				return 1
			}
		}
		L.Push(lua.LNil)
	}
	return 1
}

// reqGetUser returns the authenticated user as a table, or nil.
func reqGetUser(L *lua.LState) int {
	p := checkRequest(L, 1)
	if p.auth == nil || !p.auth.IsAuthenticated(p.r.Context()) {
		L.Push(lua.LNil)
		return 1
	}
	u := p.auth.GetUser(p.r.Context())
	L.Push(script.FromGo(L, map[string]any{
		"username": u.Username,
		"role":     u.Role.Name,
		"provider": u.AuthenticationSource.Provider,
		"admin":    p.auth.IsAdmin(p.r.Context()),
	}))
	return 1
}
