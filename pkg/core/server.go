package core

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/joeydtaylor/steeze-lua/pkg/manifest"
	"github.com/joeydtaylor/steeze-lua/pkg/script"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Server is the top-level value: it owns the interpreter and exposes the
// bridge module to scripts under cfg.Script.Module.
type Server struct {
	cfg    manifest.Config
	deps   Deps
	log    *zap.Logger
	interp *script.Interpreter
	app    atomic.Pointer[App]
}

func NewServer(cfg manifest.Config, deps Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  log,
		interp: script.New(script.Options{
			CallStackSize: cfg.Script.CallStackSize,
			RegistrySize:  cfg.Script.RegistrySize,
			Logger:        log,
		}),
	}
	s.interp.Enter(func(c *script.Call) {
		L := c.State()
		registerRequestType(L)
		registerResponseType(L)
		registerWebSocketType(L)
		L.PreloadModule(cfg.Script.Module, s.loader)
	})
	return s
}

func (s *Server) Interpreter() *script.Interpreter { return s.interp }

// App returns the application context, or nil before create_app.
func (s *Server) App() *App { return s.app.Load() }

// Handler serves the application, or 503 before create_app.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a := s.app.Load()
		if a == nil {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		a.Handler().ServeHTTP(w, r)
	})
}

// RunFile executes the script at path. It returns when the script does,
// which for a script that calls run() is after Shutdown.
func (s *Server) RunFile(path string) error { return s.interp.DoFile(path) }

func (s *Server) RunString(src string) error { return s.interp.DoString(src) }

func (s *Server) Shutdown(ctx context.Context) error {
	a := s.app.Load()
	if a == nil {
		return nil
	}
	return a.Shutdown(ctx)
}

func (s *Server) loader(L *lua.LState) int {
	verbs := map[string]string{
		"get":     http.MethodGet,
		"post":    http.MethodPost,
		"put":     http.MethodPut,
		"patch":   http.MethodPatch,
		"delete":  http.MethodDelete,
		"head":    http.MethodHead,
		"options": http.MethodOptions,
	}
	fns := map[string]lua.LGFunction{
		"create_app": s.luaCreateApp,
		"use":        s.luaUse,
		"ws":         s.luaWS,
		"listen":     s.luaListen,
		"run":        s.luaRun,
	}
	for name, method := range verbs {
		fns[name] = s.luaBind(method)
	}
	L.Push(L.SetFuncs(L.NewTable(), fns))
	return 1
}

func (s *Server) luaCreateApp(L *lua.LState) int {
	if s.app.Load() == nil {
		s.app.Store(newApp(s.cfg, s.deps, s.interp, s.log))
		s.log.Info("application created", zap.String("module", s.cfg.Script.Module))
	}
	L.Push(lua.LTrue)
	return 1
}

// setupApp returns the app when setup calls are still allowed, logging why
// not otherwise.
func (s *Server) setupApp(op string) *App {
	a := s.app.Load()
	if a == nil {
		s.log.Error("module call rejected", zap.String("op", op), zap.Error(ErrEngineUninitialized))
		return nil
	}
	if a.Running() {
		s.log.Error("module call rejected", zap.String("op", op), zap.Error(ErrAlreadyRunning))
		return nil
	}
	return a
}

// luaBind implements get/post/...(pattern, handler[, body_policy]).
func (s *Server) luaBind(method string) lua.LGFunction {
	op := strings.ToLower(method)
	return func(L *lua.LState) int {
		pattern := L.CheckString(1)
		fn := L.CheckFunction(2)
		policy := DefaultPolicy(method)
		if L.GetTop() >= 3 {
			p, err := ParseBodyPolicy(L.CheckString(3))
			if err != nil {
				L.ArgError(3, err.Error())
				return 0
			}
			policy = p
		}
		a := s.setupApp(op)
		if a == nil {
			L.Push(lua.LFalse)
			return 1
		}
		a.Bind(Route{Method: method, Pattern: pattern, Handle: s.interp.Register(fn), Policy: policy})
		s.log.Debug("route bound", zap.String("method", method), zap.String("pattern", pattern), zap.Stringer("policy", policy))
		L.Push(lua.LTrue)
		return 1
	}
}

// luaUse implements use(handler[, pattern]).
func (s *Server) luaUse(L *lua.LState) int {
	fn := L.CheckFunction(1)
	route := L.OptString(2, "")
	a := s.setupApp("use")
	if a == nil {
		L.Push(lua.LFalse)
		return 1
	}
	a.Use(s.interp.Register(fn), route)
	L.Push(lua.LTrue)
	return 1
}

// luaWS implements ws(pattern, handler).
func (s *Server) luaWS(L *lua.LState) int {
	pattern := L.CheckString(1)
	fn := L.CheckFunction(2)
	a := s.setupApp("ws")
	if a == nil {
		L.Push(lua.LFalse)
		return 1
	}
	a.BindWebSocket(pattern, s.interp.Register(fn))
	L.Push(lua.LTrue)
	return 1
}

// luaListen implements listen([port][, callback]). The callback, if any,
// receives the bind result.
func (s *Server) luaListen(L *lua.LState) int {
	port := s.cfg.Server.Port
	var cb *lua.LFunction
	for i := 1; i <= L.GetTop(); i++ {
		switch v := L.Get(i).(type) {
		case lua.LNumber:
			port = int(v)
		case *lua.LFunction:
			cb = v
		}
	}

	a := s.app.Load()
	ok := false
	if a == nil {
		s.log.Error("module call rejected", zap.String("op", "listen"), zap.Error(ErrEngineUninitialized))
	} else if err := a.Listen(port); err != nil {
		s.log.Error("failed to listen", zap.Int("port", port), zap.Error(err))
	} else {
		ok = true
		s.log.Info("listening", zap.Int("port", port), zap.Stringer("addr", a.Addr()))
	}

	if cb != nil {
		h := s.interp.Register(cb)
		s.interp.Guarded(func(c *script.Call) {
			_, _ = c.Invoke(script.KindListen, h, lua.LBool(ok))
		})
	}
	L.Push(lua.LBool(ok))
	return 1
}

// luaRun implements run(). It releases the guard while serving so the
// engine can call back into the script.
func (s *Server) luaRun(L *lua.LState) int {
	a := s.app.Load()
	if a == nil {
		s.log.Error("module call rejected", zap.String("op", "run"), zap.Error(ErrEngineUninitialized))
		L.Push(lua.LFalse)
		return 1
	}
	var err error
	s.interp.Unguarded(func() { err = a.Run() })
	if err != nil {
		s.log.Error("run failed", zap.Error(err))
		L.Push(lua.LFalse)
		return 1
	}
	L.Push(lua.LTrue)
	return 1
}
