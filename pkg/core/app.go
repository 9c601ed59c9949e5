package core

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	chimd "github.com/go-chi/chi/v5/middleware"
	"github.com/joeydtaylor/steeze-lua/pkg/manifest"
	"github.com/joeydtaylor/steeze-lua/pkg/middleware/auth"
	"github.com/joeydtaylor/steeze-lua/pkg/middleware/logger"
	hmetrics "github.com/joeydtaylor/steeze-lua/pkg/middleware/metrics"
	"github.com/joeydtaylor/steeze-lua/pkg/script"
	"github.com/joeydtaylor/steeze-lua/pkg/transport/httpx"
	"github.com/joeydtaylor/steeze-lua/pkg/transport/wsx"
	"go.uber.org/zap"
)

// Deps are the native middleware the application is wrapped in. Any of
// them may be nil.
type Deps struct {
	Auth    *auth.Middleware
	LogMW   *logger.Middleware
	Metrics http.Handler
}

// App is the application context created by create_app: the middleware
// chain, route table, engine and live websocket sessions.
type App struct {
	cfg    manifest.Config
	deps   Deps
	log    *zap.Logger
	interp *script.Interpreter

	chain    Chain
	routes   []Route
	router   httpx.Router
	engine   *httpx.Engine
	ws       *wsx.Server
	sessions *Sessions

	listening atomic.Bool
	running   atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once
}

func newApp(cfg manifest.Config, deps Deps, interp *script.Interpreter, log *zap.Logger) *App {
	a := &App{
		cfg:      cfg,
		deps:     deps,
		log:      log,
		interp:   interp,
		router:   httpx.NewChi(),
		ws:       wsx.NewServer(cfg.WebSocket, log),
		sessions: newSessions(),
		done:     make(chan struct{}),
	}
	a.buildRouter()
	a.engine = httpx.NewEngine(cfg.Server, a.router.Mux(), log)
	a.engine.OnShutdown(a.ws.CloseAll)
	return a
}

// buildRouter installs the native middleware stack. It runs outside the
// script guard.
func (a *App) buildRouter() {
	r := a.router
	r.Use(chimd.RequestID, chimd.Recoverer)
	if hb := a.cfg.Server.HeartbeatPath; hb != "" {
		r.Use(chimd.Heartbeat(hb))
	}
	if a.deps.Auth != nil {
		r.Use(a.deps.Auth.Middleware())
	}
	if a.deps.LogMW != nil {
		r.Use(a.deps.LogMW.Middleware(a.deps.Auth))
	}
	if a.cfg.Metrics.Enabled {
		// metrics collector that references auth state without copying it
		r.Use(hmetrics.Collect(a.deps.Auth))
		if a.deps.Metrics != nil {
			hmetrics.AddMetricsSkipPaths(a.cfg.Metrics.Path)
			r.Get(a.cfg.Metrics.Path, a.deps.Metrics)
		}
	}
}

// Bind records a route and registers it with the router. A later binding
// for the same verb and pattern replaces the earlier one.
func (a *App) Bind(rt Route) {
	a.routes = append(a.routes, rt)
	a.router.Handle(rt.Method, routerPattern(rt.Pattern), a.dispatch(rt))
}

// BindWebSocket upgrades GET requests on pattern and routes their events
// to h.
func (a *App) BindWebSocket(pattern string, h script.Handle) {
	a.router.Handle(http.MethodGet, routerPattern(pattern), a.ws.Handler(a.websocketBehavior(pattern, h)))
}

// Use adds script middleware; an empty route makes it global.
func (a *App) Use(h script.Handle, route string) { a.chain.Add(h, route) }

func (a *App) Routes() []Route { return append([]Route(nil), a.routes...) }

func (a *App) Sessions() *Sessions { return a.sessions }

// Handler is the full native handler, middleware included.
func (a *App) Handler() http.Handler { return a.router.Mux() }

func (a *App) Listen(port int) error {
	if err := a.engine.Listen(port); err != nil {
		return err
	}
	a.listening.Store(true)
	return nil
}

// Addr is the bound address, or nil before Listen.
func (a *App) Addr() net.Addr { return a.engine.Addr() }

func (a *App) Running() bool { return a.running.Load() }

// Run serves until Shutdown.
func (a *App) Run() error {
	if !a.listening.Load() {
		return ErrEngineUninitialized
	}
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	return a.engine.Run()
}

// Shutdown stops the engine, starts closing websocket sessions and drops
// requests held open without a response.
func (a *App) Shutdown(ctx context.Context) error {
	a.doneOnce.Do(func() { close(a.done) })
	return a.engine.Shutdown(ctx)
}
