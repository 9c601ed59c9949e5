package httpx

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/joeydtaylor/steeze-lua/pkg/manifest"
	"go.uber.org/zap"
)

var (
	ErrAlreadyListening = errors.New("engine already listening")
	ErrNotListening     = errors.New("engine not listening")
)

// Engine binds and serves an http.Handler. Listen and Run are split so a
// bind failure can be reported before the blocking serve loop starts.
type Engine struct {
	cfg manifest.Server
	log *zap.Logger
	srv *http.Server

	mu sync.Mutex
	ln net.Listener
}

func NewEngine(cfg manifest.Server, h http.Handler, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		cfg: cfg,
		log: log,
		srv: &http.Server{
			Handler:     h,
			ReadTimeout: manifest.Millis(cfg.ReadTimeoutMS),
			IdleTimeout: manifest.Millis(cfg.IdleTimeoutMS),
			TLSConfig:   &tls.Config{MinVersion: tls.VersionTLS13, MaxVersion: tls.VersionTLS13},
		},
	}
}

// Listen binds the configured host on port (0 picks a free port).
func (e *Engine) Listen(port int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln != nil {
		return ErrAlreadyListening
	}
	ln, err := net.Listen("tcp", e.cfg.Addr(port))
	if err != nil {
		return err
	}
	e.ln = ln
	e.srv.Addr = ln.Addr().String()
	return nil
}

// Addr is the bound address, or nil before Listen.
func (e *Engine) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln == nil {
		return nil
	}
	return e.ln.Addr()
}

// Run serves until Shutdown. It returns nil on a clean shutdown.
func (e *Engine) Run() error {
	e.mu.Lock()
	ln := e.ln
	e.mu.Unlock()
	if ln == nil {
		return ErrNotListening
	}

	var err error
	if e.cfg.TLSCert != "" {
		e.log.Info("server starting (TLS)", zap.String("addr", ln.Addr().String()), zap.String("cert", e.cfg.TLSCert))
		err = e.srv.ServeTLS(ln, e.cfg.TLSCert, e.cfg.TLSKey)
	} else {
		e.log.Info("server starting (PLAINTEXT)", zap.String("addr", ln.Addr().String()))
		err = e.srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// OnShutdown registers fn to run when Shutdown starts. Hijacked connections
// (websockets) are not tracked by net/http and must be closed this way.
func (e *Engine) OnShutdown(fn func()) { e.srv.RegisterOnShutdown(fn) }

func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	ln := e.ln
	e.mu.Unlock()
	err := e.srv.Shutdown(ctx)
	if ln != nil {
		_ = ln.Close()
	}
	return err
}
