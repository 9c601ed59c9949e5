package core

import (
	"errors"
	"net/http"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	"github.com/joeydtaylor/steeze-lua/pkg/manifest"
	"github.com/joeydtaylor/steeze-lua/pkg/script"
	"github.com/joeydtaylor/steeze-lua/pkg/transport/httpx"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Route binds a verb and pattern to a script handler.
type Route struct {
	Method  string
	Pattern string
	Handle  script.Handle
	Policy  BodyPolicy
}

// dispatch is the native entry point for one route.
func (a *App) dispatch(rt Route) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := httpx.NewResponse(w, r)
		if a.cfg.Server.MaxBodyBytes > 0 && rt.Policy != PolicyNone {
			r.Body = http.MaxBytesReader(w, r.Body, a.cfg.Server.MaxBodyBytes)
		}

		var err error
		switch rt.Policy {
		case PolicyNone:
			a.interp.Enter(func(c *script.Call) {
				a.runRoute(c, rt, r, res)
			})
		case PolicyStreamed:
			halted := false
			err = httpx.ReadBody(r.Body, r.ContentLength, a.cfg.Server.BodyChunkBytes, func(chunk []byte, last bool) bool {
				if res.Terminated() && !res.Ended() {
					return false // connection closed by the script
				}
				// Once halted, the rest of the body is drained unseen.
				if !halted {
					a.interp.Enter(func(c *script.Call) {
						halted = !a.runRoute(c, rt, r, res, lua.LString(chunk), lua.LBool(last))
					})
				}
				return true
			})
		case PolicyAccumulated:
			var body []byte
			err = httpx.ReadBody(r.Body, r.ContentLength, a.cfg.Server.BodyChunkBytes, func(chunk []byte, last bool) bool {
				body = append(body, chunk...)
				if !last {
					return true
				}
				a.interp.Enter(func(c *script.Call) {
					a.runRoute(c, rt, r, res, lua.LString(body))
				})
				return true
			})
		}

		if err != nil {
			a.bodyFailed(rt, r, res, err)
		}
		a.settle(r, res)
	})
}

// runRoute builds fresh proxies, runs the middleware chain and, unless it
// halts, the handler. It reports false when middleware halted.
func (a *App) runRoute(c *script.Call, rt Route, r *http.Request, res *httpx.Response, extra ...lua.LValue) bool {
	L := c.State()
	reqp := &requestProxy{r: r, auth: a.deps.Auth}
	resp := &responseProxy{res: res, r: r}
	defer func() {
		reqp.released = true
		resp.released = true
	}()
	req, out := newRequestProxy(L, reqp), newResponseProxy(L, resp)

	if !a.chain.Run(c, rt.Pattern, req, out) {
		return false
	}

	args := append([]lua.LValue{req, out}, extra...)
	_, err := c.Invoke(script.KindHandler, rt.Handle, args...)
	if err == nil || errors.Is(err, script.ErrUnknownHandle) {
		return true
	}
	if !res.Terminated() {
		res.SetStatus(http.StatusInternalServerError)
		res.Header().Set("Content-Type", "text/plain")
		_ = res.End([]byte("Internal Server Error"))
	}
	return true
}

// bodyFailed handles a body read that ended early. Oversized bodies get a
// native 413; anything else is a peer abort and drops the connection.
func (a *App) bodyFailed(rt Route, r *http.Request, res *httpx.Response, err error) {
	if httpx.IsTooLarge(err) {
		if !res.Terminated() {
			res.SetStatus(http.StatusRequestEntityTooLarge)
			res.Header().Set("Content-Type", "text/plain")
			_ = res.End([]byte("Payload Too Large"))
		}
		return
	}
	a.log.Warn("request aborted",
		zap.String("method", r.Method),
		zap.String("route", rt.Pattern),
		zap.String("requestId", chimd.GetReqID(r.Context())),
		zap.Error(err))
	if !res.Terminated() {
		httpx.Abort()
	}
}

// settle finishes the native side once no more script calls will happen.
// A response nobody terminated is held open, as the client would see a
// hang, until the client leaves, the timeout passes or the app shuts down,
// and is then dropped without writing.
func (a *App) settle(r *http.Request, res *httpx.Response) {
	if res.Aborted() {
		httpx.Abort()
	}
	if res.Terminated() {
		return
	}

	var timeout <-chan time.Time
	if d := manifest.Millis(a.cfg.Server.UnterminatedTimeoutMS); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-r.Context().Done():
	case <-timeout:
		a.log.Debug("dropping unterminated request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("requestId", chimd.GetReqID(r.Context())))
	case <-a.done:
	}
	httpx.Abort()
}
