package script

import (
	"fmt"
	"strings"

	"github.com/joeydtaylor/steeze-lua/pkg/middleware/metrics"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Kind labels a callback for logs and metrics.
type Kind string

const (
	KindMiddleware Kind = "middleware"
	KindHandler    Kind = "handler"
	KindWebSocket  Kind = "websocket"
	KindListen     Kind = "listen"
)

type Options struct {
	CallStackSize int
	RegistrySize  int
	Logger        *zap.Logger
}

// Interpreter owns one Lua state and serializes all access to it.
type Interpreter struct {
	L        *lua.LState
	guard    Guard
	registry *Registry
	log      *zap.Logger
}

func New(opts Options) *Interpreter {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	L := lua.NewState(lua.Options{
		CallStackSize: opts.CallStackSize,
		RegistrySize:  opts.RegistrySize,
	})
	in := &Interpreter{
		L:        L,
		registry: newRegistry(64),
		log:      log.Named("script"),
	}
	L.SetGlobal("print", L.NewFunction(in.print))
	L.PreloadModule("json", jsonLoader)
	return in
}

func (in *Interpreter) Logger() *zap.Logger { return in.log }

// Call is the capability to run script code. It only exists while the
// guard is held, inside Enter.
type Call struct {
	in *Interpreter
}

// Enter runs fn with the guard held. The guard is released on return,
// including when fn panics.
func (in *Interpreter) Enter(fn func(c *Call)) {
	in.guard.Lock()
	defer in.guard.Unlock()
	fn(&Call{in: in})
}

// Unguarded releases the guard for the duration of fn. It may only be
// called from a Go function the script is currently executing.
func (in *Interpreter) Unguarded(fn func()) {
	in.guard.Unlock()
	defer in.guard.Lock()
	fn()
}

// Guarded runs fn with the guard the caller already holds. Like Unguarded,
// it may only be called from a Go function the script is currently executing.
func (in *Interpreter) Guarded(fn func(c *Call)) {
	fn(&Call{in: in})
}

// Register roots fn in the callback registry. The guard must be held,
// which is always the case inside a Go function called from script code.
func (in *Interpreter) Register(fn *lua.LFunction) Handle {
	return in.registry.Register(fn)
}

func (c *Call) State() *lua.LState { return c.in.L }

// Invoke calls the closure behind h with args and returns its first result.
// Runtime errors come back as *Fault; nothing raised by the script escapes.
func (c *Call) Invoke(kind Kind, h Handle, args ...lua.LValue) (lua.LValue, error) {
	in := c.in
	fn, err := in.registry.Resolve(h)
	if err != nil {
		in.log.DPanic("callback handle not registered",
			zap.String("kind", string(kind)), zap.Int("handle", int(h)))
		metrics.ScriptInvocation(string(kind), metrics.OutcomeUnknown)
		return lua.LNil, err
	}

	L := in.L
	if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...); err != nil {
		in.log.Error("script fault",
			zap.String("kind", string(kind)), zap.Int("handle", int(h)), zap.Error(err))
		metrics.ScriptInvocation(string(kind), metrics.OutcomeFault)
		return lua.LNil, &Fault{Kind: kind, Handle: h, Err: err}
	}
	ret := L.Get(-1)
	L.Pop(1)
	metrics.ScriptInvocation(string(kind), metrics.OutcomeOK)
	return ret, nil
}

// DoFile loads and runs a script under the guard.
func (in *Interpreter) DoFile(path string) (err error) {
	in.Enter(func(c *Call) {
		if e := c.State().DoFile(path); e != nil {
			err = fmt.Errorf("run %s: %w", path, e)
		}
	})
	return err
}

// DoString runs a chunk of source under the guard.
func (in *Interpreter) DoString(src string) (err error) {
	in.Enter(func(c *Call) {
		err = c.State().DoString(src)
	})
	return err
}

// PreloadModule makes require(name) call loader.
func (in *Interpreter) PreloadModule(name string, loader lua.LGFunction) {
	in.Enter(func(c *Call) { c.State().PreloadModule(name, loader) })
}

func (in *Interpreter) Close() {
	in.Enter(func(c *Call) { c.State().Close() })
}

func (in *Interpreter) print(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	in.log.Info(strings.Join(parts, "\t"), zap.String("source", "print"))
	return 0
}
