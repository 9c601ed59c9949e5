package script

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestInterpreter(t *testing.T) (*Interpreter, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	in := New(Options{Logger: zap.New(core)})
	t.Cleanup(in.Close)
	return in, logs
}

// register evaluates src (which must return a function) and roots it.
func register(t *testing.T, in *Interpreter, src string) Handle {
	t.Helper()
	var h Handle
	in.Enter(func(c *Call) {
		L := c.State()
		require.NoError(t, L.DoString("return "+src))
		fn := L.CheckFunction(-1)
		L.Pop(1)
		h = in.Register(fn)
	})
	return h
}

func TestRegistryHandlesAreMonotonic(t *testing.T) {
	r := newRegistry(0)
	L := lua.NewState()
	defer L.Close()

	a := r.Register(L.NewFunction(func(*lua.LState) int { return 0 }))
	b := r.Register(L.NewFunction(func(*lua.LState) int { return 0 }))
	assert.Equal(t, Handle(1), a)
	assert.Equal(t, Handle(2), b)
	assert.Equal(t, 2, r.Len())

	_, err := r.Resolve(0)
	assert.ErrorIs(t, err, ErrUnknownHandle)
	_, err = r.Resolve(3)
	assert.ErrorIs(t, err, ErrUnknownHandle)
}

func TestInvokeReturnsFirstResult(t *testing.T) {
	in, _ := newTestInterpreter(t)
	h := register(t, in, `function(a, b) return a .. b, "ignored" end`)

	in.Enter(func(c *Call) {
		top := c.State().GetTop()
		v, err := c.Invoke(KindHandler, h, lua.LString("ab"), lua.LString("cd"))
		require.NoError(t, err)
		assert.Equal(t, lua.LString("abcd"), v)
		assert.Equal(t, top, c.State().GetTop(), "stack is balanced")
	})
}

func TestInvokeFaultIsLoggedAndWrapped(t *testing.T) {
	in, logs := newTestInterpreter(t)
	h := register(t, in, `function() error("boom") end`)

	in.Enter(func(c *Call) {
		top := c.State().GetTop()
		v, err := c.Invoke(KindMiddleware, h)
		assert.Equal(t, lua.LNil, v)

		var f *Fault
		require.True(t, errors.As(err, &f))
		assert.Equal(t, KindMiddleware, f.Kind)
		assert.Equal(t, h, f.Handle)
		assert.Contains(t, err.Error(), "boom")
		assert.Equal(t, top, c.State().GetTop())
	})

	faults := logs.FilterMessage("script fault").All()
	require.Len(t, faults, 1)
	assert.Equal(t, "middleware", faults[0].ContextMap()["kind"])
}

func TestInvokeUnknownHandle(t *testing.T) {
	in, logs := newTestInterpreter(t)
	in.Enter(func(c *Call) {
		_, err := c.Invoke(KindWebSocket, 42)
		assert.ErrorIs(t, err, ErrUnknownHandle)
	})
	entries := logs.FilterMessage("callback handle not registered").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DPanicLevel, entries[0].Level)
}

func TestGuardSerializesInvocations(t *testing.T) {
	in, _ := newTestInterpreter(t)

	var active, peak int32
	in.Enter(func(c *Call) {
		L := c.State()
		L.SetGlobal("probe_enter", L.NewFunction(func(*lua.LState) int {
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			return 0
		}))
		L.SetGlobal("probe_exit", L.NewFunction(func(*lua.LState) int {
			atomic.AddInt32(&active, -1)
			return 0
		}))
	})
	h := register(t, in, `function() probe_enter(); probe_exit(); return true end`)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in.Enter(func(c *Call) {
				_, err := c.Invoke(KindHandler, h)
				assert.NoError(t, err)
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestUnguardedLetsOthersIn(t *testing.T) {
	in, _ := newTestInterpreter(t)
	h := register(t, in, `function() return "served" end`)

	got := make(chan lua.LValue, 1)
	in.Enter(func(c *Call) {
		in.Unguarded(func() {
			go in.Enter(func(c *Call) {
				v, _ := c.Invoke(KindHandler, h)
				got <- v
			})
			select {
			case v := <-got:
				assert.Equal(t, lua.LString("served"), v)
			case <-time.After(2 * time.Second):
				t.Fatal("guard was not released")
			}
		})
	})
}

func TestPrintGoesToLogger(t *testing.T) {
	in, logs := newTestInterpreter(t)
	require.NoError(t, in.DoString(`print("hello", 42, nil)`))
	entries := logs.FilterField(zap.String("source", "print")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "hello\t42\tnil", entries[0].Message)
}

func TestGuardedInvokesFromScriptCode(t *testing.T) {
	in, logs := newTestInterpreter(t)
	var got []lua.LValue
	in.Enter(func(c *Call) {
		c.State().SetGlobal("callback", c.State().NewFunction(func(L *lua.LState) int {
			h := in.Register(L.CheckFunction(1))
			in.Guarded(func(c *Call) {
				v, _ := c.Invoke(KindListen, h, lua.LTrue)
				got = append(got, v)
			})
			return 0
		}))
	})
	require.NoError(t, in.DoString(`
		callback(function(ok) return ok and "bound" or "failed" end)
		callback(function() error("listener broke") end)
	`))
	assert.Equal(t, []lua.LValue{lua.LString("bound"), lua.LNil}, got)
	faults := logs.FilterMessage("script fault").FilterField(zap.String("kind", "listen")).Len()
	assert.Equal(t, 1, faults)
}
