package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Handle identifies a registered closure. The zero Handle is never issued.
type Handle int

// Registry is an append-only slot table of closures. A registered closure
// stays reachable (and so is never collected) until the interpreter closes.
// Callers must hold the interpreter guard.
type Registry struct {
	slots []*lua.LFunction
}

func newRegistry(capacity int) *Registry {
	return &Registry{slots: make([]*lua.LFunction, 0, capacity)}
}

// Register roots fn and returns its handle.
func (r *Registry) Register(fn *lua.LFunction) Handle {
	r.slots = append(r.slots, fn)
	return Handle(len(r.slots))
}

// Resolve returns the closure for h.
func (r *Registry) Resolve(h Handle) (*lua.LFunction, error) {
	if h <= 0 || int(h) > len(r.slots) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownHandle, h)
	}
	return r.slots[h-1], nil
}

func (r *Registry) Len() int { return len(r.slots) }
