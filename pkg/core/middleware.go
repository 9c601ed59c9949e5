package core

import (
	"github.com/joeydtaylor/steeze-lua/pkg/script"
	lua "github.com/yuin/gopher-lua"
)

type middlewareEntry struct {
	handle script.Handle
	global bool
	route  string
}

// Chain holds script middleware in registration order. Entries are only
// added during setup, before the engine dispatches anything.
type Chain struct {
	entries []middlewareEntry
}

// Add appends a global entry, or one scoped to route when route is non-empty.
func (ch *Chain) Add(h script.Handle, route string) {
	ch.entries = append(ch.entries, middlewareEntry{handle: h, global: route == "", route: route})
}

func (ch *Chain) Len() int { return len(ch.entries) }

// Run invokes every entry that applies to route and reports whether the
// handler should run. nil or false halts; a fault is logged by Invoke and
// treated as continue. Scoped entries match on the literal pattern text.
func (ch *Chain) Run(c *script.Call, route string, req, res lua.LValue) bool {
	for _, e := range ch.entries {
		if !e.global && e.route != route {
			continue
		}
		ret, err := c.Invoke(script.KindMiddleware, e.handle, req, res)
		if err != nil {
			continue
		}
		if lua.LVIsFalse(ret) {
			return false
		}
	}
	return true
}
