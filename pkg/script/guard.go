package script

import (
	"sync"
	"time"

	"github.com/joeydtaylor/steeze-lua/pkg/middleware/metrics"
)

// Guard is the single lock around every entry into the interpreter.
// It is not reentrant.
type Guard struct {
	mu sync.Mutex
}

func (g *Guard) Lock() {
	start := time.Now()
	g.mu.Lock()
	metrics.ObserveGuardWait(time.Since(start))
}

func (g *Guard) Unlock() { g.mu.Unlock() }
