package roll

import (
	"sync"
	"time"
)

// connRegistry tracks live connections and sweeps idle ones, mirroring
// the mutex-guarded map idiom the teacher uses for its per-key locks
// (store.MemoryStore.producerLocks). Ticker-driven sweeping keeps the
// hot path (DataReceived) free of per-byte deadline bookkeeping.
type connRegistry struct {
	mu          sync.Mutex
	conns       map[string]*Connection
	idleTimeout time.Duration

	stop chan struct{}
	done chan struct{}
}

const defaultIdleTimeout = 10 * time.Second
const idleSweepInterval = 500 * time.Millisecond

func newConnRegistry(idleTimeout time.Duration) *connRegistry {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	r := &connRegistry{
		conns:       make(map[string]*Connection),
		idleTimeout: idleTimeout,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

func (r *connRegistry) add(c *Connection) {
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()
}

func (r *connRegistry) remove(c *Connection) {
	r.mu.Lock()
	delete(r.conns, c.id)
	r.mu.Unlock()
}

func (r *connRegistry) snapshot() []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *connRegistry) sweepLoop() {
	defer close(r.done)
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sweepOnce()
		case <-r.stop:
			return
		}
	}
}

func (r *connRegistry) sweepOnce() {
	deadline := time.Now().Add(-r.idleTimeout)
	for _, c := range r.snapshot() {
		if c.idleSince().Before(deadline) {
			c.closeIdle()
		}
	}
}

// shutdown stops the sweep goroutine and closes every tracked connection.
func (r *connRegistry) shutdown() {
	close(r.stop)
	<-r.done
	for _, c := range r.snapshot() {
		c.closeIdle()
	}
}
