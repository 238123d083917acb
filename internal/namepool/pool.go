package namepool

import "sync"

// Pool allocates unique agent names in the form "<role>-<composer>",
// falling back to "<role>-<n>" once the composer list is exhausted for
// that role. Names are scoped per-role, and there is no persisted
// reservation state — the watcher is single-process, so an in-memory
// used-set (spec.md §4.7) is sufficient.
type Pool struct {
	mu       sync.Mutex
	used     map[string]bool
	overflow map[string]int // role -> next overflow sequence number
}

// New creates an empty Pool.
func New() *Pool {
	return &Pool{
		used:     make(map[string]bool),
		overflow: make(map[string]int),
	}
}

// Allocate returns an unused "<role>-<composer>" name, or an overflow
// name once every composer is taken for that role.
func (p *Pool) Allocate(role string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, composer := range Composers {
		name := role + "-" + composer
		if !p.used[name] {
			p.used[name] = true
			return name
		}
	}

	for {
		p.overflow[role]++
		name := OverflowName(role, p.overflow[role])
		if !p.used[name] {
			p.used[name] = true
			return name
		}
	}
}

// Release returns a name to the available pool.
func (p *Pool) Release(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.used, name)
}

// InUse reports whether a name is currently allocated.
func (p *Pool) InUse(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used[name]
}

// MarkUsed reconciles the pool with externally-discovered state (e.g.
// agents recovered from watcher_state.json on restart).
func (p *Pool) MarkUsed(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.used[name] = true
}
