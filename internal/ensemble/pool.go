package ensemble

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Pool holds the live agent set. Reads are lock-free against an immutable
// map snapshot; writers clone, mutate and publish a fresh map under a single
// writer mutex, so a concurrent reader observes either the fully-old or
// fully-new set, never a partial one.
type Pool struct {
	writeMu sync.Mutex
	agents  atomic.Pointer[map[string]*Agent]
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	p := &Pool{}
	empty := make(map[string]*Agent)
	p.agents.Store(&empty)
	return p
}

// Snapshot returns the current agent map. Callers must treat it as read-only.
func (p *Pool) Snapshot() map[string]*Agent {
	return *p.agents.Load()
}

// Get returns the agent for name, or nil.
func (p *Pool) Get(name string) *Agent {
	return (*p.agents.Load())[name]
}

// Len returns the number of live agents.
func (p *Pool) Len() int {
	return len(*p.agents.Load())
}

// Names returns the live agent names, sorted.
func (p *Pool) Names() []string {
	snap := *p.agents.Load()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Replace installs agent under its name as one atomic map swap. Used at boot
// and by the hot-swap controller; the name never resolves to nothing mid-swap.
func (p *Pool) Replace(agent *Agent) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	old := *p.agents.Load()
	next := make(map[string]*Agent, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[agent.Name] = agent
	p.agents.Store(&next)
}

// SetWeight replaces the named agent with a re-weighted copy. No-op if the
// agent is not in the pool.
func (p *Pool) SetWeight(name string, weight float64) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	old := *p.agents.Load()
	agent, ok := old[name]
	if !ok {
		return
	}

	next := make(map[string]*Agent, len(old))
	for k, v := range old {
		next[k] = v
	}
	next[name] = agent.WithWeight(weight)
	p.agents.Store(&next)
}

// Remove drops the named agent from the pool.
func (p *Pool) Remove(name string) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	old := *p.agents.Load()
	if _, ok := old[name]; !ok {
		return
	}

	next := make(map[string]*Agent, len(old))
	for k, v := range old {
		if k != name {
			next[k] = v
		}
	}
	p.agents.Store(&next)
}
