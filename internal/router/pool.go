package router

import "sync"

// Pool is the Router's live membership: a name-keyed map of Instance,
// guarded by one RWMutex (spec §5). Per-instance scalar mutation goes
// through Instance's own guard, so proxy selection never blocks behind
// a sync or health-check tick except at add/remove.
type Pool struct {
	mu        sync.RWMutex
	instances map[string]*Instance
	// order preserves a stable iteration order for WRR tie-breaking
	// (spec §4.9: "insertion or lexicographic by name").
	order []string
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{instances: make(map[string]*Instance)}
}

// LoadStatic seeds the pool with statically-configured entries (spec
// §6's services file). Each is marked static so Registry sync never
// removes it.
func (p *Pool) LoadStatic(entries []StaticEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		metadata := e.Metadata
		if metadata == nil {
			metadata = map[string]any{}
		}
		metadata["static"] = true
		inst := NewInstance(e.Name, e.Host, e.Port, e.Weight, metadata)
		p.insertLocked(inst)
	}
}

func (p *Pool) insertLocked(inst *Instance) {
	if _, exists := p.instances[inst.Name]; !exists {
		p.order = append(p.order, inst.Name)
	}
	p.instances[inst.Name] = inst
}

// Get returns the instance by name, or nil.
func (p *Pool) Get(name string) *Instance {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.instances[name]
}

// Upsert inserts a new instance or returns the existing one by name so
// callers (the sync loop) can apply an update to it.
func (p *Pool) Upsert(name string, create func() *Instance) (inst *Instance, created bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.instances[name]; ok {
		return existing, false
	}
	inst = create()
	p.insertLocked(inst)
	return inst, true
}

// Remove deletes an instance by name.
func (p *Pool) Remove(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.instances[name]; !ok {
		return
	}
	delete(p.instances, name)
	for idx, n := range p.order {
		if n == name {
			p.order = append(p.order[:idx], p.order[idx+1:]...)
			break
		}
	}
}

// All returns every instance in stable order.
func (p *Pool) All() []*Instance {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Instance, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.instances[name])
	}
	return out
}

// Names returns the set of instance names currently in the pool, for
// the sync loop's absence detection.
func (p *Pool) Names() map[string]struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]struct{}, len(p.instances))
	for name := range p.instances {
		out[name] = struct{}{}
	}
	return out
}

// StaticEntry is one record from the static services file (spec §6).
type StaticEntry struct {
	Name     string         `json:"name" yaml:"name"`
	Host     string         `json:"host" yaml:"host"`
	Port     int            `json:"port" yaml:"port"`
	Weight   int            `json:"weight,omitempty" yaml:"weight,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}
