package router

import (
	"hash/fnv"
	"sync/atomic"
)

// DefaultCacheTypeRoutingThreshold is the message-size cutoff between
// the "static" and "paged" cache_type tiers (spec §4.8, env override
// CACHE_TYPE_ROUTING_THRESHOLD).
const DefaultCacheTypeRoutingThreshold = 51200

// Selector implements the Router's tiered candidate selection (spec
// §4.8 step 4, §4.9): size-based cache-type routing, session affinity,
// and weighted round-robin, each tier falling through to the next on a
// miss.
type Selector struct {
	pool    *Pool
	counter uint64
}

// NewSelector creates a selector backed by pool.
func NewSelector(pool *Pool) *Selector {
	return &Selector{pool: pool}
}

// SelectionInput carries the signals §4.8's tiers consume.
type SelectionInput struct {
	ModelID     string
	SessionID   string
	MessageSize int
	HasSize     bool
	Threshold   int
}

// Select runs the tiered policy against the current healthy pool and
// returns the chosen instance, or nil if no tier yields a candidate.
func (s *Selector) Select(in SelectionInput) *Instance {
	healthyForModel := s.candidatesForModel(in.ModelID)
	if len(healthyForModel) == 0 {
		return nil
	}

	if in.HasSize {
		threshold := in.Threshold
		if threshold <= 0 {
			threshold = DefaultCacheTypeRoutingThreshold
		}
		cacheType := "paged"
		if in.MessageSize > threshold {
			cacheType = "static"
		}
		if inst := pickByCacheType(healthyForModel, cacheType); inst != nil {
			return inst
		}
	}

	if in.SessionID != "" {
		if inst := s.sessionAffine(healthyForModel, in.SessionID); inst != nil {
			return inst
		}
	}

	return s.weightedRoundRobin(healthyForModel)
}

func (s *Selector) candidatesForModel(modelID string) []*Instance {
	all := s.pool.All()
	out := make([]*Instance, 0, len(all))
	for _, inst := range all {
		if inst.Healthy() && inst.ServesModel(modelID) {
			out = append(out, inst)
		}
	}
	return out
}

func pickByCacheType(candidates []*Instance, cacheType string) *Instance {
	for _, inst := range candidates {
		if inst.MetadataString("cache_type") == cacheType {
			return inst
		}
	}
	return nil
}

// sessionAffine maps sessionID to a consistent member of candidates by
// hashing the key and reducing modulo the set size (spec §4.9).
// Membership changes may invalidate some mappings; that is accepted.
func (s *Selector) sessionAffine(candidates []*Instance, sessionID string) *Instance {
	if len(candidates) == 0 {
		return nil
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(sessionID))
	idx := int(h.Sum64() % uint64(len(candidates)))
	return candidates[idx]
}

// weightedRoundRobin implements spec §4.9's algorithm exactly,
// including the documented quirk that the monotonic counter advances
// on every call regardless of which branch picks the candidate (spec
// §9's preserved possibly-buggy behavior: this biases selection when
// the candidate set's size changes between calls).
func (s *Selector) weightedRoundRobin(candidates []*Instance) *Instance {
	n := len(candidates)
	if n == 0 {
		return nil
	}
	i := atomic.AddUint64(&s.counter, 1) - 1

	totalWeight := 0
	for _, inst := range candidates {
		totalWeight += inst.Weight()
	}
	if totalWeight == 0 {
		return candidates[int(i)%n]
	}

	t := int(i % uint64(totalWeight))
	sum := 0
	for _, inst := range candidates {
		sum += inst.Weight()
		if sum > t {
			return inst
		}
	}
	return candidates[n-1]
}
