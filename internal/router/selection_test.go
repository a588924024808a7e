package router

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSelectorWithWeights(weights []int) *Selector {
	pool := NewPool()
	for i, w := range weights {
		name := fmt.Sprintf("inst-%d", i)
		pool.Upsert(name, func() *Instance { return NewInstance(name, "h", 9000+i, w, nil) })
	}
	return NewSelector(pool)
}

func TestSelectorWeightedRoundRobinFairnessProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("each candidate is chosen exactly k*weight(c) times over k*totalWeight selections", prop.ForAll(
		func(weights []int, k int) bool {
			if len(weights) == 0 || k <= 0 {
				return true
			}
			for _, w := range weights {
				if w <= 0 || w > 10 {
					return true
				}
			}

			selector := newSelectorWithWeights(weights)
			totalWeight := 0
			for _, w := range weights {
				totalWeight += w
			}

			counts := make(map[string]int)
			n := k * totalWeight
			for i := 0; i < n; i++ {
				inst := selector.Select(SelectionInput{})
				require.NotNil(t, inst)
				counts[inst.Name]++
			}

			for i, w := range weights {
				name := fmt.Sprintf("inst-%d", i)
				if counts[name] != k*w {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(3, gen.IntRange(1, 5)),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

func TestSelectorSessionAffinityIsSticky(t *testing.T) {
	selector := newSelectorWithWeights([]int{1, 1, 1, 1})

	first := selector.Select(SelectionInput{SessionID: "sticky-session"})
	require.NotNil(t, first)

	for i := 0; i < 20; i++ {
		again := selector.Select(SelectionInput{SessionID: "sticky-session"})
		assert.Equal(t, first.Name, again.Name)
	}
}

func TestSelectorCacheTypeRoutingTakesPriorityOverAffinity(t *testing.T) {
	pool := NewPool()
	pool.Upsert("static-inst", func() *Instance {
		return NewInstance("static-inst", "h", 9000, 1, map[string]any{"cache_type": "static"})
	})
	pool.Upsert("paged-inst", func() *Instance {
		return NewInstance("paged-inst", "h", 9001, 1, map[string]any{"cache_type": "paged"})
	})
	selector := NewSelector(pool)

	inst := selector.Select(SelectionInput{HasSize: true, MessageSize: 100000, SessionID: "whatever"})
	require.NotNil(t, inst)
	assert.Equal(t, "static-inst", inst.Name)

	inst = selector.Select(SelectionInput{HasSize: true, MessageSize: 10, SessionID: "whatever"})
	require.NotNil(t, inst)
	assert.Equal(t, "paged-inst", inst.Name)
}

func TestSelectorReturnsNilWhenNoCandidateServesModel(t *testing.T) {
	pool := NewPool()
	pool.Upsert("a", func() *Instance { return NewInstance("a", "h", 9000, 1, map[string]any{"models": []any{"m1"}}) })
	selector := NewSelector(pool)

	assert.Nil(t, selector.Select(SelectionInput{ModelID: "m2"}))
}

func TestSelectorExcludesUnhealthyCandidates(t *testing.T) {
	pool := NewPool()
	inst, _ := pool.Upsert("a", func() *Instance { return NewInstance("a", "h", 9000, 1, nil) })
	inst.SetHealthy(false)
	selector := NewSelector(pool)

	assert.Nil(t, selector.Select(SelectionInput{}))
}
