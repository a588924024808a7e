package registry

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestHeartbeatAgeThresholdsProperty checks the ordering invariant from
// spec §8: a record is healthy only while fresh, becomes unhealthy once
// its heartbeat crosses StaleThreshold, and is only ever evicted once it
// crosses the strictly looser EvictThreshold.
func TestHeartbeatAgeThresholdsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("healthy iff age < stale threshold, expired iff age >= evict threshold", prop.ForAll(
		func(ageSeconds int) bool {
			age := time.Duration(ageSeconds) * time.Second
			rec := NewRecord("svc", "h", 1, "h", "http://h:1", "running", nil)
			rec.mu.Lock()
			rec.lastHeartbeat = time.Now().Add(-age)
			rec.mu.Unlock()

			// The predicates run a few nanoseconds after the heartbeat was
			// set, so the record's real age is slightly above age: at
			// age == EvictThreshold it is already past the threshold.
			wantHealthy := age < StaleThreshold
			wantExpired := age >= EvictThreshold

			if rec.IsHealthy() != wantHealthy {
				return false
			}
			if rec.Expired() != wantExpired {
				return false
			}
			// Evict threshold is strictly looser: nothing can be expired
			// while still healthy.
			if rec.IsHealthy() && rec.Expired() {
				return false
			}
			return true
		},
		gen.IntRange(0, 600),
	))

	properties.TestingRun(t)
}
