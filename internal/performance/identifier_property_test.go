package performance

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// Property: with a frozen clock, IDs from distinct VUs, iterations and calls
// never collide.
func TestIDGenerator_UniqueProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numVUs := rapid.IntRange(1, 20).Draw(t, "numVUs")
		numIters := rapid.IntRange(1, 10).Draw(t, "numIters")
		prefixes := rapid.SliceOfN(rapid.SampledFrom([]string{"team", "user", "pr"}), 1, 6).Draw(t, "prefixes")

		frozen := time.UnixMilli(1700000000000)
		seen := make(map[string]struct{})

		ids := &VUIDSource{}
		for v := 0; v < numVUs; v++ {
			gen := NewIDGenerator(ids.Next())
			gen.now = func() time.Time { return frozen }

			for it := 0; it < numIters; it++ {
				gen.Reset(int64(it))
				for _, p := range prefixes {
					id := gen.Generate(p)
					if _, dup := seen[id]; dup {
						t.Fatalf("duplicate id %q", id)
					}
					seen[id] = struct{}{}
				}
			}
		}
	})
}
