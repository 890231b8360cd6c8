package engine

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// genChange produces loosely-typed change payloads with nested structure.
func genChange() gopter.Gen {
	value := gen.OneGenOf(
		gen.AlphaString().Map(func(s string) any { return s }),
		gen.Int().Map(func(i int) any { return i }),
		gen.Bool().Map(func(b bool) any { return b }),
		gen.MapOf(gen.Identifier(), gen.AlphaString()).Map(func(m map[string]string) any {
			nested := make(map[string]any, len(m))
			for k, v := range m {
				nested[k] = v
			}
			return nested
		}),
	)
	return gen.MapOf(gen.Identifier(), value)
}

func TestForkProperties(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 100
	properties := gopter.NewProperties(params)

	properties.Property("forked change is value-equal to the parent's", prop.ForAll(
		func(change map[string]any) bool {
			s := NewStation(nil, change)
			forked, err := s.Fork(nil)
			if err != nil {
				return false
			}
			return mapsEqual(change, forked.Change().(map[string]any))
		},
		genChange(),
	))

	properties.Property("mutating the fork never touches the parent", prop.ForAll(
		func(change map[string]any) bool {
			snapshot := make(map[string]any, len(change))
			for k, v := range change {
				snapshot[k] = v
			}

			s := NewStation(nil, change)
			forked, err := s.Fork(nil)
			if err != nil {
				return false
			}

			got := forked.Change().(map[string]any)
			for k := range got {
				got[k] = "clobbered"
			}
			got["injected"] = true

			return mapsEqual(snapshot, change)
		},
		genChange(),
	))

	properties.Property("lineage grows strictly with every fork", prop.ForAll(
		func(depth int) bool {
			s := NewStation(nil, map[string]any{})
			seen := map[string]bool{s.Lineage(): true}
			for i := 0; i < depth; i++ {
				next, err := s.Fork(nil)
				if err != nil {
					return false
				}
				if seen[next.Lineage()] || len(next.Lineage()) <= len(s.Lineage()) {
					return false
				}
				seen[next.Lineage()] = true
				s = next
			}
			return true
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

func mapsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		am, aOK := av.(map[string]any)
		bm, bOK := bv.(map[string]any)
		if aOK || bOK {
			if aOK != bOK || !mapsEqual(am, bm) {
				return false
			}
			continue
		}
		if av != bv {
			return false
		}
	}
	return true
}
