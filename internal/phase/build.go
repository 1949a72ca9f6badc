package phase

import (
	"context"

	"github.com/freeeve/parley/pkg/adjudicator"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// Build collects adjustments from powers whose center count differs from
// their unit count. Builds must be on unoccupied owned home centers in the
// legal set; disbands must name the power's own units. Neither may exceed the
// delta, and nothing is invented for missing decisions.
type Build struct{}

func (Build) Name() string { return "build" }

func (Build) Run(ctx context.Context, env *Env, in *Input) (*Output, error) {
	acting := func(p diplomacy.Power) bool { return in.State.Delta(p) != 0 }
	return collect(ctx, env, in, acting, keepBuild)
}

func keepBuild(st *diplomacy.PhaseState, p diplomacy.Power, legal adjudicator.LegalSet, orders []diplomacy.Order) []diplomacy.Order {
	delta := st.Delta(p)
	homes := make(map[string]bool)
	for _, h := range st.Homes(p) {
		homes[h] = true
	}

	used := make(map[string]bool)
	var kept []diplomacy.Order
	for _, o := range orders {
		if len(kept) >= abs(delta) {
			break
		}
		prov := o.Province()
		switch {
		case delta > 0 && o.Kind == diplomacy.OrderWaive:
			kept = append(kept, o)
			continue
		case delta > 0 && o.Kind == diplomacy.OrderBuild:
			if used[prov] || !homes[prov] || !legal.Allows(o) {
				continue
			}
			if owner, ok := st.Owner(prov); !ok || owner != p {
				continue
			}
			if _, occupied := st.UnitAt(prov); occupied {
				continue
			}
		case delta < 0 && o.Kind == diplomacy.OrderDisband:
			u, ok := unitOf(st, p, prov)
			if used[prov] || !ok {
				continue
			}
			o = diplomacy.DisbandFor(u)
		default:
			continue
		}
		used[prov] = true
		kept = append(kept, o)
	}
	return kept
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
