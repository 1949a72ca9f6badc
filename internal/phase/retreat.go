package phase

import (
	"context"

	"github.com/freeeve/parley/pkg/adjudicator"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// Retreat collects orders for dislodged units only. A unit keeps a legal
// retreat or an explicit disband; anything else disbands it.
type Retreat struct{}

func (Retreat) Name() string { return "retreat" }

func (Retreat) Run(ctx context.Context, env *Env, in *Input) (*Output, error) {
	acting := func(p diplomacy.Power) bool { return len(in.State.Dislodged(p)) > 0 }
	return collect(ctx, env, in, acting, keepRetreat)
}

func keepRetreat(st *diplomacy.PhaseState, p diplomacy.Power, legal adjudicator.LegalSet, orders []diplomacy.Order) []diplomacy.Order {
	covered := make(map[string]bool)
	var kept []diplomacy.Order
	for _, o := range orders {
		prov := o.Province()
		if covered[prov] {
			continue
		}
		u, ok := st.DislodgedAt(p, prov)
		if !ok {
			continue
		}
		switch {
		case o.Kind == diplomacy.OrderDisband:
			kept = append(kept, diplomacy.DisbandFor(u))
		case o.Kind == diplomacy.OrderRetreat && legal.Allows(o):
			kept = append(kept, o)
		default:
			continue
		}
		covered[prov] = true
	}

	for _, u := range st.Dislodged(p) {
		if !covered[u.Province()] {
			kept = append(kept, diplomacy.DisbandFor(u))
		}
	}
	return kept
}
