package phase

import (
	"context"

	"github.com/freeeve/parley/pkg/adjudicator"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// Movement collects orders from every power with orderable units. An order
// is kept only if it is for one of the power's orderable units, is in the
// legal set for that location, and no earlier order covered the location.
// Every uncovered unit holds.
type Movement struct{}

func (Movement) Name() string { return "movement" }

func (Movement) Run(ctx context.Context, env *Env, in *Input) (*Output, error) {
	acting := func(p diplomacy.Power) bool { return len(in.State.Orderable(p)) > 0 }
	return collect(ctx, env, in, acting, keepMovement)
}

func keepMovement(st *diplomacy.PhaseState, p diplomacy.Power, legal adjudicator.LegalSet, orders []diplomacy.Order) []diplomacy.Order {
	orderable := make(map[string]bool)
	for _, loc := range st.Orderable(p) {
		orderable[loc] = true
	}

	covered := make(map[string]bool)
	var kept []diplomacy.Order
	for _, o := range orders {
		prov := o.Province()
		if !orderable[prov] || covered[prov] {
			continue
		}
		if _, ok := unitOf(st, p, prov); !ok || !legal.Allows(o) {
			continue
		}
		covered[prov] = true
		kept = append(kept, o)
	}

	for _, loc := range st.Orderable(p) {
		if covered[loc] {
			continue
		}
		if u, ok := unitOf(st, p, loc); ok {
			kept = append(kept, diplomacy.HoldFor(u))
		}
	}
	return kept
}
