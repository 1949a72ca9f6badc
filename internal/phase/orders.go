package phase

import (
	"context"

	"github.com/freeeve/parley/pkg/adjudicator"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// filter decides which of a power's returned orders are kept, and fills in
// whatever the phase requires for the rest.
type filter func(st *diplomacy.PhaseState, p diplomacy.Power, legal adjudicator.LegalSet, orders []diplomacy.Order) []diplomacy.Order

// collect asks every acting power for orders, filters them and submits.
// A power whose agent fails is filtered from an empty list.
func collect(ctx context.Context, env *Env, in *Input, acting func(diplomacy.Power) bool, keep filter) (*Output, error) {
	out := &Output{}
	st := in.State
	legal := adjudicator.NewLegalSet(in.Legal)
	decided := make(map[diplomacy.Power][]diplomacy.Order)

	for _, p := range diplomacy.AllPowers() {
		if !acting(p) {
			continue
		}
		var orders []diplomacy.Order
		a, aerr := env.agentFor(p)
		if aerr == nil {
			sit := env.situation(in, in.Messages, 0)
			orders, aerr = guard(p, "orders", func() ([]diplomacy.Order, error) {
				return a.DecideOrders(ctx, p, sit)
			})
		}
		if aerr != nil {
			env.fail(st.Name(), aerr, out)
			orders = nil
		}
		decided[p] = keep(st, p, legal, orders)
	}

	if err := env.submit(ctx, st, decided, out); err != nil {
		return out, err
	}
	return out, nil
}

func unitOf(st *diplomacy.PhaseState, p diplomacy.Power, province string) (diplomacy.Unit, bool) {
	u, ok := st.UnitAt(province)
	if !ok || u.Power != p {
		return diplomacy.Unit{}, false
	}
	return u, true
}
