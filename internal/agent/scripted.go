package agent

import (
	"context"
	"strings"

	"github.com/freeeve/parley/pkg/diplomacy"
)

// ScriptedAgent plays without a model: it holds every unit, disbands
// dislodged units, forfeits builds and never negotiates.
type ScriptedAgent struct {
	powers []diplomacy.Power
}

var _ Agent = (*ScriptedAgent)(nil)

func NewScriptedAgent(powers ...diplomacy.Power) *ScriptedAgent {
	return &ScriptedAgent{powers: sortedPowers(powers)}
}

func (a *ScriptedAgent) ID() string {
	names := make([]string, len(a.powers))
	for i, p := range a.powers {
		names[i] = string(p)
	}
	return "scripted:" + strings.Join(names, "+")
}

func (a *ScriptedAgent) Powers() []diplomacy.Power {
	return append([]diplomacy.Power(nil), a.powers...)
}

func (a *ScriptedAgent) Negotiate(context.Context, diplomacy.Power, *Situation) ([]diplomacy.Message, error) {
	return nil, nil
}

func (a *ScriptedAgent) DecideOrders(_ context.Context, power diplomacy.Power, sit *Situation) ([]diplomacy.Order, error) {
	return DefaultOrders(sit.State, power), nil
}

func (a *ScriptedAgent) UpdateState(context.Context, string, *diplomacy.PhaseState, []diplomacy.Event) error {
	return nil
}
