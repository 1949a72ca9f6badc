package agent

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/internal/inference"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// fingerprint keys a cached bloc decision. Round is always zero for orders.
type fingerprint struct {
	phase string
	bloc  string
	round int
}

// BlocAgent plays several powers from one shared decision. The first member
// asked in a phase triggers a single model call covering every member; the
// others are served from the cache. A new fingerprint discards the old entry.
type BlocAgent struct {
	id      string
	members []diplomacy.Power
	backend string
	llm     Inference
	gameID  string

	states map[diplomacy.Power]*State

	orderKey   fingerprint
	orderCache map[diplomacy.Power][]diplomacy.Order

	msgKey   fingerprint
	msgCache map[diplomacy.Power][]diplomacy.Message
}

var _ Agent = (*BlocAgent)(nil)

// BlocConfig configures a BlocAgent.
type BlocConfig struct {
	ID         string
	Members    []diplomacy.Power
	Backend    string
	GameID     string
	DiaryLimit int
	DiaryKeep  int
}

func NewBlocAgent(llm Inference, cfg BlocConfig) *BlocAgent {
	a := &BlocAgent{
		id:      cfg.ID,
		members: sortedPowers(cfg.Members),
		backend: cfg.Backend,
		llm:     llm,
		gameID:  cfg.GameID,
		states:  make(map[diplomacy.Power]*State, len(cfg.Members)),
	}
	if a.id == "" {
		names := make([]string, len(a.members))
		for i, p := range a.members {
			names[i] = string(p)
		}
		a.id = "bloc:" + strings.Join(names, "+")
	}
	for _, p := range a.members {
		a.states[p] = NewState(p, cfg.DiaryLimit, cfg.DiaryKeep)
	}
	return a
}

func (a *BlocAgent) ID() string                { return a.id }
func (a *BlocAgent) Powers() []diplomacy.Power { return append([]diplomacy.Power(nil), a.members...) }

// State returns the memory of one member.
func (a *BlocAgent) State(p diplomacy.Power) *State { return a.states[p] }

func (a *BlocAgent) isMember(p diplomacy.Power) bool {
	_, ok := a.states[p]
	return ok
}

func (a *BlocAgent) call(sit *Situation, purpose, prompt string) inference.Call {
	gameID := a.gameID
	if sit.GameID != "" {
		gameID = sit.GameID
	}
	return inference.Call{
		Backend: a.backend,
		System:  systemPrompt(a.members),
		Prompt:  prompt,
		GameID:  gameID,
		Power:   diplomacy.Power(a.id),
		Phase:   sit.State.Name(),
		Purpose: purpose,
	}
}

// Negotiate implements Agent.
func (a *BlocAgent) Negotiate(ctx context.Context, power diplomacy.Power, sit *Situation) ([]diplomacy.Message, error) {
	if !a.isMember(power) {
		return nil, errNotMember(a.id, power)
	}
	key := fingerprint{phase: sit.State.Name(), bloc: a.id, round: sit.Round}
	if a.msgCache == nil || a.msgKey != key {
		a.msgKey = key
		a.msgCache = a.negotiateAll(ctx, sit)
	}
	return append([]diplomacy.Message(nil), a.msgCache[power]...), nil
}

func (a *BlocAgent) negotiateAll(ctx context.Context, sit *Situation) map[diplomacy.Power][]diplomacy.Message {
	out := make(map[diplomacy.Power][]diplomacy.Message, len(a.members))
	res := a.llm.CallStructured(ctx, a.call(sit, "negotiate", blocNegotiationPrompt(a.members, a.states, sit)),
		[]inference.Field{fieldMessages})
	if !res.OK() {
		return out
	}
	for p, v := range byMember(res.Payload.Get(fieldMessages.Name), a.members) {
		msgs := decodeMessages(v, p)
		out[p] = msgs
		if len(msgs) > 0 {
			a.states[p].stage(DiaryEntry{Phase: sit.State.Name(), Kind: DiaryNegotiation, Text: summarizeSent(msgs)})
		}
	}
	return out
}

// DecideOrders implements Agent.
func (a *BlocAgent) DecideOrders(ctx context.Context, power diplomacy.Power, sit *Situation) ([]diplomacy.Order, error) {
	if !a.isMember(power) {
		return nil, errNotMember(a.id, power)
	}
	key := fingerprint{phase: sit.State.Name(), bloc: a.id}
	if a.orderCache == nil || a.orderKey != key {
		a.orderKey = key
		a.orderCache = a.decideAll(ctx, sit)
	}
	return append([]diplomacy.Order(nil), a.orderCache[power]...), nil
}

func (a *BlocAgent) decideAll(ctx context.Context, sit *Situation) map[diplomacy.Power][]diplomacy.Order {
	out := make(map[diplomacy.Power][]diplomacy.Order, len(a.members))
	var acting []diplomacy.Power
	for _, p := range a.members {
		if len(sit.State.Orderable(p)) > 0 {
			acting = append(acting, p)
		}
	}
	if len(acting) == 0 {
		return out
	}

	res := a.llm.CallStructured(ctx, a.call(sit, "orders", blocOrdersPrompt(acting, a.states, sit)),
		[]inference.Field{fieldOrders})
	var perMember map[diplomacy.Power][]diplomacy.Order
	if res.OK() {
		perMember = make(map[diplomacy.Power][]diplomacy.Order)
		for p, v := range byMember(res.Payload.Get(fieldOrders.Name), acting) {
			perMember[p] = decodeOrders(v)
		}
		if why := strings.TrimSpace(res.Payload.Lookup(fieldReasoning).String()); why != "" {
			for _, p := range acting {
				a.states[p].stage(DiaryEntry{Phase: sit.State.Name(), Kind: DiaryOrderRationale, Text: why})
			}
		}
	}

	for _, p := range acting {
		orders, ok := perMember[p]
		if !ok || (len(orders) == 0 && sit.State.Kind() != diplomacy.Build) {
			if res.OK() {
				log.Debug().Str("bloc", a.id).Str("power", string(p)).Msg("bloc reply had no orders for member")
			}
			orders = DefaultOrders(sit.State, p)
		}
		out[p] = orders
	}
	return out
}

// UpdateState implements Agent. Bloc memories are maintained without model
// calls: each member gets an event digest and mechanical consolidation.
func (a *BlocAgent) UpdateState(ctx context.Context, played string, next *diplomacy.PhaseState, events []diplomacy.Event) error {
	for _, p := range a.members {
		st := a.states[p]
		st.applyEventRelations(events)
		st.commit(DiaryEntry{Phase: played, Kind: DiaryPhaseResult, Text: eventDigest(p, events)})
		if st.needsConsolidation() {
			st.consolidate("")
		}
	}
	return nil
}
