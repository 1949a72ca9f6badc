package agent

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/parley/internal/inference"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// SingleAgent plays one power. Every decision is a fresh model call.
type SingleAgent struct {
	power   diplomacy.Power
	backend string
	llm     Inference
	state   *State

	gameID string
}

var _ Agent = (*SingleAgent)(nil)

// SingleConfig configures a SingleAgent.
type SingleConfig struct {
	Power      diplomacy.Power
	Backend    string
	GameID     string
	Goals      []string
	DiaryLimit int
	DiaryKeep  int
}

func NewSingleAgent(llm Inference, cfg SingleConfig) *SingleAgent {
	st := NewState(cfg.Power, cfg.DiaryLimit, cfg.DiaryKeep)
	st.setGoals(cfg.Goals)
	return &SingleAgent{power: cfg.Power, backend: cfg.Backend, llm: llm, state: st, gameID: cfg.GameID}
}

func (a *SingleAgent) ID() string                { return string(a.power) + "@" + a.backend }
func (a *SingleAgent) Powers() []diplomacy.Power { return []diplomacy.Power{a.power} }

// State exposes the agent's memory for inspection.
func (a *SingleAgent) State() *State { return a.state }

func (a *SingleAgent) call(sit *Situation, purpose, prompt string) inference.Call {
	gameID := a.gameID
	if sit != nil && sit.GameID != "" {
		gameID = sit.GameID
	}
	var phase string
	if sit != nil {
		phase = sit.State.Name()
	}
	return inference.Call{
		Backend: a.backend,
		System:  systemPrompt(a.Powers()),
		Prompt:  prompt,
		GameID:  gameID,
		Power:   a.power,
		Phase:   phase,
		Purpose: purpose,
	}
}

// Negotiate implements Agent. Failures yield no messages.
func (a *SingleAgent) Negotiate(ctx context.Context, power diplomacy.Power, sit *Situation) ([]diplomacy.Message, error) {
	if power != a.power {
		return nil, errNotMember(a.ID(), power)
	}

	res := a.llm.CallStructured(ctx, a.call(sit, "negotiate", negotiationPrompt(a.state, sit)), []inference.Field{fieldMessages})
	if !res.OK() {
		return nil, nil
	}
	msgs := decodeMessages(res.Payload.Get(fieldMessages.Name), a.power)
	if len(msgs) > 0 {
		a.state.stage(DiaryEntry{Phase: sit.State.Name(), Kind: DiaryNegotiation, Text: summarizeSent(msgs)})
	}
	return msgs, nil
}

// DecideOrders implements Agent. Failures yield DefaultOrders.
func (a *SingleAgent) DecideOrders(ctx context.Context, power diplomacy.Power, sit *Situation) ([]diplomacy.Order, error) {
	if power != a.power {
		return nil, errNotMember(a.ID(), power)
	}
	if len(sit.State.Orderable(power)) == 0 {
		return nil, nil
	}

	res := a.llm.CallStructured(ctx, a.call(sit, "orders", ordersPrompt(a.state, sit)), []inference.Field{fieldOrders})
	if !res.OK() {
		return DefaultOrders(sit.State, power), nil
	}
	orders := decodeOrders(res.Payload.Get(fieldOrders.Name))
	if len(orders) == 0 && sit.State.Kind() != diplomacy.Build {
		return DefaultOrders(sit.State, power), nil
	}
	if why := strings.TrimSpace(res.Payload.Lookup(fieldReasoning).String()); why != "" {
		a.state.stage(DiaryEntry{Phase: sit.State.Name(), Kind: DiaryOrderRationale, Text: why})
	}
	return orders, nil
}

// UpdateState implements Agent. The model writes the diary entry and revises
// goals and relationships; when it cannot, a mechanical entry is written from
// the events.
func (a *SingleAgent) UpdateState(ctx context.Context, played string, next *diplomacy.PhaseState, events []diplomacy.Event) error {
	call := a.call(nil, "update", updatePrompt(a.state, next, events))
	call.Phase = played
	res := a.llm.CallStructured(ctx, call, []inference.Field{fieldDiary})

	entry := DiaryEntry{Phase: played, Kind: DiaryPhaseResult}
	if res.OK() {
		entry.Text = res.Payload.String(fieldDiary.Name)
		a.state.setGoals(decodeGoals(res.Payload.Lookup(fieldGoals)))
		for p, rel := range decodeRelationships(res.Payload.Lookup(fieldRelationships)) {
			a.state.setRelationship(p, rel)
		}
	} else {
		entry.Text = eventDigest(a.power, events)
		a.state.applyEventRelations(events)
		log.Debug().Str("power", string(a.power)).Str("phase", played).Str("kind", res.Kind.String()).
			Msg("state update fell back to event digest")
	}
	a.state.commit(entry)

	if a.state.needsConsolidation() {
		a.consolidate(ctx, played)
	}
	return nil
}

func (a *SingleAgent) consolidate(ctx context.Context, phase string) {
	window := a.state.consolidationWindow()
	call := a.call(nil, "consolidate", consolidationPrompt(a.power, window))
	call.Phase = phase
	summary, err := a.llm.CallText(ctx, call)
	if err != nil {
		log.Debug().Err(err).Str("power", string(a.power)).Msg("diary consolidation fell back to digest")
		summary = ""
	}
	a.state.consolidate(strings.TrimSpace(summary))
}

func summarizeSent(msgs []diplomacy.Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = "to " + string(m.Recipient) + ": " + truncate(m.Body, 160)
	}
	return "Sent " + strings.Join(parts, " | ")
}
