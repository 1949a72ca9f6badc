// Package phase runs one game phase at a time: it asks the agents for
// messages or orders, validates what comes back against the adjudicator's
// legal set, substitutes defaults, and submits the result.
package phase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/freeeve/parley/internal/agent"
	"github.com/freeeve/parley/internal/history"
	"github.com/freeeve/parley/pkg/adjudicator"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// AgentError is an agent failure caught at a strategy boundary. The power
// falls back to defaults and the game continues.
type AgentError struct {
	Power diplomacy.Power
	Op    string
	Err   error
}

func (e *AgentError) Error() string {
	return fmt.Sprintf("agent for %s failed in %s: %v", e.Power, e.Op, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// Env is what a strategy works with.
type Env struct {
	GameID  string
	Engine  adjudicator.Engine
	History *history.GameHistory
	Agents  map[diplomacy.Power]agent.Agent
	Log     zerolog.Logger

	// Now stamps messages; defaults to time.Now.
	Now func() time.Time

	// OnMessage, when set, is told about every accepted message.
	OnMessage func(diplomacy.Message)
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// Input is the phase being played.
type Input struct {
	State    *diplomacy.PhaseState
	Legal    map[string][]string
	Messages []diplomacy.Message
}

// Output is what a strategy produced.
type Output struct {
	Messages []diplomacy.Message
	Orders   map[diplomacy.Power][]string
	Failures []*AgentError
}

// Strategy plays one kind of phase.
type Strategy interface {
	Name() string
	Run(ctx context.Context, env *Env, in *Input) (*Output, error)
}

// For returns the order strategy for a phase kind.
func For(kind diplomacy.PhaseKind) (Strategy, error) {
	switch kind {
	case diplomacy.Movement:
		return Movement{}, nil
	case diplomacy.Retreat:
		return Retreat{}, nil
	case diplomacy.Build:
		return Build{}, nil
	}
	return nil, fmt.Errorf("phase: no strategy for %q", kind)
}

// Next returns the phase expected after cur, given whether units were
// dislodged and whether any power must adjust its unit count.
func Next(cur diplomacy.PhaseName, dislodged, adjustments bool) diplomacy.PhaseName {
	afterFall := func() diplomacy.PhaseName {
		if adjustments {
			return diplomacy.PhaseName{Season: diplomacy.Winter, Year: cur.Year, Kind: diplomacy.Build}
		}
		return diplomacy.PhaseName{Season: diplomacy.Spring, Year: cur.Year + 1, Kind: diplomacy.Movement}
	}

	switch cur.Kind {
	case diplomacy.Movement:
		if dislodged {
			return diplomacy.PhaseName{Season: cur.Season, Year: cur.Year, Kind: diplomacy.Retreat}
		}
		if cur.Season == diplomacy.Spring {
			return diplomacy.PhaseName{Season: diplomacy.Fall, Year: cur.Year, Kind: diplomacy.Movement}
		}
		return afterFall()
	case diplomacy.Retreat:
		if cur.Season == diplomacy.Spring {
			return diplomacy.PhaseName{Season: diplomacy.Fall, Year: cur.Year, Kind: diplomacy.Movement}
		}
		return afterFall()
	}
	return diplomacy.PhaseName{Season: diplomacy.Spring, Year: cur.Year + 1, Kind: diplomacy.Movement}
}

// NeedsAdjustment reports whether any power's center count differs from its
// unit count.
func NeedsAdjustment(ps *diplomacy.PhaseState) bool {
	for _, p := range diplomacy.AllPowers() {
		if ps.Delta(p) != 0 {
			return true
		}
	}
	return false
}

// guard runs an agent call, turning panics and errors into an AgentError.
func guard[T any](p diplomacy.Power, op string, fn func() (T, error)) (out T, aerr *AgentError) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out = zero
			aerr = &AgentError{Power: p, Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	v, err := fn()
	if err != nil {
		return v, &AgentError{Power: p, Op: op, Err: err}
	}
	return v, nil
}

// fail logs and records an agent error.
func (e *Env) fail(phase string, aerr *AgentError, out *Output) {
	e.Log.Warn().Err(aerr.Err).Str("phase", phase).Str("power", string(aerr.Power)).Str("op", aerr.Op).
		Msg("agent failed; using defaults")
	if e.History != nil {
		e.History.AddFailure(phase, history.Failure{Power: aerr.Power, Op: aerr.Op, Error: aerr.Err.Error()})
	}
	out.Failures = append(out.Failures, aerr)
}

func (e *Env) agentFor(p diplomacy.Power) (agent.Agent, *AgentError) {
	a, ok := e.Agents[p]
	if !ok || a == nil {
		return nil, &AgentError{Power: p, Op: "lookup", Err: fmt.Errorf("no agent plays %s", p)}
	}
	return a, nil
}

func (e *Env) situation(in *Input, msgs []diplomacy.Message, round int) *agent.Situation {
	return &agent.Situation{
		GameID:   e.GameID,
		State:    in.State,
		Legal:    in.Legal,
		Messages: append([]diplomacy.Message(nil), msgs...),
		Round:    round,
	}
}

// submit sends the accepted orders of every acting power and records them.
func (e *Env) submit(ctx context.Context, st *diplomacy.PhaseState, orders map[diplomacy.Power][]diplomacy.Order, out *Output) error {
	out.Orders = make(map[diplomacy.Power][]string, len(orders))
	for _, p := range diplomacy.AllPowers() {
		list, ok := orders[p]
		if !ok {
			continue
		}
		strs := diplomacy.FormatOrders(list)
		if err := e.Engine.SetOrders(ctx, p, strs); err != nil {
			return fmt.Errorf("submit orders for %s: %w", p, err)
		}
		out.Orders[p] = strs
		if e.History != nil {
			e.History.AddOrders(st.Name(), p, strs)
		}
	}
	return nil
}
