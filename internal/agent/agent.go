// Package agent defines the decision makers behind each power. A SingleAgent
// plays one power with its own model calls, a BlocAgent plays several powers
// from one shared decision per phase, and a ScriptedAgent plays without a
// model at all.
package agent

import (
	"context"
	"fmt"
	"sort"

	"github.com/freeeve/parley/internal/inference"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// Agent decides for one or more powers. Agents are driven from a single
// goroutine and need no internal locking.
type Agent interface {
	ID() string
	Powers() []diplomacy.Power

	// Negotiate returns the messages the power sends in the current round.
	Negotiate(ctx context.Context, power diplomacy.Power, sit *Situation) ([]diplomacy.Message, error)

	// DecideOrders returns the power's orders for the current phase.
	DecideOrders(ctx context.Context, power diplomacy.Power, sit *Situation) ([]diplomacy.Order, error)

	// UpdateState folds the outcome of the adjudicated phase named played into
	// the agent's memory. It is called for every phase, including those the
	// agent had nothing to do in, and is the only call that changes goals,
	// relationships or the diary.
	UpdateState(ctx context.Context, played string, next *diplomacy.PhaseState, events []diplomacy.Event) error
}

// Situation is what an agent sees when asked to act.
type Situation struct {
	GameID string
	State  *diplomacy.PhaseState

	// Legal maps every orderable location on the board to its legal order
	// strings, as reported by the adjudicator.
	Legal map[string][]string

	// Messages holds every message of the phase so far; agents only read the
	// ones visible to the powers they play.
	Messages []diplomacy.Message

	// Round is the zero-based negotiation round.
	Round int
}

// LegalFor returns the legal orders for the power's orderable locations.
func (s *Situation) LegalFor(p diplomacy.Power) map[string][]string {
	out := make(map[string][]string)
	for _, loc := range s.State.Orderable(p) {
		for key, orders := range s.Legal {
			if diplomacy.Province(key) == loc {
				out[loc] = append(out[loc], orders...)
			}
		}
	}
	return out
}

// VisibleMessages returns the messages any of the powers may read.
func (s *Situation) VisibleMessages(powers ...diplomacy.Power) []diplomacy.Message {
	var out []diplomacy.Message
	for _, m := range s.Messages {
		for _, p := range powers {
			if m.VisibleTo(p) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// Inference is the subset of the coordinator agents use.
type Inference interface {
	CallText(ctx context.Context, call inference.Call) (string, error)
	CallStructured(ctx context.Context, call inference.Call, fields []inference.Field) inference.CallResult
}

var _ Inference = (*inference.Coordinator)(nil)

// DefaultOrders is the legal fallback for a power: hold every orderable unit
// in movement, disband every dislodged unit in retreats, and nothing in
// adjustments, which forfeits builds and leaves disbands to the engine.
func DefaultOrders(ps *diplomacy.PhaseState, p diplomacy.Power) []diplomacy.Order {
	var out []diplomacy.Order
	switch ps.Kind() {
	case diplomacy.Movement:
		for _, loc := range ps.Orderable(p) {
			if u, ok := ps.UnitAt(loc); ok && u.Power == p {
				out = append(out, diplomacy.HoldFor(u))
			}
		}
	case diplomacy.Retreat:
		for _, u := range ps.Dislodged(p) {
			out = append(out, diplomacy.DisbandFor(u))
		}
	}
	return out
}

func errNotMember(id string, p diplomacy.Power) error {
	return fmt.Errorf("agent %s does not play %s", id, p)
}

func sortedPowers(ps []diplomacy.Power) []diplomacy.Power {
	out := append([]diplomacy.Power(nil), ps...)
	rank := make(map[diplomacy.Power]int)
	for i, p := range diplomacy.AllPowers() {
		rank[p] = i
	}
	sort.SliceStable(out, func(i, j int) bool { return rank[out[i]] < rank[out[j]] })
	return out
}
