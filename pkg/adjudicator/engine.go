// Package adjudicator is the boundary to the external rules engine. The
// engine owns the map, legal-order generation and resolution; this package
// only moves board snapshots and order strings across the boundary.
package adjudicator

import (
	"context"
	"errors"
	"sort"

	"github.com/freeeve/parley/pkg/diplomacy"
)

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("adjudicator: engine is closed")

// Engine is a rules engine holding one game in progress.
type Engine interface {
	// State returns the current phase snapshot.
	State(ctx context.Context) (*diplomacy.PhaseState, error)

	// PossibleOrders returns the legal order strings per location for the
	// current phase, across all powers.
	PossibleOrders(ctx context.Context) (map[string][]string, error)

	// SetOrders replaces the pending orders of a power for the current phase.
	SetOrders(ctx context.Context, power diplomacy.Power, orders []string) error

	// Process adjudicates the current phase and advances the game.
	Process(ctx context.Context) (*Result, error)

	Close() error
}

// Result is the outcome of one adjudicated phase.
type Result struct {
	// Phase is the name of the phase that was processed.
	Phase string `json:"phase"`

	// Results maps a unit ("A PAR") to its resolution tags, e.g. "bounce",
	// "dislodged", "void". An empty list means the order succeeded.
	Results map[string][]string `json:"results"`

	// Dislodged lists the units dislodged this phase.
	Dislodged []string `json:"dislodged,omitempty"`

	Completed bool              `json:"completed"`
	Winners   []diplomacy.Power `json:"winners,omitempty"`
}

// Outcome returns the resolution tags of a unit, or nil when it succeeded or
// was not ordered.
func (r *Result) Outcome(unit string) []string {
	if r == nil {
		return nil
	}
	return r.Results[unit]
}

// LegalSet indexes a PossibleOrders map by province and canonical order
// string, so legality checks compare canonical forms only.
type LegalSet map[string]map[string]bool

// NewLegalSet canonicalizes every legal order string.
func NewLegalSet(possible map[string][]string) LegalSet {
	ls := make(LegalSet, len(possible))
	for loc, orders := range possible {
		prov := diplomacy.Province(loc)
		set := ls[prov]
		if set == nil {
			set = make(map[string]bool, len(orders))
			ls[prov] = set
		}
		for _, o := range orders {
			set[diplomacy.Canonical(o)] = true
		}
	}
	return ls
}

// Allows reports whether the order is legal at its province.
func (ls LegalSet) Allows(o diplomacy.Order) bool {
	if o.Kind == diplomacy.OrderWaive {
		return true
	}
	return ls[o.Province()][o.String()]
}

// At returns the legal orders of a province, sorted.
func (ls LegalSet) At(province string) []string {
	set := ls[diplomacy.Province(province)]
	out := make([]string, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}
