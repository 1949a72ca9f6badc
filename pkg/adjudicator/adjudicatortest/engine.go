// Package adjudicatortest provides an in-memory adjudicator.Engine that walks
// a fixed list of snapshots, for tests and dry runs.
package adjudicatortest

import (
	"context"
	"fmt"
	"sync"

	"github.com/freeeve/parley/pkg/adjudicator"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// Submission is one SetOrders call as seen by the engine.
type Submission struct {
	Phase  string
	Power  diplomacy.Power
	Orders []string
}

// Engine replays Snapshots in order: Process advances to the next one. When
// the list runs out the game is reported completed.
type Engine struct {
	Snapshots []diplomacy.Snapshot

	// Legal overrides the generated legal orders when set.
	Legal func(ps *diplomacy.PhaseState) map[string][]string

	// FailProcessAt makes Process fail on the phase with this name.
	FailProcessAt string

	mu          sync.Mutex
	idx         int
	pending     map[diplomacy.Power][]string
	submissions []Submission
	processed   []string
	closed      bool
}

var _ adjudicator.Engine = (*Engine)(nil)

// New returns an engine over the given snapshots.
func New(snaps ...diplomacy.Snapshot) *Engine {
	return &Engine{Snapshots: snaps}
}

func (e *Engine) current() (*diplomacy.PhaseState, error) {
	if e.closed {
		return nil, adjudicator.ErrClosed
	}
	if e.idx >= len(e.Snapshots) {
		return diplomacy.NewPhaseState(diplomacy.Snapshot{Name: diplomacy.Completed})
	}
	return diplomacy.NewPhaseState(e.Snapshots[e.idx])
}

// State implements adjudicator.Engine.
func (e *Engine) State(ctx context.Context) (*diplomacy.PhaseState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current()
}

// PossibleOrders implements adjudicator.Engine.
func (e *Engine) PossibleOrders(ctx context.Context) (map[string][]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ps, err := e.current()
	if err != nil {
		return nil, err
	}
	if e.Legal != nil {
		return e.Legal(ps), nil
	}
	return DefaultLegal(ps), nil
}

// SetOrders implements adjudicator.Engine.
func (e *Engine) SetOrders(ctx context.Context, power diplomacy.Power, orders []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ps, err := e.current()
	if err != nil {
		return err
	}
	if e.pending == nil {
		e.pending = make(map[diplomacy.Power][]string)
	}
	e.pending[power] = append([]string(nil), orders...)
	e.submissions = append(e.submissions, Submission{Phase: ps.Name(), Power: power, Orders: append([]string(nil), orders...)})
	return nil
}

// Process implements adjudicator.Engine. Every submitted order is reported as
// succeeding.
func (e *Engine) Process(ctx context.Context) (*adjudicator.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ps, err := e.current()
	if err != nil {
		return nil, err
	}
	if ps.IsCompleted() {
		return nil, fmt.Errorf("adjudicatortest: game already completed")
	}
	if e.FailProcessAt != "" && ps.Name() == e.FailProcessAt {
		return nil, fmt.Errorf("adjudicatortest: injected failure at %s", ps.Name())
	}

	res := &adjudicator.Result{Phase: ps.Name(), Results: make(map[string][]string)}
	for _, orders := range e.pending {
		for _, raw := range orders {
			if o, err := diplomacy.ParseOrder(raw); err == nil && o.Kind != diplomacy.OrderWaive {
				res.Results[diplomacy.Unit{Type: o.Unit, Location: o.Location}.String()] = nil
			}
		}
	}
	e.pending = nil
	e.processed = append(e.processed, ps.Name())
	e.idx++
	if e.idx >= len(e.Snapshots) {
		res.Completed = true
	} else if next, err := diplomacy.NewPhaseState(e.Snapshots[e.idx]); err == nil {
		for _, p := range next.ActivePowers() {
			for _, u := range next.Dislodged(p) {
				res.Dislodged = append(res.Dislodged, u.String())
			}
		}
		res.Completed = next.IsCompleted()
	}
	return res, nil
}

// Close implements adjudicator.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Submissions returns every SetOrders call in arrival order.
func (e *Engine) Submissions() []Submission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Submission(nil), e.submissions...)
}

// Processed returns the names of the phases adjudicated so far.
func (e *Engine) Processed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.processed...)
}

// DefaultLegal generates a minimal legal set: holds in movement, disbands in
// retreats, and builds or disbands on the orderable locations in adjustments.
func DefaultLegal(ps *diplomacy.PhaseState) map[string][]string {
	out := make(map[string][]string)
	for _, p := range diplomacy.AllPowers() {
		switch ps.Kind() {
		case diplomacy.Movement:
			for _, u := range ps.Units(p) {
				out[u.Province()] = append(out[u.Province()], diplomacy.HoldFor(u).String())
			}
		case diplomacy.Retreat:
			for _, u := range ps.Dislodged(p) {
				out[u.Province()] = append(out[u.Province()], diplomacy.DisbandFor(u).String())
			}
		case diplomacy.Build:
			delta := ps.Delta(p)
			for _, loc := range ps.Orderable(p) {
				if delta > 0 {
					out[loc] = append(out[loc],
						diplomacy.Order{Kind: diplomacy.OrderBuild, Unit: diplomacy.Army, Location: loc}.String(),
						diplomacy.Order{Kind: diplomacy.OrderBuild, Unit: diplomacy.Fleet, Location: loc}.String(),
					)
				} else if u, ok := ps.UnitAt(loc); ok {
					out[loc] = append(out[loc], diplomacy.DisbandFor(u).String())
				}
			}
		}
	}
	return out
}
