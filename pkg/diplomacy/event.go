package diplomacy

import (
	"fmt"
	"sort"
)

// EventKind classifies a change between two consecutive phase states.
type EventKind string

const (
	EventCapture    EventKind = "capture"
	EventLoss       EventKind = "loss"
	EventDislodged  EventKind = "dislodged"
	EventEliminated EventKind = "eliminated"
	EventBuilt      EventKind = "built"
	EventDisbanded  EventKind = "disbanded"
)

// Event is one structured change an agent is told about after adjudication.
type Event struct {
	Kind     EventKind `json:"kind"`
	Power    Power     `json:"power"`
	Other    Power     `json:"other,omitempty"`
	Province string    `json:"province,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case EventCapture:
		if e.Other != "" {
			return fmt.Sprintf("%s captured %s from %s", e.Power.Label(), e.Province, e.Other.Label())
		}
		return fmt.Sprintf("%s captured %s", e.Power.Label(), e.Province)
	case EventLoss:
		if e.Other != "" {
			return fmt.Sprintf("%s lost %s to %s", e.Power.Label(), e.Province, e.Other.Label())
		}
		return fmt.Sprintf("%s lost %s", e.Power.Label(), e.Province)
	case EventDislodged:
		return fmt.Sprintf("%s was dislodged from %s", e.Power.Label(), e.Province)
	case EventEliminated:
		return fmt.Sprintf("%s was eliminated", e.Power.Label())
	case EventBuilt:
		return fmt.Sprintf("%s built in %s", e.Power.Label(), e.Province)
	case EventDisbanded:
		return fmt.Sprintf("%s disbanded in %s", e.Power.Label(), e.Province)
	}
	return string(e.Kind)
}

// Diff computes the events between two consecutive states. The result is
// ordered by power (AllPowers order), then event kind, then province, so the
// same pair of states always yields the same list.
func Diff(old, next *PhaseState) []Event {
	var events []Event

	for _, p := range AllPowers() {
		var mine []Event

		before := toSet(old.centers[p])
		after := toSet(next.centers[p])
		for _, c := range next.centers[p] {
			if !before[c] {
				prev, _ := old.Owner(c)
				mine = append(mine, Event{Kind: EventCapture, Power: p, Other: prev, Province: c})
			}
		}
		for _, c := range old.centers[p] {
			if !after[c] {
				taker, _ := next.Owner(c)
				mine = append(mine, Event{Kind: EventLoss, Power: p, Other: taker, Province: c})
			}
		}

		for _, u := range next.dislodged[p] {
			mine = append(mine, Event{Kind: EventDislodged, Power: p, Province: u.Province()})
		}

		if old.Kind() == Build {
			was := unitProvinces(old.units[p])
			now := unitProvinces(next.units[p])
			for prov := range now {
				if !was[prov] {
					mine = append(mine, Event{Kind: EventBuilt, Power: p, Province: prov})
				}
			}
			for prov := range was {
				if !now[prov] {
					mine = append(mine, Event{Kind: EventDisbanded, Power: p, Province: prov})
				}
			}
		}

		if old.Active(p) && !next.Active(p) {
			mine = append(mine, Event{Kind: EventEliminated, Power: p})
		}

		sort.SliceStable(mine, func(i, j int) bool {
			if mine[i].Kind != mine[j].Kind {
				return mine[i].Kind < mine[j].Kind
			}
			return mine[i].Province < mine[j].Province
		})
		events = append(events, mine...)
	}
	return events
}

// EventsFor filters events that concern the power, either as subject or as
// the other party.
func EventsFor(events []Event, p Power) []Event {
	var out []Event
	for _, e := range events {
		if e.Power == p || e.Other == p {
			out = append(out, e)
		}
	}
	return out
}

func toSet(list []string) map[string]bool {
	m := make(map[string]bool, len(list))
	for _, s := range list {
		m[s] = true
	}
	return m
}

func unitProvinces(units []Unit) map[string]bool {
	m := make(map[string]bool, len(units))
	for _, u := range units {
		m[u.Province()] = true
	}
	return m
}
