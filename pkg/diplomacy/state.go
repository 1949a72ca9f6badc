package diplomacy

import (
	"fmt"
	"sort"
	"strings"
)

// Snapshot is the mutable wire form of a board position as reported by the
// adjudication engine and as stored in the replay document. Units are written
// in "A PAR" notation.
type Snapshot struct {
	Name      string             `json:"name"`
	Units     map[Power][]string `json:"units"`
	Centers   map[Power][]string `json:"centers"`
	Homes     map[Power][]string `json:"homes,omitempty"`
	Orderable map[Power][]string `json:"orderable,omitempty"`
	Dislodged map[Power][]string `json:"dislodged,omitempty"`
}

// PhaseState is an immutable snapshot of the board for one phase. It is built
// once per adjudicated step and shared by every agent for the duration of the
// phase. All accessors return copies.
type PhaseState struct {
	name      string
	phase     PhaseName
	completed bool

	units     map[Power][]Unit
	centers   map[Power][]string
	homes     map[Power][]string
	orderable map[Power][]string
	dislodged map[Power][]Unit
}

// NewPhaseState validates a snapshot and freezes it into a PhaseState.
func NewPhaseState(s Snapshot) (*PhaseState, error) {
	ps := &PhaseState{
		name:      strings.ToUpper(strings.TrimSpace(s.Name)),
		units:     make(map[Power][]Unit),
		centers:   make(map[Power][]string),
		homes:     make(map[Power][]string),
		orderable: make(map[Power][]string),
		dislodged: make(map[Power][]Unit),
	}
	if ps.name == Completed {
		ps.completed = true
	} else {
		pn, err := ParsePhaseName(ps.name)
		if err != nil {
			return nil, err
		}
		ps.phase = pn
	}

	for p, list := range s.Units {
		for _, raw := range list {
			u, err := ParseUnit(raw, p)
			if err != nil {
				return nil, fmt.Errorf("phase %s: %w", ps.name, err)
			}
			ps.units[p] = append(ps.units[p], u)
		}
	}
	for p, list := range s.Dislodged {
		for _, raw := range list {
			u, err := ParseUnit(raw, p)
			if err != nil {
				return nil, fmt.Errorf("phase %s: dislodged %w", ps.name, err)
			}
			ps.dislodged[p] = append(ps.dislodged[p], u)
		}
	}
	copyProvinces(ps.centers, s.Centers)
	copyProvinces(ps.homes, s.Homes)
	if len(s.Orderable) > 0 {
		copyProvinces(ps.orderable, s.Orderable)
	} else {
		ps.deriveOrderable()
	}
	return ps, nil
}

func copyProvinces(dst, src map[Power][]string) {
	for p, list := range src {
		out := make([]string, 0, len(list))
		for _, loc := range list {
			out = append(out, strings.ToUpper(strings.TrimSpace(loc)))
		}
		sort.Strings(out)
		dst[p] = out
	}
}

// deriveOrderable fills orderable locations for engines that do not report
// them: unit provinces in movement, dislodged units in retreats, and the
// adjustment candidates in builds.
func (ps *PhaseState) deriveOrderable() {
	for _, p := range AllPowers() {
		var locs []string
		switch ps.phase.Kind {
		case Movement:
			for _, u := range ps.units[p] {
				locs = append(locs, u.Province())
			}
		case Retreat:
			for _, u := range ps.dislodged[p] {
				locs = append(locs, u.Province())
			}
		case Build:
			switch d := ps.Delta(p); {
			case d > 0:
				for _, h := range ps.homes[p] {
					if owner, ok := ps.Owner(h); ok && owner == p {
						if _, occupied := ps.UnitAt(h); !occupied {
							locs = append(locs, h)
						}
					}
				}
			case d < 0:
				for _, u := range ps.units[p] {
					locs = append(locs, u.Province())
				}
			}
		}
		if len(locs) > 0 {
			sort.Strings(locs)
			ps.orderable[p] = locs
		}
	}
}

// Name returns the short phase name, e.g. "S1901M", or "COMPLETED".
func (ps *PhaseState) Name() string { return ps.name }

// Phase returns the parsed phase name. It is the zero value once completed.
func (ps *PhaseState) Phase() PhaseName { return ps.phase }

func (ps *PhaseState) Year() int         { return ps.phase.Year }
func (ps *PhaseState) Season() Season    { return ps.phase.Season }
func (ps *PhaseState) Kind() PhaseKind   { return ps.phase.Kind }
func (ps *PhaseState) IsCompleted() bool { return ps.completed }

// Units returns a copy of the power's units.
func (ps *PhaseState) Units(p Power) []Unit {
	return append([]Unit(nil), ps.units[p]...)
}

// AllUnits returns every unit on the board in power order.
func (ps *PhaseState) AllUnits() []Unit {
	var out []Unit
	for _, p := range AllPowers() {
		out = append(out, ps.units[p]...)
	}
	return out
}

// Centers returns a sorted copy of the power's supply centers.
func (ps *PhaseState) Centers(p Power) []string {
	return append([]string(nil), ps.centers[p]...)
}

// Homes returns a sorted copy of the power's home centers.
func (ps *PhaseState) Homes(p Power) []string {
	return append([]string(nil), ps.homes[p]...)
}

// Orderable returns a sorted copy of the provinces the power must order.
func (ps *PhaseState) Orderable(p Power) []string {
	return append([]string(nil), ps.orderable[p]...)
}

// Dislodged returns a copy of the power's dislodged units.
func (ps *PhaseState) Dislodged(p Power) []Unit {
	return append([]Unit(nil), ps.dislodged[p]...)
}

// HasDislodged reports whether any unit on the board is dislodged.
func (ps *PhaseState) HasDislodged() bool {
	for _, list := range ps.dislodged {
		if len(list) > 0 {
			return true
		}
	}
	return false
}

func (ps *PhaseState) CenterCount(p Power) int { return len(ps.centers[p]) }
func (ps *PhaseState) UnitCount(p Power) int   { return len(ps.units[p]) }

// Delta is the build (positive) or disband (negative) count for the power.
func (ps *PhaseState) Delta(p Power) int {
	return len(ps.centers[p]) - len(ps.units[p])
}

// Active reports whether the power still has units or centers.
func (ps *PhaseState) Active(p Power) bool {
	return len(ps.units[p]) > 0 || len(ps.centers[p]) > 0
}

// ActivePowers returns the powers still in the game, in AllPowers order.
func (ps *PhaseState) ActivePowers() []Power {
	var out []Power
	for _, p := range AllPowers() {
		if ps.Active(p) {
			out = append(out, p)
		}
	}
	return out
}

// UnitAt finds the (non-dislodged) unit standing on a province.
func (ps *PhaseState) UnitAt(province string) (Unit, bool) {
	province = Province(province)
	for _, p := range AllPowers() {
		for _, u := range ps.units[p] {
			if u.Province() == province {
				return u, true
			}
		}
	}
	return Unit{}, false
}

// DislodgedAt finds the dislodged unit of a power on a province.
func (ps *PhaseState) DislodgedAt(p Power, province string) (Unit, bool) {
	province = Province(province)
	for _, u := range ps.dislodged[p] {
		if u.Province() == province {
			return u, true
		}
	}
	return Unit{}, false
}

// Owner returns the power controlling a supply center.
func (ps *PhaseState) Owner(center string) (Power, bool) {
	center = Province(center)
	for _, p := range AllPowers() {
		for _, c := range ps.centers[p] {
			if c == center {
				return p, true
			}
		}
	}
	return "", false
}

// Snapshot converts the state back to its wire form.
func (ps *PhaseState) Snapshot() Snapshot {
	s := Snapshot{
		Name:    ps.name,
		Units:   make(map[Power][]string),
		Centers: make(map[Power][]string),
	}
	for p, list := range ps.units {
		for _, u := range list {
			s.Units[p] = append(s.Units[p], u.String())
		}
	}
	for p, list := range ps.centers {
		s.Centers[p] = append([]string(nil), list...)
	}
	if len(ps.homes) > 0 {
		s.Homes = make(map[Power][]string)
		for p, list := range ps.homes {
			s.Homes[p] = append([]string(nil), list...)
		}
	}
	if len(ps.dislodged) > 0 {
		s.Dislodged = make(map[Power][]string)
		for p, list := range ps.dislodged {
			for _, u := range list {
				s.Dislodged[p] = append(s.Dislodged[p], u.String())
			}
		}
	}
	return s
}
