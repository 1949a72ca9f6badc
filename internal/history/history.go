// Package history records a game phase by phase: messages, submitted orders,
// adjudication results, the board after each phase, and agent failures. The
// record is append-only and serializes to a replay document.
package history

import (
	"sort"

	"github.com/freeeve/parley/pkg/diplomacy"
)

// Failure is an agent error caught at a phase boundary.
type Failure struct {
	Power diplomacy.Power `json:"power"`
	Op    string          `json:"op"`
	Error string          `json:"error"`
}

// StateRecord is the board at the start of a phase.
type StateRecord struct {
	Units     map[diplomacy.Power][]string `json:"units"`
	Centers   map[diplomacy.Power][]string `json:"centers"`
	Homes     map[diplomacy.Power][]string `json:"homes,omitempty"`
	Dislodged map[diplomacy.Power][]string `json:"dislodged,omitempty"`
}

// PhaseRecord is everything that happened in one phase.
type PhaseRecord struct {
	Name     string                       `json:"name"`
	Year     int                          `json:"year"`
	Messages []diplomacy.Message          `json:"messages"`
	Orders   map[diplomacy.Power][]string `json:"orders"`
	Results  map[string][]string          `json:"results"`
	State    StateRecord                  `json:"state"`
	Events   []diplomacy.Event            `json:"events,omitempty"`
	Failures []Failure                    `json:"failures,omitempty"`
}

// GameHistory is the in-memory record of a game. It is owned by the
// orchestrator goroutine and is not safe for concurrent mutation.
type GameHistory struct {
	id      string
	mapName string
	winners []diplomacy.Power

	phases []*PhaseRecord
	index  map[string]int
}

// New starts an empty history.
func New(gameID, mapName string) *GameHistory {
	return &GameHistory{id: gameID, mapName: mapName, index: make(map[string]int)}
}

func (h *GameHistory) ID() string  { return h.id }
func (h *GameHistory) Map() string { return h.mapName }

// BeginPhase opens the record for a phase and stores its starting board.
// Calling it again for the same phase is a no-op.
func (h *GameHistory) BeginPhase(ps *diplomacy.PhaseState) {
	if _, ok := h.index[ps.Name()]; ok {
		return
	}
	snap := ps.Snapshot()
	rec := h.phase(ps.Name())
	rec.Year = ps.Year()
	rec.State = StateRecord{
		Units:     snap.Units,
		Centers:   snap.Centers,
		Homes:     snap.Homes,
		Dislodged: snap.Dislodged,
	}
}

// phase returns the record for name, creating it if needed.
func (h *GameHistory) phase(name string) *PhaseRecord {
	if i, ok := h.index[name]; ok {
		return h.phases[i]
	}
	rec := &PhaseRecord{
		Name:     name,
		Messages: []diplomacy.Message{},
		Orders:   make(map[diplomacy.Power][]string),
		Results:  make(map[string][]string),
		State: StateRecord{
			Units:   make(map[diplomacy.Power][]string),
			Centers: make(map[diplomacy.Power][]string),
		},
	}
	if pn, err := diplomacy.ParsePhaseName(name); err == nil {
		rec.Year = pn.Year
	}
	h.index[name] = len(h.phases)
	h.phases = append(h.phases, rec)
	return rec
}

// AddMessage appends a message to its phase.
func (h *GameHistory) AddMessage(m diplomacy.Message) {
	rec := h.phase(m.Phase)
	rec.Messages = append(rec.Messages, m)
}

// AddOrders appends the orders a power submitted for a phase.
func (h *GameHistory) AddOrders(phase string, power diplomacy.Power, orders []string) {
	rec := h.phase(phase)
	rec.Orders[power] = append(rec.Orders[power], orders...)
	if rec.Orders[power] == nil {
		rec.Orders[power] = []string{}
	}
}

// AddResults stores the adjudication result of each unit for a phase.
// Units already recorded keep their first result.
func (h *GameHistory) AddResults(phase string, results map[string][]string) {
	rec := h.phase(phase)
	for unit, tags := range results {
		if _, ok := rec.Results[unit]; ok {
			continue
		}
		if tags == nil {
			tags = []string{}
		}
		rec.Results[unit] = append([]string{}, tags...)
	}
}

// AddEvents appends the events produced by a phase.
func (h *GameHistory) AddEvents(phase string, events []diplomacy.Event) {
	rec := h.phase(phase)
	rec.Events = append(rec.Events, events...)
}

// AddFailure records an agent error for a phase.
func (h *GameHistory) AddFailure(phase string, f Failure) {
	rec := h.phase(phase)
	rec.Failures = append(rec.Failures, f)
}

// SetWinners records the winners reported when the game ends.
func (h *GameHistory) SetWinners(winners []diplomacy.Power) {
	h.winners = append([]diplomacy.Power(nil), winners...)
}

func (h *GameHistory) Winners() []diplomacy.Power {
	return append([]diplomacy.Power(nil), h.winners...)
}

// Messages returns a copy of the messages of a phase.
func (h *GameHistory) Messages(phase string) []diplomacy.Message {
	i, ok := h.index[phase]
	if !ok {
		return nil
	}
	return append([]diplomacy.Message(nil), h.phases[i].Messages...)
}

// MessagesFor returns the messages of a phase the power may read.
func (h *GameHistory) MessagesFor(phase string, p diplomacy.Power) []diplomacy.Message {
	var out []diplomacy.Message
	for _, m := range h.Messages(phase) {
		if m.VisibleTo(p) {
			out = append(out, m)
		}
	}
	return out
}

// Failures returns a copy of the failures recorded for a phase.
func (h *GameHistory) Failures(phase string) []Failure {
	i, ok := h.index[phase]
	if !ok {
		return nil
	}
	return append([]Failure(nil), h.phases[i].Failures...)
}

// Phase returns a deep copy of one phase record.
func (h *GameHistory) Phase(name string) (PhaseRecord, bool) {
	i, ok := h.index[name]
	if !ok {
		return PhaseRecord{}, false
	}
	return copyRecord(h.phases[i]), true
}

// PhaseNames lists recorded phases in the order they were opened.
func (h *GameHistory) PhaseNames() []string {
	out := make([]string, len(h.phases))
	for i, rec := range h.phases {
		out[i] = rec.Name
	}
	return out
}

// Len is the number of recorded phases.
func (h *GameHistory) Len() int { return len(h.phases) }

func copyRecord(r *PhaseRecord) PhaseRecord {
	out := PhaseRecord{
		Name:     r.Name,
		Year:     r.Year,
		Messages: append([]diplomacy.Message{}, r.Messages...),
		Orders:   copyListMap(r.Orders),
		Results:  make(map[string][]string, len(r.Results)),
		State: StateRecord{
			Units:     copyListMap(r.State.Units),
			Centers:   copyListMap(r.State.Centers),
			Homes:     copyListMapOrNil(r.State.Homes),
			Dislodged: copyListMapOrNil(r.State.Dislodged),
		},
	}
	for k, v := range r.Results {
		out.Results[k] = append([]string{}, v...)
	}
	if len(r.Events) > 0 {
		out.Events = append([]diplomacy.Event(nil), r.Events...)
	}
	if len(r.Failures) > 0 {
		out.Failures = append([]Failure(nil), r.Failures...)
	}
	return out
}

func copyListMap(m map[diplomacy.Power][]string) map[diplomacy.Power][]string {
	out := make(map[diplomacy.Power][]string, len(m))
	for k, v := range m {
		out[k] = append([]string{}, v...)
	}
	return out
}

func copyListMapOrNil(m map[diplomacy.Power][]string) map[diplomacy.Power][]string {
	if len(m) == 0 {
		return nil
	}
	return copyListMap(m)
}

// FinalCenters returns the supply-center count per power at the last recorded
// phase, sorted by count descending then power.
func (h *GameHistory) FinalCenters() []CenterCount {
	if len(h.phases) == 0 {
		return nil
	}
	last := h.phases[len(h.phases)-1]
	var out []CenterCount
	for _, p := range diplomacy.AllPowers() {
		out = append(out, CenterCount{Power: p, Centers: len(last.State.Centers[p]), Units: len(last.State.Units[p])})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Centers > out[j].Centers })
	return out
}

// CenterCount is one row of a standings table.
type CenterCount struct {
	Power   diplomacy.Power
	Centers int
	Units   int
}
