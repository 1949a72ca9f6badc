package agent

import (
	"fmt"
	"strings"

	"github.com/freeeve/parley/pkg/diplomacy"
)

// Relationship is how one power regards another. Relationships are kept per
// power and need not be symmetric.
type Relationship int

const (
	Enemy Relationship = iota - 2
	Unfriendly
	Neutral
	Friendly
	Ally
)

func (r Relationship) String() string {
	switch r {
	case Enemy:
		return "enemy"
	case Unfriendly:
		return "unfriendly"
	case Neutral:
		return "neutral"
	case Friendly:
		return "friendly"
	case Ally:
		return "ally"
	}
	return fmt.Sprintf("relationship(%d)", int(r))
}

// ParseRelationship reads a relationship level in any case.
func ParseRelationship(s string) (Relationship, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enemy", "hostile":
		return Enemy, true
	case "unfriendly", "wary":
		return Unfriendly, true
	case "neutral":
		return Neutral, true
	case "friendly":
		return Friendly, true
	case "ally", "allied":
		return Ally, true
	}
	return Neutral, false
}

// DiaryKind tags a diary entry.
type DiaryKind string

const (
	DiaryNegotiation    DiaryKind = "negotiation"
	DiaryOrderRationale DiaryKind = "order-rationale"
	DiaryPhaseResult    DiaryKind = "phase-result"
	DiaryConsolidated   DiaryKind = "consolidated"
)

// DiaryEntry is one note in a power's diary. Consolidated entries cover the
// phases from Phase through Through.
type DiaryEntry struct {
	Phase   string    `json:"phase"`
	Kind    DiaryKind `json:"kind"`
	Text    string    `json:"text"`
	Through string    `json:"through,omitempty"`
}

const (
	DefaultDiaryLimit = 30
	DefaultDiaryKeep  = 10
)

// State is the private memory of one power: goals, relationships and the
// diary. Entries written while acting are staged and only become part of the
// diary when the phase is committed.
type State struct {
	power     diplomacy.Power
	goals     []string
	relations map[diplomacy.Power]Relationship
	diary     []DiaryEntry
	staged    []DiaryEntry

	limit int
	keep  int
}

// NewState starts a memory with every other power at Neutral.
func NewState(p diplomacy.Power, limit, keep int) *State {
	if limit <= 0 {
		limit = DefaultDiaryLimit
	}
	if keep <= 0 || keep >= limit {
		keep = min(DefaultDiaryKeep, limit-1)
	}
	s := &State{power: p, relations: make(map[diplomacy.Power]Relationship), limit: limit, keep: keep}
	for _, other := range diplomacy.AllPowers() {
		if other != p {
			s.relations[other] = Neutral
		}
	}
	return s
}

func (s *State) Power() diplomacy.Power { return s.power }

// Goals returns a copy of the ordered goals.
func (s *State) Goals() []string { return append([]string(nil), s.goals...) }

// Relationship returns how the power regards other.
func (s *State) Relationship(other diplomacy.Power) Relationship {
	if r, ok := s.relations[other]; ok {
		return r
	}
	return Neutral
}

// Relationships returns a copy of the relationship map.
func (s *State) Relationships() map[diplomacy.Power]Relationship {
	out := make(map[diplomacy.Power]Relationship, len(s.relations))
	for k, v := range s.relations {
		out[k] = v
	}
	return out
}

// Diary returns a copy of the committed diary, oldest first.
func (s *State) Diary() []DiaryEntry { return append([]DiaryEntry(nil), s.diary...) }

// Staged returns the entries waiting for the next commit.
func (s *State) Staged() []DiaryEntry { return append([]DiaryEntry(nil), s.staged...) }

func (s *State) stage(e DiaryEntry) {
	if strings.TrimSpace(e.Text) == "" {
		return
	}
	s.staged = append(s.staged, e)
}

func (s *State) setGoals(goals []string) {
	var clean []string
	for _, g := range goals {
		if g = strings.TrimSpace(g); g != "" {
			clean = append(clean, g)
		}
	}
	if len(clean) > 0 {
		s.goals = clean
	}
}

func (s *State) setRelationship(other diplomacy.Power, r Relationship) {
	if other == s.power || other == diplomacy.Global || other == "" {
		return
	}
	s.relations[other] = r
}

// commit moves staged entries into the diary, then appends extra.
func (s *State) commit(extra ...DiaryEntry) {
	s.diary = append(s.diary, s.staged...)
	s.staged = nil
	for _, e := range extra {
		if strings.TrimSpace(e.Text) != "" {
			s.diary = append(s.diary, e)
		}
	}
}

// needsConsolidation reports whether the diary has grown past its limit.
func (s *State) needsConsolidation() bool { return len(s.diary) > s.limit }

// consolidationWindow returns the entries that would be folded.
func (s *State) consolidationWindow() []DiaryEntry {
	if !s.needsConsolidation() {
		return nil
	}
	return append([]DiaryEntry(nil), s.diary[:len(s.diary)-s.keep]...)
}

// consolidate replaces all but the newest keep entries with a single
// consolidated entry at the head of the diary.
func (s *State) consolidate(summary string) {
	old := s.consolidationWindow()
	if len(old) == 0 {
		return
	}
	if strings.TrimSpace(summary) == "" {
		summary = digest(old)
	}
	head := DiaryEntry{
		Phase:   old[0].Phase,
		Kind:    DiaryConsolidated,
		Text:    summary,
		Through: lastPhase(old),
	}
	rest := s.diary[len(s.diary)-s.keep:]
	s.diary = append([]DiaryEntry{head}, rest...)
}

func lastPhase(entries []DiaryEntry) string {
	last := entries[len(entries)-1]
	if last.Through != "" {
		return last.Through
	}
	return last.Phase
}

// digest is the mechanical summary used when no model summary is available.
func digest(entries []DiaryEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summary of %d entries (%s to %s):", len(entries), entries[0].Phase, lastPhase(entries))
	for _, e := range entries {
		b.WriteString("\n- ")
		b.WriteString(e.Phase)
		b.WriteByte(' ')
		b.WriteString(string(e.Kind))
		b.WriteString(": ")
		b.WriteString(truncate(firstLine(e.Text), 120))
	}
	return b.String()
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// eventDigest turns the events concerning a power into a phase-result entry.
func eventDigest(p diplomacy.Power, events []diplomacy.Event) string {
	mine := diplomacy.EventsFor(events, p)
	if len(mine) == 0 {
		return "No changes for " + p.Label() + "."
	}
	lines := make([]string, len(mine))
	for i, e := range mine {
		lines[i] = e.String()
	}
	return strings.Join(lines, "; ") + "."
}

// applyEventRelations cools relations toward powers that took centers from
// p. It never warms them.
func (s *State) applyEventRelations(events []diplomacy.Event) {
	for _, e := range events {
		if e.Kind == diplomacy.EventLoss && e.Power == s.power && e.Other != "" {
			if cur := s.Relationship(e.Other); cur > Unfriendly {
				s.setRelationship(e.Other, Unfriendly)
			}
		}
	}
}
