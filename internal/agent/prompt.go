package agent

import (
	"fmt"
	"sort"
	"strings"

	"github.com/freeeve/parley/pkg/diplomacy"
)

func systemPrompt(powers []diplomacy.Power) string {
	names := make([]string, len(powers))
	for i, p := range powers {
		names[i] = p.Label()
	}
	if len(names) == 1 {
		return fmt.Sprintf("You are playing %s in a game of Diplomacy. Reply with JSON only.", names[0])
	}
	return fmt.Sprintf("You are jointly playing %s as one coordinated bloc in a game of Diplomacy. Reply with JSON only.",
		strings.Join(names, ", "))
}

func writeBoard(b *strings.Builder, ps *diplomacy.PhaseState) {
	fmt.Fprintf(b, "Phase: %s\n\nBoard:\n", ps.Name())
	for _, p := range ps.ActivePowers() {
		units := ps.Units(p)
		us := make([]string, len(units))
		for i, u := range units {
			us[i] = u.String()
		}
		fmt.Fprintf(b, "- %s: %d centers [%s]; units [%s]\n",
			p, ps.CenterCount(p), strings.Join(ps.Centers(p), " "), strings.Join(us, ", "))
	}
}

func writeMemory(b *strings.Builder, st *State) {
	if goals := st.Goals(); len(goals) > 0 {
		b.WriteString("\nYour goals:\n")
		for _, g := range goals {
			fmt.Fprintf(b, "- %s\n", g)
		}
	}
	b.WriteString("\nYour view of the other powers:\n")
	for _, p := range diplomacy.AllPowers() {
		if p == st.Power() {
			continue
		}
		fmt.Fprintf(b, "- %s: %s\n", p, st.Relationship(p))
	}
	if diary := st.Diary(); len(diary) > 0 {
		b.WriteString("\nDiary:\n")
		for _, e := range diary {
			if e.Through != "" {
				fmt.Fprintf(b, "[%s-%s %s] %s\n", e.Phase, e.Through, e.Kind, e.Text)
			} else {
				fmt.Fprintf(b, "[%s %s] %s\n", e.Phase, e.Kind, e.Text)
			}
		}
	}
}

func writeMessages(b *strings.Builder, msgs []diplomacy.Message) {
	if len(msgs) == 0 {
		return
	}
	b.WriteString("\nMessages this phase:\n")
	for _, m := range msgs {
		fmt.Fprintf(b, "%s -> %s: %s\n", m.Sender, m.Recipient, m.Body)
	}
}

func writeLegal(b *strings.Builder, p diplomacy.Power, legal map[string][]string) {
	locs := make([]string, 0, len(legal))
	for loc := range legal {
		locs = append(locs, loc)
	}
	sort.Strings(locs)
	fmt.Fprintf(b, "\nLegal orders for %s:\n", p)
	for _, loc := range locs {
		orders := append([]string(nil), legal[loc]...)
		sort.Strings(orders)
		fmt.Fprintf(b, "%s: %s\n", loc, strings.Join(orders, " | "))
	}
}

func phaseInstruction(ps *diplomacy.PhaseState, p diplomacy.Power) string {
	switch ps.Kind() {
	case diplomacy.Retreat:
		return "Choose a retreat or disband for each dislodged unit."
	case diplomacy.Build:
		if d := ps.Delta(p); d > 0 {
			return fmt.Sprintf("You may build up to %d units, or WAIVE.", d)
		} else if d < 0 {
			return fmt.Sprintf("You must disband %d units.", -d)
		}
	}
	return "Choose one order for each of your units."
}

func negotiationPrompt(st *State, sit *Situation) string {
	var b strings.Builder
	writeBoard(&b, sit.State)
	writeMemory(&b, st)
	writeMessages(&b, sit.VisibleMessages(st.Power()))
	fmt.Fprintf(&b, "\nNegotiation round %d. Send any messages you want.\n", sit.Round+1)
	b.WriteString(`Answer as {"messages": [{"recipient": "<POWER or GLOBAL>", "message": "..."}]}`)
	return b.String()
}

func ordersPrompt(st *State, sit *Situation) string {
	var b strings.Builder
	p := st.Power()
	writeBoard(&b, sit.State)
	writeMemory(&b, st)
	writeMessages(&b, sit.VisibleMessages(p))
	writeLegal(&b, p, sit.LegalFor(p))
	fmt.Fprintf(&b, "\n%s\n", phaseInstruction(sit.State, p))
	b.WriteString(`Answer as {"orders": ["A PAR - BUR", ...], "reasoning": "..."}`)
	return b.String()
}

func updatePrompt(st *State, next *diplomacy.PhaseState, events []diplomacy.Event) string {
	var b strings.Builder
	writeBoard(&b, next)
	writeMemory(&b, st)
	b.WriteString("\nWhat happened:\n")
	for _, e := range diplomacy.EventsFor(events, st.Power()) {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	for _, e := range st.Staged() {
		fmt.Fprintf(&b, "(%s) %s\n", e.Kind, e.Text)
	}
	b.WriteString("\nWrite a diary entry about this phase and revise your goals and relationships.\n")
	b.WriteString(`Answer as {"diary": "...", "goals": ["..."], "relationships": {"ENGLAND": "friendly", ...}}`)
	return b.String()
}

func consolidationPrompt(p diplomacy.Power, entries []DiaryEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Condense these diary entries of %s into one paragraph keeping promises, betrayals and plans:\n\n", p.Label())
	for _, e := range entries {
		fmt.Fprintf(&b, "[%s %s] %s\n", e.Phase, e.Kind, e.Text)
	}
	return b.String()
}

func blocNegotiationPrompt(members []diplomacy.Power, states map[diplomacy.Power]*State, sit *Situation) string {
	var b strings.Builder
	writeBoard(&b, sit.State)
	for _, p := range members {
		fmt.Fprintf(&b, "\n== %s ==", p)
		writeMemory(&b, states[p])
	}
	writeMessages(&b, sit.VisibleMessages(members...))
	fmt.Fprintf(&b, "\nNegotiation round %d. Decide the messages each bloc member sends.\n", sit.Round+1)
	b.WriteString(`Answer as {"messages": {"<MEMBER>": [{"recipient": "<POWER or GLOBAL>", "message": "..."}]}}`)
	return b.String()
}

func blocOrdersPrompt(members []diplomacy.Power, states map[diplomacy.Power]*State, sit *Situation) string {
	var b strings.Builder
	writeBoard(&b, sit.State)
	for _, p := range members {
		fmt.Fprintf(&b, "\n== %s ==", p)
		writeMemory(&b, states[p])
	}
	writeMessages(&b, sit.VisibleMessages(members...))
	for _, p := range members {
		legal := sit.LegalFor(p)
		if len(legal) == 0 {
			continue
		}
		writeLegal(&b, p, legal)
		fmt.Fprintf(&b, "%s\n", phaseInstruction(sit.State, p))
	}
	b.WriteString(`Answer as {"orders": {"<MEMBER>": ["A PAR - BUR", ...]}, "reasoning": "..."}`)
	return b.String()
}
