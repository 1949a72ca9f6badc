package history

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/freeeve/parley/pkg/diplomacy"
)

func mustState(t *testing.T, s diplomacy.Snapshot) *diplomacy.PhaseState {
	t.Helper()
	ps, err := diplomacy.NewPhaseState(s)
	require.NoError(t, err)
	return ps
}

func sampleHistory(t *testing.T) *GameHistory {
	t.Helper()
	h := New("game-1", "standard")

	s1 := mustState(t, diplomacy.Snapshot{
		Name:    "S1901M",
		Units:   map[diplomacy.Power][]string{diplomacy.France: {"A PAR", "F BRE"}, diplomacy.Italy: {"A VEN"}},
		Centers: map[diplomacy.Power][]string{diplomacy.France: {"PAR", "BRE"}, diplomacy.Italy: {"VEN"}},
		Homes:   map[diplomacy.Power][]string{diplomacy.France: {"PAR", "BRE"}},
	})
	h.BeginPhase(s1)
	sent := time.Date(1901, 3, 1, 12, 0, 0, 0, time.UTC)
	h.AddMessage(diplomacy.Message{Sender: diplomacy.France, Recipient: diplomacy.Italy, Body: "peace?", Phase: "S1901M", SentAt: sent})
	h.AddMessage(diplomacy.Message{Sender: diplomacy.Italy, Recipient: diplomacy.Global, Body: "hello all", Phase: "S1901M", SentAt: sent.Add(time.Second)})
	h.AddOrders("S1901M", diplomacy.France, []string{"A PAR - BUR", "F BRE H"})
	h.AddOrders("S1901M", diplomacy.Italy, nil)
	h.AddResults("S1901M", map[string][]string{"A PAR": nil, "F BRE": {"bounce"}})
	h.AddFailure("S1901M", Failure{Power: diplomacy.Italy, Op: "orders", Error: "agent panicked"})

	s2 := mustState(t, diplomacy.Snapshot{
		Name:      "S1901R",
		Units:     map[diplomacy.Power][]string{diplomacy.France: {"A BUR", "F BRE"}},
		Centers:   map[diplomacy.Power][]string{diplomacy.France: {"PAR", "BRE"}, diplomacy.Italy: {"VEN"}},
		Dislodged: map[diplomacy.Power][]string{diplomacy.Italy: {"A VEN"}},
	})
	h.BeginPhase(s2)
	h.AddEvents("S1901R", []diplomacy.Event{{Kind: diplomacy.EventDislodged, Power: diplomacy.Italy, Province: "VEN"}})
	h.SetWinners([]diplomacy.Power{diplomacy.France})
	return h
}

func TestDocument_RoundTripJSON(t *testing.T) {
	h := sampleHistory(t)
	doc := h.Document()

	var buf bytes.Buffer
	require.NoError(t, doc.Encode(&buf))
	first := buf.String()

	loaded, err := DecodeDocument(&buf)
	require.NoError(t, err)
	require.Equal(t, doc, loaded)

	var again bytes.Buffer
	require.NoError(t, loaded.Encode(&again))
	require.Equal(t, first, again.String())
}

func TestDocument_SaveLoadCompressed(t *testing.T) {
	doc := sampleHistory(t).Document()

	for _, name := range []string{"game.json", "game.json.zst"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, doc.Save(path))

		loaded, err := Load(path)
		require.NoError(t, err, name)
		require.Equal(t, doc, loaded, name)
	}
}

func TestFromDocument_RestoresHistory(t *testing.T) {
	h := sampleHistory(t)
	back := FromDocument(h.Document())

	require.Equal(t, h.PhaseNames(), back.PhaseNames())
	require.Equal(t, h.Document(), back.Document())
	require.Equal(t, []diplomacy.Power{diplomacy.France}, back.Winners())
}

func TestDocument_WireShape(t *testing.T) {
	doc := sampleHistory(t).Document()
	b, err := json.Marshal(doc)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Equal(t, "standard", raw["map"])
	require.Equal(t, "game-1", raw["id"])

	phases := raw["phases"].([]any)
	require.Len(t, phases, 2)
	first := phases[0].(map[string]any)
	require.Equal(t, "S1901M", first["name"])
	require.EqualValues(t, 1901, first["year"])
	for _, key := range []string{"messages", "orders", "results", "state"} {
		require.Contains(t, first, key)
	}
	state := first["state"].(map[string]any)
	require.Contains(t, state, "units")
	require.Contains(t, state, "centers")
	msg := first["messages"].([]any)[0].(map[string]any)
	require.Equal(t, "peace?", msg["message"])
}

func TestBeginPhase_Idempotent(t *testing.T) {
	h := sampleHistory(t)
	ps := mustState(t, diplomacy.Snapshot{Name: "S1901M"})
	h.BeginPhase(ps)

	rec, ok := h.Phase("S1901M")
	require.True(t, ok)
	require.Len(t, rec.State.Units[diplomacy.France], 2)
	require.Equal(t, 2, h.Len())
}

func TestAddResults_FirstWins(t *testing.T) {
	h := sampleHistory(t)
	h.AddResults("S1901M", map[string][]string{"F BRE": {"cut"}})

	rec, _ := h.Phase("S1901M")
	require.Equal(t, []string{"bounce"}, rec.Results["F BRE"])
	require.Equal(t, []string{}, rec.Results["A PAR"])
}

func TestMessagesFor(t *testing.T) {
	h := sampleHistory(t)
	require.Len(t, h.MessagesFor("S1901M", diplomacy.Italy), 2)
	require.Len(t, h.MessagesFor("S1901M", diplomacy.Germany), 1)
	require.Nil(t, h.Messages("F1901M"))
}

func TestPhase_ReturnsCopy(t *testing.T) {
	h := sampleHistory(t)
	rec, _ := h.Phase("S1901M")
	rec.Messages[0].Body = "changed"
	rec.Orders[diplomacy.France][0] = "changed"

	again, _ := h.Phase("S1901M")
	require.Equal(t, "peace?", again.Messages[0].Body)
	require.Equal(t, "A PAR - BUR", again.Orders[diplomacy.France][0])
}

func TestFinalCenters(t *testing.T) {
	h := sampleHistory(t)
	got := h.FinalCenters()
	require.Equal(t, diplomacy.France, got[0].Power)
	require.Equal(t, 2, got[0].Centers)
	require.Len(t, got, 7)
}
