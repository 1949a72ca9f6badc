package phase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/freeeve/parley/internal/agent"
	"github.com/freeeve/parley/internal/history"
	"github.com/freeeve/parley/pkg/adjudicator"
	"github.com/freeeve/parley/pkg/adjudicator/adjudicatortest"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// stubAgent plays one power with scripted answers and tracks overlap.
type stubAgent struct {
	power    diplomacy.Power
	inflight *int32
	overlap  *int32
	calls    *[]string

	negotiate func(sit *agent.Situation) ([]diplomacy.Message, error)
	orders    func(sit *agent.Situation) ([]diplomacy.Order, error)
}

func (s *stubAgent) ID() string                { return "stub:" + string(s.power) }
func (s *stubAgent) Powers() []diplomacy.Power { return []diplomacy.Power{s.power} }

func (s *stubAgent) enter(op string) func() {
	if s.inflight != nil {
		if atomic.AddInt32(s.inflight, 1) > 1 {
			atomic.AddInt32(s.overlap, 1)
		}
	}
	if s.calls != nil {
		*s.calls = append(*s.calls, op+":"+string(s.power))
	}
	time.Sleep(time.Millisecond)
	return func() {
		if s.inflight != nil {
			atomic.AddInt32(s.inflight, -1)
		}
	}
}

func (s *stubAgent) Negotiate(_ context.Context, _ diplomacy.Power, sit *agent.Situation) ([]diplomacy.Message, error) {
	defer s.enter("negotiate")()
	if s.negotiate == nil {
		return nil, nil
	}
	return s.negotiate(sit)
}

func (s *stubAgent) DecideOrders(_ context.Context, p diplomacy.Power, sit *agent.Situation) ([]diplomacy.Order, error) {
	defer s.enter("orders")()
	if s.orders == nil {
		return agent.DefaultOrders(sit.State, p), nil
	}
	return s.orders(sit)
}

func (s *stubAgent) UpdateState(context.Context, string, *diplomacy.PhaseState, []diplomacy.Event) error {
	return nil
}

func openingSnapshot() diplomacy.Snapshot {
	return diplomacy.Snapshot{
		Name: "S1901M",
		Units: map[diplomacy.Power][]string{
			diplomacy.Austria: {"A VIE"},
			diplomacy.England: {"F LON"},
			diplomacy.France:  {"A PAR", "F BRE"},
			diplomacy.Germany: {"A BER"},
			diplomacy.Italy:   {"A VEN"},
			diplomacy.Russia:  {"A MOS"},
			diplomacy.Turkey:  {"F ANK"},
		},
		Centers: map[diplomacy.Power][]string{
			diplomacy.Austria: {"VIE"},
			diplomacy.England: {"LON"},
			diplomacy.France:  {"PAR", "BRE"},
			diplomacy.Germany: {"BER"},
			diplomacy.Italy:   {"VEN"},
			diplomacy.Russia:  {"MOS"},
			diplomacy.Turkey:  {"ANK"},
		},
	}
}

func openingLegal() map[string][]string {
	return map[string][]string{
		"VIE": {"A VIE H", "A VIE - GAL"},
		"LON": {"F LON H", "F LON - NTH"},
		"PAR": {"A PAR H", "A PAR - BUR"},
		"BRE": {"F BRE H", "F BRE - MAO"},
		"BER": {"A BER H", "A BER - KIE"},
		"VEN": {"A VEN H", "A VEN - TYR"},
		"MOS": {"A MOS H", "A MOS - UKR"},
		"ANK": {"F ANK H", "F ANK - BLA"},
	}
}

func newEnv(t *testing.T, snap diplomacy.Snapshot, agents map[diplomacy.Power]agent.Agent) (*Env, *Input, *adjudicatortest.Engine) {
	t.Helper()
	eng := adjudicatortest.New(snap)
	st, err := eng.State(context.Background())
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	legal, _ := eng.PossibleOrders(context.Background())
	h := history.New("test", "standard")
	h.BeginPhase(st)
	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env := &Env{
		GameID:  "test",
		Engine:  eng,
		History: h,
		Agents:  agents,
		Now:     func() time.Time { clock = clock.Add(time.Second); return clock },
	}
	return env, &Input{State: st, Legal: legal}, eng
}

func TestScenarioB_NegotiationIsSequential(t *testing.T) {
	var inflight, overlap int32
	var calls []string
	agents := make(map[diplomacy.Power]agent.Agent)
	for _, p := range diplomacy.AllPowers() {
		p := p
		agents[p] = &stubAgent{
			power: p, inflight: &inflight, overlap: &overlap, calls: &calls,
			negotiate: func(sit *agent.Situation) ([]diplomacy.Message, error) {
				return []diplomacy.Message{{Recipient: diplomacy.Global, Body: fmt.Sprintf("round %d from %s", sit.Round, p)}}, nil
			},
		}
	}
	env, in, _ := newEnv(t, openingSnapshot(), agents)

	out, err := Negotiation{Rounds: 2}.Run(context.Background(), env, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(calls) != 14 {
		t.Fatalf("calls = %d, want 14", len(calls))
	}
	if overlap != 0 {
		t.Errorf("negotiate calls overlapped %d times", overlap)
	}
	for i, p := range diplomacy.AllPowers() {
		if calls[i] != "negotiate:"+string(p) || calls[i+7] != "negotiate:"+string(p) {
			t.Errorf("call %d out of order: %s", i, calls[i])
		}
	}
	if len(out.Messages) != 14 {
		t.Errorf("messages = %d, want 14", len(out.Messages))
	}
	if got := env.History.Messages("S1901M"); len(got) != 14 {
		t.Errorf("history messages = %d, want 14", len(got))
	}
	for _, m := range out.Messages {
		if m.Phase != "S1901M" || m.SentAt.IsZero() {
			t.Errorf("message not stamped: %+v", m)
		}
	}
}

func TestNegotiation_SecondRoundSeesFirst(t *testing.T) {
	var seenInRound1 int
	agents := map[diplomacy.Power]agent.Agent{}
	for _, p := range diplomacy.AllPowers() {
		agents[p] = &stubAgent{power: p}
	}
	agents[diplomacy.France] = &stubAgent{power: diplomacy.France, negotiate: func(sit *agent.Situation) ([]diplomacy.Message, error) {
		if sit.Round == 0 {
			return []diplomacy.Message{{Recipient: diplomacy.England, Body: "hello"}}, nil
		}
		seenInRound1 = len(sit.Messages)
		return nil, nil
	}}
	env, in, _ := newEnv(t, openingSnapshot(), agents)

	if _, err := (Negotiation{Rounds: 2}).Run(context.Background(), env, in); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if seenInRound1 != 1 {
		t.Errorf("round 1 saw %d messages, want 1", seenInRound1)
	}
}

func TestNegotiation_ValidatesMessages(t *testing.T) {
	agents := map[diplomacy.Power]agent.Agent{}
	for _, p := range diplomacy.AllPowers() {
		agents[p] = &stubAgent{power: p}
	}
	agents[diplomacy.France] = &stubAgent{power: diplomacy.France, negotiate: func(*agent.Situation) ([]diplomacy.Message, error) {
		return []diplomacy.Message{
			{Recipient: diplomacy.England, Body: "ok"},
			{Recipient: diplomacy.France, Body: "to self"},
			{Recipient: "ATLANTIS", Body: "unknown"},
			{Recipient: diplomacy.Italy, Body: "   "},
			{Sender: diplomacy.Germany, Recipient: diplomacy.Italy, Body: "forged"},
			{Recipient: "italy", Body: "lower case is fine"},
		}, nil
	}}
	env, in, _ := newEnv(t, openingSnapshot(), agents)

	out, err := Negotiation{Rounds: 1}.Run(context.Background(), env, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Messages) != 2 {
		t.Fatalf("accepted %d messages, want 2: %+v", len(out.Messages), out.Messages)
	}
	if out.Messages[1].Recipient != diplomacy.Italy || out.Messages[1].Sender != diplomacy.France {
		t.Errorf("second message = %+v", out.Messages[1])
	}
}

func TestScenarioC_PanickingAgentHolds(t *testing.T) {
	agents := map[diplomacy.Power]agent.Agent{}
	for _, p := range diplomacy.AllPowers() {
		agents[p] = &stubAgent{power: p}
	}
	agents[diplomacy.France] = &stubAgent{power: diplomacy.France, orders: func(*agent.Situation) ([]diplomacy.Order, error) {
		panic("model returned a haiku")
	}}
	agents[diplomacy.Germany] = &stubAgent{power: diplomacy.Germany, orders: func(*agent.Situation) ([]diplomacy.Order, error) {
		return nil, errors.New("bad state")
	}}
	env, in, eng := newEnv(t, openingSnapshot(), agents)

	out, err := Movement{}.Run(context.Background(), env, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{"F BRE H", "A PAR H"}
	got := out.Orders[diplomacy.France]
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("France orders = %v, want %v", got, want)
	}
	if fmt.Sprint(out.Orders[diplomacy.Germany]) != "[A BER H]" {
		t.Errorf("Germany orders = %v", out.Orders[diplomacy.Germany])
	}
	if len(out.Orders) != 7 {
		t.Errorf("submitted for %d powers, want 7", len(out.Orders))
	}
	if len(eng.Submissions()) != 7 {
		t.Errorf("engine saw %d submissions, want 7", len(eng.Submissions()))
	}

	failures := env.History.Failures("S1901M")
	if len(failures) != 2 {
		t.Fatalf("failures = %+v", failures)
	}
	if failures[0].Power != diplomacy.France || failures[0].Op != "orders" {
		t.Errorf("first failure = %+v", failures[0])
	}
	var aerr *AgentError
	if len(out.Failures) != 2 || !errors.As(out.Failures[0], &aerr) {
		t.Errorf("output failures = %v", out.Failures)
	}
}

func TestMovement_FiltersOrders(t *testing.T) {
	parse := func(ss ...string) []diplomacy.Order {
		var out []diplomacy.Order
		for _, s := range ss {
			o, err := diplomacy.ParseOrder(s)
			if err != nil {
				t.Fatalf("ParseOrder(%q): %v", s, err)
			}
			out = append(out, o)
		}
		return out
	}
	st, _ := diplomacy.NewPhaseState(openingSnapshot())
	legal := adjudicator.NewLegalSet(openingLegal())

	got := keepMovement(st, diplomacy.France, legal, parse(
		"A PAR - MUN",  // not legal
		"A BER - KIE",  // not France's unit
		"F BRE - MAO",  // kept
		"F BRE H",      // duplicate location
		"A PAR - BUR",  // kept
	))
	want := "[F BRE - MAO A PAR - BUR]"
	if fmt.Sprint(diplomacy.FormatOrders(got)) != want {
		t.Errorf("kept = %v, want %v", diplomacy.FormatOrders(got), want)
	}

	got = keepMovement(st, diplomacy.France, legal, parse("F BRE - MAO"))
	if fmt.Sprint(diplomacy.FormatOrders(got)) != "[F BRE - MAO A PAR H]" {
		t.Errorf("missing unit not held: %v", diplomacy.FormatOrders(got))
	}
}

func TestRetreat_DisbandsUnlessLegal(t *testing.T) {
	snap := diplomacy.Snapshot{
		Name:      "F1901R",
		Units:     map[diplomacy.Power][]string{diplomacy.Germany: {"A MUN"}, diplomacy.Austria: {"A TRI"}},
		Centers:   map[diplomacy.Power][]string{diplomacy.Germany: {"MUN"}, diplomacy.Austria: {"TRI"}},
		Dislodged: map[diplomacy.Power][]string{diplomacy.Austria: {"A VIE", "A BUD"}},
	}
	var asked []string
	agents := map[diplomacy.Power]agent.Agent{
		diplomacy.Germany: &stubAgent{power: diplomacy.Germany, calls: &asked},
		diplomacy.Austria: &stubAgent{power: diplomacy.Austria, calls: &asked, orders: func(*agent.Situation) ([]diplomacy.Order, error) {
			o1, _ := diplomacy.ParseOrder("A VIE R BOH")
			o2, _ := diplomacy.ParseOrder("A BUD R RUM")
			o3, _ := diplomacy.ParseOrder("A TRI H")
			return []diplomacy.Order{o1, o2, o3}, nil
		}},
	}
	env, in, _ := newEnv(t, snap, agents)
	in.Legal = map[string][]string{"VIE": {"A VIE R BOH", "A VIE D"}, "BUD": {"A BUD D"}}

	out, err := Retreat{}.Run(context.Background(), env, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fmt.Sprint(asked) != "[orders:AUSTRIA]" {
		t.Errorf("asked = %v, only powers with dislodged units act", asked)
	}
	if fmt.Sprint(out.Orders[diplomacy.Austria]) != "[A VIE R BOH A BUD D]" {
		t.Errorf("Austria = %v", out.Orders[diplomacy.Austria])
	}
}

func buildSnapshot() diplomacy.Snapshot {
	return diplomacy.Snapshot{
		Name: "W1901A",
		Units: map[diplomacy.Power][]string{
			diplomacy.France:  {"A PAR", "F MAO"},
			diplomacy.Germany: {"A BER", "A MUN", "F KIE"},
			diplomacy.Italy:   {"A VEN"},
		},
		Centers: map[diplomacy.Power][]string{
			diplomacy.France:  {"PAR", "BRE", "MAR", "SPA", "POR"},
			diplomacy.Germany: {"BER", "MUN"},
			diplomacy.Italy:   {"VEN"},
		},
		Homes: map[diplomacy.Power][]string{
			diplomacy.France:  {"PAR", "BRE", "MAR"},
			diplomacy.Germany: {"BER", "MUN", "KIE"},
			diplomacy.Italy:   {"VEN", "ROM", "NAP"},
		},
	}
}

func TestBuild_LimitsAndLegality(t *testing.T) {
	st, _ := diplomacy.NewPhaseState(buildSnapshot())
	legal := adjudicator.NewLegalSet(map[string][]string{
		"BRE": {"A BRE B", "F BRE B"},
		"MAR": {"A MAR B", "F MAR B"},
		"PAR": {"A PAR B"},
	})
	parse := func(ss ...string) []diplomacy.Order {
		var out []diplomacy.Order
		for _, s := range ss {
			o, _ := diplomacy.ParseOrder(s)
			out = append(out, o)
		}
		return out
	}

	// France: delta +3 with BRE and MAR free.
	got := keepBuild(st, diplomacy.France, legal, parse("A PAR B", "F SPA B", "F BRE B", "A BRE B", "WAIVE", "A MAR B"))
	if fmt.Sprint(diplomacy.FormatOrders(got)) != "[F BRE B WAIVE A MAR B]" {
		t.Errorf("France builds = %v", diplomacy.FormatOrders(got))
	}

	// Germany: delta -1; one own disband accepted, foreign and extra ignored.
	got = keepBuild(st, diplomacy.Germany, legal, parse("A PAR D", "F KIE D", "A BER D"))
	if fmt.Sprint(diplomacy.FormatOrders(got)) != "[F KIE D]" {
		t.Errorf("Germany disbands = %v", diplomacy.FormatOrders(got))
	}

	// Missing decisions are forfeited.
	if got := keepBuild(st, diplomacy.France, legal, nil); len(got) != 0 {
		t.Errorf("invented orders: %v", got)
	}
}

func TestBuild_OnlyPowersWithDelta(t *testing.T) {
	var asked []string
	agents := map[diplomacy.Power]agent.Agent{}
	for _, p := range diplomacy.AllPowers() {
		agents[p] = &stubAgent{power: p, calls: &asked}
	}
	env, in, _ := newEnv(t, buildSnapshot(), agents)

	out, err := Build{}.Run(context.Background(), env, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fmt.Sprint(asked) != "[orders:FRANCE orders:GERMANY]" {
		t.Errorf("asked = %v", asked)
	}
	if len(out.Orders[diplomacy.France]) != 0 {
		t.Errorf("France defaults should forfeit, got %v", out.Orders[diplomacy.France])
	}
}

func TestMissingAgentIsRecorded(t *testing.T) {
	env, in, _ := newEnv(t, openingSnapshot(), map[diplomacy.Power]agent.Agent{})
	out, err := Movement{}.Run(context.Background(), env, in)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out.Failures) != 7 {
		t.Errorf("failures = %d, want 7", len(out.Failures))
	}
	if fmt.Sprint(out.Orders[diplomacy.Italy]) != "[A VEN H]" {
		t.Errorf("Italy = %v", out.Orders[diplomacy.Italy])
	}
}

func TestNext(t *testing.T) {
	pn := func(s string) diplomacy.PhaseName {
		p, err := diplomacy.ParsePhaseName(s)
		if err != nil {
			t.Fatalf("ParsePhaseName(%q): %v", s, err)
		}
		return p
	}
	tests := []struct {
		cur         string
		dislodged   bool
		adjustments bool
		want        string
	}{
		{"S1901M", false, false, "F1901M"},
		{"S1901M", true, false, "S1901R"},
		{"S1901R", false, true, "F1901M"},
		{"F1901M", false, true, "W1901A"},
		{"F1901M", false, false, "S1902M"},
		{"F1901M", true, true, "F1901R"},
		{"F1901R", false, true, "W1901A"},
		{"F1901R", false, false, "S1902M"},
		{"W1901A", false, false, "S1902M"},
	}
	for _, tt := range tests {
		if got := Next(pn(tt.cur), tt.dislodged, tt.adjustments).String(); got != tt.want {
			t.Errorf("Next(%s, %v, %v) = %s, want %s", tt.cur, tt.dislodged, tt.adjustments, got, tt.want)
		}
	}
}

func TestFor(t *testing.T) {
	for _, k := range []diplomacy.PhaseKind{diplomacy.Movement, diplomacy.Retreat, diplomacy.Build} {
		if _, err := For(k); err != nil {
			t.Errorf("For(%s): %v", k, err)
		}
	}
	if _, err := For("BOGUS"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
