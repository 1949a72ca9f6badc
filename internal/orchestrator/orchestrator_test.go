package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/freeeve/parley/internal/agent"
	"github.com/freeeve/parley/internal/history"
	"github.com/freeeve/parley/pkg/adjudicator/adjudicatortest"
	"github.com/freeeve/parley/pkg/diplomacy"
)

type testAgent struct {
	power     diplomacy.Power
	negotiate func(sit *agent.Situation) []diplomacy.Message
	panics    bool
	played    []string
}

func (a *testAgent) ID() string                { return "test:" + string(a.power) }
func (a *testAgent) Powers() []diplomacy.Power { return []diplomacy.Power{a.power} }

func (a *testAgent) Negotiate(_ context.Context, _ diplomacy.Power, sit *agent.Situation) ([]diplomacy.Message, error) {
	if a.negotiate == nil {
		return nil, nil
	}
	return a.negotiate(sit), nil
}

func (a *testAgent) DecideOrders(_ context.Context, p diplomacy.Power, sit *agent.Situation) ([]diplomacy.Order, error) {
	return agent.DefaultOrders(sit.State, p), nil
}

func (a *testAgent) UpdateState(_ context.Context, played string, _ *diplomacy.PhaseState, _ []diplomacy.Event) error {
	a.played = append(a.played, played)
	if a.panics {
		panic("boom")
	}
	return nil
}

type recordingObserver struct {
	updates []Update
}

func (r *recordingObserver) Observe(_ context.Context, u Update) error {
	r.updates = append(r.updates, u)
	return nil
}

func (r *recordingObserver) count(kind string) int {
	n := 0
	for _, u := range r.updates {
		if u.Type == kind {
			n++
		}
	}
	return n
}

type memArchive struct {
	docs []history.Document
}

func (m *memArchive) SaveGame(_ context.Context, doc history.Document) error {
	m.docs = append(m.docs, doc)
	return nil
}

func board(name string, frenchCenters ...string) diplomacy.Snapshot {
	return diplomacy.Snapshot{
		Name: name,
		Units: map[diplomacy.Power][]string{
			diplomacy.England: {"F LON"},
			diplomacy.France:  {"A PAR", "F BRE"},
			diplomacy.Germany: {"A BER"},
		},
		Centers: map[diplomacy.Power][]string{
			diplomacy.England: {"LON"},
			diplomacy.France:  frenchCenters,
			diplomacy.Germany: {"BER"},
		},
		Homes: map[diplomacy.Power][]string{
			diplomacy.England: {"LON"},
			diplomacy.France:  {"PAR", "BRE", "MAR"},
			diplomacy.Germany: {"BER"},
		},
	}
}

func firstYear() *adjudicatortest.Engine {
	return adjudicatortest.New(
		board("S1901M", "PAR", "BRE"),
		board("F1901M", "PAR", "BRE"),
		board("W1901A", "PAR", "BRE", "MAR"),
	)
}

func fixedClock() time.Time { return time.Date(1901, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestRun_PlaysToCompletion(t *testing.T) {
	engine := firstYear()
	obs := &recordingObserver{}
	arch := &memArchive{}
	o, err := New(Config{GameID: "g1"}, engine, nil, WithObserver(obs), WithArchive(arch), WithClock(fixedClock))
	require.NoError(t, err)

	out, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"S1901M", "F1901M", "W1901A"}, engine.Processed())
	require.Equal(t, EndCompleted, out.Reason)
	require.Equal(t, diplomacy.Completed, out.FinalPhase)
	require.Equal(t, 3, out.Phases)
	require.Equal(t, 3, out.Centers[diplomacy.France])

	require.Equal(t, []string{"S1901M", "F1901M", "W1901A"}, o.History().PhaseNames())
	require.Equal(t, 3, obs.count(UpdatePhaseChanged))
	require.Equal(t, 3, obs.count(UpdatePhaseResolved))
	require.Equal(t, 1, obs.count(UpdateGameEnded))

	require.Len(t, arch.docs, 1)
	require.Equal(t, "g1", arch.docs[0].ID)
	require.Len(t, arch.docs[0].Phases, 3)
}

func TestRun_RecordsCaptureEvents(t *testing.T) {
	engine := firstYear()
	o, err := New(Config{GameID: "g1"}, engine, nil)
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.NoError(t, err)

	rec, ok := o.History().Phase("F1901M")
	require.True(t, ok)
	require.Equal(t, []diplomacy.Event{{Kind: diplomacy.EventCapture, Power: diplomacy.France, Province: "MAR"}}, rec.Events)
}

func TestRun_MaxPhases(t *testing.T) {
	engine := firstYear()
	o, err := New(Config{GameID: "g1", MaxPhases: 1}, engine, nil)
	require.NoError(t, err)

	out, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, EndMaxPhases, out.Reason)
	require.Equal(t, "F1901M", out.FinalPhase)
	require.Equal(t, []string{"S1901M"}, engine.Processed())
	require.Equal(t, 2, out.Centers[diplomacy.France])
}

func TestRun_MaxYear(t *testing.T) {
	engine := adjudicatortest.New(
		board("S1901M", "PAR", "BRE"),
		board("S1902M", "PAR", "BRE"),
	)
	o, err := New(Config{GameID: "g1", MaxYear: 1901}, engine, nil)
	require.NoError(t, err)

	out, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, EndMaxYear, out.Reason)
	require.Equal(t, "S1902M", out.FinalPhase)
	require.Equal(t, []string{"S1901M"}, engine.Processed())
}

func TestRun_ProcessFailureIsFatal(t *testing.T) {
	engine := firstYear()
	engine.FailProcessAt = "F1901M"
	arch := &memArchive{}
	o, err := New(Config{GameID: "g1"}, engine, nil, WithArchive(arch))
	require.NoError(t, err)

	out, err := o.Run(context.Background())
	require.Nil(t, out)
	var aerr *AdjudicationError
	require.True(t, errors.As(err, &aerr))
	require.Equal(t, "F1901M", aerr.Phase)
	require.Equal(t, "process", aerr.Op)
	require.Empty(t, arch.docs)
}

func TestRun_ContainsUpdatePanics(t *testing.T) {
	engine := firstYear()
	bad := &testAgent{power: diplomacy.England, panics: true}
	good := &testAgent{power: diplomacy.France}
	o, err := New(Config{GameID: "g1"}, engine, []agent.Agent{bad, good})
	require.NoError(t, err)

	out, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, EndCompleted, out.Reason)
	require.Len(t, bad.played, 3)
	require.Equal(t, engine.Processed(), good.played, "every agent is told which phase was played")
}

func TestRun_NegotiatesInMovementOnly(t *testing.T) {
	engine := firstYear()
	eng := &testAgent{power: diplomacy.England, negotiate: func(sit *agent.Situation) []diplomacy.Message {
		return []diplomacy.Message{{Sender: diplomacy.England, Recipient: diplomacy.France, Body: "channel?"}}
	}}
	obs := &recordingObserver{}
	o, err := New(Config{GameID: "g1", NegotiationRounds: 1}, engine, []agent.Agent{eng}, WithObserver(obs), WithClock(fixedClock))
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, o.History().Messages("S1901M"), 1)
	require.Len(t, o.History().Messages("F1901M"), 1)
	require.Empty(t, o.History().Messages("W1901A"))
	require.Equal(t, 2, obs.count(UpdateMessage))
}

func TestRun_CancelledContext(t *testing.T) {
	engine := firstYear()
	o, err := New(Config{GameID: "g1"}, engine, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, engine.Processed())
}

func TestNew_AssignsIdlePowers(t *testing.T) {
	fr := &testAgent{power: diplomacy.France}
	o, err := New(Config{GameID: "g1"}, firstYear(), []agent.Agent{fr})
	require.NoError(t, err)
	require.Equal(t, "test:FRANCE", o.AgentFor(diplomacy.France).ID())
	require.Contains(t, o.AgentFor(diplomacy.Russia).ID(), "scripted")
	require.Same(t, o.AgentFor(diplomacy.Russia), o.AgentFor(diplomacy.Turkey))
}

func TestNew_RejectsDoubleClaim(t *testing.T) {
	a := &testAgent{power: diplomacy.France}
	b := &testAgent{power: diplomacy.France}
	_, err := New(Config{GameID: "g1"}, firstYear(), []agent.Agent{a, b})
	require.Error(t, err)
}
