// Package orchestrator runs a game from its first phase to the end: it reads
// the board from the adjudicator, runs the phase strategies, submits orders,
// adjudicates, and tells agents and observers what happened.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/freeeve/parley/internal/agent"
	"github.com/freeeve/parley/internal/history"
	"github.com/freeeve/parley/internal/phase"
	"github.com/freeeve/parley/pkg/adjudicator"
	"github.com/freeeve/parley/pkg/diplomacy"
)

var tracer = otel.Tracer("github.com/freeeve/parley/internal/orchestrator")

// AdjudicationError is a failure talking to the adjudicator. It ends the run.
type AdjudicationError struct {
	Phase string
	Op    string
	Err   error
}

func (e *AdjudicationError) Error() string {
	if e.Phase == "" {
		return fmt.Sprintf("adjudication %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("adjudication %s at %s: %v", e.Op, e.Phase, e.Err)
}

func (e *AdjudicationError) Unwrap() error { return e.Err }

// End reasons.
const (
	EndCompleted = "completed"
	EndMaxYear   = "max_year"
	EndMaxPhases = "max_phases"
)

// Config bounds a game.
type Config struct {
	GameID            string
	Map               string
	NegotiationRounds int

	// MaxYear stops the game before the first phase of a later year; zero
	// means no limit.
	MaxYear int

	// MaxPhases stops the game after this many adjudicated phases; zero means
	// no limit.
	MaxPhases int
}

// Outcome summarizes a finished game.
type Outcome struct {
	GameID     string
	Reason     string
	FinalPhase string
	Phases     int
	Winners    []diplomacy.Power
	Centers    map[diplomacy.Power]int
}

// Archive stores the finished replay document.
type Archive interface {
	SaveGame(ctx context.Context, doc history.Document) error
}

// Orchestrator owns one game. It is driven by a single goroutine.
type Orchestrator struct {
	cfg     Config
	engine  adjudicator.Engine
	agents  []agent.Agent
	byPower map[diplomacy.Power]agent.Agent
	history *history.GameHistory

	observers []Observer
	archive   Archive
	now       func() time.Time
	log       zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithObserver adds an observer for phase and message updates.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithArchive stores the document when the game ends.
func WithArchive(a Archive) Option {
	return func(o *Orchestrator) { o.archive = a }
}

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithLogger replaces the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// New builds an orchestrator. Each power may be played by at most one agent;
// powers nobody plays are given a ScriptedAgent.
func New(cfg Config, engine adjudicator.Engine, agents []agent.Agent, opts ...Option) (*Orchestrator, error) {
	if engine == nil {
		return nil, errors.New("orchestrator: engine is required")
	}
	if cfg.Map == "" {
		cfg.Map = "standard"
	}
	o := &Orchestrator{
		cfg:     cfg,
		engine:  engine,
		byPower: make(map[diplomacy.Power]agent.Agent),
		history: history.New(cfg.GameID, cfg.Map),
		now:     time.Now,
		log:     log.With().Str("game", cfg.GameID).Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}

	for _, a := range agents {
		for _, p := range a.Powers() {
			if prev, ok := o.byPower[p]; ok {
				return nil, fmt.Errorf("orchestrator: %s is played by both %s and %s", p, prev.ID(), a.ID())
			}
			o.byPower[p] = a
		}
		o.agents = append(o.agents, a)
	}
	var idle []diplomacy.Power
	for _, p := range diplomacy.AllPowers() {
		if _, ok := o.byPower[p]; !ok {
			idle = append(idle, p)
		}
	}
	if len(idle) > 0 {
		s := agent.NewScriptedAgent(idle...)
		for _, p := range idle {
			o.byPower[p] = s
		}
		o.agents = append(o.agents, s)
		o.log.Info().Str("agent", s.ID()).Msg("unassigned powers will hold")
	}
	return o, nil
}

// History returns the game record.
func (o *Orchestrator) History() *history.GameHistory { return o.history }

// AgentFor returns the agent playing a power.
func (o *Orchestrator) AgentFor(p diplomacy.Power) agent.Agent { return o.byPower[p] }

func (o *Orchestrator) env() *phase.Env {
	return &phase.Env{
		GameID:  o.cfg.GameID,
		Engine:  o.engine,
		History: o.history,
		Agents:  o.byPower,
		Log:     o.log,
		Now:     o.now,
		OnMessage: func(m diplomacy.Message) {
			o.notify(context.Background(), Update{Type: UpdateMessage, GameID: o.cfg.GameID, Phase: m.Phase, Message: &m})
		},
	}
}

// Run plays until the engine reports completion or a configured limit is
// reached. Agent failures never end the run; adjudication failures do.
func (o *Orchestrator) Run(ctx context.Context) (*Outcome, error) {
	env := o.env()
	out := &Outcome{GameID: o.cfg.GameID}

	st, err := o.engine.State(ctx)
	if err != nil {
		return nil, &AdjudicationError{Op: "state", Err: err}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if reason, done := o.terminal(st, out.Phases); done {
			return o.finish(ctx, st, out, reason, nil), nil
		}

		next, res, err := o.playPhase(ctx, env, st)
		if err != nil {
			return nil, err
		}
		out.Phases++

		if res.Completed || next.IsCompleted() {
			return o.finish(ctx, next, out, EndCompleted, res.Winners), nil
		}
		st = next
	}
}

func (o *Orchestrator) terminal(st *diplomacy.PhaseState, played int) (string, bool) {
	switch {
	case st.IsCompleted():
		return EndCompleted, true
	case o.cfg.MaxYear > 0 && st.Year() > o.cfg.MaxYear:
		return EndMaxYear, true
	case o.cfg.MaxPhases > 0 && played >= o.cfg.MaxPhases:
		return EndMaxPhases, true
	}
	return "", false
}

// playPhase runs one phase through adjudication and returns the new state.
func (o *Orchestrator) playPhase(ctx context.Context, env *phase.Env, st *diplomacy.PhaseState) (next *diplomacy.PhaseState, res *adjudicator.Result, err error) {
	name := st.Name()
	ctx, span := tracer.Start(ctx, "game.phase", trace.WithAttributes(
		attribute.String("game.id", o.cfg.GameID),
		attribute.String("game.phase", name),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	plog := o.log.With().Str("phase", name).Logger()
	env.Log = plog

	o.history.BeginPhase(st)
	o.notify(ctx, Update{Type: UpdatePhaseChanged, GameID: o.cfg.GameID, Phase: name, State: snapshotPtr(st)})

	legal, err := o.engine.PossibleOrders(ctx)
	if err != nil {
		return nil, nil, &AdjudicationError{Phase: name, Op: "possible orders", Err: err}
	}
	in := &phase.Input{State: st, Legal: legal}

	if st.Kind() == diplomacy.Movement && o.cfg.NegotiationRounds > 0 {
		neg, err := phase.Negotiation{Rounds: o.cfg.NegotiationRounds}.Run(ctx, env, in)
		if err != nil {
			return nil, nil, err
		}
		in.Messages = neg.Messages
	}

	strat, err := phase.For(st.Kind())
	if err != nil {
		return nil, nil, &AdjudicationError{Phase: name, Op: "phase kind", Err: err}
	}
	submitted, err := strat.Run(ctx, env, in)
	if err != nil {
		return nil, nil, &AdjudicationError{Phase: name, Op: "submit", Err: err}
	}

	res, err = o.engine.Process(ctx)
	if err != nil {
		return nil, nil, &AdjudicationError{Phase: name, Op: "process", Err: err}
	}
	o.history.AddResults(name, res.Results)

	next, err = o.engine.State(ctx)
	if err != nil {
		return nil, nil, &AdjudicationError{Phase: name, Op: "state", Err: err}
	}
	var events []diplomacy.Event
	if !next.IsCompleted() || len(next.AllUnits()) > 0 {
		events = diplomacy.Diff(st, next)
		o.history.AddEvents(name, events)
	}

	if !next.IsCompleted() {
		want := phase.Next(st.Phase(), next.HasDislodged(), phase.NeedsAdjustment(next))
		if want != next.Phase() {
			plog.Warn().Str("expected", want.String()).Str("engine", next.Name()).Msg("engine moved to an unexpected phase")
		}
	}

	o.updateAgents(ctx, plog, name, next, events)

	plog.Info().Int("orders", countOrders(submitted.Orders)).Int("events", len(events)).
		Int("failures", len(submitted.Failures)).Str("next", next.Name()).Msg("phase resolved")
	o.notify(ctx, Update{
		Type:    UpdatePhaseResolved,
		GameID:  o.cfg.GameID,
		Phase:   name,
		State:   snapshotPtr(next),
		Orders:  submitted.Orders,
		Results: res.Results,
		Events:  events,
	})
	return next, res, nil
}

// updateAgents calls UpdateState on every agent, catching errors and panics.
func (o *Orchestrator) updateAgents(ctx context.Context, plog zerolog.Logger, played string, next *diplomacy.PhaseState, events []diplomacy.Event) {
	for _, a := range o.agents {
		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return a.UpdateState(ctx, played, next, events)
		}()
		if err != nil {
			plog.Warn().Err(err).Str("agent", a.ID()).Msg("agent state update failed")
		}
	}
}

func (o *Orchestrator) finish(ctx context.Context, st *diplomacy.PhaseState, out *Outcome, reason string, winners []diplomacy.Power) *Outcome {
	out.Reason = reason
	out.FinalPhase = st.Name()
	out.Winners = append([]diplomacy.Power(nil), winners...)
	out.Centers = make(map[diplomacy.Power]int)
	if st.IsCompleted() && len(st.AllUnits()) == 0 {
		// The engine dropped the board; report the last one we saw.
		for _, c := range o.history.FinalCenters() {
			out.Centers[c.Power] = c.Centers
		}
	} else {
		if !st.IsCompleted() {
			o.history.BeginPhase(st)
		}
		for _, p := range diplomacy.AllPowers() {
			out.Centers[p] = st.CenterCount(p)
		}
	}
	o.history.SetWinners(winners)

	o.log.Info().Str("reason", reason).Str("phase", out.FinalPhase).Int("phases", out.Phases).
		Interface("winners", winners).Msg("game finished")
	o.notify(ctx, Update{Type: UpdateGameEnded, GameID: o.cfg.GameID, Phase: out.FinalPhase, Outcome: out})

	if o.archive != nil {
		if err := o.archive.SaveGame(context.WithoutCancel(ctx), o.history.Document()); err != nil {
			o.log.Error().Err(err).Msg("failed to archive game")
		}
	}
	return out
}

func snapshotPtr(st *diplomacy.PhaseState) *diplomacy.Snapshot {
	s := st.Snapshot()
	return &s
}

func countOrders(m map[diplomacy.Power][]string) int {
	n := 0
	for _, list := range m {
		n += len(list)
	}
	return n
}
