package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/freeeve/parley/internal/agent"
	"github.com/freeeve/parley/internal/config"
	"github.com/freeeve/parley/internal/inference"
	"github.com/freeeve/parley/pkg/diplomacy"
)

// newCoordinator registers one OpenAI-compatible backend per setup entry.
func newCoordinator(ctx context.Context, cfg *config.Config, setup *config.Setup, rec inference.Recorder) (*inference.Coordinator, error) {
	c := inference.NewCoordinator(inference.Options{
		CallTimeout: cfg.CallTimeout,
		MaxAttempts: cfg.MaxAttempts,
		Recorder:    rec,
	})
	for _, b := range setup.Backends {
		oc := inference.OpenAIConfig{
			BaseURL:     b.BaseURL,
			APIKey:      b.APIKey(),
			Model:       inference.ModelOf(b.ID),
			MaxTokens:   b.MaxTokens,
			Temperature: b.Temperature,
		}
		if b.OAuth != nil {
			oc.OAuth = &clientcredentials.Config{
				ClientID:     b.OAuth.ClientID,
				ClientSecret: os.Getenv(b.OAuth.ClientSecretEnv),
				TokenURL:     b.OAuth.TokenURL,
				Scopes:       b.OAuth.Scopes,
			}
		}
		backend, err := inference.NewOpenAIBackend(ctx, oc)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", b.ID, err)
		}
		c.Register(b.ID, backend)
	}
	return c, nil
}

// buildAgents turns the setup's blocs and power assignments into agents.
// Powers the setup leaves out are handed to scripted play by the
// orchestrator.
func buildAgents(setup *config.Setup, llm agent.Inference, gameID string) ([]agent.Agent, error) {
	var agents []agent.Agent
	for _, b := range setup.Blocs {
		agents = append(agents, agent.NewBlocAgent(llm, agent.BlocConfig{
			ID:         b.ID,
			Members:    b.BlocMembers(),
			Backend:    b.Backend,
			GameID:     gameID,
			DiaryLimit: setup.Diary.Limit,
			DiaryKeep:  setup.Diary.Keep,
		}))
	}

	names := make([]string, 0, len(setup.Powers))
	for name := range setup.Powers {
		names = append(names, name)
	}
	sort.Strings(names)

	var scripted []diplomacy.Power
	for _, name := range names {
		p, ok := diplomacy.ParsePower(name)
		if !ok || p == diplomacy.Global {
			return nil, fmt.Errorf("unknown power %q", name)
		}
		ps := setup.Powers[name]
		switch ps.Kind {
		case config.KindScripted:
			scripted = append(scripted, p)
		case config.KindLLM, "":
			agents = append(agents, agent.NewSingleAgent(llm, agent.SingleConfig{
				Power:      p,
				Backend:    ps.Backend,
				GameID:     gameID,
				Goals:      ps.Goals,
				DiaryLimit: setup.Diary.Limit,
				DiaryKeep:  setup.Diary.Keep,
			}))
		default:
			return nil, fmt.Errorf("power %s: unknown kind %q", name, ps.Kind)
		}
	}
	if len(scripted) > 0 {
		agents = append(agents, agent.NewScriptedAgent(scripted...))
	}
	return agents, nil
}
