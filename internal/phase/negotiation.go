package phase

import (
	"context"
	"errors"
	"strings"

	"github.com/freeeve/parley/pkg/diplomacy"
)

// Negotiation runs Rounds rounds of messaging. Within a round every active
// power is asked in turn, never concurrently, and sees the messages of the
// earlier rounds.
type Negotiation struct {
	Rounds int
}

func (Negotiation) Name() string { return "negotiation" }

// Run implements Strategy. It never submits orders.
func (n Negotiation) Run(ctx context.Context, env *Env, in *Input) (*Output, error) {
	out := &Output{}
	st := in.State
	all := append([]diplomacy.Message(nil), in.Messages...)

	for round := 0; round < n.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		seen := append([]diplomacy.Message(nil), all...)
		for _, p := range st.ActivePowers() {
			a, aerr := env.agentFor(p)
			if aerr != nil {
				env.fail(st.Name(), aerr, out)
				continue
			}
			sit := env.situation(in, seen, round)
			msgs, aerr := guard(p, "negotiate", func() ([]diplomacy.Message, error) {
				return a.Negotiate(ctx, p, sit)
			})
			if aerr != nil {
				env.fail(st.Name(), aerr, out)
				continue
			}
			for _, m := range msgs {
				m, err := validateMessage(p, m)
				if err != nil {
					env.Log.Debug().Err(err).Str("power", string(p)).Msg("dropping message")
					continue
				}
				m.Phase = st.Name()
				m.SentAt = env.now()
				all = append(all, m)
				out.Messages = append(out.Messages, m)
				if env.History != nil {
					env.History.AddMessage(m)
				}
				if env.OnMessage != nil {
					env.OnMessage(m)
				}
			}
		}
	}
	return out, nil
}

func validateMessage(sender diplomacy.Power, m diplomacy.Message) (diplomacy.Message, error) {
	if m.Sender == "" {
		m.Sender = sender
	}
	if m.Sender != sender {
		return m, errors.New("sender does not match the asking power")
	}
	m.Body = strings.TrimSpace(m.Body)
	if m.Body == "" {
		return m, errors.New("empty body")
	}
	r, ok := diplomacy.ParsePower(string(m.Recipient))
	if !ok {
		return m, errors.New("unknown recipient " + string(m.Recipient))
	}
	if r == sender {
		return m, errors.New("message to self")
	}
	m.Recipient = r
	return m, nil
}
