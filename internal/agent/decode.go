package agent

import (
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/freeeve/parley/internal/inference"
	"github.com/freeeve/parley/pkg/diplomacy"
)

var (
	fieldMessages      = inference.F("messages", "msgs", "replies", "outbox")
	fieldOrders        = inference.F("orders", "order_list", "moves")
	fieldDiary         = inference.F("diary", "diary_entry", "summary", "journal")
	fieldReasoning     = "reasoning"
	fieldGoals         = "goals"
	fieldRelationships = "relationships"
)

// decodeOrders reads orders given as a list of strings, a list of
// {"order": ...} objects, or an object keyed by location. Entries that do not
// parse are dropped.
func decodeOrders(r gjson.Result) []diplomacy.Order {
	var raws []string
	collect := func(v gjson.Result) {
		switch {
		case v.Type == gjson.String:
			raws = append(raws, v.String())
		case v.IsObject():
			if o := v.Get("order"); o.Exists() {
				raws = append(raws, o.String())
			}
		case v.IsArray():
			for _, x := range v.Array() {
				if x.Type == gjson.String {
					raws = append(raws, x.String())
				}
			}
		}
	}
	if r.IsArray() {
		for _, v := range r.Array() {
			collect(v)
		}
	} else if r.IsObject() {
		r.ForEach(func(_, v gjson.Result) bool {
			collect(v)
			return true
		})
	} else if r.Type == gjson.String {
		for _, line := range strings.FieldsFunc(r.String(), func(c rune) bool { return c == '\n' || c == ';' }) {
			raws = append(raws, line)
		}
	}

	out := make([]diplomacy.Order, 0, len(raws))
	for _, raw := range raws {
		o, err := diplomacy.ParseOrder(raw)
		if err != nil {
			log.Debug().Str("order", raw).Err(err).Msg("dropping unparsable order")
			continue
		}
		out = append(out, o)
	}
	return out
}

// decodeMessages reads a list of {"recipient", "message"} objects. Sender,
// phase and timestamp are filled in by the caller.
func decodeMessages(r gjson.Result, sender diplomacy.Power) []diplomacy.Message {
	var out []diplomacy.Message
	for _, v := range r.Array() {
		to := firstOf(v, "recipient", "to", "target")
		body := strings.TrimSpace(firstOf(v, "message", "body", "text", "content"))
		if body == "" {
			continue
		}
		recipient, ok := parseRecipient(to)
		if !ok {
			log.Debug().Str("power", string(sender)).Str("recipient", to).Msg("dropping message to unknown recipient")
			continue
		}
		out = append(out, diplomacy.Message{Sender: sender, Recipient: recipient, Body: body})
	}
	return out
}

func parseRecipient(s string) (diplomacy.Power, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ALL", "EVERYONE", "PUBLIC", "BROADCAST":
		return diplomacy.Global, true
	}
	return diplomacy.ParsePower(s)
}

func firstOf(v gjson.Result, keys ...string) string {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() {
			return r.String()
		}
	}
	return ""
}

// decodeGoals accepts a list of strings or a single string.
func decodeGoals(r gjson.Result) []string {
	if r.Type == gjson.String {
		return []string{r.String()}
	}
	var out []string
	for _, v := range r.Array() {
		out = append(out, v.String())
	}
	return out
}

// decodeRelationships reads {"POWER": "level"}; unknown powers and levels are
// ignored.
func decodeRelationships(r gjson.Result) map[diplomacy.Power]Relationship {
	out := make(map[diplomacy.Power]Relationship)
	r.ForEach(func(k, v gjson.Result) bool {
		p, ok := diplomacy.ParsePower(k.String())
		if !ok || p == diplomacy.Global {
			return true
		}
		if rel, ok := ParseRelationship(v.String()); ok {
			out[p] = rel
		}
		return true
	})
	return out
}

// byMember splits an object keyed by power name.
func byMember(r gjson.Result, members []diplomacy.Power) map[diplomacy.Power]gjson.Result {
	out := make(map[diplomacy.Power]gjson.Result)
	r.ForEach(func(k, v gjson.Result) bool {
		p, ok := diplomacy.ParsePower(k.String())
		if !ok {
			return true
		}
		for _, m := range members {
			if m == p {
				out[p] = v
			}
		}
		return true
	})
	return out
}
