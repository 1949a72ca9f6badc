package inference

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStructured(t *testing.T) {
	tests := []struct {
		name string
		text string
		kind Kind
		goal string
	}{
		{"strict", `{"goal": "hold the line"}`, KindNone, "hold the line"},
		{"fenced", "Here you go:\n```json\n{\"goal\": \"take MUN\"}\n```\nGood luck.", KindNone, "take MUN"},
		{"fenced note after document", "{\"goal\": \"take MUN\"}\n```\nThis keeps Munich safe.\n```", KindNone, "take MUN"},
		{"prose wrapped", `My answer is {"goal": "ally with ENGLAND"} as requested.`, KindNone, "ally with ENGLAND"},
		{"alias", `{"objective": "survive"}`, KindNone, "survive"},
		{"yaml", "```yaml\ngoal: build fleets\n```", KindNone, "build fleets"},
		{"null value", `{"goal": null}`, KindMissingFields, ""},
		{"prose", "no structure here at all", KindUnparsable, ""},
		{"scalar yaml", "just words: but not really: {", KindUnparsable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, missing, kind := ParseStructured(tt.text, []Field{F("goal", "objective")})
			require.Equal(t, tt.kind, kind)
			if kind == KindNone {
				require.Empty(t, missing)
				require.Equal(t, tt.goal, p.String("goal"))
			}
		})
	}
}

func TestParseStructured_TopLevelArray(t *testing.T) {
	p, missing, kind := ParseStructured("```\n[\"A PAR H\", \"F BRE H\"]\n```", nil)
	require.Equal(t, KindNone, kind)
	require.Empty(t, missing)
	require.Equal(t, `["A PAR H", "F BRE H"]`, p.Raw())
}

func TestParseStructured_PartialPayload(t *testing.T) {
	p, missing, kind := ParseStructured(`{"diary": "met with ITALY"}`, []Field{F("diary"), F("goals"), F("relationships", "relations")})
	require.Equal(t, KindMissingFields, kind)
	require.Equal(t, []string{"goals", "relationships"}, missing)
	require.Equal(t, "met with ITALY", p.String("diary"))
	require.False(t, p.Has("goals"))
	require.Error(t, p.Decode("goals", &[]string{}))
}
