// Package diplomacy holds the board-level data model shared by the
// orchestrator, agents, and the adjudication boundary: powers, phase names,
// units, orders in standard notation, immutable phase snapshots, diplomatic
// messages, and the event diff between two snapshots.
//
// Nothing in this package applies game rules. Legality and resolution belong
// to the external adjudication engine.
package diplomacy

import "strings"

// Power identifies one of the seven great powers.
type Power string

const (
	Austria Power = "AUSTRIA"
	England Power = "ENGLAND"
	France  Power = "FRANCE"
	Germany Power = "GERMANY"
	Italy   Power = "ITALY"
	Russia  Power = "RUSSIA"
	Turkey  Power = "TURKEY"

	// Global is the broadcast recipient for public messages.
	Global Power = "GLOBAL"
)

// AllPowers returns the seven great powers in the fixed iteration order used
// everywhere a deterministic ordering is needed.
func AllPowers() []Power {
	return []Power{Austria, England, France, Germany, Italy, Russia, Turkey}
}

// ParsePower normalizes a power name. It accepts any case and surrounding
// whitespace and reports false for names that are not one of the seven powers
// or GLOBAL.
func ParsePower(s string) (Power, bool) {
	p := Power(strings.ToUpper(strings.TrimSpace(s)))
	if p == Global {
		return p, true
	}
	for _, known := range AllPowers() {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Label returns a display form such as "France".
func (p Power) Label() string {
	s := strings.ToLower(string(p))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
