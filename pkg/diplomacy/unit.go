package diplomacy

import (
	"fmt"
	"strings"
)

// UnitType is army or fleet, written A or F in order notation.
type UnitType byte

const (
	Army  UnitType = 'A'
	Fleet UnitType = 'F'
)

func (u UnitType) String() string {
	return string(rune(u))
}

// Unit is a unit on the board. Location may carry a coast suffix ("STP/SC").
type Unit struct {
	Type     UnitType `json:"type"`
	Power    Power    `json:"power"`
	Location string   `json:"location"`
}

// Province returns the location without any coast suffix.
func (u Unit) Province() string {
	return Province(u.Location)
}

// String formats the unit as "A PAR" (without its owner).
func (u Unit) String() string {
	return u.Type.String() + " " + u.Location
}

// Province strips a coast suffix and upper-cases a location.
func Province(loc string) string {
	loc = strings.ToUpper(strings.TrimSpace(loc))
	if i := strings.IndexByte(loc, '/'); i >= 0 {
		return loc[:i]
	}
	return loc
}

// ParseUnit reads "A PAR" or "F STP/SC" and assigns the given owner.
func ParseUnit(s string, owner Power) (Unit, error) {
	fields := strings.Fields(strings.ToUpper(s))
	if len(fields) != 2 {
		return Unit{}, fmt.Errorf("unit %q: want \"<A|F> <location>\"", s)
	}
	t, err := parseUnitType(fields[0])
	if err != nil {
		return Unit{}, fmt.Errorf("unit %q: %w", s, err)
	}
	return Unit{Type: t, Power: owner, Location: fields[1]}, nil
}

func parseUnitType(s string) (UnitType, error) {
	switch s {
	case "A", "ARMY":
		return Army, nil
	case "F", "FLEET":
		return Fleet, nil
	}
	return 0, fmt.Errorf("unknown unit type %q", s)
}

// MarshalText writes the unit type as "A" or "F".
func (u UnitType) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText reads "A", "F", "army" or "fleet".
func (u *UnitType) UnmarshalText(b []byte) error {
	t, err := parseUnitType(strings.ToUpper(string(b)))
	if err != nil {
		return err
	}
	*u = t
	return nil
}
