package diplomacy

import (
	"fmt"
	"strconv"
	"strings"
)

// Season is the part of the year a phase belongs to.
type Season string

const (
	Spring Season = "SPRING"
	Fall   Season = "FALL"
	Winter Season = "WINTER"
)

// PhaseKind is the type of phase.
type PhaseKind string

const (
	Movement PhaseKind = "MOVEMENT"
	Retreat  PhaseKind = "RETREATS"
	Build    PhaseKind = "ADJUSTMENTS"
)

// Completed is the phase name the engine reports once the game is over.
const Completed = "COMPLETED"

// PhaseName is a parsed short phase name such as S1901M.
type PhaseName struct {
	Season Season
	Year   int
	Kind   PhaseKind
}

var seasonLetters = map[byte]Season{'S': Spring, 'F': Fall, 'W': Winter}
var kindLetters = map[byte]PhaseKind{'M': Movement, 'R': Retreat, 'A': Build}

// ParsePhaseName parses names like "S1901M", "F1903R" and "W1905A".
func ParsePhaseName(s string) (PhaseName, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 3 {
		return PhaseName{}, fmt.Errorf("phase name %q too short", s)
	}
	season, ok := seasonLetters[s[0]]
	if !ok {
		return PhaseName{}, fmt.Errorf("phase name %q: unknown season %q", s, s[0])
	}
	kind, ok := kindLetters[s[len(s)-1]]
	if !ok {
		return PhaseName{}, fmt.Errorf("phase name %q: unknown phase type %q", s, s[len(s)-1])
	}
	year, err := strconv.Atoi(s[1 : len(s)-1])
	if err != nil {
		return PhaseName{}, fmt.Errorf("phase name %q: bad year: %w", s, err)
	}
	return PhaseName{Season: season, Year: year, Kind: kind}, nil
}

func (n PhaseName) String() string {
	var kind byte
	for k, v := range kindLetters {
		if v == n.Kind {
			kind = k
		}
	}
	var season byte
	for k, v := range seasonLetters {
		if v == n.Season {
			season = k
		}
	}
	return fmt.Sprintf("%c%d%c", season, n.Year, kind)
}

// Less reports whether n comes before other in game time.
func (n PhaseName) Less(other PhaseName) bool {
	if n.Year != other.Year {
		return n.Year < other.Year
	}
	if n.Season != other.Season {
		return seasonRank(n.Season) < seasonRank(other.Season)
	}
	return kindRank(n.Kind) < kindRank(other.Kind)
}

func seasonRank(s Season) int {
	switch s {
	case Spring:
		return 0
	case Fall:
		return 1
	default:
		return 2
	}
}

func kindRank(k PhaseKind) int {
	switch k {
	case Movement:
		return 0
	case Retreat:
		return 1
	default:
		return 2
	}
}
