package diplomacy

import (
	"fmt"
	"strings"
)

// OrderKind tags the variant carried by an Order.
type OrderKind int

const (
	OrderHold        OrderKind = iota // A PAR H
	OrderMove                         // A PAR - BUR
	OrderSupportHold                  // A MUN S A BER
	OrderSupportMove                  // A MUN S A BER - SIL
	OrderConvoy                       // F NTH C A LON - NWY
	OrderRetreat                      // A PAR R BUR
	OrderDisband                      // A PAR D (retreat or adjustment phase)
	OrderBuild                        // A PAR B
	OrderWaive                        // WAIVE
)

func (k OrderKind) String() string {
	switch k {
	case OrderHold:
		return "hold"
	case OrderMove:
		return "move"
	case OrderSupportHold:
		return "support_hold"
	case OrderSupportMove:
		return "support_move"
	case OrderConvoy:
		return "convoy"
	case OrderRetreat:
		return "retreat"
	case OrderDisband:
		return "disband"
	case OrderBuild:
		return "build"
	case OrderWaive:
		return "waive"
	default:
		return "unknown"
	}
}

// Order is one instruction to a unit in standard notation.
type Order struct {
	Kind     OrderKind
	Unit     UnitType
	Location string

	// Target is the destination of a move or retreat.
	Target    string
	ViaConvoy bool

	// Aux fields describe the supported or convoyed unit and, for support-move
	// and convoy, where it is going.
	AuxUnit     UnitType
	AuxLocation string
	AuxTarget   string
}

// HoldFor returns a hold order for the unit.
func HoldFor(u Unit) Order {
	return Order{Kind: OrderHold, Unit: u.Type, Location: u.Location}
}

// DisbandFor returns a disband order for the unit.
func DisbandFor(u Unit) Order {
	return Order{Kind: OrderDisband, Unit: u.Type, Location: u.Location}
}

// Province is the province the ordered unit stands on (or is built in).
func (o Order) Province() string {
	return Province(o.Location)
}

// String formats the order in canonical notation. Two orders are the same
// instruction exactly when their canonical strings are equal.
func (o Order) String() string {
	if o.Kind == OrderWaive {
		return "WAIVE"
	}

	var b strings.Builder
	b.Grow(24)
	b.WriteString(o.Unit.String())
	b.WriteByte(' ')
	b.WriteString(o.Location)

	switch o.Kind {
	case OrderHold:
		b.WriteString(" H")
	case OrderMove:
		b.WriteString(" - ")
		b.WriteString(o.Target)
		if o.ViaConvoy {
			b.WriteString(" VIA")
		}
	case OrderSupportHold:
		b.WriteString(" S ")
		b.WriteString(o.AuxUnit.String())
		b.WriteByte(' ')
		b.WriteString(o.AuxLocation)
	case OrderSupportMove:
		b.WriteString(" S ")
		b.WriteString(o.AuxUnit.String())
		b.WriteByte(' ')
		b.WriteString(o.AuxLocation)
		b.WriteString(" - ")
		b.WriteString(o.AuxTarget)
	case OrderConvoy:
		b.WriteString(" C A ")
		b.WriteString(o.AuxLocation)
		b.WriteString(" - ")
		b.WriteString(o.AuxTarget)
	case OrderRetreat:
		b.WriteString(" R ")
		b.WriteString(o.Target)
	case OrderDisband:
		b.WriteString(" D")
	case OrderBuild:
		b.WriteString(" B")
	}
	return b.String()
}

// ParseOrder reads an order in standard notation. Case and spacing are
// normalized; "->" is accepted for "-" and a trailing "H" on support-hold
// orders is tolerated.
func ParseOrder(s string) (Order, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	raw = strings.ReplaceAll(raw, "->", " - ")
	tokens := strings.Fields(raw)
	if len(tokens) == 0 {
		return Order{}, fmt.Errorf("empty order")
	}
	if len(tokens) == 1 && tokens[0] == "WAIVE" {
		return Order{Kind: OrderWaive}, nil
	}
	if len(tokens) < 3 {
		return Order{}, fmt.Errorf("order %q: too few tokens", s)
	}

	ut, err := parseUnitType(tokens[0])
	if err != nil {
		return Order{}, fmt.Errorf("order %q: %w", s, err)
	}
	o := Order{Unit: ut, Location: tokens[1]}
	rest := tokens[3:]

	switch tokens[2] {
	case "H", "HOLD":
		o.Kind = OrderHold
		return o, expectEnd(s, rest)

	case "-":
		if len(rest) == 0 {
			return Order{}, fmt.Errorf("order %q: move without destination", s)
		}
		o.Kind = OrderMove
		o.Target = rest[0]
		if len(rest) > 1 && rest[1] == "VIA" {
			o.ViaConvoy = true
			return o, expectEnd(s, rest[2:])
		}
		return o, expectEnd(s, rest[1:])

	case "S":
		if len(rest) < 2 {
			return Order{}, fmt.Errorf("order %q: support without unit", s)
		}
		aux, err := parseUnitType(rest[0])
		if err != nil {
			return Order{}, fmt.Errorf("order %q: %w", s, err)
		}
		o.AuxUnit = aux
		o.AuxLocation = rest[1]
		tail := rest[2:]
		if len(tail) >= 2 && tail[0] == "-" {
			o.Kind = OrderSupportMove
			o.AuxTarget = tail[1]
			return o, expectEnd(s, tail[2:])
		}
		o.Kind = OrderSupportHold
		if len(tail) == 1 && tail[0] == "H" {
			tail = nil
		}
		return o, expectEnd(s, tail)

	case "C":
		if len(rest) < 4 || rest[0] != "A" || rest[2] != "-" {
			return Order{}, fmt.Errorf("order %q: convoy must read \"C A <from> - <to>\"", s)
		}
		o.Kind = OrderConvoy
		o.AuxUnit = Army
		o.AuxLocation = rest[1]
		o.AuxTarget = rest[3]
		return o, expectEnd(s, rest[4:])

	case "R":
		if len(rest) == 0 {
			return Order{}, fmt.Errorf("order %q: retreat without destination", s)
		}
		o.Kind = OrderRetreat
		o.Target = rest[0]
		return o, expectEnd(s, rest[1:])

	case "D", "DISBAND":
		o.Kind = OrderDisband
		return o, expectEnd(s, rest)

	case "B", "BUILD":
		o.Kind = OrderBuild
		return o, expectEnd(s, rest)
	}

	return Order{}, fmt.Errorf("order %q: unknown order type %q", s, tokens[2])
}

func expectEnd(s string, rest []string) error {
	if len(rest) > 0 {
		return fmt.Errorf("order %q: unexpected trailing tokens %v", s, rest)
	}
	return nil
}

// Canonical returns the canonical form of an order string, or the trimmed
// upper-cased input when it does not parse.
func Canonical(s string) string {
	o, err := ParseOrder(s)
	if err != nil {
		return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
	}
	return o.String()
}

// FormatOrders converts orders to their canonical strings.
func FormatOrders(orders []Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.String())
	}
	return out
}
