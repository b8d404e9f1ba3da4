package msg

import "fmt"

// Side of a resting order.
type Side uint8

const (
	Bid Side = iota + 1
	Ask
)

// Sides lists both sides in a stable order.
var Sides = [...]Side{Bid, Ask}

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// Valid reports whether s is Bid or Ask.
func (s Side) Valid() bool {
	return s == Bid || s == Ask
}

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, s)
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "bid":
		*s = Bid
	case "ask":
		*s = Ask
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSide, b)
	}
	return nil
}
