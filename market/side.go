package market

import (
	"fmt"
	"strings"
)

// Side: +1 long, -1 short
type Side int8

const (
	Long  Side = +1
	Short Side = -1
)

// Sign returns the side as a float multiplier for price arithmetic.
func (s Side) Sign() float64 { return float64(s) }

func (s Side) Valid() bool { return s == Long || s == Short }

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	}
	return fmt.Sprintf("Side(%d)", int8(s))
}

// MarshalText encodes an unset side as "" so malformed inputs can still
// be recorded.
func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return []byte{}, nil
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = 0
		return nil
	}
	v, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSide accepts long/short and the buy/sell aliases.
func ParseSide(v string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "long", "buy":
		return Long, nil
	case "short", "sell":
		return Short, nil
	}
	return 0, fmt.Errorf("unknown side %q (want long or short)", v)
}
