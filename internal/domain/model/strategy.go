package model

import (
	"fmt"
	"strings"
)

// StrategyIdentity names one of the two wire formats served by the rate source.
type StrategyIdentity int

const (
	StrategyJSON StrategyIdentity = iota
	StrategyXML
)

var SupportedStrategies = []StrategyIdentity{StrategyJSON, StrategyXML}

// Next returns the strategy to fall back to after a failure of s.
// Next is its own inverse.
func (s StrategyIdentity) Next() StrategyIdentity {
	if s == StrategyJSON {
		return StrategyXML
	}
	return StrategyJSON
}

func (s StrategyIdentity) IsSupported() bool {
	return s == StrategyJSON || s == StrategyXML
}

func (s StrategyIdentity) String() string {
	switch s {
	case StrategyJSON:
		return "JSON"
	case StrategyXML:
		return "XML"
	default:
		return fmt.Sprintf("StrategyIdentity(%d)", int(s))
	}
}

func (s StrategyIdentity) MarshalText() ([]byte, error) {
	if !s.IsSupported() {
		return nil, fmt.Errorf("unknown strategy %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *StrategyIdentity) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategyIdentity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStrategyIdentity accepts "json"/"xml" in any case, with or without
// the "LoadingStrategy" suffix used by older clients.
func ParseStrategyIdentity(name string) (StrategyIdentity, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	normalized = strings.TrimSuffix(normalized, "LOADINGSTRATEGY")
	switch normalized {
	case "JSON":
		return StrategyJSON, nil
	case "XML":
		return StrategyXML, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}
