package config

import (
	"fmt"
	"strings"
)

// FallbackPolicy decides what happens when the replica cannot serve an
// acquisition.
type FallbackPolicy string

const (
	// FallbackError surfaces a retryable unavailability error to the caller.
	FallbackError FallbackPolicy = "error"
	// FallbackToPrimary retries against the primary and records a
	// degradation. Read load moves to the primary while it is in effect.
	FallbackToPrimary FallbackPolicy = "fallback_to_primary"
)

// ParseFallbackPolicy converts a string to FallbackPolicy. Matching is case
// insensitive so FALLBACK_TO_PRIMARY and fallback_to_primary are equivalent.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(FallbackError):
		return FallbackError, nil
	case string(FallbackToPrimary):
		return FallbackToPrimary, nil
	default:
		return "", fmt.Errorf("unknown replica fallback policy %q", s)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler
func (p *FallbackPolicy) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return p.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *FallbackPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseFallbackPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Degrades reports whether the policy moves replica traffic to the primary
func (p FallbackPolicy) Degrades() bool {
	return p == FallbackToPrimary
}
