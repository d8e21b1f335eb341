package featureflags

import (
	"os"
	"strings"
)

// Known flags.
const (
	// ForceDemo serves demo data from discovery and personalization even when
	// provider keys are configured.
	ForceDemo = "force_demo"
	// ResearchStream exposes the company research WebSocket.
	ResearchStream = "research_stream"
)

// Flags reads FLAG_<NAME> values through lookup.
type Flags struct {
	lookup func(string) string
}

// FromEnv reads flags from the process environment.
func FromEnv() Flags {
	return Flags{lookup: os.Getenv}
}

// FromMap pins flag values, mostly for tests.
func FromMap(values map[string]string) Flags {
	return Flags{lookup: func(k string) string { return values[k] }}
}

// Enabled returns true if a flag is enabled.
// Flags are read as FLAG_<NAME>=true/1/yes/on (case-insensitive).
func (f Flags) Enabled(name string) bool {
	if f.lookup == nil {
		return false
	}
	return truthy(f.lookup("FLAG_" + strings.ToUpper(name)))
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
