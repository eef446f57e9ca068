// Package fingerprint derives a stable identifier of the current
// execution environment from a set of independent signals. The
// identifier is a risk signal for session validation, not an
// authentication factor.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Sentinel substituted for a signal the source cannot provide, so the
// derived ID stays deterministic on partial availability.
const missingSignal = "unavailable"

// CanonicalKeys is the signal set every fingerprint covers. A source
// that cannot supply one of these gets the sentinel value instead.
var CanonicalKeys = []string{
	"platform",
	"arch",
	"timezone",
	"locale",
	"screen",
	"concurrency",
	"render",
	"fonts",
}

// Keys whose agreement still counts as the same device when volatile
// signals (render, fonts, screen) drift.
var stableKeys = []string{"platform", "arch", "timezone"}

// Signal is one observed environment attribute.
type Signal struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Fingerprint is a snapshot of the environment signal set and the hash
// derived from it.
type Fingerprint struct {
	ID          string    `json:"id"`
	Signals     []Signal  `json:"signals"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SignalSource supplies raw environment signals. Implementations may
// omit signals they cannot observe; the generator substitutes a fixed
// sentinel so the fingerprint remains deterministic.
type SignalSource interface {
	Signals() []Signal
}

// Generator derives fingerprints from a SignalSource.
type Generator struct {
	source SignalSource
}

// NewGenerator returns a generator reading from src. A nil src falls
// back to [HostSignalSource].
func NewGenerator(src SignalSource) *Generator {
	if src == nil {
		src = HostSignalSource{}
	}
	return &Generator{source: src}
}

// Generate collects the signal set and returns the fingerprint. It
// never fails: unavailable signals are replaced by a sentinel value.
func (g *Generator) Generate() Fingerprint {
	observed := map[string]string{}
	if g != nil && g.source != nil {
		for _, s := range g.source.Signals() {
			if s.Key == "" || s.Value == "" {
				continue
			}
			observed[s.Key] = s.Value
		}
	}

	signals := make([]Signal, 0, len(CanonicalKeys))
	for _, key := range CanonicalKeys {
		value, ok := observed[key]
		if !ok {
			value = missingSignal
		}
		signals = append(signals, Signal{Key: key, Value: value})
	}

	return Fingerprint{
		ID:          hashSignals(signals),
		Signals:     signals,
		GeneratedAt: time.Now(),
	}
}

// hashSignals combines signals order-independently: pairs are
// canonicalized, sorted, and hashed as one stream.
func hashSignals(signals []Signal) string {
	pairs := make([]string, 0, len(signals))
	for _, s := range signals {
		pairs = append(pairs, s.Key+"="+s.Value)
	}
	sort.Strings(pairs)

	sum := sha256.Sum256([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(sum[:])
}

// Match classifies how closely two fingerprints agree.
type Match uint8

const (
	// MatchExact means the derived IDs are identical.
	MatchExact Match = iota
	// MatchPartial means the stable signals (platform, arch, timezone)
	// agree but volatile signals drifted.
	MatchPartial
	// MatchNone means the stable signals disagree.
	MatchNone
)

// String returns the lowercase name of the match level.
func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchPartial:
		return "partial"
	default:
		return "none"
	}
}

// Compare classifies current against stored. It is pure and
// side-effect free.
func Compare(stored, current Fingerprint) Match {
	if stored.ID != "" && stored.ID == current.ID {
		return MatchExact
	}

	storedValues := signalMap(stored.Signals)
	currentValues := signalMap(current.Signals)

	for _, key := range stableKeys {
		if storedValues[key] != currentValues[key] {
			return MatchNone
		}
	}
	return MatchPartial
}

func signalMap(signals []Signal) map[string]string {
	m := make(map[string]string, len(signals))
	for _, s := range signals {
		m[s.Key] = s.Value
	}
	return m
}
