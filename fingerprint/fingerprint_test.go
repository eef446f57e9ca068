package fingerprint

import (
	"strings"
	"testing"
)

func fullSignals() []Signal {
	return []Signal{
		{Key: "platform", Value: "linux"},
		{Key: "arch", Value: "amd64"},
		{Key: "timezone", Value: "UTC"},
		{Key: "locale", Value: "en_US"},
		{Key: "screen", Value: "1920x1080"},
		{Key: "concurrency", Value: "8"},
		{Key: "render", Value: "gpu-a1b2"},
		{Key: "fonts", Value: "f-9c3d"},
	}
}

func TestGenerateDeterministic(t *testing.T) {
	gen := NewGenerator(StaticSignalSource(fullSignals()))

	first := gen.Generate()
	second := gen.Generate()

	if first.ID == "" {
		t.Fatal("expected non-empty fingerprint id")
	}
	if first.ID != second.ID {
		t.Fatalf("same signals produced different ids: %s vs %s", first.ID, second.ID)
	}
	if len(first.Signals) != len(CanonicalKeys) {
		t.Fatalf("expected %d signals, got %d", len(CanonicalKeys), len(first.Signals))
	}
}

func TestGenerateOrderIndependent(t *testing.T) {
	forward := fullSignals()
	reversed := make([]Signal, len(forward))
	for i, s := range forward {
		reversed[len(forward)-1-i] = s
	}

	a := NewGenerator(StaticSignalSource(forward)).Generate()
	b := NewGenerator(StaticSignalSource(reversed)).Generate()

	if a.ID != b.ID {
		t.Fatalf("signal order changed the id: %s vs %s", a.ID, b.ID)
	}
}

func TestGenerateSubstitutesSentinel(t *testing.T) {
	partial := StaticSignalSource([]Signal{
		{Key: "platform", Value: "linux"},
		{Key: "arch", Value: "amd64"},
	})
	fp := NewGenerator(partial).Generate()

	seen := map[string]string{}
	for _, s := range fp.Signals {
		seen[s.Key] = s.Value
	}
	if seen["platform"] != "linux" {
		t.Fatalf("observed signal lost: %q", seen["platform"])
	}
	if seen["timezone"] != missingSignal {
		t.Fatalf("missing signal not substituted, got %q", seen["timezone"])
	}
	if seen["fonts"] != missingSignal {
		t.Fatalf("missing signal not substituted, got %q", seen["fonts"])
	}
}

func TestGenerateNeverFails(t *testing.T) {
	fp := NewGenerator(StaticSignalSource(nil)).Generate()
	if fp.ID == "" {
		t.Fatal("expected an id even with zero observable signals")
	}

	again := NewGenerator(StaticSignalSource(nil)).Generate()
	if fp.ID != again.ID {
		t.Fatal("all-sentinel fingerprints must be stable")
	}
}

func TestCompareExact(t *testing.T) {
	gen := NewGenerator(StaticSignalSource(fullSignals()))
	stored := gen.Generate()
	current := gen.Generate()

	if got := Compare(stored, current); got != MatchExact {
		t.Fatalf("expected exact match, got %s", got)
	}
}

func TestComparePartialOnVolatileDrift(t *testing.T) {
	stored := NewGenerator(StaticSignalSource(fullSignals())).Generate()

	drifted := fullSignals()
	for i := range drifted {
		if drifted[i].Key == "render" {
			drifted[i].Value = "gpu-other"
		}
		if drifted[i].Key == "screen" {
			drifted[i].Value = "2560x1440"
		}
	}
	current := NewGenerator(StaticSignalSource(drifted)).Generate()

	if got := Compare(stored, current); got != MatchPartial {
		t.Fatalf("expected partial match on volatile drift, got %s", got)
	}
}

func TestCompareNoneOnStableDisagreement(t *testing.T) {
	stored := NewGenerator(StaticSignalSource(fullSignals())).Generate()

	moved := fullSignals()
	for i := range moved {
		if moved[i].Key == "platform" {
			moved[i].Value = "darwin"
		}
	}
	current := NewGenerator(StaticSignalSource(moved)).Generate()

	if got := Compare(stored, current); got != MatchNone {
		t.Fatalf("expected no match on stable disagreement, got %s", got)
	}
}

func TestHostSourceCoversStableKeys(t *testing.T) {
	fp := NewGenerator(nil).Generate()

	seen := map[string]string{}
	for _, s := range fp.Signals {
		seen[s.Key] = s.Value
	}
	for _, key := range []string{"platform", "arch", "concurrency"} {
		if seen[key] == missingSignal || seen[key] == "" {
			t.Fatalf("host source should observe %q, got %q", key, seen[key])
		}
	}
	if strings.Contains(fp.ID, "=") {
		t.Fatalf("id should be a hex digest, got %q", fp.ID)
	}
}
