package fingerprint

import (
	"os"
	"runtime"
	"strconv"
	"time"
)

// HostSignalSource derives signals from the local process environment.
// It covers the stable subset of the canonical keys; rendering and font
// signals are only available when the embedding application supplies
// them through a custom source.
type HostSignalSource struct{}

// Signals reports the observable host attributes.
func (HostSignalSource) Signals() []Signal {
	signals := []Signal{
		{Key: "platform", Value: runtime.GOOS},
		{Key: "arch", Value: runtime.GOARCH},
		{Key: "concurrency", Value: strconv.Itoa(runtime.NumCPU())},
	}

	if zone, _ := time.Now().Zone(); zone != "" {
		signals = append(signals, Signal{Key: "timezone", Value: zone})
	}

	if lang := os.Getenv("LANG"); lang != "" {
		signals = append(signals, Signal{Key: "locale", Value: lang})
	}

	return signals
}

// StaticSignalSource returns a fixed signal set. Embedding applications
// use it to forward signals collected elsewhere (screen geometry,
// rendering hashes, font sets); tests use it for determinism.
type StaticSignalSource []Signal

// Signals returns the configured set unchanged.
func (s StaticSignalSource) Signals() []Signal {
	return []Signal(s)
}
