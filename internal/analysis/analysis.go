// Package analysis defines the analysis backend capability and runs a
// configured set of backends over one file.
package analysis

import (
	"context"
	"errors"

	"stemprep/internal/audio"
	"stemprep/internal/musickey"
)

// ErrBackend marks a backend that errored, timed out or panicked. Its
// contribution is dropped; the file continues.
var ErrBackend = errors.New("backend extraction failed")

// Metric is a consensus metric kind.
type Metric string

const (
	Tempo Metric = "tempo"
	Key   Metric = "key"
)

// Unreported is the confidence value a backend uses when it has no opinion
// on its own accuracy. The configured default applies.
const Unreported = -1.0

// Capabilities is the set of things a backend can measure or a caller wants.
type Capabilities struct {
	Tempo       bool
	Key         bool
	Qualitative bool
}

// Intersect returns the capabilities present in both.
func (c Capabilities) Intersect(o Capabilities) Capabilities {
	return Capabilities{
		Tempo:       c.Tempo && o.Tempo,
		Key:         c.Key && o.Key,
		Qualitative: c.Qualitative && o.Qualitative,
	}
}

// Any reports whether at least one capability is set.
func (c Capabilities) Any() bool {
	return c.Tempo || c.Key || c.Qualitative
}

// TempoEstimate is a backend's tempo reading.
type TempoEstimate struct {
	BPM        float64
	Confidence float64
}

// KeyEstimate is a backend's key reading.
type KeyEstimate struct {
	Key        musickey.Key
	Confidence float64
}

// Result is everything one backend reported for one file. Nil or empty
// fields are absent.
type Result struct {
	Tempo       *TempoEstimate
	Key         *KeyEstimate
	Qualitative map[string]any
}

// Backend is an opaque analysis capability provider.
type Backend interface {
	Name() string
	Capabilities() Capabilities
	// Available reports whether the backend can run on this machine.
	// Unavailable backends are skipped without error.
	Available() bool
	Analyze(ctx context.Context, asset *audio.Asset, want Capabilities) (*Result, error)
}

// TempoObservation is one backend's tempo contribution.
type TempoObservation struct {
	Backend    string
	BPM        float64
	Confidence float64
}

// KeyObservation is one backend's key contribution.
type KeyObservation struct {
	Backend    string
	Key        musickey.Key
	Confidence float64
}

// Descriptor is a named qualitative value tagged with its backend.
type Descriptor struct {
	Name    string
	Value   any
	Backend string
}

// SkippedBackend records a backend that did not contribute.
type SkippedBackend struct {
	Backend string `json:"backend"`
	Reason  string `json:"reason"`
}

// BackendFailure records a backend that was invoked and failed.
type BackendFailure struct {
	Backend string
	Err     error
}

// Observations is the unordered multiset of readings for one file, in
// backend configuration order. It never outlives its file task.
type Observations struct {
	Tempo       []TempoObservation
	Key         []KeyObservation
	Qualitative []Descriptor
	Skipped     []SkippedBackend
	Failures    []BackendFailure
	// Requested is what the caller asked for; Offered is what the
	// available backends could provide.
	Requested Capabilities
	Offered   Capabilities
}
