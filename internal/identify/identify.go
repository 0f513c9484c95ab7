// Package identify turns an audio asset into artist/title metadata through an
// acoustic fingerprint and an external lookup service.
package identify

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrLookup marks an identification attempt that exhausted its retries or hit
// a permanent service error. The file proceeds with null identification.
var ErrLookup = errors.New("fingerprint lookup failed")

// Status is the terminal state of an identification attempt.
type Status string

const (
	StatusMatched Status = "matched"
	StatusNoMatch Status = "no_match"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Credits lists people credited on a recording.
type Credits struct {
	Composers []string `json:"composers"`
	Producers []string `json:"producers"`
	Engineers []string `json:"engineers"`
}

// Empty reports whether no credits are set.
func (c Credits) Empty() bool {
	return len(c.Composers) == 0 && len(c.Producers) == 0 && len(c.Engineers) == 0
}

// Result is the identification of one file. NoMatch is a valid terminal value.
type Result struct {
	Status      Status  `json:"status"`
	Artist      string  `json:"artist,omitempty"`
	Title       string  `json:"title,omitempty"`
	Album       string  `json:"album,omitempty"`
	Year        int     `json:"year,omitempty"`
	Genre       string  `json:"genre,omitempty"`
	Credits     Credits `json:"credits"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source,omitempty"`
	RecordingID string  `json:"recording_id,omitempty"`
}

// Matched reports whether the result carries an identity.
func (r *Result) Matched() bool {
	return r != nil && r.Status == StatusMatched
}

// Fingerprint is an opaque acoustic fingerprint used only as a lookup key.
type Fingerprint struct {
	Duration int
	Value    string
}

// Candidate is the best match returned by a lookup service.
type Candidate struct {
	RecordingID string
	Score       float64
	Artist      string
	Title       string
	Album       string
	Year        int
}

// Fingerprinter computes fingerprints from audio files.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, path string) (Fingerprint, error)
}

// Lookup queries an identification service. A nil candidate with a nil error
// is a clean no-match.
type Lookup interface {
	Name() string
	Lookup(ctx context.Context, fp Fingerprint) (*Candidate, error)
}

// Enricher adds album, year, genre or credits to a matched result.
type Enricher interface {
	Name() string
	Enrich(ctx context.Context, r *Result) error
}

// Cache stores results by audio checksum.
type Cache interface {
	Get(ctx context.Context, checksum string) (*Result, bool, error)
	Put(ctx context.Context, checksum string, r *Result) error
}

// TransientError marks a lookup failure worth retrying, such as rate
// limiting or a 5xx response.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
