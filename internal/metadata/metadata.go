// Package metadata assembles the per-file record, writes it as a JSON
// sidecar and commits the canonical WAV next to it.
package metadata

import (
	"fmt"

	"stemprep/internal/analysis"
	"stemprep/internal/identify"
)

// Outcome is the terminal state of one file.
type Outcome string

const (
	Success Outcome = "success"
	Partial Outcome = "partial"
	Failed  Outcome = "failed"
)

// Kind classifies a stage error.
type Kind string

const (
	KindFormatConversion   Kind = "FormatConversionError"
	KindFingerprintLookup  Kind = "FingerprintLookupError"
	KindNoMatch            Kind = "NoMatch"
	KindBackendExtraction  Kind = "BackendExtractionError"
	KindInsufficientData   Kind = "ConsensusInsufficientDataError"
	KindCollisionExhausted Kind = "NamingCollisionExhausted"
	KindCommitIO           Kind = "CommitIOError"
	KindCancelled          Kind = "Cancelled"
)

// Pipeline stages, as recorded in processing.stages and StageError.Stage.
const (
	StageNormalize = "normalize"
	StageIdentify  = "identify"
	StageExtract   = "extract"
	StageTempo     = "tempo"
	StageKey       = "key"
	StageCommit    = "commit"
)

// StageError is a stage-local failure recorded in processing.errors.
type StageError struct {
	Stage   string `json:"stage"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e StageError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Message)
}

// Record is the sidecar document. Field groups follow their source.
type Record struct {
	Identification identify.Result             `json:"identification"`
	Tempo          TempoField                  `json:"tempo"`
	Key            KeyField                    `json:"key"`
	Qualitative    map[string]QualitativeValue `json:"qualitative"`
	Processing     Processing                  `json:"processing"`
}

// TempoField is the consensus tempo. Value is null when absent.
type TempoField struct {
	Value        *int     `json:"value"`
	Agreement    float64  `json:"agreement"`
	Backends     []string `json:"backends"`
	Method       string   `json:"method,omitempty"`
	AbsentReason string   `json:"absent_reason,omitempty"`
}

// KeyField is the consensus key. Value is null when absent.
type KeyField struct {
	Value        *string  `json:"value"`
	Token        string   `json:"token,omitempty"`
	Agreement    float64  `json:"agreement"`
	Backends     []string `json:"backends"`
	Method       string   `json:"method,omitempty"`
	AbsentReason string   `json:"absent_reason,omitempty"`
}

// QualitativeValue is one descriptor tagged with the backend that won it.
type QualitativeValue struct {
	Value   any    `json:"value"`
	Backend string `json:"backend"`
}

// Processing describes how the record was produced.
type Processing struct {
	Outcome         Outcome                   `json:"outcome"`
	Errors          []StageError              `json:"errors"`
	Stages          map[string]string         `json:"stages"`
	RunID           string                    `json:"run_id"`
	ProcessedAt     string                    `json:"processed_at"`
	Source          string                    `json:"source"`
	SourceFormat    string                    `json:"source_format,omitempty"`
	Converted       bool                      `json:"converted"`
	Checksum        string                    `json:"checksum"`
	Filename        string                    `json:"filename,omitempty"`
	SkippedBackends []analysis.SkippedBackend `json:"skipped_backends"`
	Audit           Audit                     `json:"audit"`
	Skipped         bool                      `json:"skipped,omitempty"`
}

// Audit keeps every raw reading that fed consensus, plus the qualitative
// values that lost to a higher-priority backend.
type Audit struct {
	Tempo       []TempoReading       `json:"tempo"`
	Key         []KeyReading         `json:"key"`
	Qualitative []QualitativeReading `json:"qualitative"`
}

type TempoReading struct {
	Backend    string  `json:"backend"`
	BPM        float64 `json:"bpm"`
	Confidence float64 `json:"confidence"`
}

type KeyReading struct {
	Backend    string  `json:"backend"`
	Key        string  `json:"key"`
	Confidence float64 `json:"confidence"`
}

type QualitativeReading struct {
	Name    string `json:"name"`
	Value   any    `json:"value"`
	Backend string `json:"backend"`
}
