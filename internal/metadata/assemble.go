package metadata

import (
	"time"

	"stemprep/internal/analysis"
	"stemprep/internal/audio"
	"stemprep/internal/canonical"
	"stemprep/internal/consensus"
	"stemprep/internal/identify"
	"stemprep/internal/musickey"
)

// Inputs is everything the stages produced for one file.
type Inputs struct {
	Asset          *audio.Asset
	RunID          string
	Identification *identify.Result
	Tempo          *consensus.Tempo
	TempoAbsent    string
	Key            *consensus.Key
	KeyAbsent      string
	Qualitative    *consensus.Qualitative
	Observations   *analysis.Observations
	Stages         map[string]string
	Errors         []StageError
	Now            time.Time
}

// Assemble builds the sidecar record and the planned canonical name. Any stage
// error makes the outcome partial; unresolved metrics stay null.
func Assemble(in Inputs) (*Record, canonical.Name) {
	rec := &Record{
		Tempo:       TempoField{Backends: []string{}, AbsentReason: in.TempoAbsent},
		Key:         KeyField{Backends: []string{}, AbsentReason: in.KeyAbsent},
		Qualitative: map[string]QualitativeValue{},
		Processing: Processing{
			Outcome:         Success,
			Errors:          []StageError{},
			Stages:          map[string]string{},
			RunID:           in.RunID,
			SkippedBackends: []analysis.SkippedBackend{},
			Audit: Audit{
				Tempo:       []TempoReading{},
				Key:         []KeyReading{},
				Qualitative: []QualitativeReading{},
			},
		},
	}

	if in.Identification != nil {
		rec.Identification = *in.Identification
	} else {
		rec.Identification = identify.Result{Status: identify.StatusSkipped}
	}

	var bpm int
	key := in.Key
	if t := in.Tempo; t != nil {
		bpm = t.BPM
		rec.Tempo = TempoField{
			Value:     &bpm,
			Agreement: t.Agreement,
			Backends:  append([]string{}, t.Backends...),
			Method:    string(t.Method),
		}
	}
	if key != nil {
		name := key.Key.String()
		rec.Key = KeyField{
			Value:     &name,
			Token:     key.Key.FileToken(),
			Agreement: key.Agreement,
			Backends:  append([]string{}, key.Backends...),
			Method:    string(key.Method),
		}
	}

	if q := in.Qualitative; q != nil {
		for name, d := range q.Values {
			rec.Qualitative[name] = QualitativeValue{Value: d.Value, Backend: d.Backend}
		}
		for _, d := range q.Audit {
			rec.Processing.Audit.Qualitative = append(rec.Processing.Audit.Qualitative,
				QualitativeReading{Name: d.Name, Value: d.Value, Backend: d.Backend})
		}
	}

	if obs := in.Observations; obs != nil {
		for _, o := range obs.Tempo {
			rec.Processing.Audit.Tempo = append(rec.Processing.Audit.Tempo,
				TempoReading{Backend: o.Backend, BPM: o.BPM, Confidence: o.Confidence})
		}
		for _, o := range obs.Key {
			rec.Processing.Audit.Key = append(rec.Processing.Audit.Key,
				KeyReading{Backend: o.Backend, Key: o.Key.String(), Confidence: o.Confidence})
		}
		rec.Processing.SkippedBackends = append(rec.Processing.SkippedBackends, obs.Skipped...)
	}

	for k, v := range in.Stages {
		rec.Processing.Stages[k] = v
	}
	rec.Processing.Errors = append(rec.Processing.Errors, in.Errors...)
	if len(rec.Processing.Errors) > 0 {
		rec.Processing.Outcome = Partial
	}

	if a := in.Asset; a != nil {
		rec.Processing.Source = a.Source
		rec.Processing.Checksum = a.Checksum
		rec.Processing.Converted = a.Converted
		if a.Converted {
			rec.Processing.SourceFormat = a.SourceFormat.String()
		}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	rec.Processing.ProcessedAt = now.UTC().Format(time.RFC3339)

	var artist, title string
	if rec.Identification.Matched() {
		artist, title = rec.Identification.Artist, rec.Identification.Title
	}
	var mk *musickey.Key
	if key != nil {
		k := key.Key
		mk = &k
	}
	return rec, canonical.New(artist, title, bpm, mk)
}
