// Package librosa runs librosa through an embedded Python script.
package librosa

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"stemprep/internal/analysis"
	"stemprep/internal/audio"
	"stemprep/internal/musickey"
	"stemprep/pkg/utils"
)

//go:embed analyze.py
var script string

// Backend invokes the Python interpreter with the embedded analysis script.
type Backend struct {
	python string

	once      sync.Once
	available bool
}

func New(python string) *Backend {
	return &Backend{python: utils.LookupTool(python)}
}

func (b *Backend) Name() string { return "librosa" }

func (b *Backend) Capabilities() analysis.Capabilities {
	return analysis.Capabilities{Tempo: true, Key: true, Qualitative: true}
}

// Available checks once that the interpreter can import librosa.
func (b *Backend) Available() bool {
	b.once.Do(func() {
		if b.python == "" {
			return
		}
		b.available = exec.Command(b.python, "-c", "import librosa").Run() == nil
	})
	return b.available
}

func (b *Backend) Analyze(ctx context.Context, asset *audio.Asset, want analysis.Capabilities) (*analysis.Result, error) {
	var metrics []string
	if want.Tempo {
		metrics = append(metrics, "tempo")
	}
	if want.Key {
		metrics = append(metrics, "key")
	}
	if want.Qualitative {
		metrics = append(metrics, "qualitative")
	}

	out, err := analysis.RunTool(ctx, b.python, "-c", script, asset.Path, strings.Join(metrics, ","))
	if err != nil {
		return nil, err
	}
	return parseOutput(out)
}

type output struct {
	Tempo           float64        `json:"tempo"`
	TempoConfidence *float64       `json:"tempo_confidence"`
	Key             string         `json:"key"`
	KeyConfidence   *float64       `json:"key_confidence"`
	Qualitative     map[string]any `json:"qualitative"`
}

func parseOutput(data []byte) (*analysis.Result, error) {
	var o output
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to decode librosa output: %w", err)
	}

	res := &analysis.Result{Qualitative: o.Qualitative}
	if o.Tempo > 0 {
		res.Tempo = &analysis.TempoEstimate{BPM: o.Tempo, Confidence: orUnreported(o.TempoConfidence)}
	}
	if o.Key != "" {
		k, err := musickey.Parse(o.Key)
		if err != nil {
			return nil, fmt.Errorf("librosa key: %w", err)
		}
		res.Key = &analysis.KeyEstimate{Key: k, Confidence: orUnreported(o.KeyConfidence)}
	}
	return res, nil
}

func orUnreported(c *float64) float64 {
	if c == nil {
		return analysis.Unreported
	}
	return *c
}
