// Package essentia wraps Essentia's streaming music extractor.
package essentia

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"stemprep/internal/analysis"
	"stemprep/internal/audio"
	"stemprep/internal/musickey"
	"stemprep/pkg/utils"
)

// Backend runs essentia_streaming_extractor_music and reads its JSON report.
type Backend struct {
	path    string
	tempDir string
}

// New creates an Essentia backend. Reports are written under tempDir.
func New(path, tempDir string) *Backend {
	return &Backend{path: utils.LookupTool(path), tempDir: tempDir}
}

func (b *Backend) Name() string { return "essentia" }

func (b *Backend) Capabilities() analysis.Capabilities {
	return analysis.Capabilities{Tempo: true, Key: true, Qualitative: true}
}

func (b *Backend) Available() bool { return b.path != "" }

func (b *Backend) Analyze(ctx context.Context, asset *audio.Asset, want analysis.Capabilities) (*analysis.Result, error) {
	tmp, err := os.CreateTemp(b.tempDir, "stemprep-essentia-*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}
	reportPath := tmp.Name()
	tmp.Close()
	defer os.Remove(reportPath)

	if _, err := analysis.RunTool(ctx, b.path, asset.Path, reportPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read essentia report: %w", err)
	}

	return parseReport(data, want)
}

func parseReport(data []byte, want analysis.Capabilities) (*analysis.Result, error) {
	var r report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode essentia report: %w", err)
	}

	res := &analysis.Result{}

	if want.Tempo && r.Rhythm.BPM > 0 {
		conf := analysis.Unreported
		if w := r.Rhythm.FirstPeakWeight; w > 0 {
			conf = w
		}
		res.Tempo = &analysis.TempoEstimate{BPM: r.Rhythm.BPM, Confidence: conf}
	}

	if want.Key {
		// Newer extractors report several key profiles; EDMA suits popular
		// music best, the legacy fields are the fallback.
		name, scale, strength := r.Tonal.KeyEDMA.Key, r.Tonal.KeyEDMA.Scale, r.Tonal.KeyEDMA.Strength
		if name == "" {
			name, scale, strength = r.Tonal.KeyKey, r.Tonal.KeyScale, r.Tonal.KeyStrength
		}
		if name != "" {
			k, err := musickey.Parse(name + " " + scale)
			if err != nil {
				return nil, fmt.Errorf("essentia key: %w", err)
			}
			conf := analysis.Unreported
			if strength > 0 {
				conf = strength
			}
			res.Key = &analysis.KeyEstimate{Key: k, Confidence: conf}
		}
	}

	if want.Qualitative {
		q := map[string]any{}
		if r.Rhythm.Danceability > 0 {
			q["danceability"] = r.Rhythm.Danceability
		}
		if r.Lowlevel.AverageLoudness > 0 {
			q["loudness"] = r.Lowlevel.AverageLoudness
		}
		if r.Lowlevel.DynamicComplexity > 0 {
			q["dynamic_complexity"] = r.Lowlevel.DynamicComplexity
		}
		if r.Tonal.ChordsScale != "" {
			q["mode"] = r.Tonal.ChordsScale
		}
		if len(q) > 0 {
			res.Qualitative = q
		}
	}

	return res, nil
}

// Essentia music extractor report (subset)

type report struct {
	Lowlevel struct {
		AverageLoudness   float64 `json:"average_loudness"`
		DynamicComplexity float64 `json:"dynamic_complexity"`
	} `json:"lowlevel"`
	Rhythm struct {
		BPM             float64 `json:"bpm"`
		FirstPeakWeight float64 `json:"bpm_histogram_first_peak_weight"`
		Danceability    float64 `json:"danceability"`
	} `json:"rhythm"`
	Tonal struct {
		KeyEDMA     keyProfile `json:"key_edma"`
		KeyKey      string     `json:"key_key"`
		KeyScale    string     `json:"key_scale"`
		KeyStrength float64    `json:"key_strength"`
		ChordsScale string     `json:"chords_scale"`
	} `json:"tonal"`
}

type keyProfile struct {
	Key      string  `json:"key"`
	Scale    string  `json:"scale"`
	Strength float64 `json:"strength"`
}
