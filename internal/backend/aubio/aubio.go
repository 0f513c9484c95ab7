// Package aubio wraps the aubio command line tool for tempo estimation.
package aubio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"stemprep/internal/analysis"
	"stemprep/internal/audio"
	"stemprep/pkg/utils"
)

var bpmPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*bpm`)

// Backend runs `aubio tempo`.
type Backend struct {
	path string
}

// New creates an aubio backend for the given executable.
func New(path string) *Backend {
	return &Backend{path: utils.LookupTool(path)}
}

func (b *Backend) Name() string { return "aubio" }

func (b *Backend) Capabilities() analysis.Capabilities {
	return analysis.Capabilities{Tempo: true}
}

func (b *Backend) Available() bool { return b.path != "" }

func (b *Backend) Analyze(ctx context.Context, asset *audio.Asset, want analysis.Capabilities) (*analysis.Result, error) {
	out, err := analysis.RunTool(ctx, b.path, "tempo", "-i", asset.Path)
	if err != nil && len(out) == 0 {
		return nil, err
	}

	est, err := parseTempo(out)
	if err != nil {
		return nil, err
	}
	return &analysis.Result{Tempo: est}, nil
}

// parseTempo reads the bpm lines aubio prints. When aubio prints a series,
// the median is the estimate and the share of readings within 2% of it is
// the confidence.
func parseTempo(out []byte) (*analysis.TempoEstimate, error) {
	var vals []float64
	sc := bufio.NewScanner(bytes.NewReader(bytes.ToLower(out)))
	for sc.Scan() {
		if m := bpmPattern.FindStringSubmatch(sc.Text()); len(m) >= 2 {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
				vals = append(vals, v)
			}
		}
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("no bpm in aubio output")
	}
	if len(vals) == 1 {
		return &analysis.TempoEstimate{BPM: vals[0], Confidence: analysis.Unreported}, nil
	}

	sort.Float64s(vals)
	med := vals[len(vals)/2]
	if len(vals)%2 == 0 {
		med = (vals[len(vals)/2-1] + vals[len(vals)/2]) / 2
	}

	near := 0
	for _, v := range vals {
		if math.Abs(v-med) <= med*0.02 {
			near++
		}
	}

	return &analysis.TempoEstimate{
		BPM:        med,
		Confidence: float64(near) / float64(len(vals)),
	}, nil
}
