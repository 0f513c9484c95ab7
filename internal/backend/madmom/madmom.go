// Package madmom wraps the madmom TempoDetector and KeyRecognition programs.
package madmom

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"stemprep/internal/analysis"
	"stemprep/internal/audio"
	"stemprep/internal/musickey"
	"stemprep/pkg/utils"
)

// Backend drives the two madmom programs. Either may be missing; the backend
// is available when at least one is installed.
type Backend struct {
	tempoPath string
	keyPath   string
}

func New(tempoPath, keyPath string) *Backend {
	return &Backend{
		tempoPath: utils.LookupTool(tempoPath),
		keyPath:   utils.LookupTool(keyPath),
	}
}

func (b *Backend) Name() string { return "madmom" }

func (b *Backend) Capabilities() analysis.Capabilities {
	return analysis.Capabilities{Tempo: true, Key: true}
}

func (b *Backend) Available() bool { return b.tempoPath != "" || b.keyPath != "" }

func (b *Backend) Analyze(ctx context.Context, asset *audio.Asset, want analysis.Capabilities) (*analysis.Result, error) {
	res := &analysis.Result{}
	var errs []string

	if want.Tempo && b.tempoPath != "" {
		out, err := analysis.RunTool(ctx, b.tempoPath, "single", asset.Path)
		if err == nil {
			res.Tempo, err = parseTempo(string(out))
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, "tempo: "+err.Error())
		}
	}

	if want.Key && b.keyPath != "" {
		out, err := analysis.RunTool(ctx, b.keyPath, "single", asset.Path)
		if err == nil {
			res.Key, err = parseKey(string(out))
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, "key: "+err.Error())
		}
	}

	if res.Tempo == nil && res.Key == nil && len(errs) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return res, nil
}

// parseTempo reads TempoDetector output: "tempo1 tempo2 strength". The
// strength of the first tempo is its confidence.
func parseTempo(out string) (*analysis.TempoEstimate, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty TempoDetector output")
	}

	bpm, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return nil, fmt.Errorf("invalid tempo %q", fields[0])
	}

	conf := analysis.Unreported
	if len(fields) >= 3 {
		if s, err := strconv.ParseFloat(fields[2], 64); err == nil && s >= 0 {
			conf = s
		}
	}
	return &analysis.TempoEstimate{BPM: bpm, Confidence: conf}, nil
}

// parseKey reads KeyRecognition output, e.g. "A minor".
func parseKey(out string) (*analysis.KeyEstimate, error) {
	line := strings.TrimSpace(out)
	if line == "" {
		return nil, fmt.Errorf("empty KeyRecognition output")
	}
	k, err := musickey.Parse(line)
	if err != nil {
		return nil, err
	}
	return &analysis.KeyEstimate{Key: k, Confidence: analysis.Unreported}, nil
}
