// Package keyfinder wraps keyfinder-cli, a key detector built on libKeyFinder.
package keyfinder

import (
	"context"
	"fmt"
	"strings"

	"stemprep/internal/analysis"
	"stemprep/internal/audio"
	"stemprep/internal/musickey"
	"stemprep/pkg/utils"
)

// Backend runs `keyfinder-cli -n standard`.
type Backend struct {
	path string
}

func New(path string) *Backend {
	return &Backend{path: utils.LookupTool(path)}
}

func (b *Backend) Name() string { return "keyfinder" }

func (b *Backend) Capabilities() analysis.Capabilities {
	return analysis.Capabilities{Key: true}
}

func (b *Backend) Available() bool { return b.path != "" }

func (b *Backend) Analyze(ctx context.Context, asset *audio.Asset, want analysis.Capabilities) (*analysis.Result, error) {
	out, err := analysis.RunTool(ctx, b.path, "-n", "standard", asset.Path)
	if err != nil {
		return nil, err
	}

	est, err := parseKey(string(out))
	if err != nil {
		return nil, err
	}
	return &analysis.Result{Key: est}, nil
}

// parseKey reads the single line keyfinder-cli prints, e.g. "F#m". An empty
// line means the file was silent and yields no estimate.
func parseKey(out string) (*analysis.KeyEstimate, error) {
	line := strings.TrimSpace(out)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return nil, nil
	}

	k, err := musickey.Parse(line)
	if err != nil {
		return nil, fmt.Errorf("keyfinder: %w", err)
	}
	return &analysis.KeyEstimate{Key: k, Confidence: analysis.Unreported}, nil
}
