// Package backend builds the configured analysis backends.
package backend

import (
	"fmt"

	"stemprep/internal/analysis"
	"stemprep/internal/backend/aubio"
	"stemprep/internal/backend/essentia"
	"stemprep/internal/backend/keyfinder"
	"stemprep/internal/backend/librosa"
	"stemprep/internal/backend/madmom"
	"stemprep/internal/backend/spectral"
	"stemprep/internal/config"
)

// Build constructs the backends named in cfg.Backends, in that order.
// Backends whose tools are missing are still returned; the orchestrator
// reports them as skipped.
func Build(cfg *config.Config, tempDir string) ([]analysis.Backend, error) {
	if len(cfg.Backends) == 0 {
		return nil, fmt.Errorf("no analysis backends configured")
	}

	backends := make([]analysis.Backend, 0, len(cfg.Backends))
	for _, name := range cfg.Backends {
		var b analysis.Backend
		switch name {
		case "aubio":
			b = aubio.New(cfg.AubioPath)
		case "essentia":
			b = essentia.New(cfg.EssentiaPath, tempDir)
		case "keyfinder":
			b = keyfinder.New(cfg.KeyfinderPath)
		case "madmom":
			b = madmom.New(cfg.MadmomTempoPath, cfg.MadmomKeyPath)
		case "librosa":
			b = librosa.New(cfg.PythonPath)
		case "spectral":
			b = spectral.New()
		default:
			return nil, fmt.Errorf("unknown analysis backend %q", name)
		}
		backends = append(backends, b)
	}

	return backends, nil
}
