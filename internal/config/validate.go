package config

import (
	"fmt"
	"slices"
)

// Validate checks if the configuration is valid. Every error returned here is a
// whole-run configuration error.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("input directory cannot be empty")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir cannot be empty")
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Concurrency > 32 {
		return fmt.Errorf("concurrency cannot exceed 32, got %d", c.Concurrency)
	}

	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one analysis backend must be configured")
	}
	seen := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		if !slices.Contains(KnownBackends, b) {
			return fmt.Errorf("unknown backend %q, valid backends: %v", b, KnownBackends)
		}
		if seen[b] {
			return fmt.Errorf("backend %q listed more than once", b)
		}
		seen[b] = true
	}
	for _, b := range c.BackendPriority {
		if !slices.Contains(KnownBackends, b) {
			return fmt.Errorf("unknown backend %q in backend_priority", b)
		}
	}
	for b, v := range c.BackendConfidence {
		if v < 0 || v > 1 {
			return fmt.Errorf("backend_confidence for %s must be between 0.0 and 1.0, got %.2f", b, v)
		}
	}

	if c.BackendTimeoutSec < 1 {
		return fmt.Errorf("backend_timeout_seconds must be at least 1, got %d", c.BackendTimeoutSec)
	}
	if c.TempoToleranceBPM <= 0 {
		return fmt.Errorf("tempo_tolerance_bpm must be positive, got %.2f", c.TempoToleranceBPM)
	}

	if c.IdentifyTimeoutSec < 1 {
		return fmt.Errorf("identify_timeout_seconds must be at least 1, got %d", c.IdentifyTimeoutSec)
	}
	if c.IdentifyRetries < 0 || c.IdentifyRetries > 10 {
		return fmt.Errorf("identify_retries must be between 0 and 10, got %d", c.IdentifyRetries)
	}
	if c.IdentifyBackoffMs < 0 {
		return fmt.Errorf("identify_backoff_ms cannot be negative, got %d", c.IdentifyBackoffMs)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0.0 and 1.0, got %.2f", c.ConfidenceThreshold)
	}
	for _, e := range c.Enrichers {
		if !slices.Contains(KnownEnrichers, e) {
			return fmt.Errorf("unknown enricher %q, valid enrichers: %v", e, KnownEnrichers)
		}
	}

	switch c.Converter {
	case "auto", "ffmpeg", "native":
	default:
		return fmt.Errorf("converter must be one of auto, ffmpeg, native, got %q", c.Converter)
	}

	if c.SampleRate != 48000 || c.BitDepth != 16 {
		return fmt.Errorf("output format is fixed at 16-bit/48kHz, got %d-bit/%dHz", c.BitDepth, c.SampleRate)
	}

	return nil
}
