package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stemprep/internal/config"
	"stemprep/internal/logger"
)

func TestBuildIdentifierAvailability(t *testing.T) {
	dir := t.TempDir()
	fpcalc := filepath.Join(dir, "fpcalc")
	if err := os.WriteFile(fpcalc, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		fpcalc     string
		apiKey     string
		skip       bool
		wantID     bool
		wantReason string
	}{
		{"ready", fpcalc, "key", false, true, ""},
		{"fpcalc missing", filepath.Join(dir, "missing"), "key", false, false, "fpcalc not found"},
		{"no api key", fpcalc, "", false, false, "no AcoustID API key"},
		{"fingerprinting skipped", filepath.Join(dir, "missing"), "", true, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Converter = "native"
			cfg.CachePath = ""
			cfg.FpcalcPath = tt.fpcalc
			cfg.AcoustIDAPIKey = tt.apiKey
			cfg.SkipFingerprinting = tt.skip

			comp, cleanup, err := Build(&cfg, logger.Discard(), t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			defer cleanup()

			if (comp.Identifier != nil) != tt.wantID {
				t.Errorf("Identifier = %v, want present: %v", comp.Identifier, tt.wantID)
			}
			if tt.wantReason == "" && comp.IdentifyUnavailable != "" {
				t.Errorf("IdentifyUnavailable = %q, want empty", comp.IdentifyUnavailable)
			}
			if !strings.Contains(comp.IdentifyUnavailable, tt.wantReason) {
				t.Errorf("IdentifyUnavailable = %q, want it to mention %q", comp.IdentifyUnavailable, tt.wantReason)
			}
		})
	}
}
