package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.InputDir = "/tmp/in"
		cfg.OutputDir = "/tmp/out"
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:   "confidence threshold 0.0",
			modify: func(c *Config) { c.ConfidenceThreshold = 0.0 },
		},
		{
			name:   "confidence threshold 1.0",
			modify: func(c *Config) { c.ConfidenceThreshold = 1.0 },
		},
		{
			name:    "confidence threshold negative",
			modify:  func(c *Config) { c.ConfidenceThreshold = -0.1 },
			wantErr: true,
		},
		{
			name:    "confidence threshold above 1",
			modify:  func(c *Config) { c.ConfidenceThreshold = 1.1 },
			wantErr: true,
		},
		{
			name:    "concurrency 0",
			modify:  func(c *Config) { c.Concurrency = 0 },
			wantErr: true,
		},
		{
			name:    "concurrency 33",
			modify:  func(c *Config) { c.Concurrency = 33 },
			wantErr: true,
		},
		{
			name:    "zero backends",
			modify:  func(c *Config) { c.Backends = nil },
			wantErr: true,
		},
		{
			name:    "unknown backend",
			modify:  func(c *Config) { c.Backends = []string{"aubio", "shazam"} },
			wantErr: true,
		},
		{
			name:    "duplicate backend",
			modify:  func(c *Config) { c.Backends = []string{"aubio", "aubio"} },
			wantErr: true,
		},
		{
			name:    "unknown priority backend",
			modify:  func(c *Config) { c.BackendPriority = []string{"nope"} },
			wantErr: true,
		},
		{
			name:    "backend confidence out of range",
			modify:  func(c *Config) { c.BackendConfidence = map[string]float64{"aubio": 1.5} },
			wantErr: true,
		},
		{
			name:    "non-positive tempo tolerance",
			modify:  func(c *Config) { c.TempoToleranceBPM = 0 },
			wantErr: true,
		},
		{
			name:    "too many retries",
			modify:  func(c *Config) { c.IdentifyRetries = 11 },
			wantErr: true,
		},
		{
			name:    "unknown enricher",
			modify:  func(c *Config) { c.Enrichers = []string{"spotify"} },
			wantErr: true,
		},
		{
			name:    "unknown converter",
			modify:  func(c *Config) { c.Converter = "sox" },
			wantErr: true,
		},
		{
			name:    "non-standard sample rate",
			modify:  func(c *Config) { c.SampleRate = 44100 },
			wantErr: true,
		},
		{
			name:    "empty input dir",
			modify:  func(c *Config) { c.InputDir = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stemprep.yaml")

	content := `concurrency: 6
backends: [aubio, keyfinder]
backend_priority: [keyfinder, aubio]
backend_confidence:
  keyfinder: 0.8
tempo_tolerance_bpm: 1.5
skip_qualitative: true
output_dir: ~/analysed
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}

	if cfg.Concurrency != 6 {
		t.Errorf("Concurrency = %d, want 6", cfg.Concurrency)
	}
	if len(cfg.Backends) != 2 || cfg.Backends[0] != "aubio" {
		t.Errorf("Backends = %v, want [aubio keyfinder]", cfg.Backends)
	}
	if got := cfg.Priority(); got[0] != "keyfinder" {
		t.Errorf("Priority()[0] = %q, want keyfinder", got[0])
	}
	if got := cfg.DefaultConfidence("keyfinder"); got != 0.8 {
		t.Errorf("DefaultConfidence(keyfinder) = %v, want 0.8", got)
	}
	if got := cfg.DefaultConfidence("aubio"); got != 1.0 {
		t.Errorf("DefaultConfidence(aubio) = %v, want 1.0", got)
	}
	if cfg.TempoToleranceBPM != 1.5 {
		t.Errorf("TempoToleranceBPM = %v, want 1.5", cfg.TempoToleranceBPM)
	}
	if !cfg.SkipQualitative {
		t.Error("SkipQualitative should be true")
	}
	if cfg.OutputDir == "~/analysed" || filepath.Base(cfg.OutputDir) != "analysed" {
		t.Errorf("OutputDir = %q, want home-expanded path", cfg.OutputDir)
	}
	// Untouched keys keep their defaults.
	if cfg.IdentifyRetries != 3 {
		t.Errorf("IdentifyRetries = %d, want default 3", cfg.IdentifyRetries)
	}
}

func TestLoadConfigFileTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stemprep.toml")

	content := `concurrency = 3
backends = ["essentia", "madmom"]
identify_retries = 5
converter = "native"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile() error: %v", err)
	}
	if cfg.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", cfg.Concurrency)
	}
	if len(cfg.Backends) != 2 || cfg.Backends[1] != "madmom" {
		t.Errorf("Backends = %v", cfg.Backends)
	}
	if cfg.IdentifyRetries != 5 {
		t.Errorf("IdentifyRetries = %d, want 5", cfg.IdentifyRetries)
	}
	if cfg.Converter != "native" {
		t.Errorf("Converter = %q, want native", cfg.Converter)
	}
}

func TestLoadConfigFileMissing(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults, got %v", err)
	}
	if cfg.Concurrency != DefaultConfig().Concurrency {
		t.Errorf("expected default concurrency, got %d", cfg.Concurrency)
	}
}

func TestLoadConfigFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("concurrency: [not, a, number"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSaveConfigFileRoundTrip(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := DefaultConfig()
			cfg.Concurrency = 7
			cfg.Backends = []string{"spectral"}

			if err := SaveConfigFile(cfg, path); err != nil {
				t.Fatalf("SaveConfigFile() error: %v", err)
			}
			loaded, err := LoadConfigFile(path)
			if err != nil {
				t.Fatalf("LoadConfigFile() error: %v", err)
			}
			if loaded.Concurrency != 7 || len(loaded.Backends) != 1 || loaded.Backends[0] != "spectral" {
				t.Errorf("round trip mismatch: %+v", loaded)
			}
		})
	}
}

func TestResolveOutputDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InputDir = "/music/in"
	cfg.ResolveOutputDir()
	if cfg.OutputDir != "/music/in" {
		t.Errorf("OutputDir = %q, want input dir", cfg.OutputDir)
	}

	cfg.OutputDir = "/music/out"
	cfg.ResolveOutputDir()
	if cfg.OutputDir != "/music/out" {
		t.Errorf("explicit OutputDir overwritten: %q", cfg.OutputDir)
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := ExpandHome("~/x"); got != filepath.Join(home, "x") {
		t.Errorf("ExpandHome(~/x) = %q", got)
	}
	if got := ExpandHome("/abs"); got != "/abs" {
		t.Errorf("ExpandHome(/abs) = %q", got)
	}
}
