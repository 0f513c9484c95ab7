package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Known analysis backends, in default priority order (most accurate first).
var KnownBackends = []string{"essentia", "madmom", "aubio", "keyfinder", "librosa", "spectral"}

// Known identification enrichers.
var KnownEnrichers = []string{"musicbrainz", "itunes"}

// Config contains the program configuration
type Config struct {
	InputDir      string `yaml:"-" toml:"-"`
	OutputDir     string `yaml:"output_dir" toml:"output_dir"`
	Verbose       bool   `yaml:"verbose" toml:"verbose"`
	DryRun        bool   `yaml:"dry_run" toml:"dry_run"`
	Force         bool   `yaml:"force" toml:"force"`
	KeepOriginals bool   `yaml:"keep_originals" toml:"keep_originals"`
	Concurrency   int    `yaml:"concurrency" toml:"concurrency"`

	SkipFingerprinting bool `yaml:"skip_fingerprinting" toml:"skip_fingerprinting"`
	SkipTempo          bool `yaml:"skip_tempo" toml:"skip_tempo"`
	SkipKey            bool `yaml:"skip_key" toml:"skip_key"`
	SkipQualitative    bool `yaml:"skip_qualitative" toml:"skip_qualitative"`

	Backends          []string           `yaml:"backends" toml:"backends"`
	BackendPriority   []string           `yaml:"backend_priority" toml:"backend_priority"`
	BackendTimeoutSec int                `yaml:"backend_timeout_seconds" toml:"backend_timeout_seconds"`
	BackendConfidence map[string]float64 `yaml:"backend_confidence" toml:"backend_confidence"`
	TempoToleranceBPM float64            `yaml:"tempo_tolerance_bpm" toml:"tempo_tolerance_bpm"`

	IdentifyTimeoutSec  int      `yaml:"identify_timeout_seconds" toml:"identify_timeout_seconds"`
	IdentifyRetries     int      `yaml:"identify_retries" toml:"identify_retries"`
	IdentifyBackoffMs   int      `yaml:"identify_backoff_ms" toml:"identify_backoff_ms"`
	ConfidenceThreshold float64  `yaml:"confidence_threshold" toml:"confidence_threshold"`
	AcoustIDAPIKey      string   `yaml:"acoustid_api_key" toml:"acoustid_api_key"`
	UserAgent           string   `yaml:"user_agent" toml:"user_agent"`
	Enrichers           []string `yaml:"enrichers" toml:"enrichers"`
	CachePath           string   `yaml:"cache_path" toml:"cache_path"`

	Converter       string `yaml:"converter" toml:"converter"`
	FpcalcPath      string `yaml:"fpcalc_path" toml:"fpcalc_path"`
	FFmpegPath      string `yaml:"ffmpeg_path" toml:"ffmpeg_path"`
	AubioPath       string `yaml:"aubio_path" toml:"aubio_path"`
	EssentiaPath    string `yaml:"essentia_path" toml:"essentia_path"`
	KeyfinderPath   string `yaml:"keyfinder_path" toml:"keyfinder_path"`
	MadmomTempoPath string `yaml:"madmom_tempo_path" toml:"madmom_tempo_path"`
	MadmomKeyPath   string `yaml:"madmom_key_path" toml:"madmom_key_path"`
	PythonPath      string `yaml:"python_path" toml:"python_path"`

	SampleRate int `yaml:"sample_rate" toml:"sample_rate"`
	BitDepth   int `yaml:"bit_depth" toml:"bit_depth"`

	MonitorAddr string `yaml:"monitor_addr" toml:"monitor_addr"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Concurrency:         2,
		Backends:            append([]string(nil), KnownBackends...),
		BackendTimeoutSec:   120,
		BackendConfidence:   map[string]float64{},
		TempoToleranceBPM:   2.0,
		IdentifyTimeoutSec:  10,
		IdentifyRetries:     3,
		IdentifyBackoffMs:   1000,
		ConfidenceThreshold: 0.5,
		UserAgent:           "stemprep/0.1.0 ( https://github.com/benkant/music-stem-separator )",
		Enrichers:           []string{"musicbrainz", "itunes"},
		CachePath:           filepath.Join(homeDir(), ".cache", "stemprep", "identify.sqlite3"),
		Converter:           "auto",
		FpcalcPath:          "fpcalc",
		FFmpegPath:          "ffmpeg",
		AubioPath:           "aubio",
		EssentiaPath:        "essentia_streaming_extractor_music",
		KeyfinderPath:       "keyfinder-cli",
		MadmomTempoPath:     "TempoDetector",
		MadmomKeyPath:       "KeyRecognition",
		PythonPath:          "python3",
		SampleRate:          48000,
		BitDepth:            16,
	}
}

// LoadConfigFile loads configuration from a YAML or TOML file.
// If path is empty, searches standard locations. Returns defaults if no file found.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = FindConfigFile()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.OutputDir = ExpandHome(cfg.OutputDir)
	cfg.CachePath = ExpandHome(cfg.CachePath)

	return cfg, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir(), path[2:])
	}
	return path
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() string {
	home := homeDir()
	locations := []string{
		"./stemprep.yaml",
		"./stemprep.yml",
		"./stemprep.toml",
		filepath.Join(home, ".config", "stemprep", "config.yaml"),
		filepath.Join(home, ".config", "stemprep", "config.yml"),
		filepath.Join(home, ".config", "stemprep", "config.toml"),
		filepath.Join(home, ".stemprep.yaml"),
		filepath.Join(home, ".stemprep.yml"),
	}

	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// SaveConfigFile saves the configuration as YAML, or TOML when path ends in .toml.
func SaveConfigFile(cfg Config, path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPath returns the default config file path
func GetDefaultConfigPath() string {
	return filepath.Join(homeDir(), ".config", "stemprep", "config.yaml")
}

// GetDefaultLogPath returns the default log directory path
func GetDefaultLogPath() string {
	return filepath.Join(homeDir(), ".local", "share", "stemprep", "logs")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.Getenv("HOME")
	}
	return home
}

// BackendTimeout is the per-backend invocation deadline.
func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSec) * time.Second
}

// IdentifyTimeout bounds a single identification request.
func (c *Config) IdentifyTimeout() time.Duration {
	return time.Duration(c.IdentifyTimeoutSec) * time.Second
}

// IdentifyBackoff is the initial delay between identification retries.
func (c *Config) IdentifyBackoff() time.Duration {
	return time.Duration(c.IdentifyBackoffMs) * time.Millisecond
}

// Priority returns the backend priority order used for tie-breaking.
// Falls back to the order of Backends when no explicit priority is set.
func (c *Config) Priority() []string {
	if len(c.BackendPriority) > 0 {
		return c.BackendPriority
	}
	return c.Backends
}

// DefaultConfidence returns the confidence assigned to observations from a
// backend that does not report one.
func (c *Config) DefaultConfidence(backend string) float64 {
	if v, ok := c.BackendConfidence[backend]; ok {
		return v
	}
	return 1.0
}

// ResolveOutputDir defaults the output directory to the input directory.
func (c *Config) ResolveOutputDir() {
	if c.OutputDir == "" {
		c.OutputDir = c.InputDir
	}
}
