package pipeline

import (
	"fmt"

	"stemprep/internal/analysis"
	"stemprep/internal/audio"
	"stemprep/internal/backend"
	"stemprep/internal/cache"
	"stemprep/internal/config"
	"stemprep/internal/consensus"
	"stemprep/internal/identify"
	"stemprep/internal/logger"
	"stemprep/internal/provider/acoustid"
	"stemprep/internal/provider/itunes"
	"stemprep/internal/provider/musicbrainz"
	"stemprep/pkg/utils"
)

// Build wires the stage implementations described by cfg. The returned
// cleanup closes the identification cache. Configuration problems are fatal.
func Build(cfg *config.Config, log *logger.Logger, tempDir string) (Components, func(), error) {
	noop := func() {}

	conv, err := audio.NewConverter(cfg.Converter, cfg.FFmpegPath)
	if err != nil {
		return Components{}, noop, &FatalError{Op: "configure converter", Err: err}
	}
	log.Debug("Using %s converter", conv.Name())

	backends, err := backend.Build(cfg, tempDir)
	if err != nil {
		return Components{}, noop, &FatalError{Op: "configure backends", Err: err}
	}

	comp := Components{
		Normalizer:   audio.NewNormalizer(conv, tempDir, log),
		Orchestrator: analysis.NewOrchestrator(backends, cfg.BackendTimeout(), cfg.DefaultConfidence, log),
		Resolver:     consensus.NewResolver(cfg.TempoToleranceBPM, cfg.Priority()),
	}

	for _, b := range backends {
		if !b.Available() {
			log.Debug("Backend %s is not installed", b.Name())
		}
	}

	cleanup := noop
	if !cfg.SkipFingerprinting {
		id, reason, closeCache, err := buildIdentifier(cfg, log)
		if err != nil {
			return Components{}, noop, err
		}
		if id != nil {
			comp.Identifier = id
		}
		comp.IdentifyUnavailable = reason
		cleanup = closeCache
	}

	return comp, cleanup, nil
}

// buildIdentifier returns a nil Identifier and the reason when identification
// was requested but cannot run.
func buildIdentifier(cfg *config.Config, log *logger.Logger) (*identify.Identifier, string, func(), error) {
	noop := func() {}

	fpcalc := utils.LookupTool(cfg.FpcalcPath)
	if fpcalc == "" {
		reason := fmt.Sprintf("fpcalc not found (%s)", cfg.FpcalcPath)
		log.Warn("%s; identification disabled", reason)
		return nil, reason, noop, nil
	}
	if cfg.AcoustIDAPIKey == "" {
		reason := "no AcoustID API key configured"
		log.Warn("%s; identification disabled", reason)
		return nil, reason, noop, nil
	}

	var enrichers []identify.Enricher
	for _, name := range cfg.Enrichers {
		switch name {
		case "musicbrainz":
			enrichers = append(enrichers, musicbrainz.New(cfg.UserAgent))
		case "itunes":
			enrichers = append(enrichers, itunes.New(cfg.UserAgent))
		default:
			return nil, "", noop, &FatalError{Op: "configure enrichers", Err: fmt.Errorf("unknown enricher %q", name)}
		}
	}

	var store identify.Cache
	cleanup := noop
	if cfg.CachePath != "" {
		s, err := cache.Open(cfg.CachePath)
		if err != nil {
			log.Warn("Identification cache unavailable: %v", err)
		} else {
			store = s
			cleanup = func() { s.Close() }
		}
	}

	opts := identify.Options{
		Timeout:   cfg.IdentifyTimeout(),
		Retries:   cfg.IdentifyRetries,
		Backoff:   cfg.IdentifyBackoff(),
		Threshold: cfg.ConfidenceThreshold,
	}
	id := identify.New(&identify.Fpcalc{Path: fpcalc}, acoustid.New(cfg.AcoustIDAPIKey, cfg.UserAgent), enrichers, store, opts, log)
	return id, "", cleanup, nil
}
