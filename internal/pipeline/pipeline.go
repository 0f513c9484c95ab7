// Package pipeline runs the per-file stages over a directory of WAV files and
// aggregates a batch report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"stemprep/internal/analysis"
	"stemprep/internal/audio"
	"stemprep/internal/canonical"
	"stemprep/internal/config"
	"stemprep/internal/consensus"
	"stemprep/internal/identify"
	"stemprep/internal/logger"
	"stemprep/internal/metadata"
	"stemprep/pkg/utils"
)

// Identifier resolves the identity of a normalized asset.
type Identifier interface {
	Identify(ctx context.Context, asset *audio.Asset) (*identify.Result, error)
}

// Components are the stage implementations a Coordinator drives.
type Components struct {
	Normalizer   *audio.Normalizer
	Identifier   Identifier
	Orchestrator *analysis.Orchestrator
	Resolver     *consensus.Resolver

	// IdentifyUnavailable explains a nil Identifier when fingerprinting was
	// requested. Each file then records a lookup error instead of a skip.
	IdentifyUnavailable string
}

// Hooks observe a run. OnFile is called from worker goroutines.
type Hooks struct {
	OnStart   func(r *BatchReport)
	OnFile    func(f FileReport)
	OnWarning func(msg string)
}

// Coordinator owns the worker pool, the output namespace and the report.
type Coordinator struct {
	cfg   config.Config
	log   *logger.Logger
	comp  Components
	hooks Hooks
	runID string
	now   func() time.Time
}

func New(cfg config.Config, comp Components, log *logger.Logger, hooks Hooks) *Coordinator {
	if log == nil {
		log = logger.Discard()
	}
	return &Coordinator{
		cfg:   cfg,
		log:   log,
		comp:  comp,
		hooks: hooks,
		runID: uuid.NewString(),
		now:   time.Now,
	}
}

// RunID identifies this run in sidecars and logs.
func (c *Coordinator) RunID() string {
	return c.runID
}

// Run processes every WAV in the input directory. ctx stops dispatch; work
// cancels in-flight files and should outlive ctx so running files can reach
// their commit or rollback point. A *FatalError means nothing was processed.
func (c *Coordinator) Run(ctx, work context.Context) (*BatchReport, error) {
	files, err := utils.FindWAVFiles(c.cfg.InputDir)
	if err != nil {
		return nil, &FatalError{Op: "read input directory", Err: err}
	}
	if len(files) == 0 {
		return nil, &FatalError{Op: "scan input directory", Err: fmt.Errorf("no WAV files in %s", c.cfg.InputDir)}
	}

	outDir := c.cfg.OutputDir
	if err := checkOutputDir(outDir, c.cfg.DryRun); err != nil {
		return nil, &FatalError{Op: "prepare output directory", Err: err}
	}

	if !c.cfg.DryRun {
		lock, err := lockOutputDir(outDir)
		if err != nil {
			return nil, &FatalError{Op: "lock output directory", Err: err}
		}
		defer lock.Unlock()

		if n, err := metadata.CleanStale(outDir); err != nil {
			c.log.Warn("Failed to clean stale temporary files: %v", err)
		} else if n > 0 {
			c.log.Debug("Removed %d stale temporary files from %s", n, outDir)
		}
	}

	c.log.Info("=== Analysing %d files (run %s) ===", len(files), c.runID)
	report := newBatchReport(c.runID, len(files), c.cfg.DryRun)
	if c.hooks.OnStart != nil {
		c.hooks.OnStart(report)
	}
	ns := NewNamespace(outDir)
	committer := metadata.NewCommitter(outDir, c.cfg.KeepOriginals, c.log)

	concurrency := c.cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	record := func(f FileReport) {
		report.add(f)
		if c.hooks.OnFile != nil {
			c.hooks.OnFile(f)
		}
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, concurrency)

	for i, path := range files {
		if ctx.Err() == nil {
			select {
			case <-ctx.Done():
			case semaphore <- struct{}{}:
			}
		}
		if ctx.Err() != nil {
			c.warn(fmt.Sprintf("Interrupted: %d files not started", len(files)-i))
			for j := i; j < len(files); j++ {
				record(cancelled(files[j], j))
			}
			break
		}

		wg.Add(1)
		go func(idx int, path string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			f := c.processFile(work, ns, committer, path)
			f.index = idx
			record(f)
		}(i, path)
	}

	wg.Wait()
	report.finish()

	c.log.Info("Processed %d files: %d success, %d partial, %d failed", len(files), report.Success, report.Partial, report.Failed)
	return report, nil
}

func (c *Coordinator) warn(msg string) {
	c.log.Warn("%s", msg)
	if c.hooks.OnWarning != nil {
		c.hooks.OnWarning(msg)
	}
}

func cancelled(path string, idx int) FileReport {
	return FileReport{
		Source:  path,
		Outcome: metadata.Failed,
		Errors: []metadata.StageError{{
			Stage:   "dispatch",
			Kind:    metadata.KindCancelled,
			Message: "run interrupted before the file started",
		}},
		index: idx,
	}
}

func (c *Coordinator) want() analysis.Capabilities {
	return analysis.Capabilities{
		Tempo:       !c.cfg.SkipTempo,
		Key:         !c.cfg.SkipKey,
		Qualitative: !c.cfg.SkipQualitative,
	}
}

// processFile runs every stage for one file and never returns an error: all
// failures end up in the FileReport.
func (c *Coordinator) processFile(ctx context.Context, ns *Namespace, committer *metadata.Committer, path string) FileReport {
	start := time.Now()
	log := c.log.With(filepath.Base(path))
	f := FileReport{Source: path}

	fail := func(stage string, kind metadata.Kind, err error) FileReport {
		if ctx.Err() != nil {
			kind = metadata.KindCancelled
		}
		log.Error("%s failed: %v", stage, err)
		f.Outcome = metadata.Failed
		f.Errors = append(f.Errors, metadata.StageError{Stage: stage, Kind: kind, Message: err.Error()})
		f.Duration = time.Since(start)
		return f
	}

	if !c.cfg.Force {
		if c.alreadyProcessed(path) {
			log.Info("Already processed, skipping")
			f.Outcome = metadata.Success
			f.Skipped = true
			f.Output = path
			f.Duration = time.Since(start)
			return f
		}
	}

	asset, err := c.comp.Normalizer.Normalize(ctx, path)
	if err != nil {
		return fail(metadata.StageNormalize, metadata.KindFormatConversion, err)
	}
	defer asset.Release()

	stages := map[string]string{metadata.StageNormalize: "ok"}
	if asset.Converted {
		stages[metadata.StageNormalize] = "converted"
	}
	var errs []metadata.StageError

	// Identification and feature extraction are independent; the identify
	// call has its own timeout inside the Identifier.
	var (
		idResult *identify.Result
		idErr    error
		idWG     sync.WaitGroup
	)
	switch {
	case c.cfg.SkipFingerprinting:
		stages[metadata.StageIdentify] = string(identify.StatusSkipped)
	case c.comp.Identifier != nil:
		idWG.Add(1)
		go func() {
			defer idWG.Done()
			idResult, idErr = c.comp.Identifier.Identify(ctx, asset)
		}()
	case c.comp.IdentifyUnavailable != "":
		idErr = fmt.Errorf("%w: %s", identify.ErrLookup, c.comp.IdentifyUnavailable)
	default:
		stages[metadata.StageIdentify] = string(identify.StatusSkipped)
	}

	want := c.want()
	obs := &analysis.Observations{Requested: want}
	if want.Any() {
		obs = c.comp.Orchestrator.Extract(ctx, asset, want)
		stages[metadata.StageExtract] = "ok"
		for _, fl := range obs.Failures {
			errs = append(errs, metadata.StageError{Stage: metadata.StageExtract, Kind: metadata.KindBackendExtraction, Message: fl.Err.Error()})
		}
		if len(obs.Failures) > 0 {
			stages[metadata.StageExtract] = fmt.Sprintf("%d backend(s) failed", len(obs.Failures))
		}
	} else {
		stages[metadata.StageExtract] = "skipped"
	}
	idWG.Wait()

	if _, skipped := stages[metadata.StageIdentify]; !skipped {
		switch {
		case idErr != nil:
			log.Warn("Identification failed: %v", idErr)
			errs = append(errs, metadata.StageError{Stage: metadata.StageIdentify, Kind: metadata.KindFingerprintLookup, Message: idErr.Error()})
			idResult = &identify.Result{Status: identify.StatusError}
		case idResult == nil || idResult.Status == identify.StatusNoMatch:
			log.Info("No identification match")
			if idResult == nil {
				idResult = &identify.Result{Status: identify.StatusNoMatch}
			}
			errs = append(errs, metadata.StageError{Stage: metadata.StageIdentify, Kind: metadata.KindNoMatch, Message: "no candidate above the confidence threshold"})
		default:
			log.Debug("Identified as %s - %s (%.2f)", idResult.Artist, idResult.Title, idResult.Confidence)
		}
		stages[metadata.StageIdentify] = string(idResult.Status)
		f.Matched = idResult.Matched()
	}

	in := metadata.Inputs{
		Asset:          asset,
		RunID:          c.runID,
		Identification: idResult,
		Observations:   obs,
		Stages:         stages,
		Now:            c.now(),
	}

	if want.Tempo {
		t, err := c.comp.Resolver.ResolveTempo(obs.Tempo)
		if err != nil {
			in.TempoAbsent, errs = absent(metadata.StageTempo, obs.Offered.Tempo, err, errs)
			stages[metadata.StageTempo] = "absent"
		} else {
			in.Tempo = t
			stages[metadata.StageTempo] = string(t.Method)
		}
	} else {
		in.TempoAbsent = "skipped"
		stages[metadata.StageTempo] = "skipped"
	}

	if want.Key {
		k, err := c.comp.Resolver.ResolveKey(obs.Key)
		if err != nil {
			in.KeyAbsent, errs = absent(metadata.StageKey, obs.Offered.Key, err, errs)
			stages[metadata.StageKey] = "absent"
		} else {
			in.Key = k
			stages[metadata.StageKey] = string(k.Method)
		}
	} else {
		in.KeyAbsent = "skipped"
		stages[metadata.StageKey] = "skipped"
	}

	if want.Qualitative {
		in.Qualitative = c.comp.Resolver.ResolveQualitative(obs.Qualitative)
	}

	in.Errors = errs
	rec, name := metadata.Assemble(in)

	if ctx.Err() != nil {
		return fail(metadata.StageCommit, metadata.KindCancelled, ctx.Err())
	}

	if c.cfg.DryRun {
		planned, err := ns.Claim(name, path, asset.Checksum, nil)
		if err != nil {
			return fail(metadata.StageCommit, metadata.KindCollisionExhausted, err)
		}
		log.Info("Would write %s (%s)", filepath.Base(planned), rec.Processing.Outcome)
		return c.finish(f, rec, planned, start)
	}

	staged, err := committer.Stage(asset, rec)
	if err != nil {
		return fail(metadata.StageCommit, metadata.KindCommitIO, err)
	}
	defer staged.Discard()

	final, err := ns.Claim(name, path, asset.Checksum, func(p string) error {
		return staged.Finalize(p, rec)
	})
	if err != nil {
		kind := metadata.KindCommitIO
		if errors.Is(err, metadata.ErrCollisionExhausted) {
			kind = metadata.KindCollisionExhausted
		}
		return fail(metadata.StageCommit, kind, err)
	}

	log.Info("-> %s (%s)", filepath.Base(final), rec.Processing.Outcome)
	return c.finish(f, rec, final, start)
}

func (c *Coordinator) finish(f FileReport, rec *metadata.Record, output string, start time.Time) FileReport {
	f.Output = output
	f.Outcome = rec.Processing.Outcome
	f.Errors = rec.Processing.Errors
	if info, err := os.Stat(output); err == nil {
		f.Bytes = info.Size()
	}
	f.Duration = time.Since(start)
	return f
}

// absent explains a missing metric. No capable backend is a configuration
// matter; capable backends that produced nothing degrade the file.
func absent(stage string, offered bool, err error, errs []metadata.StageError) (string, []metadata.StageError) {
	if !offered {
		return "no backend available", errs
	}
	return "no observations", append(errs, metadata.StageError{
		Stage:   stage,
		Kind:    metadata.KindInsufficientData,
		Message: err.Error(),
	})
}

// alreadyProcessed reports whether path is a canonical file whose sidecar
// records the same audio checksum.
func (c *Coordinator) alreadyProcessed(path string) bool {
	if !canonical.IsCanonical(path) {
		return false
	}
	rec, err := metadata.ReadSidecar(metadata.SidecarPath(path))
	if err != nil || rec.Processing.Checksum == "" {
		return false
	}
	sum, err := audio.Checksum(path)
	if err != nil {
		return false
	}
	return sum == rec.Processing.Checksum
}
