package identify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stemprep/internal/audio"
	"stemprep/internal/logger"
)

// Options tunes an Identifier.
type Options struct {
	Timeout   time.Duration
	Retries   int
	Backoff   time.Duration
	Threshold float64
}

// Identifier runs fingerprint, lookup with retry, enrichment and caching.
type Identifier struct {
	fp        Fingerprinter
	lookup    Lookup
	enrichers []Enricher
	cache     Cache
	opts      Options
	log       *logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates an Identifier. cache may be nil.
func New(fp Fingerprinter, lookup Lookup, enrichers []Enricher, cache Cache, opts Options, log *logger.Logger) *Identifier {
	if log == nil {
		log = logger.Discard()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Identifier{
		fp:        fp,
		lookup:    lookup,
		enrichers: enrichers,
		cache:     cache,
		opts:      opts,
		log:       log,
		sleep:     sleepCtx,
	}
}

// Identify returns a matched or no-match result. Errors wrap ErrLookup; the
// caller continues with null identification.
func (id *Identifier) Identify(ctx context.Context, asset *audio.Asset) (*Result, error) {
	if id.cache != nil && asset.Checksum != "" {
		cached, ok, err := id.cache.Get(ctx, asset.Checksum)
		if err != nil {
			id.log.Warn("Identification cache read failed: %v", err)
		} else if ok {
			id.log.Debug("Identification cache hit for %s", asset.Source)
			return cached, nil
		}
	}

	fctx, cancel := context.WithTimeout(ctx, id.opts.Timeout)
	fp, err := id.fp.Fingerprint(fctx, asset.Path)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: fingerprint: %v", ErrLookup, err)
	}

	cand, err := id.lookupWithRetry(ctx, fp)
	if err != nil {
		return nil, err
	}

	result := id.resolve(cand)

	if result.Matched() {
		for _, e := range id.enrichers {
			if err := e.Enrich(ctx, result); err != nil {
				id.log.Debug("%s enrichment failed: %v", e.Name(), err)
			}
		}
	}

	// Only matches are cached so a recording added to the database later
	// can still be found on the next run.
	if result.Matched() && id.cache != nil && asset.Checksum != "" {
		if err := id.cache.Put(ctx, asset.Checksum, result); err != nil {
			id.log.Warn("Identification cache write failed: %v", err)
		}
	}

	return result, nil
}

func (id *Identifier) resolve(cand *Candidate) *Result {
	if cand == nil {
		return &Result{Status: StatusNoMatch, Source: id.lookup.Name()}
	}
	if cand.Score < id.opts.Threshold || (cand.Artist == "" && cand.Title == "") {
		id.log.Debug("Best candidate %s below threshold (%.2f < %.2f)", cand.RecordingID, cand.Score, id.opts.Threshold)
		return &Result{Status: StatusNoMatch, Confidence: cand.Score, Source: id.lookup.Name()}
	}
	return &Result{
		Status:      StatusMatched,
		Artist:      cand.Artist,
		Title:       cand.Title,
		Album:       cand.Album,
		Year:        cand.Year,
		Confidence:  cand.Score,
		Source:      id.lookup.Name(),
		RecordingID: cand.RecordingID,
	}
}

// lookupWithRetry retries transient failures with exponential backoff.
// A server-provided Retry-After wins over the computed delay.
func (id *Identifier) lookupWithRetry(ctx context.Context, fp Fingerprint) (*Candidate, error) {
	delay := id.opts.Backoff
	var lastErr error

	for attempt := 0; attempt <= id.opts.Retries; attempt++ {
		if attempt > 0 {
			wait := delay
			var te *TransientError
			if errors.As(lastErr, &te) && te.RetryAfter > wait {
				wait = te.RetryAfter
			}
			id.log.Debug("Retrying %s lookup in %s (attempt %d/%d)", id.lookup.Name(), wait, attempt+1, id.opts.Retries+1)
			if err := id.sleep(ctx, wait); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrLookup, err)
			}
			delay *= 2
		}

		actx, cancel := context.WithTimeout(ctx, id.opts.Timeout)
		cand, err := id.lookup.Lookup(actx, fp)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			return cand, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrLookup, ctx.Err())
		}

		lastErr = err
		if timedOut && !IsTransient(err) {
			lastErr = &TransientError{Err: err}
		}
		if !IsTransient(lastErr) {
			return nil, fmt.Errorf("%w: %v", ErrLookup, err)
		}
	}

	return nil, fmt.Errorf("%w: %d attempts: %v", ErrLookup, id.opts.Retries+1, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
