package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"stemprep/internal/audio"
	"stemprep/internal/logger"
)

// Orchestrator fans out to every configured backend with its own deadline and
// joins before returning. The join never waits past the deadline.
type Orchestrator struct {
	backends   []Backend
	timeout    time.Duration
	confidence func(backend string) float64
	log        *logger.Logger
}

// NewOrchestrator creates an Orchestrator. confidence supplies the default
// confidence for backends that do not report one; nil means 1.0.
func NewOrchestrator(backends []Backend, timeout time.Duration, confidence func(string) float64, log *logger.Logger) *Orchestrator {
	if confidence == nil {
		confidence = func(string) float64 { return 1.0 }
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Orchestrator{
		backends:   backends,
		timeout:    timeout,
		confidence: confidence,
		log:        log,
	}
}

type outcome struct {
	result *Result
	err    error
	ran    bool
	reason string
}

// Extract runs the backends relevant to want concurrently. A backend that
// fails or times out becomes a BackendFailure; it never aborts the file.
func (o *Orchestrator) Extract(ctx context.Context, asset *audio.Asset, want Capabilities) *Observations {
	obs := &Observations{Requested: want}
	outcomes := make([]outcome, len(o.backends))

	var wg sync.WaitGroup
	for i, b := range o.backends {
		relevant := b.Capabilities().Intersect(want)
		if !relevant.Any() {
			outcomes[i] = outcome{reason: "not requested"}
			continue
		}
		if !b.Available() {
			outcomes[i] = outcome{reason: "not installed"}
			continue
		}
		obs.Offered.Tempo = obs.Offered.Tempo || relevant.Tempo
		obs.Offered.Key = obs.Offered.Key || relevant.Key
		obs.Offered.Qualitative = obs.Offered.Qualitative || relevant.Qualitative

		wg.Add(1)
		go func(i int, b Backend, relevant Capabilities) {
			defer wg.Done()
			res, err := o.run(ctx, b, asset, relevant)
			outcomes[i] = outcome{result: res, err: err, ran: true}
		}(i, b, relevant)
	}
	wg.Wait()

	for i, b := range o.backends {
		oc := outcomes[i]
		name := b.Name()
		if !oc.ran {
			obs.Skipped = append(obs.Skipped, SkippedBackend{Backend: name, Reason: oc.reason})
			continue
		}
		if oc.err != nil {
			o.log.Warn("%s: %v", name, oc.err)
			obs.Failures = append(obs.Failures, BackendFailure{Backend: name, Err: oc.err})
			continue
		}
		o.collect(obs, b, oc.result, want)
	}

	return obs
}

type backendRun struct {
	res *Result
	err error
}

// run invokes one backend under its own deadline, converting panics into
// errors. Once the deadline passes the backend is abandoned and whatever it
// returns later is dropped.
func (o *Orchestrator) run(ctx context.Context, b Backend, asset *audio.Asset, want Capabilities) (*Result, error) {
	bctx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	done := make(chan backendRun, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.log.Debug("%s panic: %v\n%s", b.Name(), r, debug.Stack())
				done <- backendRun{err: fmt.Errorf("%w: %s panicked: %v", ErrBackend, b.Name(), r)}
			}
		}()
		res, err := b.Analyze(bctx, asset, want)
		done <- backendRun{res: res, err: err}
	}()

	select {
	case a := <-done:
		o.log.Debug("%s finished in %s", b.Name(), time.Since(start).Round(time.Millisecond))
		if a.err != nil {
			if errors.Is(a.err, ErrBackend) {
				return nil, a.err
			}
			if errors.Is(bctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, o.timedOut(b)
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrBackend, b.Name(), a.err)
		}
		if a.res == nil {
			a.res = &Result{}
		}
		return a.res, nil
	case <-bctx.Done():
		if ctx.Err() == nil {
			o.log.Debug("%s abandoned after %s", b.Name(), o.timeout)
			return nil, o.timedOut(b)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrBackend, b.Name(), ctx.Err())
	}
}

func (o *Orchestrator) timedOut(b Backend) error {
	return fmt.Errorf("%w: %s timed out after %s", ErrBackend, b.Name(), o.timeout)
}

// collect appends the readings of one backend, keeping only requested metrics
// and sane values.
func (o *Orchestrator) collect(obs *Observations, b Backend, res *Result, want Capabilities) {
	name := b.Name()
	caps := b.Capabilities()

	if want.Tempo && caps.Tempo && res.Tempo != nil {
		if bpm := res.Tempo.BPM; bpm > 0 && !math.IsNaN(bpm) && !math.IsInf(bpm, 0) {
			obs.Tempo = append(obs.Tempo, TempoObservation{
				Backend:    name,
				BPM:        bpm,
				Confidence: o.resolveConfidence(name, res.Tempo.Confidence),
			})
		} else {
			o.log.Debug("%s: discarding invalid tempo %v", name, bpm)
		}
	}

	if want.Key && caps.Key && res.Key != nil {
		obs.Key = append(obs.Key, KeyObservation{
			Backend:    name,
			Key:        res.Key.Key,
			Confidence: o.resolveConfidence(name, res.Key.Confidence),
		})
	}

	if want.Qualitative && caps.Qualitative {
		for _, n := range sortedKeys(res.Qualitative) {
			obs.Qualitative = append(obs.Qualitative, Descriptor{Name: n, Value: res.Qualitative[n], Backend: name})
		}
	}
}

func (o *Orchestrator) resolveConfidence(backend string, c float64) float64 {
	if c < 0 || math.IsNaN(c) {
		c = o.confidence(backend)
	}
	return math.Max(0, math.Min(1, c))
}
