// Package spectral computes qualitative descriptors natively from the
// normalized PCM. It needs no external tools and is always available.
package spectral

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/stat"

	"stemprep/internal/analysis"
	"stemprep/internal/audio"
)

const (
	frameSize = 2048
	hopSize   = 1024
	// silenceRMS is about -80 dBFS; quieter frames are left out of the
	// dynamic range estimate.
	silenceRMS = 1e-4
)

// Backend derives energy, brightness and dynamic range from an STFT.
type Backend struct{}

func New() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "spectral" }

func (b *Backend) Capabilities() analysis.Capabilities {
	return analysis.Capabilities{Qualitative: true}
}

func (b *Backend) Available() bool { return true }

func (b *Backend) Analyze(ctx context.Context, asset *audio.Asset, want analysis.Capabilities) (*analysis.Result, error) {
	samples, rate, err := audio.LoadMono(asset.Path)
	if err != nil {
		return nil, err
	}

	d, err := describe(ctx, samples, rate)
	if err != nil {
		return nil, err
	}
	return &analysis.Result{Qualitative: d}, nil
}

// describe frames the signal, windows each frame and measures per-frame RMS
// and spectral centroid.
func describe(ctx context.Context, samples []float64, rate int) (map[string]any, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", rate)
	}
	if len(samples) < frameSize {
		return nil, fmt.Errorf("audio too short for spectral analysis (%d samples)", len(samples))
	}

	win := window.Hann(frameSize)
	frame := make([]float64, frameSize)
	binHz := float64(rate) / frameSize

	var rms, centroids, weights []float64
	for start := 0; start+frameSize <= len(samples); start += hopSize {
		if start%(hopSize*256) == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var energy float64
		for i := range frame {
			s := samples[start+i]
			energy += s * s
			frame[i] = s * win[i]
		}
		r := math.Sqrt(energy / frameSize)
		rms = append(rms, r)

		bins := fft.FFTReal(frame)
		var num, den float64
		for k := 1; k <= frameSize/2; k++ {
			mag := cmplx.Abs(bins[k])
			num += float64(k) * binHz * mag
			den += mag
		}
		if den > 0 {
			centroids = append(centroids, num/den)
			weights = append(weights, r)
		}
	}

	out := map[string]any{
		"energy": round(stat.Mean(rms, nil), 4),
	}
	if len(centroids) > 0 {
		out["brightness"] = round(stat.Mean(centroids, weights), 1)
	}
	if dr, ok := dynamicRange(rms); ok {
		out["dynamic_range_db"] = round(dr, 1)
	}
	return out, nil
}

// dynamicRange is the distance in dB between loud (95th percentile) and
// quiet (10th percentile) non-silent frames.
func dynamicRange(rms []float64) (float64, bool) {
	var audible []float64
	for _, r := range rms {
		if r > silenceRMS {
			audible = append(audible, r)
		}
	}
	if len(audible) < 2 {
		return 0, false
	}
	sort.Float64s(audible)
	lo := stat.Quantile(0.10, stat.Empirical, audible, nil)
	hi := stat.Quantile(0.95, stat.Empirical, audible, nil)
	return 20 * math.Log10(hi/lo), true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
