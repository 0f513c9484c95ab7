// Package audiotest writes synthetic WAV files for tests.
package audiotest

import (
	"math"
	"os"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteSine writes a sine tone of freq Hz lasting seconds to path.
func WriteSine(tb testing.TB, path string, rate, depth, chans int, seconds, freq float64) {
	tb.Helper()

	frames := int(float64(rate) * seconds)
	amp := float64(int64(1)<<(uint(depth)-1)-1) * 0.5
	data := make([]int, frames*chans)
	for i := 0; i < frames; i++ {
		v := amp * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
		for c := 0; c < chans; c++ {
			s := int(math.Round(v))
			if depth == 8 {
				s += 128
			}
			data[i*chans+c] = s
		}
	}

	write(tb, path, rate, depth, chans, data)
}

// WriteClicks writes a click track at bpm: a short full-scale burst on every beat.
func WriteClicks(tb testing.TB, path string, rate int, seconds, bpm float64) {
	tb.Helper()

	frames := int(float64(rate) * seconds)
	period := int(float64(rate) * 60 / bpm)
	burst := rate / 100
	data := make([]int, frames)
	for i := 0; i < frames; i++ {
		if i%period < burst {
			data[i] = int(20000 * math.Sin(2*math.Pi*1000*float64(i)/float64(rate)))
		}
	}

	write(tb, path, rate, 16, 1, data)
}

func write(tb testing.TB, path string, rate, depth, chans int, data []int) {
	tb.Helper()

	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, depth, chans, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: chans, SampleRate: rate},
		Data:           data,
		SourceBitDepth: depth,
	}
	if err := enc.Write(buf); err != nil {
		tb.Fatalf("encode %s: %v", path, err)
	}
	if err := enc.Close(); err != nil {
		tb.Fatalf("close encoder %s: %v", path, err)
	}
}
