package aubio

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"stemprep/internal/analysis"
	"stemprep/internal/audio"
	"stemprep/internal/audio/audiotest"
)

func TestParseTempo(t *testing.T) {
	tests := []struct {
		name     string
		out      string
		wantBPM  float64
		wantConf float64
		wantErr  bool
	}{
		{
			name:     "single reading",
			out:      "119.87 bpm\n",
			wantBPM:  119.87,
			wantConf: analysis.Unreported,
		},
		{
			name:     "series",
			out:      "120.00 bpm\n120.50 bpm\n60.10 bpm\n119.90 bpm\n",
			wantBPM:  119.95,
			wantConf: 0.75,
		},
		{
			name:    "no readings",
			out:     "warning: could not open file\n",
			wantErr: true,
		},
		{
			name:     "upper case unit",
			out:      "  98.2 BPM",
			wantBPM:  98.2,
			wantConf: analysis.Unreported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTempo([]byte(tt.out))
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseTempo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := got.BPM - tt.wantBPM; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("BPM = %v, want %v", got.BPM, tt.wantBPM)
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("Confidence = %v, want %v", got.Confidence, tt.wantConf)
			}
		})
	}
}

func TestUnavailable(t *testing.T) {
	b := New("/nonexistent/aubio")
	if b.Available() {
		t.Error("missing binary should be unavailable")
	}
	if !b.Capabilities().Tempo || b.Capabilities().Key {
		t.Errorf("Capabilities = %+v", b.Capabilities())
	}
}

func TestAnalyzeClickTrack(t *testing.T) {
	b := New("aubio")
	if !b.Available() {
		t.Skip("aubio not installed")
	}

	path := filepath.Join(t.TempDir(), "clicks.wav")
	audiotest.WriteClicks(t, path, 48000, 10, 120)

	res, err := b.Analyze(context.Background(), &audio.Asset{Path: path}, b.Capabilities())
	if err != nil {
		t.Fatalf("Analyze() error: %v", err)
	}
	if res.Tempo == nil {
		t.Fatal("no tempo estimate")
	}
	// aubio may lock onto the half or double tempo
	bpm := res.Tempo.BPM
	for _, f := range []float64{1, 2, 0.5} {
		if math.Abs(bpm*f-120) <= 3 {
			return
		}
	}
	t.Errorf("BPM = %.2f, want about 120 or an octave of it", bpm)
}
