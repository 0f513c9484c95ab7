package audio

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Target output format.
const (
	TargetSampleRate = 48000
	TargetBitDepth   = 16
)

// WAV format tags accepted as integer PCM.
const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

// Format describes the sample layout of a WAV file.
type Format struct {
	SampleRate  int
	BitDepth    int
	Channels    int
	AudioFormat int
}

func (f Format) String() string {
	return fmt.Sprintf("%d-bit/%dHz/%dch", f.BitDepth, f.SampleRate, f.Channels)
}

// Conforms reports whether f is integer PCM at the target depth and rate.
func (f Format) Conforms() bool {
	return (f.AudioFormat == formatPCM || f.AudioFormat == formatExtensible) &&
		f.BitDepth == TargetBitDepth && f.SampleRate == TargetSampleRate
}

// Asset is a normalized audio file owned by one file task. Path is the
// 16-bit/48kHz file to analyse and commit; it equals Source unless a
// conversion was needed, in which case it is a temporary file removed by Release.
type Asset struct {
	Source       string
	Path         string
	Duration     time.Duration
	Format       Format
	SourceFormat Format
	Checksum     string
	Converted    bool

	releaseOnce sync.Once
	release     func()
}

// Release removes any temporary file backing the asset. Safe to call more than once.
func (a *Asset) Release() {
	if a == nil {
		return
	}
	a.releaseOnce.Do(func() {
		if a.release != nil {
			a.release()
		}
	})
}

// Probe reads the header of a WAV file.
func Probe(path string) (Format, time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return Format{}, 0, fmt.Errorf("not a valid WAV file: %s", path)
	}

	format := Format{
		SampleRate:  int(d.SampleRate),
		BitDepth:    int(d.BitDepth),
		Channels:    int(d.NumChans),
		AudioFormat: int(d.WavAudioFormat),
	}

	dur, err := d.Duration()
	if err != nil {
		return format, 0, fmt.Errorf("failed to read duration of %s: %w", path, err)
	}

	return format, dur, nil
}

// Checksum hashes the PCM payload of a WAV file. Tag chunks are excluded so
// the value survives tagging.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if err := d.FwdToPCM(); err != nil {
		return "", fmt.Errorf("failed to locate PCM data in %s: %w", path, err)
	}
	if d.PCMChunk == nil {
		return "", fmt.Errorf("no PCM data in %s", path)
	}

	h := sha256.New()
	if _, err := io.CopyN(h, d.PCMChunk, int64(d.PCMChunk.Size)); err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReadBuffer decodes the full PCM content of a WAV file.
func ReadBuffer(path string) (*goaudio.IntBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file: %s", path)
	}
	if d.WavAudioFormat != formatPCM && d.WavAudioFormat != formatExtensible {
		return nil, fmt.Errorf("unsupported WAV encoding %d in %s", d.WavAudioFormat, path)
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if buf.SourceBitDepth == 0 {
		buf.SourceBitDepth = int(d.BitDepth)
	}
	return buf, nil
}

// LoadMono decodes a WAV file into mono samples in [-1, 1].
func LoadMono(path string) ([]float64, int, error) {
	buf, err := ReadBuffer(path)
	if err != nil {
		return nil, 0, err
	}

	chans := buf.Format.NumChannels
	if chans < 1 {
		chans = 1
	}
	frames := len(buf.Data) / chans
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < chans; c++ {
			sum += toUnit(buf.Data[i*chans+c], buf.SourceBitDepth)
		}
		out[i] = sum / float64(chans)
	}

	return out, buf.Format.SampleRate, nil
}

// toUnit scales an integer sample of the given depth to [-1, 1].
// 8-bit WAV samples are unsigned.
func toUnit(v, depth int) float64 {
	if depth == 8 {
		return float64(v-128) / 128
	}
	if depth < 2 || depth > 32 {
		depth = 16
	}
	return float64(v) / float64(int64(1)<<(uint(depth)-1))
}
