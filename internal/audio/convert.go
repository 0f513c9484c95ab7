package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"stemprep/pkg/utils"
)

// Converter rewrites src as 16-bit/48kHz PCM at dst.
type Converter interface {
	Name() string
	Convert(ctx context.Context, src, dst string) error
}

// NewConverter selects a converter by mode: "ffmpeg", "native", or "auto"
// (ffmpeg when installed, native otherwise).
func NewConverter(mode, ffmpegPath string) (Converter, error) {
	switch mode {
	case "ffmpeg":
		path := utils.LookupTool(ffmpegPath)
		if path == "" {
			return nil, fmt.Errorf("ffmpeg not found (%s)", ffmpegPath)
		}
		return &FFmpegConverter{Path: path}, nil
	case "native":
		return NativeConverter{}, nil
	case "auto", "":
		if path := utils.LookupTool(ffmpegPath); path != "" {
			return &FFmpegConverter{Path: path}, nil
		}
		return NativeConverter{}, nil
	}
	return nil, fmt.Errorf("unknown converter %q", mode)
}

// FFmpegConverter shells out to ffmpeg.
type FFmpegConverter struct {
	Path string
}

func (c *FFmpegConverter) Name() string { return "ffmpeg" }

func (c *FFmpegConverter) Convert(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(
		ctx,
		c.Path,
		"-y",
		"-v", "error",
		"-i", src,
		"-vn",
		"-map_metadata", "-1",
		"-ar", strconv.Itoa(TargetSampleRate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		dst,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg failed: %v (%s)", err, out)
	}
	return nil
}

// NativeConverter handles integer PCM WAV input in process: linear
// resampling and requantisation to 16 bits. It decodes the whole file into
// memory.
type NativeConverter struct{}

func (NativeConverter) Name() string { return "native" }

func (NativeConverter) Convert(ctx context.Context, src, dst string) error {
	in, err := ReadBuffer(src)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	chans := in.Format.NumChannels
	if chans < 1 {
		return fmt.Errorf("invalid channel count %d in %s", chans, src)
	}
	srcRate := in.Format.SampleRate
	if srcRate <= 0 {
		return fmt.Errorf("invalid sample rate %d in %s", srcRate, src)
	}

	frames := len(in.Data) / chans
	outFrames := frames
	if srcRate != TargetSampleRate {
		outFrames = int(math.Round(float64(frames) * TargetSampleRate / float64(srcRate)))
	}

	data := make([]int, outFrames*chans)
	step := float64(srcRate) / TargetSampleRate
	for i := 0; i < outFrames; i++ {
		if i%65536 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		pos := float64(i) * step
		j := int(pos)
		frac := pos - float64(j)
		for c := 0; c < chans; c++ {
			a := sampleAt(in.Data, chans, frames, j, c, in.SourceBitDepth)
			b := sampleAt(in.Data, chans, frames, j+1, c, in.SourceBitDepth)
			data[i*chans+c] = to16(a + (b-a)*frac)
		}
	}

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	enc := wav.NewEncoder(f, TargetSampleRate, TargetBitDepth, chans, formatPCM)
	out := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: chans, SampleRate: TargetSampleRate},
		Data:           data,
		SourceBitDepth: TargetBitDepth,
	}
	if err := enc.Write(out); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", dst, err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("failed to finalise %s: %w", dst, err)
	}
	return f.Close()
}

func sampleAt(data []int, chans, frames, frame, ch, depth int) float64 {
	if frame >= frames {
		frame = frames - 1
	}
	if frame < 0 {
		return 0
	}
	return toUnit(data[frame*chans+ch], depth)
}

func to16(v float64) int {
	s := math.Round(v * 32767)
	if s > 32767 {
		return 32767
	}
	if s < -32768 {
		return -32768
	}
	return int(s)
}
