package audio

import (
	"context"
	"errors"
	"fmt"
	"os"

	"stemprep/internal/logger"
)

// ErrFormatConversion marks a file that is unreadable or cannot be brought to
// the target format. It is fatal for that file only.
var ErrFormatConversion = errors.New("format conversion failed")

// Normalizer guarantees 16-bit/48kHz PCM input for the rest of the pipeline.
type Normalizer struct {
	Converter Converter
	// TempDir holds converted files; empty means the system temp dir.
	TempDir string
	Log     *logger.Logger
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(conv Converter, tempDir string, log *logger.Logger) *Normalizer {
	if log == nil {
		log = logger.Discard()
	}
	return &Normalizer{Converter: conv, TempDir: tempDir, Log: log}
}

// Normalize probes path and converts it when needed. The caller must Release
// the returned asset. On error no temporary file remains.
func (n *Normalizer) Normalize(ctx context.Context, path string) (*Asset, error) {
	srcFormat, dur, err := Probe(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormatConversion, err)
	}

	asset := &Asset{
		Source:       path,
		Path:         path,
		Duration:     dur,
		Format:       srcFormat,
		SourceFormat: srcFormat,
	}

	if !srcFormat.Conforms() {
		if n.Converter == nil {
			return nil, fmt.Errorf("%w: %s is %s and no converter is configured", ErrFormatConversion, path, srcFormat)
		}

		tmp, err := os.CreateTemp(n.TempDir, "stemprep-*.wav")
		if err != nil {
			return nil, fmt.Errorf("%w: failed to create temp file: %v", ErrFormatConversion, err)
		}
		tmpPath := tmp.Name()
		tmp.Close()

		ok := false
		defer func() {
			if !ok {
				os.Remove(tmpPath)
			}
		}()

		n.Log.Debug("Converting %s from %s with %s", path, srcFormat, n.Converter.Name())
		if err := n.Converter.Convert(ctx, path, tmpPath); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFormatConversion, err)
		}

		format, dur, err := Probe(tmpPath)
		if err != nil {
			return nil, fmt.Errorf("%w: converted output unreadable: %v", ErrFormatConversion, err)
		}
		if !format.Conforms() {
			return nil, fmt.Errorf("%w: converted output is %s", ErrFormatConversion, format)
		}

		asset.Path = tmpPath
		asset.Format = format
		asset.Duration = dur
		asset.Converted = true
		asset.release = func() { os.Remove(tmpPath) }
		ok = true
	}

	sum, err := Checksum(asset.Path)
	if err != nil {
		asset.Release()
		return nil, fmt.Errorf("%w: %v", ErrFormatConversion, err)
	}
	asset.Checksum = sum

	return asset, nil
}
