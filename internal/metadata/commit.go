package metadata

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"stemprep/internal/audio"
	"stemprep/internal/logger"
	"stemprep/pkg/utils"
)

var (
	// ErrCommitIO means the WAV and sidecar could not be placed together. The
	// original is untouched and no sidecar exists under the final name.
	ErrCommitIO = errors.New("commit failed")
	// ErrCollisionExhausted means every collision suffix was taken.
	ErrCollisionExhausted = errors.New("naming collisions exhausted")
)

// Committer places finished files in the output directory.
type Committer struct {
	OutputDir     string
	KeepOriginals bool
	Log           *logger.Logger
}

func NewCommitter(outputDir string, keepOriginals bool, log *logger.Logger) *Committer {
	if log == nil {
		log = logger.Discard()
	}
	return &Committer{OutputDir: outputDir, KeepOriginals: keepOriginals, Log: log}
}

// Staged is a tagged copy of the normalized audio waiting, under a hidden
// temporary name, in the output directory.
type Staged struct {
	c      *Committer
	source string
	tmp    string
	done   bool
}

func (c *Committer) tempPath(ext string) string {
	return filepath.Join(c.OutputDir, utils.TempPrefix+uuid.NewString()+".tmp"+ext)
}

// Stage copies the asset into the output directory and tags the copy.
// Tagging failures are logged, not fatal.
func (c *Committer) Stage(asset *audio.Asset, rec *Record) (*Staged, error) {
	tmp := c.tempPath(".wav")
	if err := utils.CopyFile(asset.Path, tmp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommitIO, err)
	}
	if err := WriteTags(tmp, rec); err != nil {
		c.Log.Warn("%v", err)
	}
	return &Staged{c: c, source: asset.Source, tmp: tmp}, nil
}

// Discard removes the staged copy if it was never finalized.
func (s *Staged) Discard() {
	if !s.done {
		os.Remove(s.tmp)
	}
}

// Finalize moves the staged WAV to final and writes rec beside it. Either both
// files appear under the final name or neither does; a file already at final
// (a reprocessed original) is restored on failure.
func (s *Staged) Finalize(final string, rec *Record) error {
	rec.Processing.Filename = filepath.Base(final)
	data, err := Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCommitIO, err)
	}

	sideTmp := s.c.tempPath(".json")
	if err := os.WriteFile(sideTmp, data, 0644); err != nil {
		os.Remove(sideTmp)
		return fmt.Errorf("%w: failed to write sidecar: %v", ErrCommitIO, err)
	}

	var backup string
	if _, err := os.Lstat(final); err == nil {
		backup = s.c.tempPath(".wav")
		if err := os.Rename(final, backup); err != nil {
			os.Remove(sideTmp)
			return fmt.Errorf("%w: failed to set aside %s: %v", ErrCommitIO, final, err)
		}
	}
	restore := func() {
		if backup != "" {
			if err := os.Rename(backup, final); err != nil {
				s.c.Log.Error("Failed to restore %s from %s: %v", final, backup, err)
			}
		}
	}

	if err := os.Rename(s.tmp, final); err != nil {
		os.Remove(sideTmp)
		restore()
		return fmt.Errorf("%w: failed to place %s: %v", ErrCommitIO, filepath.Base(final), err)
	}

	sidecar := SidecarPath(final)
	if err := os.Rename(sideTmp, sidecar); err != nil {
		// Roll the WAV back so no unpaired output remains.
		if rbErr := os.Rename(final, s.tmp); rbErr != nil {
			os.Remove(final)
		}
		os.Remove(sideTmp)
		restore()
		return fmt.Errorf("%w: failed to place sidecar: %v", ErrCommitIO, err)
	}
	s.done = true

	if backup != "" {
		os.Remove(backup)
	}

	s.c.removeOriginal(s.source, final, sidecar)
	return nil
}

// removeOriginal deletes the source file and its old sidecar in move mode.
// The output is already committed, so failures only warrant a warning.
func (c *Committer) removeOriginal(source, final, sidecar string) {
	if c.KeepOriginals || source == "" || filepath.Clean(source) == filepath.Clean(final) {
		return
	}

	if err := os.Remove(source); err != nil && !os.IsNotExist(err) {
		c.Log.Warn("Failed to remove original %s: %v", source, err)
		return
	}

	old := SidecarPath(source)
	if filepath.Clean(old) == filepath.Clean(sidecar) {
		return
	}
	if rec, err := ReadSidecar(old); err == nil && rec.Processing.Checksum != "" {
		if err := os.Remove(old); err != nil {
			c.Log.Warn("Failed to remove stale sidecar %s: %v", old, err)
		}
	}
}

// CleanStale removes temporary files left in dir by an interrupted run.
func CleanStale(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, utils.TempPrefix+"*.tmp.*"))
	if err != nil {
		return 0, err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return 0, fmt.Errorf("failed to remove stale %s: %w", m, err)
		}
	}
	return len(matches), nil
}
