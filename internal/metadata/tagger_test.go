package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"go.senan.xyz/taglib"

	"stemprep/internal/audio"
	"stemprep/internal/audio/audiotest"
	"stemprep/internal/identify"
)

// createTestWAV writes a short 16-bit/48kHz tone.
func createTestWAV(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	audiotest.WriteSine(t, path, audio.TargetSampleRate, audio.TargetBitDepth, 2, 0.2, 440)
	return path
}

func taggedRecord() *Record {
	bpm := 121
	key := "G minor"
	return &Record{
		Identification: identify.Result{
			Status: identify.StatusMatched,
			Artist: "Daft Punk",
			Title:  "Around the World",
			Album:  "Homework",
			Year:   1997,
			Genre:  "House",
			Credits: identify.Credits{
				Composers: []string{"Thomas Bangalter", "Guy-Manuel de Homem-Christo"},
			},
		},
		Tempo: TempoField{Value: &bpm},
		Key:   KeyField{Value: &key},
	}
}

func TestWriteTags(t *testing.T) {
	path := createTestWAV(t, t.TempDir(), "tone.wav")

	if err := WriteTags(path, taggedRecord()); err != nil {
		t.Fatalf("WriteTags failed: %v", err)
	}

	tags, err := ReadTags(path)
	if err != nil {
		t.Fatalf("ReadTags failed: %v", err)
	}

	checks := map[string]string{
		taglib.Title:  "Around the World",
		taglib.Artist: "Daft Punk",
		taglib.Album:  "Homework",
		taglib.Date:   "1997",
		taglib.Genre:  "House",
		tagBPM:        "121",
		tagInitialKey: "Gm",
		tagComposer:   "Thomas Bangalter",
	}
	for key, want := range checks {
		if got := tags[key]; got != want {
			t.Errorf("tag %s = %q, want %q", key, got, want)
		}
	}
}

func TestWriteTagsKeepsAudio(t *testing.T) {
	path := createTestWAV(t, t.TempDir(), "tone.wav")
	before, err := audio.Checksum(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := WriteTags(path, taggedRecord()); err != nil {
		t.Fatal(err)
	}

	after, err := audio.Checksum(path)
	if err != nil {
		t.Fatalf("tagged file no longer decodes: %v", err)
	}
	if before != after {
		t.Error("tagging changed the PCM checksum")
	}
}

func TestWriteTagsUnidentified(t *testing.T) {
	path := createTestWAV(t, t.TempDir(), "tone.wav")
	bpm := 90
	rec := &Record{
		Identification: identify.Result{Status: identify.StatusNoMatch, Artist: "ignored"},
		Tempo:          TempoField{Value: &bpm},
	}

	if err := WriteTags(path, rec); err != nil {
		t.Fatal(err)
	}
	tags, err := ReadTags(path)
	if err != nil {
		t.Fatal(err)
	}
	if tags[taglib.Artist] != "" {
		t.Errorf("unmatched identity should not be tagged, got artist %q", tags[taglib.Artist])
	}
	if tags[tagBPM] != "90" {
		t.Errorf("BPM = %q", tags[tagBPM])
	}
}

func TestWriteTagsNothingToWrite(t *testing.T) {
	// No values means no file access at all.
	if err := WriteTags("/nonexistent/file.wav", &Record{}); err != nil {
		t.Errorf("expected nil error for empty record, got %v", err)
	}
}

func TestWriteTagsNonexistentFile(t *testing.T) {
	if err := WriteTags("/nonexistent/file.wav", taggedRecord()); err == nil {
		t.Error("expected error for nonexistent file")
	}
	if _, err := os.Stat("/nonexistent/file.wav"); err == nil {
		t.Error("file should not have been created")
	}
}
