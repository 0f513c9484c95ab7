package metadata

import (
	"fmt"
	"strconv"
	"strings"

	"go.senan.xyz/taglib"

	"stemprep/internal/musickey"
)

// Tag names without a taglib constant.
const (
	tagBPM        = "BPM"
	tagInitialKey = "INITIALKEY"
	tagComposer   = "COMPOSER"
)

// WriteTags embeds the identity and consensus values of rec into the WAV at
// path. Absent values are left untagged.
func WriteTags(path string, rec *Record) error {
	tags := make(map[string][]string)

	if id := rec.Identification; id.Matched() {
		if id.Title != "" {
			tags[taglib.Title] = []string{id.Title}
		}
		if id.Artist != "" {
			tags[taglib.Artist] = []string{id.Artist}
		}
		if id.Album != "" {
			tags[taglib.Album] = []string{id.Album}
		}
		if id.Year > 0 {
			tags[taglib.Date] = []string{strconv.Itoa(id.Year)}
		}
		if id.Genre != "" {
			tags[taglib.Genre] = []string{id.Genre}
		}
		if len(id.Credits.Composers) > 0 {
			tags[tagComposer] = id.Credits.Composers
		}
	}

	if rec.Tempo.Value != nil {
		tags[tagBPM] = []string{strconv.Itoa(*rec.Tempo.Value)}
	}
	if rec.Key.Value != nil {
		if k, err := musickey.Parse(*rec.Key.Value); err == nil {
			tags[tagInitialKey] = []string{k.Short()}
		}
	}

	if len(tags) == 0 {
		return nil
	}
	if err := taglib.WriteTags(path, tags, 0); err != nil {
		return fmt.Errorf("failed to write tags to %s: %w", path, err)
	}
	return nil
}

// ReadTags returns the first value of each tag in the file at path.
func ReadTags(path string) (map[string]string, error) {
	tags, err := taglib.ReadTags(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags from %s: %w", path, err)
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if len(v) > 0 {
			out[strings.ToUpper(k)] = v[0]
		}
	}
	return out, nil
}
