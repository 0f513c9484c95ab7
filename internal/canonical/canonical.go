// Package canonical builds and parses artist_songname_bpm_key.wav filenames.
package canonical

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"stemprep/internal/musickey"
)

// Unknown is the placeholder for any field that could not be determined:
// unidentified artist or title, absent tempo, absent key.
const Unknown = "unknown"

// Ext is the extension of canonical audio files.
const Ext = ".wav"

const maxFieldRunes = 64

// Name is a parsed or planned canonical filename.
type Name struct {
	Artist string
	Song   string
	// BPM is 0 when the tempo is absent.
	BPM int
	// Key is nil when the key is absent.
	Key *musickey.Key
	// Suffix is the collision counter; values below 2 mean no suffix.
	Suffix int
}

// New sanitizes the identity fields and returns the unsuffixed name.
func New(artist, song string, bpm int, key *musickey.Key) Name {
	if bpm < 0 {
		bpm = 0
	}
	return Name{Artist: Sanitize(artist), Song: Sanitize(song), BPM: bpm, Key: key}
}

// Base returns the name without collision suffix or extension.
func (n Name) Base() string {
	bpm := Unknown
	if n.BPM > 0 {
		bpm = strconv.Itoa(n.BPM)
	}
	key := Unknown
	if n.Key != nil {
		key = n.Key.FileToken()
	}
	return strings.Join([]string{field(n.Artist), field(n.Song), bpm, key}, "_")
}

// WithSuffix returns a copy of n carrying collision counter i.
func (n Name) WithSuffix(i int) Name {
	n.Suffix = i
	return n
}

// String returns the full filename, e.g. "daft_punk_around_the_world_121_gm_2.wav".
func (n Name) String() string {
	if n.Suffix >= 2 {
		return n.Base() + "_" + strconv.Itoa(n.Suffix) + Ext
	}
	return n.Base() + Ext
}

func field(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

var fold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Sanitize lowercases s, folds diacritics, turns whitespace runs into a single
// underscore and strips everything that is not a letter, digit or hyphen.
// An empty result becomes Unknown.
func Sanitize(s string) string {
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	sep := false
	count := 0
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-':
			if count >= maxFieldRunes {
				break
			}
			if sep && b.Len() > 0 {
				b.WriteByte('_')
				count++
			}
			sep = false
			b.WriteRune(r)
			count++
		case unicode.IsSpace(r) || r == '_':
			sep = true
		}
	}

	out := strings.Trim(b.String(), "-_")
	if out == "" {
		return Unknown
	}
	return out
}

// Parse recovers the fields of a canonical filename. The artist and song
// share an underscore-joined stem; the artist is taken to be its first token.
func Parse(filename string) (Name, error) {
	base := filepath.Base(filename)
	if !strings.EqualFold(filepath.Ext(base), Ext) {
		return Name{}, fmt.Errorf("%s: not a %s file", base, Ext)
	}
	tokens := strings.Split(base[:len(base)-len(Ext)], "_")
	for _, t := range tokens {
		if t == "" {
			return Name{}, fmt.Errorf("%s: empty field", base)
		}
	}

	var n Name
	if len(tokens) >= 5 && allDigits(tokens[len(tokens)-1]) {
		s, _ := strconv.Atoi(tokens[len(tokens)-1])
		if s < 2 {
			return Name{}, fmt.Errorf("%s: invalid collision suffix", base)
		}
		n.Suffix = s
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) < 4 {
		return Name{}, fmt.Errorf("%s: expected artist_song_bpm_key", base)
	}

	keyTok := tokens[len(tokens)-1]
	if keyTok != Unknown {
		k, err := musickey.ParseToken(keyTok)
		if err != nil {
			return Name{}, fmt.Errorf("%s: %w", base, err)
		}
		n.Key = &k
	}

	bpmTok := tokens[len(tokens)-2]
	if bpmTok != Unknown {
		if !allDigits(bpmTok) {
			return Name{}, fmt.Errorf("%s: invalid bpm %q", base, bpmTok)
		}
		bpm, err := strconv.Atoi(bpmTok)
		if err != nil || bpm <= 0 {
			return Name{}, fmt.Errorf("%s: invalid bpm %q", base, bpmTok)
		}
		n.BPM = bpm
	}

	stem := tokens[:len(tokens)-2]
	n.Artist = stem[0]
	n.Song = strings.Join(stem[1:], "_")
	return n, nil
}

// IsCanonical reports whether filename parses as a canonical name.
func IsCanonical(filename string) bool {
	_, err := Parse(filename)
	return err == nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
