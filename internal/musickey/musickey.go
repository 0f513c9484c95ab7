// Package musickey models the 24 major and minor keys and their textual forms.
package musickey

import (
	"fmt"
	"strings"
	"unicode"
)

// Mode is major or minor.
type Mode int

const (
	Major Mode = iota
	Minor
)

func (m Mode) String() string {
	if m == Minor {
		return "minor"
	}
	return "major"
}

// Key is one of the 24 tonal classes. Enharmonic spellings share a Key.
type Key struct {
	Tonic int // pitch class, 0 = C
	Mode  Mode
}

// Spellings follow common usage: flats for most major keys, sharps for the
// minor keys relative to sharp-side majors.
var (
	majorNames = [12]string{"C", "Db", "D", "Eb", "E", "F", "F#", "G", "Ab", "A", "Bb", "B"}
	minorNames = [12]string{"C", "C#", "D", "Eb", "E", "F", "F#", "G", "G#", "A", "Bb", "B"}
)

var letterPitch = map[byte]int{'c': 0, 'd': 2, 'e': 4, 'f': 5, 'g': 7, 'a': 9, 'b': 11}

// All returns the 24 keys, majors first.
func All() []Key {
	keys := make([]Key, 0, 24)
	for _, m := range []Mode{Major, Minor} {
		for t := 0; t < 12; t++ {
			keys = append(keys, Key{Tonic: t, Mode: m})
		}
	}
	return keys
}

// Name is the tonic spelling without mode, e.g. "F#".
func (k Key) Name() string {
	if k.Mode == Minor {
		return minorNames[k.Tonic]
	}
	return majorNames[k.Tonic]
}

// String returns the display form, e.g. "A minor".
func (k Key) String() string {
	return k.Name() + " " + k.Mode.String()
}

// Short returns the compact display form used in tags, e.g. "F#m".
func (k Key) Short() string {
	if k.Mode == Minor {
		return k.Name() + "m"
	}
	return k.Name()
}

// FileToken returns the compact filename form: lowercase letter, "s" for
// sharp, "b" for flat, "m" suffix for minor. "F# major" is "fs", "Bb minor" is "bbm".
func (k Key) FileToken() string {
	tok := strings.ToLower(strings.ReplaceAll(k.Name(), "#", "s"))
	if k.Mode == Minor {
		tok += "m"
	}
	return tok
}

// Parse accepts the forms emitted by analysis tools: "C major", "A minor",
// "Am", "F#m", "Bbmaj", "c# min", "Ebm", as well as file tokens like "fsm".
func Parse(s string) (Key, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return Key{}, fmt.Errorf("empty key")
	}
	s = strings.ReplaceAll(s, "♯", "#")
	s = strings.ReplaceAll(s, "♭", "b")

	base, ok := letterPitch[byte(unicode.ToLower(rune(s[0])))]
	if !ok {
		return Key{}, fmt.Errorf("invalid key %q", orig)
	}
	rest := s[1:]

	tonic := base
	if len(rest) > 0 {
		switch rest[0] {
		case '#', 's':
			tonic++
			rest = rest[1:]
		case 'b':
			tonic--
			rest = rest[1:]
		}
	}
	tonic = (tonic + 12) % 12

	mode, err := parseMode(rest)
	if err != nil {
		return Key{}, fmt.Errorf("invalid key %q: %w", orig, err)
	}
	return Key{Tonic: tonic, Mode: mode}, nil
}

func parseMode(rest string) (Mode, error) {
	r := strings.ToLower(strings.TrimSpace(rest))
	r = strings.TrimPrefix(r, "-")
	r = strings.TrimSpace(r)
	switch r {
	case "", "maj", "major", "dur":
		return Major, nil
	case "m", "min", "minor", "moll":
		return Minor, nil
	}
	return Major, fmt.Errorf("unknown mode %q", rest)
}

// ParseToken parses a filename token produced by FileToken.
func ParseToken(tok string) (Key, error) {
	if tok == "" || tok != strings.ToLower(tok) || strings.ContainsAny(tok, " #") {
		return Key{}, fmt.Errorf("invalid key token %q", tok)
	}
	if len(tok) > 3 {
		return Key{}, fmt.Errorf("invalid key token %q", tok)
	}
	k, err := Parse(tok)
	if err != nil {
		return Key{}, err
	}
	return k, nil
}
