package canonical

import (
	"testing"

	"stemprep/internal/musickey"
)

func key(tonic int, mode musickey.Mode) *musickey.Key {
	return &musickey.Key{Tonic: tonic, Mode: mode}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Daft Punk", "daft_punk"},
		{"  Around   the\tWorld ", "around_the_world"},
		{"Beyoncé", "beyonce"},
		{"Sigur Rós", "sigur_ros"},
		{"AC/DC", "acdc"},
		{"Simon & Garfunkel", "simon_garfunkel"},
		{"Guns N' Roses", "guns_n_roses"},
		{"What's Up? (Remix)", "whats_up_remix"},
		{"../../etc/passwd", "etcpasswd"},
		{"a:b*c|d<e>f\"g", "abcdefg"},
		{"Jay-Z", "jay-z"},
		{"--leading", "leading"},
		{"", Unknown},
		{"!!!", Unknown},
		{"under_score", "under_score"},
	}

	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "x"
	}
	if got := Sanitize(long); len(got) != maxFieldRunes {
		t.Errorf("len(Sanitize(long)) = %d, want %d", len(got), maxFieldRunes)
	}
}

func TestNameString(t *testing.T) {
	tests := []struct {
		name Name
		want string
	}{
		{New("Daft Punk", "Around the World", 121, key(7, musickey.Minor)), "daft_punk_around_the_world_121_gm.wav"},
		{New("", "", 120, key(0, musickey.Major)), "unknown_unknown_120_c.wav"},
		{New("", "", 120, key(0, musickey.Major)).WithSuffix(2), "unknown_unknown_120_c_2.wav"},
		{New("Artist", "Song", 0, nil), "artist_song_unknown_unknown.wav"},
		{New("A", "B", 90, key(6, musickey.Major)), "a_b_90_fs.wav"},
		{New("A", "B", 90, key(10, musickey.Minor)), "a_b_90_bbm.wav"},
		{New("A", "B", 90, nil).WithSuffix(1), "a_b_90_unknown.wav"},
	}

	for _, tt := range tests {
		if got := tt.name.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Name
		wantErr bool
	}{
		{in: "daft_punk_around_the_world_121_gm.wav", want: Name{Artist: "daft", Song: "punk_around_the_world", BPM: 121, Key: key(7, musickey.Minor)}},
		{in: "unknown_unknown_120_c_2.wav", want: Name{Artist: Unknown, Song: Unknown, BPM: 120, Key: key(0, musickey.Major), Suffix: 2}},
		{in: "/out/dir/artist_song_unknown_unknown.WAV", want: Name{Artist: "artist", Song: "song"}},
		{in: "prince_1999_120_fsm_13.wav", want: Name{Artist: "prince", Song: "1999", BPM: 120, Key: key(6, musickey.Minor), Suffix: 13}},
		{in: "artist_song_120_c.mp3", wantErr: true},
		{in: "my track.wav", wantErr: true},
		{in: "artist_song_live_at.wav", wantErr: true},
		{in: "artist_song_fast_c.wav", wantErr: true},
		{in: "artist_song_120_c_1.wav", wantErr: true},
		{in: "artist__120_c.wav", wantErr: true},
		{in: "song_120_c.wav", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Artist != tt.want.Artist || got.Song != tt.want.Song || got.BPM != tt.want.BPM || got.Suffix != tt.want.Suffix {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
			if (got.Key == nil) != (tt.want.Key == nil) || (got.Key != nil && *got.Key != *tt.want.Key) {
				t.Errorf("Key = %v, want %v", got.Key, tt.want.Key)
			}
		})
	}
}

func TestParseRoundTripsBase(t *testing.T) {
	n := New("Artist", "Song", 128, key(3, musickey.Major)).WithSuffix(4)
	got, err := Parse(n.String())
	if err != nil {
		t.Fatal(err)
	}
	if got.Base() != n.Base() || got.Suffix != 4 {
		t.Errorf("Parse(%q) = %+v", n.String(), got)
	}
}
