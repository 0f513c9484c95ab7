package musicbrainz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stemprep/internal/identify"
)

func newTestClient(url string) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		apiURL:      url,
		userAgent:   "stemprep-test/1.0",
		lastRequest: time.Now().Add(-2 * time.Second), // avoid rate limit in tests
	}
}

const recordingJSON = `{
	"id": "rec-1",
	"title": "Bohemian Rhapsody",
	"first-release-date": "1975-10-31",
	"artist-credit": [{"name": "Queen", "artist": {"id": "a1", "name": "Queen"}}],
	"releases": [
		{"id": "rel-2", "title": "Greatest Hits", "status": "Official", "date": "1981-10-26",
		 "release-group": {"primary-type": "Album", "secondary-types": ["Compilation"]}},
		{"id": "rel-1", "title": "A Night at the Opera", "status": "Official", "date": "1975-11-21",
		 "release-group": {"primary-type": "Album"}}
	],
	"genres": [{"name": "rock", "count": 12}, {"name": "progressive rock", "count": 12}, {"name": "pop", "count": 3}],
	"relations": [
		{"type": "producer", "artist": {"id": "p1", "name": "Roy Thomas Baker"}},
		{"type": "producer", "artist": {"id": "a1", "name": "Queen"}},
		{"type": "engineer", "artist": {"id": "e1", "name": "Mike Stone"}},
		{"type": "mix", "artist": {"id": "e1", "name": "Mike Stone"}},
		{"type": "performance", "work": {"id": "w1", "title": "Bohemian Rhapsody", "relations": [
			{"type": "composer", "artist": {"id": "fm", "name": "Freddie Mercury"}},
			{"type": "lyricist", "artist": {"id": "fm", "name": "Freddie Mercury"}}
		]}}
	]
}`

func TestEnrich_FillsMissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/recording/rec-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if !strings.Contains(r.URL.Query().Get("inc"), "work-level-rels") {
			t.Errorf("missing inc parameter: %s", r.URL.RawQuery)
		}
		if ua := r.Header.Get("User-Agent"); ua != "stemprep-test/1.0" {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(recordingJSON))
	}))
	defer srv.Close()

	res := &identify.Result{
		Status:      identify.StatusMatched,
		Artist:      "Queen",
		Title:       "Bohemian Rhapsody",
		RecordingID: "rec-1",
	}
	if err := newTestClient(srv.URL).Enrich(context.Background(), res); err != nil {
		t.Fatalf("Enrich() error: %v", err)
	}

	if res.Album != "A Night at the Opera" {
		t.Errorf("Album = %q, want %q", res.Album, "A Night at the Opera")
	}
	if res.Year != 1975 {
		t.Errorf("Year = %d, want 1975", res.Year)
	}
	if res.Genre != "progressive rock" {
		t.Errorf("Genre = %q, want alphabetical tie-break winner", res.Genre)
	}
	if len(res.Credits.Composers) != 1 || res.Credits.Composers[0] != "Freddie Mercury" {
		t.Errorf("Composers = %v", res.Credits.Composers)
	}
	if len(res.Credits.Producers) != 2 {
		t.Errorf("Producers = %v", res.Credits.Producers)
	}
	if len(res.Credits.Engineers) != 1 || res.Credits.Engineers[0] != "Mike Stone" {
		t.Errorf("Engineers = %v", res.Credits.Engineers)
	}
}

func TestEnrich_KeepsExistingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(recordingJSON))
	}))
	defer srv.Close()

	res := &identify.Result{RecordingID: "rec-1", Album: "Live Killers", Year: 1979}
	if err := newTestClient(srv.URL).Enrich(context.Background(), res); err != nil {
		t.Fatal(err)
	}
	if res.Album != "Live Killers" || res.Year != 1979 {
		t.Errorf("existing fields overwritten: %q %d", res.Album, res.Year)
	}
	if res.Artist != "Queen" || res.Title != "Bohemian Rhapsody" {
		t.Errorf("empty artist/title should be filled: %q/%q", res.Artist, res.Title)
	}
}

func TestEnrich_NoRecordingID(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	if err := c.Enrich(context.Background(), &identify.Result{}); err != nil {
		t.Errorf("Enrich() without id should be a no-op, got %v", err)
	}
}

func TestEnrich_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal error"))
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Enrich(context.Background(), &identify.Result{RecordingID: "x"})
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}

func TestRecording_RetryOn429(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "r1", "title": "Test"}`))
	}))
	defer srv.Close()

	rec, err := newTestClient(srv.URL).Recording(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Recording() error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls (1 retry), got %d", calls)
	}
	if rec.Title != "Test" {
		t.Errorf("Title = %q", rec.Title)
	}
}

func TestJoinArtistCredits(t *testing.T) {
	got := joinArtistCredits([]artistCredit{
		{Name: "Queen", JoinPhrase: " & ", Artist: artistInfo{Name: "Queen"}},
		{Artist: artistInfo{Name: "David Bowie"}},
	})
	if got != "Queen & David Bowie" {
		t.Errorf("joinArtistCredits() = %q", got)
	}
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"1975-10-31", 1975},
		{"2001", 2001},
		{"", 0},
		{"19", 0},
		{"abcd", 0},
	}
	for _, tt := range tests {
		if got := parseYear(tt.in); got != tt.want {
			t.Errorf("parseYear(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
