package acoustid

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stemprep/internal/identify"
)

func newTestClient(url string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		apiURL:     url,
		apiKey:     "test-key",
		userAgent:  "stemprep-test",
	}
}

var fp = identify.Fingerprint{Duration: 212, Value: "AQADtE"}

func TestLookup_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if r.Form.Get("client") != "test-key" || r.Form.Get("fingerprint") != "AQADtE" || r.Form.Get("duration") != "212" {
			t.Errorf("unexpected form: %v", r.Form)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"status": "ok",
			"results": [
				{"id": "r-low", "score": 0.41, "recordings": [{"id": "rec-low", "title": "Other"}]},
				{"id": "r-empty", "score": 0.99},
				{"id": "r-best", "score": 0.93, "recordings": [{
					"id": "rec-1",
					"title": "Windowlicker",
					"artists": [{"id": "a1", "name": "Aphex Twin"}],
					"releasegroups": [
						{"id": "rg1", "title": "Windowlicker", "type": "Single"},
						{"id": "rg2", "title": "26 Mixes for Cash", "type": "Album", "secondarytypes": ["Compilation"]}
					]
				}]}
			]
		}`))
	}))
	defer srv.Close()

	cand, err := newTestClient(srv.URL).Lookup(context.Background(), fp)
	if err != nil {
		t.Fatalf("Lookup() error: %v", err)
	}
	if cand == nil {
		t.Fatal("expected candidate")
	}
	if cand.RecordingID != "rec-1" || cand.Score != 0.93 {
		t.Errorf("candidate = %+v", cand)
	}
	if cand.Artist != "Aphex Twin" || cand.Title != "Windowlicker" {
		t.Errorf("artist/title = %q/%q", cand.Artist, cand.Title)
	}
	if cand.Album != "26 Mixes for Cash" {
		t.Errorf("Album = %q", cand.Album)
	}
}

func TestLookup_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "ok", "results": []}`))
	}))
	defer srv.Close()

	cand, err := newTestClient(srv.URL).Lookup(context.Background(), fp)
	if err != nil || cand != nil {
		t.Errorf("Lookup() = %+v, %v, want clean no-match", cand, err)
	}
}

func TestLookup_RateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Lookup(context.Background(), fp)
	var te *identify.TransientError
	if !identify.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	if !errors.As(err, &te) || te.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %v, want 3s", te)
	}
}

func TestLookup_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Lookup(context.Background(), fp)
	if !identify.IsTransient(err) {
		t.Errorf("err = %v, want transient", err)
	}
}

func TestLookup_InvalidKeyIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status": "error", "error": {"code": 4, "message": "invalid API key"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Lookup(context.Background(), fp)
	if err == nil || identify.IsTransient(err) {
		t.Errorf("err = %v, want permanent error", err)
	}
}

func TestLookup_MissingKey(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	c.apiKey = ""
	if _, err := c.Lookup(context.Background(), fp); err == nil {
		t.Error("expected error without API key")
	}
}

func TestJoinArtists(t *testing.T) {
	got := joinArtists([]artist{{Name: "Daft Punk", JoinPhrase: " feat. "}, {Name: "Pharrell Williams"}})
	if got != "Daft Punk feat. Pharrell Williams" {
		t.Errorf("joinArtists() = %q", got)
	}
}
