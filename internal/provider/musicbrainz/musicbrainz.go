package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"stemprep/internal/identify"
)

// Client is a MusicBrainz Web API client that implements identify.Enricher.
type Client struct {
	httpClient  *http.Client
	apiURL      string
	userAgent   string
	mu          sync.Mutex
	lastRequest time.Time
}

// New creates a new MusicBrainz client.
func New(userAgent string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     "https://musicbrainz.org/ws/2",
		userAgent:  userAgent,
	}
}

func (c *Client) Name() string { return "musicbrainz" }

// Enrich fills album, year, genre and credits from the recording the result
// was matched to. Fields already set are kept.
func (c *Client) Enrich(ctx context.Context, r *identify.Result) error {
	if r == nil || r.RecordingID == "" {
		return nil
	}

	rec, err := c.Recording(ctx, r.RecordingID)
	if err != nil {
		return err
	}

	if r.Title == "" {
		r.Title = rec.Title
	}
	if r.Artist == "" {
		r.Artist = joinArtistCredits(rec.ArtistCredit)
	}

	if len(rec.Releases) > 0 {
		rel := pickBestRelease(rec.Releases)
		if r.Album == "" {
			r.Album = rel.Title
		}
		if r.Year == 0 {
			r.Year = parseYear(rel.Date)
		}
	}
	if r.Year == 0 {
		r.Year = parseYear(rec.FirstReleaseDate)
	}
	if r.Genre == "" {
		r.Genre = topGenre(rec.Genres)
	}
	if r.Credits.Empty() {
		r.Credits = extractCredits(rec)
	}

	return nil
}

// Recording fetches a recording by MBID with releases, genres and credits.
func (c *Client) Recording(ctx context.Context, mbid string) (*recording, error) {
	if err := c.rateLimit(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("inc", "artist-credits+releases+release-groups+genres+artist-rels+work-rels+work-level-rels")
	params.Set("fmt", "json")
	reqURL := fmt.Sprintf("%s/recording/%s?%s", c.apiURL, url.PathEscape(mbid), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create musicbrainz request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("musicbrainz recording request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("musicbrainz recording returned %d: %s", resp.StatusCode, body)
	}

	var rec recording
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode musicbrainz response: %w", err)
	}

	return &rec, nil
}

// rateLimit enforces MusicBrainz's 1 request/second limit.
func (c *Client) rateLimit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if wait := time.Second - time.Since(c.lastRequest); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	c.lastRequest = time.Now()
	return nil
}

// doWithRetry executes the request, retrying once on 429/503 after Retry-After.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		resp.Body.Close()
		retryAfter := 2
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if parsed, err := strconv.Atoi(ra); err == nil {
				retryAfter = parsed
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(retryAfter) * time.Second):
		}

		c.mu.Lock()
		c.lastRequest = time.Now()
		c.mu.Unlock()
		retry := req.Clone(ctx)
		return c.httpClient.Do(retry)
	}

	return resp, nil
}

func joinArtistCredits(credits []artistCredit) string {
	var b strings.Builder
	for i, ac := range credits {
		name := ac.Name
		if name == "" {
			name = ac.Artist.Name
		}
		b.WriteString(name)
		if i < len(credits)-1 {
			if ac.JoinPhrase != "" {
				b.WriteString(ac.JoinPhrase)
			} else {
				b.WriteString(", ")
			}
		}
	}
	return b.String()
}

// pickBestRelease selects the most representative release.
// Prefers: Official status, Album type, no secondary types (not Compilation), earliest date.
func pickBestRelease(releases []release) release {
	best := releases[0]
	bestScore := releaseScore(best)

	for _, rel := range releases[1:] {
		s := releaseScore(rel)
		if s > bestScore || (s == bestScore && rel.Date != "" && (best.Date == "" || rel.Date < best.Date)) {
			best = rel
			bestScore = s
		}
	}
	return best
}

func releaseScore(rel release) int {
	score := 0

	if rel.Status == "Official" {
		score += 4
	}

	if rel.ReleaseGroup.PrimaryType == "Album" {
		score += 2
	}

	if len(rel.ReleaseGroup.SecondaryTypes) == 0 {
		score += 1
	}

	return score
}

func parseYear(date string) int {
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil {
			return y
		}
	}
	return 0
}

// topGenre returns the most voted genre, alphabetical on ties.
func topGenre(genres []genre) string {
	if len(genres) == 0 {
		return ""
	}
	sorted := append([]genre(nil), genres...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Count != sorted[j].Count {
			return sorted[i].Count > sorted[j].Count
		}
		return sorted[i].Name < sorted[j].Name
	})
	return sorted[0].Name
}

// Relationship types mapped to credit roles.
var (
	composerRels = map[string]bool{"composer": true, "writer": true, "lyricist": true}
	producerRels = map[string]bool{"producer": true}
	engineerRels = map[string]bool{"engineer": true, "audio": true, "mix": true, "recording": true, "mastering": true, "sound": true}
)

// extractCredits collects producer and engineer relations from the recording
// and composer relations from the works it performs.
func extractCredits(rec *recording) identify.Credits {
	var credits identify.Credits
	for _, rel := range rec.Relations {
		switch {
		case rel.Artist != nil && producerRels[rel.Type]:
			credits.Producers = appendUnique(credits.Producers, rel.Artist.Name)
		case rel.Artist != nil && engineerRels[rel.Type]:
			credits.Engineers = appendUnique(credits.Engineers, rel.Artist.Name)
		case rel.Work != nil:
			for _, wrel := range rel.Work.Relations {
				if wrel.Artist != nil && composerRels[wrel.Type] {
					credits.Composers = appendUnique(credits.Composers, wrel.Artist.Name)
				}
			}
		}
	}
	return credits
}

func appendUnique(list []string, name string) []string {
	if name == "" {
		return list
	}
	for _, existing := range list {
		if existing == name {
			return list
		}
	}
	return append(list, name)
}

// MusicBrainz API response types

type recording struct {
	ID               string         `json:"id"`
	Title            string         `json:"title"`
	Length           int            `json:"length"`
	FirstReleaseDate string         `json:"first-release-date"`
	ArtistCredit     []artistCredit `json:"artist-credit"`
	Releases         []release      `json:"releases"`
	Genres           []genre        `json:"genres"`
	Relations        []relation     `json:"relations"`
}

type artistCredit struct {
	Name       string     `json:"name"`
	JoinPhrase string     `json:"joinphrase"`
	Artist     artistInfo `json:"artist"`
}

type artistInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type release struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Status       string       `json:"status"`
	Date         string       `json:"date"`
	ReleaseGroup releaseGroup `json:"release-group"`
}

type releaseGroup struct {
	PrimaryType    string   `json:"primary-type"`
	SecondaryTypes []string `json:"secondary-types"`
}

type genre struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type relation struct {
	Type   string      `json:"type"`
	Artist *artistInfo `json:"artist"`
	Work   *work       `json:"work"`
}

type work struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Relations []relation `json:"relations"`
}
