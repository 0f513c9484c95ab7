package itunes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"stemprep/internal/identify"
)

// Client is an iTunes Search API client that implements identify.Enricher.
// It fills genre, year and album when an earlier enricher left them empty.
type Client struct {
	httpClient *http.Client
	apiURL     string
	userAgent  string
}

// New creates a new iTunes client.
func New(userAgent string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiURL:     "https://itunes.apple.com/search",
		userAgent:  userAgent,
	}
}

func (c *Client) Name() string { return "itunes" }

// Enrich searches by artist and title and copies missing fields from the
// first result whose artist and title match.
func (c *Client) Enrich(ctx context.Context, r *identify.Result) error {
	if r == nil || r.Artist == "" || r.Title == "" {
		return nil
	}
	if r.Genre != "" && r.Year != 0 && r.Album != "" {
		return nil
	}

	items, err := c.search(ctx, r.Title+" "+r.Artist)
	if err != nil {
		return err
	}

	for _, item := range items {
		if !sameName(item.ArtistName, r.Artist) || !sameName(item.TrackName, r.Title) {
			continue
		}
		if r.Genre == "" {
			r.Genre = item.PrimaryGenreName
		}
		if r.Year == 0 && len(item.ReleaseDate) >= 4 {
			fmt.Sscanf(item.ReleaseDate[:4], "%d", &r.Year)
		}
		if r.Album == "" {
			r.Album = item.CollectionName
		}
		return nil
	}

	return nil
}

func (c *Client) search(ctx context.Context, term string) ([]resultItem, error) {
	params := url.Values{}
	params.Set("term", term)
	params.Set("media", "music")
	params.Set("entity", "song")
	params.Set("limit", "5")

	reqURL := fmt.Sprintf("%s?%s", c.apiURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create itunes request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("itunes search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("itunes search returned %d: %s", resp.StatusCode, body)
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode itunes response: %w", err)
	}

	return searchResp.Results, nil
}

// sameName compares names ignoring case, punctuation and spacing, so
// "The Weeknd" matches "the weeknd" and "AC/DC" matches "ACDC".
func sameName(a, b string) bool {
	return compact(a) == compact(b) && compact(a) != ""
}

func compact(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// iTunes Search API response types

type searchResponse struct {
	ResultCount int          `json:"resultCount"`
	Results     []resultItem `json:"results"`
}

type resultItem struct {
	TrackName        string `json:"trackName"`
	ArtistName       string `json:"artistName"`
	CollectionName   string `json:"collectionName"`
	PrimaryGenreName string `json:"primaryGenreName"`
	ReleaseDate      string `json:"releaseDate"`
}
