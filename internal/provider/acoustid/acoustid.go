package acoustid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stemprep/internal/identify"
)

// Client is an AcoustID lookup client that implements identify.Lookup.
type Client struct {
	httpClient *http.Client
	apiURL     string
	apiKey     string
	userAgent  string
}

// New creates a new AcoustID client.
func New(apiKey, userAgent string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		apiURL:     "https://api.acoustid.org/v2/lookup",
		apiKey:     apiKey,
		userAgent:  userAgent,
	}
}

func (c *Client) Name() string { return "acoustid" }

// Lookup submits a fingerprint and returns the best scoring recording.
// Rate limiting, 5xx responses and network failures are transient.
func (c *Client) Lookup(ctx context.Context, fp identify.Fingerprint) (*identify.Candidate, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("acoustid API key is not configured")
	}

	form := url.Values{}
	form.Set("client", c.apiKey)
	form.Set("format", "json")
	form.Set("meta", "recordings releasegroups compress")
	form.Set("duration", strconv.Itoa(fp.Duration))
	form.Set("fingerprint", fp.Value)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create acoustid request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &identify.TransientError{Err: fmt.Errorf("acoustid request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &identify.TransientError{
			Err:        fmt.Errorf("acoustid returned %d: %s", resp.StatusCode, body),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	}

	var lookupResp lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&lookupResp); err != nil {
		return nil, fmt.Errorf("failed to decode acoustid response (status %d): %w", resp.StatusCode, err)
	}

	if lookupResp.Status != "ok" {
		msg := fmt.Sprintf("acoustid error %d: %s", lookupResp.Error.Code, lookupResp.Error.Message)
		if lookupResp.Error.Code == errCodeRateLimited || lookupResp.Error.Code == errCodeServiceUnavailable {
			return nil, &identify.TransientError{Err: fmt.Errorf("%s", msg)}
		}
		return nil, fmt.Errorf("%s", msg)
	}

	return bestCandidate(lookupResp.Results), nil
}

// AcoustID error codes that indicate a temporary condition.
const (
	errCodeServiceUnavailable = 5
	errCodeRateLimited        = 14
)

func retryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(h); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// bestCandidate picks the highest scoring result that carries recording
// metadata. Results without recordings are ignored.
func bestCandidate(results []result) *identify.Candidate {
	var best *identify.Candidate
	for _, res := range results {
		for _, rec := range res.Recordings {
			if rec.Title == "" {
				continue
			}
			if best != nil && res.Score <= best.Score {
				continue
			}
			best = &identify.Candidate{
				RecordingID: rec.ID,
				Score:       res.Score,
				Artist:      joinArtists(rec.Artists),
				Title:       rec.Title,
				Album:       pickAlbum(rec.ReleaseGroups),
			}
		}
	}
	return best
}

func joinArtists(artists []artist) string {
	var b strings.Builder
	for i, a := range artists {
		b.WriteString(a.Name)
		if i < len(artists)-1 {
			if a.JoinPhrase != "" {
				b.WriteString(a.JoinPhrase)
			} else {
				b.WriteString(", ")
			}
		}
	}
	return b.String()
}

// pickAlbum prefers an Album release group over singles and compilations.
func pickAlbum(groups []releaseGroup) string {
	for _, g := range groups {
		if g.Type == "Album" && len(g.SecondaryTypes) == 0 {
			return g.Title
		}
	}
	for _, g := range groups {
		if g.Type == "Album" {
			return g.Title
		}
	}
	if len(groups) > 0 {
		return groups[0].Title
	}
	return ""
}

// AcoustID API response types

type lookupResponse struct {
	Status  string   `json:"status"`
	Results []result `json:"results"`
	Error   apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type result struct {
	ID         string      `json:"id"`
	Score      float64     `json:"score"`
	Recordings []recording `json:"recordings"`
}

type recording struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Artists       []artist       `json:"artists"`
	ReleaseGroups []releaseGroup `json:"releasegroups"`
}

type artist struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	JoinPhrase string `json:"joinphrase"`
}

type releaseGroup struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Type           string   `json:"type"`
	SecondaryTypes []string `json:"secondarytypes"`
}
