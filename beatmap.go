package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// beatmapFetchTimeout bounds how long a lookup may take so a chat message
// or now-playing reply is never delayed by a slow upstream, matching
// linkpreview.go's short-timeout-with-graceful-degradation shape.
const beatmapFetchTimeout = 4 * time.Second

// HTTPBeatmapFetcher is the default BeatmapFetcher: a context-bound
// http.Client against a configurable base URL, decoding a small JSON shape
// instead of scraping OpenGraph tags since there is no beatmap HTML page to
// parse. Any network failure degrades to (nil, err) rather than blocking or
// panicking the caller — handlers.go's formatPPEstimates treats a failed
// lookup as "no data" rather than propagating an error packet.
type HTTPBeatmapFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBeatmapFetcher returns a fetcher pointed at baseURL (e.g.
// "https://osu.ppy.sh/api/v2/beatmaps"). Real PP calculation remains the
// external pipeline's job per spec §1 — this adapter only surfaces title,
// version, and star rating for now-playing embeds.
func NewHTTPBeatmapFetcher(baseURL string) *HTTPBeatmapFetcher {
	return &HTTPBeatmapFetcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: beatmapFetchTimeout},
	}
}

type beatmapAPIResponse struct {
	ID         int32   `json:"id"`
	MD5        string  `json:"checksum"`
	Title      string  `json:"title"`
	Version    string  `json:"version"`
	StarRating float64 `json:"difficulty_rating"`
}

func (f *HTTPBeatmapFetcher) BeatmapFromBID(ctx context.Context, id int32) (*BeatmapInfo, error) {
	return f.fetch(ctx, fmt.Sprintf("%s/%d", f.baseURL, id))
}

func (f *HTTPBeatmapFetcher) BeatmapFromMD5(ctx context.Context, md5 string) (*BeatmapInfo, error) {
	return f.fetch(ctx, fmt.Sprintf("%s?checksum=%s", f.baseURL, md5))
}

func (f *HTTPBeatmapFetcher) fetch(ctx context.Context, url string) (*BeatmapInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("beatmap fetch: unexpected status %d", resp.StatusCode)
	}

	var body beatmapAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode beatmap response: %w", err)
	}

	return &BeatmapInfo{
		ID:         body.ID,
		MD5:        body.MD5,
		Title:      body.Title,
		Version:    body.Version,
		StarRating: body.StarRating,
	}, nil
}

// estimatePP fabricates a monotonic PP curve from star rating alone,
// clearly a placeholder: real difficulty/PP calculation is out of scope
// per spec §1 and SPEC_FULL.md §4.11. The curve only needs to be
// order-preserving across the accuracy breakpoints the bot replies with.
func estimatePP(starRating, accuracy float64) float64 {
	if starRating <= 0 {
		starRating = 1
	}
	base := starRating * starRating * 8
	accFactor := (accuracy / 100) * (accuracy / 100) * (accuracy / 100)
	return base * accFactor
}
