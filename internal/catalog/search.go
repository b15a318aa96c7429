package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// SearchClient queries a STAC-style catalog search endpoint and returns raw
// scene candidates. The caller picks the composite itself, normally the first
// entry since results come back least-cloudy first.
type SearchClient struct {
	searchURL  string
	assetKey   string
	httpClient *http.Client
}

// NewSearchClient creates a search backend against a STAC item-search URL.
// assetKey names the downloadable asset inside each feature, e.g. "visual".
func NewSearchClient(searchURL, assetKey string) *SearchClient {
	return &SearchClient{
		searchURL:  searchURL,
		assetKey:   assetKey,
		httpClient: newHTTPClient(60 * time.Second),
	}
}

type stacSearchBody struct {
	Collections []string       `json:"collections"`
	BBox        [4]float64     `json:"bbox"`
	Datetime    string         `json:"datetime"`
	Limit       int            `json:"limit"`
	Query       map[string]any `json:"query,omitempty"`
}

type stacFeatureCollection struct {
	Features []struct {
		ID         string `json:"id"`
		Properties struct {
			Datetime   string  `json:"datetime"`
			CloudCover float64 `json:"eo:cloud_cover"`
		} `json:"properties"`
		Assets map[string]struct {
			Href string `json:"href"`
		} `json:"assets"`
	} `json:"features"`
}

// Search performs the item search. An empty result is a normal outcome for a
// slice, not an error.
func (c *SearchClient) Search(ctx context.Context, req SearchRequest) ([]Scene, error) {
	body := stacSearchBody{
		Collections: []string{req.Collection},
		BBox:        [4]float64{req.Area.West, req.Area.South, req.Area.East, req.Area.North},
		Datetime: fmt.Sprintf("%s/%s",
			req.Dates.Start.UTC().Format(time.RFC3339),
			req.Dates.End.UTC().Format(time.RFC3339)),
		Limit: 100,
		Query: map[string]any{
			"eo:cloud_cover": map[string]any{"lte": req.MaxCloudCover},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.searchURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog search failed with status: %d", resp.StatusCode)
	}

	var fc stacFeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	scenes := make([]Scene, 0, len(fc.Features))
	for _, f := range fc.Features {
		asset, ok := f.Assets[c.assetKey]
		if !ok {
			continue
		}
		acquired, err := time.Parse(time.RFC3339, f.Properties.Datetime)
		if err != nil {
			continue
		}
		// The server-side query already filters cloud cover, but older
		// deployments ignore the query extension. The ceiling is inclusive,
		// matching the processing backend's lte filter.
		if f.Properties.CloudCover > req.MaxCloudCover {
			continue
		}
		scenes = append(scenes, Scene{
			ID:         f.ID,
			AcquiredAt: acquired,
			CloudCover: f.Properties.CloudCover,
			Asset:      Asset{Method: http.MethodGet, URL: asset.Href},
		})
	}

	sort.Slice(scenes, func(i, j int) bool {
		if scenes[i].CloudCover != scenes[j].CloudCover {
			return scenes[i].CloudCover < scenes[j].CloudCover
		}
		return scenes[i].AcquiredAt.Before(scenes[j].AcquiredAt)
	})

	return scenes, nil
}
