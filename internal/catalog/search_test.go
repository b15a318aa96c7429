package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satwatch/internal/geo"
)

func testRequest() SearchRequest {
	return SearchRequest{
		Collection:    "SENTINEL2_L2A",
		Area:          geo.BoundingBox{West: -74.1, South: 4.5, East: -74.0, North: 4.6},
		Dates:         SliceRange(2025, time.January, 28),
		MaxCloudCover: 50,
	}
}

func stacFeature(id, datetime string, cloud float64) map[string]any {
	return map[string]any{
		"id": id,
		"properties": map[string]any{
			"datetime":       datetime,
			"eo:cloud_cover": cloud,
		},
		"assets": map[string]any{
			"visual": map[string]any{"href": "https://catalog.example/" + id + ".tiff"},
		},
	}
}

func TestSearchClientOrdersByCloudThenTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		var body stacSearchBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"SENTINEL2_L2A"}, body.Collections)
		assert.Equal(t, -74.1, body.BBox[0])

		json.NewEncoder(w).Encode(map[string]any{
			"features": []map[string]any{
				stacFeature("late-clear", "2025-01-20T15:30:00Z", 4.0),
				stacFeature("cloudy", "2025-01-05T15:30:00Z", 31.5),
				stacFeature("early-clear", "2025-01-03T15:30:00Z", 4.0),
			},
		})
	}))
	defer srv.Close()

	client := NewSearchClient(srv.URL, "visual")
	scenes, err := client.Search(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, scenes, 3)
	assert.Equal(t, "early-clear", scenes[0].ID)
	assert.Equal(t, "late-clear", scenes[1].ID)
	assert.Equal(t, "cloudy", scenes[2].ID)
	assert.Equal(t, http.MethodGet, scenes[0].Asset.Method)
	assert.Equal(t, "https://catalog.example/early-clear.tiff", scenes[0].Asset.URL)
}

func TestSearchClientEmptyResultIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"features": []map[string]any{}})
	}))
	defer srv.Close()

	client := NewSearchClient(srv.URL, "visual")
	scenes, err := client.Search(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Empty(t, scenes)
}

func TestSearchClientFiltersCloudCeilingClientSide(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body stacSearchBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"lte": 50.0}, body.Query["eo:cloud_cover"])

		json.NewEncoder(w).Encode(map[string]any{
			"features": []map[string]any{
				stacFeature("overcast", "2025-01-10T15:30:00Z", 92.0),
				stacFeature("at-ceiling", "2025-01-11T15:30:00Z", 50.0),
				stacFeature("clear", "2025-01-12T15:30:00Z", 8.0),
			},
		})
	}))
	defer srv.Close()

	client := NewSearchClient(srv.URL, "visual")
	scenes, err := client.Search(context.Background(), testRequest())
	require.NoError(t, err)

	// The ceiling is inclusive on both backends; only the overcast scene drops.
	require.Len(t, scenes, 2)
	assert.Equal(t, "clear", scenes[0].ID)
	assert.Equal(t, "at-ceiling", scenes[1].ID)
}

func TestSearchClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewSearchClient(srv.URL, "visual")
	_, err := client.Search(context.Background(), testRequest())
	assert.Error(t, err)
}

func TestProcessingClientReturnsSingleComposite(t *testing.T) {
	client := NewProcessingClient("https://openeo.example/result", []string{"B02", "B03", "B04", "B08"}, "SCL")

	scenes, err := client.Search(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, scenes, 1)

	scene := scenes[0]
	assert.Equal(t, 0.0, scene.CloudCover)
	assert.Equal(t, http.MethodPost, scene.Asset.Method)
	assert.Equal(t, "https://openeo.example/result", scene.Asset.URL)
	assert.Equal(t, "application/json", scene.Asset.ContentType)

	var graph map[string]any
	require.NoError(t, json.Unmarshal(scene.Asset.Body, &graph))
	pg := graph["process_graph"].(map[string]any)
	load := pg["load"].(map[string]any)["arguments"].(map[string]any)
	assert.Equal(t, "SENTINEL2_L2A", load["id"])
	assert.ElementsMatch(t, []any{"B02", "B03", "B04", "B08", "SCL"}, load["bands"])
	assert.Contains(t, pg, "mask")
	assert.Contains(t, pg, "reduce")
	assert.Contains(t, pg, "save")
}

func TestSliceRange(t *testing.T) {
	r := SliceRange(2025, time.April, 28)
	assert.Equal(t, time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, 28, r.End.Day())
	assert.Equal(t, time.April, r.End.Month())
}
