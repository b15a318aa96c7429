package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ProcessingClient targets a processing-graph service: instead of listing raw
// scenes it submits a cloud-masking + temporal-median expression and the
// service answers each request with one ready composite. Search therefore
// returns exactly one synthetic scene whose asset executes the graph.
type ProcessingClient struct {
	resultURL string
	bands     []string
	sclBand   string
}

// NewProcessingClient creates a processing-graph backend. resultURL is the
// synchronous execution endpoint; bands are the spectral bands to load,
// sclBand the scene-classification band used for cloud masking.
func NewProcessingClient(resultURL string, bands []string, sclBand string) *ProcessingClient {
	return &ProcessingClient{
		resultURL: resultURL,
		bands:     bands,
		sclBand:   sclBand,
	}
}

// Search builds the composite request for the slice. No remote call happens
// here; the downloader executes the returned asset. The composite is reported
// cloud-free since the graph masks clouds before the median reduction.
func (c *ProcessingClient) Search(ctx context.Context, req SearchRequest) ([]Scene, error) {
	graph, err := c.buildGraph(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build process graph: %w", err)
	}

	return []Scene{{
		ID:         fmt.Sprintf("composite_%s_%s", req.Collection, req.Dates.Start.Format("2006_01")),
		AcquiredAt: req.Dates.Start,
		CloudCover: 0,
		Asset: Asset{
			Method:      http.MethodPost,
			URL:         c.resultURL,
			Body:        graph,
			ContentType: "application/json",
		},
	}}, nil
}

// buildGraph assembles the openEO-style process graph: load the collection
// over the slice extent, dilate-mask clouds via the classification band,
// reduce the time dimension by median, scale to reflectance, save as GTiff.
func (c *ProcessingClient) buildGraph(req SearchRequest) ([]byte, error) {
	bands := append(append([]string{}, c.bands...), c.sclBand)

	graph := map[string]any{
		"process_graph": map[string]any{
			"load": map[string]any{
				"process_id": "load_collection",
				"arguments": map[string]any{
					"id": req.Collection,
					"spatial_extent": map[string]float64{
						"west":  req.Area.West,
						"south": req.Area.South,
						"east":  req.Area.East,
						"north": req.Area.North,
					},
					"temporal_extent": []string{
						req.Dates.Start.Format("2006-01-02"),
						req.Dates.End.Format("2006-01-02"),
					},
					"bands": bands,
					"properties": map[string]any{
						"eo:cloud_cover": map[string]any{
							"process_graph": map[string]any{
								"cc": map[string]any{
									"process_id": "lte",
									"arguments": map[string]any{
										"x": map[string]string{"from_parameter": "value"},
										"y": req.MaxCloudCover,
									},
									"result": true,
								},
							},
						},
					},
				},
			},
			"mask": map[string]any{
				"process_id": "mask_scl_dilation",
				"arguments": map[string]any{
					"data":          map[string]string{"from_node": "load"},
					"scl_band_name": c.sclBand,
				},
			},
			"reduce": map[string]any{
				"process_id": "reduce_dimension",
				"arguments": map[string]any{
					"data":      map[string]string{"from_node": "mask"},
					"dimension": "t",
					"reducer": map[string]any{
						"process_graph": map[string]any{
							"median": map[string]any{
								"process_id": "median",
								"arguments": map[string]any{
									"data": map[string]string{"from_parameter": "data"},
								},
								"result": true,
							},
						},
					},
				},
			},
			"scale": map[string]any{
				"process_id": "apply",
				"arguments": map[string]any{
					"data": map[string]string{"from_node": "reduce"},
					"process": map[string]any{
						"process_graph": map[string]any{
							"multiply": map[string]any{
								"process_id": "multiply",
								"arguments": map[string]any{
									"x": map[string]string{"from_parameter": "x"},
									"y": 0.0001,
								},
								"result": true,
							},
						},
					},
				},
			},
			"save": map[string]any{
				"process_id": "save_result",
				"arguments": map[string]any{
					"data":   map[string]string{"from_node": "scale"},
					"format": "GTiff",
				},
				"result": true,
			},
		},
	}

	return json.Marshal(graph)
}

var _ Client = (*ProcessingClient)(nil)
var _ Client = (*SearchClient)(nil)

// SliceRange converts a (year, month) slice into the acquisition date range,
// day 1 through windowDays of the month.
func SliceRange(year int, month time.Month, windowDays int) DateRange {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return DateRange{
		Start: start,
		End:   time.Date(year, month, windowDays, 23, 59, 59, 0, time.UTC),
	}
}
