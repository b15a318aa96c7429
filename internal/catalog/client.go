// Package catalog talks to the remote imagery catalog. Two backends exist
// behind one interface: a processing-graph service that returns one ready
// cloud-free composite per request, and a plain scene search from which the
// caller takes the least-cloudy candidate. Callers stay agnostic to which
// backend is configured.
package catalog

import (
	"context"
	"net/http"
	"time"

	"satwatch/internal/geo"
)

// UserAgent identifies requests against the remote catalog.
const UserAgent = "satwatch/1.0"

// DateRange is a closed acquisition interval.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Asset is an opaque downloadable reference. The downloader executes it
// verbatim with bearer authentication; only the producing backend knows what
// the request means.
type Asset struct {
	Method      string
	URL         string
	Body        []byte
	ContentType string
}

// Scene is one candidate acquisition returned by a search.
type Scene struct {
	ID         string
	AcquiredAt time.Time
	CloudCover float64
	Asset      Asset
}

// SearchRequest constrains a catalog search to one (project, slice) unit.
type SearchRequest struct {
	Collection    string
	Area          geo.BoundingBox
	Dates         DateRange
	MaxCloudCover float64
}

// Client searches the remote catalog. Implementations return scenes ordered
// by ascending cloud cover, ties broken by ascending acquisition time, and an
// empty slice (not an error) when nothing satisfies the filters.
type Client interface {
	Search(ctx context.Context, req SearchRequest) ([]Scene, error)
}

// newHTTPClient builds the shared transport configuration: system proxy
// support and a request timeout long enough for composite processing.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
		},
	}
}
