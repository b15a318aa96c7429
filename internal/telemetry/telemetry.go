// Package telemetry sends anonymous usage events. Disabled entirely unless
// a PostHog API key is present in the environment.
package telemetry

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"

	"satwatch/internal/config"
)

const defaultEndpoint = "https://us.i.posthog.com"

// Tracker wraps the PostHog client. A nil inner client makes every method
// a no-op, so callers never check whether telemetry is enabled.
type Tracker struct {
	client     posthog.Client
	distinctID string
}

// New builds a tracker from the environment. Errors are logged and swallowed;
// telemetry must never block startup.
func New(logger *slog.Logger) *Tracker {
	key := os.Getenv(config.EnvPosthogKey)
	if key == "" {
		return &Tracker{}
	}

	endpoint := os.Getenv("POSTHOG_HOST")
	if endpoint == "" {
		endpoint = defaultEndpoint
	}

	client, err := posthog.NewWithConfig(key, posthog.Config{Endpoint: endpoint})
	if err != nil {
		logger.Warn("failed to initialize telemetry", "error", err)
		return &Tracker{}
	}
	return &Tracker{client: client, distinctID: uuid.NewString()}
}

// Track enqueues one event.
func (t *Tracker) Track(event string, props map[string]interface{}) {
	if t.client == nil {
		return
	}
	t.client.Enqueue(posthog.Capture{
		DistinctId: t.distinctID,
		Event:      event,
		Properties: props,
	})
}

// Close flushes pending events.
func (t *Tracker) Close() {
	if t.client != nil {
		t.client.Close()
	}
}
