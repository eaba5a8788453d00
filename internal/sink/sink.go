// Package sink defines output backends for formwatch events.
package sink

import (
	"context"

	"github.com/hazyhaar/formwatch/event"
)

// Sink is the output interface. Implementations deliver detections and
// navigation events to different backends (stdout, webhook, SQLite,
// in-process callback).
type Sink interface {
	SendDetection(ctx context.Context, d event.Detection) error
	SendNavigation(ctx context.Context, n event.Navigation) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
