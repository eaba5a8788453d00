// CLAUDE:SUMMARY In-process callback sink handing detections and navigations to Go functions without serialisation.
package sink

import (
	"context"

	"github.com/hazyhaar/formwatch/event"
)

// DetectionFunc is called for each detection (in-process, zero serialisation).
type DetectionFunc func(ctx context.Context, d event.Detection) error

// NavigationFunc is called for each navigation event.
type NavigationFunc func(ctx context.Context, n event.Navigation) error

// Callback delivers events via Go function calls, for embedding the
// watcher in a host process.
type Callback struct {
	onDetection  DetectionFunc
	onNavigation NavigationFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onDetection DetectionFunc, onNavigation NavigationFunc) *Callback {
	return &Callback{onDetection: onDetection, onNavigation: onNavigation}
}

func (c *Callback) SendDetection(ctx context.Context, d event.Detection) error {
	if c.onDetection != nil {
		return c.onDetection(ctx, d)
	}
	return nil
}

func (c *Callback) SendNavigation(ctx context.Context, n event.Navigation) error {
	if c.onNavigation != nil {
		return c.onNavigation(ctx, n)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
