package formwatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/formwatch/event"
	"github.com/hazyhaar/formwatch/internal/sink"
	"github.com/hazyhaar/formwatch/internal/store"
)

// Sink receives detections and navigation events.
type Sink = sink.Sink

// NewStdoutSink writes JSON lines to w (os.Stdout when nil).
func NewStdoutSink(w io.Writer) Sink { return sink.NewStdout(w) }

// NewWebhookSink POSTs events to url with retries.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink delivers events in-process. Either function may be nil.
func NewCallbackSink(
	onDetection func(context.Context, event.Detection) error,
	onNavigation func(context.Context, event.Navigation) error,
) Sink {
	return sink.NewCallback(onDetection, onNavigation)
}

// OpenStore opens the SQLite detection log, with tables prefixed for env.
func OpenStore(path, env string) (*store.Store, error) {
	return store.Open(path, env)
}

// BuildSinks instantiates the sinks listed in cfg. A "sqlite" entry opens
// the store at cfg.Store.Path and returns it separately so the caller can
// hand it to UseStore.
func BuildSinks(cfg *Config, logger *slog.Logger) ([]Sink, *store.Store, error) {
	var sinks []Sink
	var st *store.Store
	for _, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(nil))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(sc.URL, logger))
		case "sqlite":
			if st != nil {
				continue
			}
			path := cfg.Store.Path
			if path == "" {
				path = "formwatch.db"
			}
			s, err := store.Open(path, cfg.Env)
			if err != nil {
				return nil, nil, fmt.Errorf("formwatch: open store: %w", err)
			}
			st = s
		default:
			return nil, nil, fmt.Errorf("formwatch: unknown sink type %q", sc.Type)
		}
	}
	return sinks, st, nil
}
