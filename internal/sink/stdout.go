// CLAUDE:SUMMARY Writes detection and navigation events as JSON lines to an io.Writer (defaults to stdout).
package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/hazyhaar/formwatch/event"
)

// Stdout writes JSON lines to an io.Writer (default os.Stdout).
type Stdout struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewStdout creates a Stdout sink. If w is nil, os.Stdout is used.
func NewStdout(w io.Writer) *Stdout {
	if w == nil {
		w = os.Stdout
	}
	return &Stdout{enc: json.NewEncoder(w)}
}

func (s *Stdout) SendDetection(_ context.Context, d event.Detection) error {
	return s.write(envelope{Type: "detection", Data: d})
}

func (s *Stdout) SendNavigation(_ context.Context, n event.Navigation) error {
	return s.write(envelope{Type: "navigation", Data: n})
}

func (s *Stdout) Close() error { return nil }

func (s *Stdout) write(e envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(e)
}
