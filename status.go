package formwatch

import (
	"context"
	"fmt"
	"sort"

	"github.com/hazyhaar/formwatch/event"
)

// PageStatus is a point-in-time view of one watched page.
type PageStatus struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	Location       string `json:"location"`
	Selector       string `json:"selector"`
	Container      string `json:"container"`
	Browser        bool   `json:"browser"`
	Since          int64  `json:"since"`
	Sessions       uint64 `json:"sessions"`
	Rearms         uint64 `json:"rearms"`
	Generation     uint64 `json:"generation"`
	Detections     uint64 `json:"detections"`
	LastNavigation string `json:"last_navigation,omitempty"` // kind of the last navigation
	LastDetection  int64  `json:"last_detection,omitempty"`
}

// Status lists the watched pages, sorted by id. It performs no page I/O:
// Location is the URL of the last navigation, or the configured URL.
func (w *Watcher) Status() []PageStatus {
	w.mu.Lock()
	pages := make([]*watched, 0, len(w.pages))
	for _, p := range w.pages {
		pages = append(pages, p)
	}
	w.mu.Unlock()

	out := make([]PageStatus, 0, len(pages))
	for _, p := range pages {
		p.mu.Lock()
		loop, count := p.loop, p.count
		var last int64
		if n := len(p.recent); n > 0 {
			last = p.recent[n-1].Timestamp
		}
		p.mu.Unlock()

		ps := PageStatus{
			ID:            p.cfg.ID,
			URL:           p.cfg.URL,
			Location:      p.cfg.URL,
			Selector:      p.cfg.FormSelector,
			Container:     p.spec.ContainerID,
			Browser:       p.browser,
			Since:         p.since.UnixMilli(),
			Detections:    count,
			LastDetection: last,
		}
		if loop != nil {
			st := loop.Stats()
			ps.Sessions, ps.Rearms, ps.Generation = st.Sessions, st.Rearms, st.Generation
			if st.LastNavigation.Seq > 0 {
				ps.Location = st.LastNavigation.URL
				ps.LastNavigation = string(st.LastNavigation.Kind)
			}
		}
		out = append(out, ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Detections returns the latest detections of a page, newest first. With a
// store attached it reads the persisted log, which outlives Detach;
// otherwise it returns the in-memory history of an attached page.
func (w *Watcher) Detections(ctx context.Context, id string, limit int) ([]event.Detection, error) {
	w.mu.Lock()
	st := w.store
	p, ok := w.pages[id]
	w.mu.Unlock()

	if st != nil {
		return st.ListDetections(ctx, id, limit)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPage, id)
	}
	if limit <= 0 || limit > recentLimit {
		limit = recentLimit
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]event.Detection, 0, min(limit, len(p.recent)))
	for i := len(p.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, p.recent[i])
	}
	return out, nil
}
