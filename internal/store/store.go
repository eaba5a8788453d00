// Package store persists detections and navigation events in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/formwatch/dbopen"
	"github.com/hazyhaar/formwatch/event"
)

// DefaultLimit bounds List* results when the caller passes limit <= 0.
const DefaultLimit = 50

// Store is the detection log. It satisfies sink.Sink.
type Store struct {
	DB     *sql.DB
	prefix string
}

// Open opens (or creates) the database at path and applies the schema for env.
func Open(path, env string, opts ...dbopen.Option) (*Store, error) {
	prefix := PrefixByEnv(env)
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema(prefix)),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db, prefix: prefix}, nil
}

// New wraps an open database, applying the schema for env.
func New(db *sql.DB, env string) (*Store, error) {
	prefix := PrefixByEnv(env)
	if _, err := db.Exec(Schema(prefix)); err != nil {
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return &Store{DB: db, prefix: prefix}, nil
}

// Prefix returns the table prefix in use.
func (s *Store) Prefix() string { return s.prefix }

func (s *Store) table(name string) string { return s.prefix + name }

// RecordDetection inserts a detection. Re-recording the same ID is a no-op.
func (s *Store) RecordDetection(ctx context.Context, d event.Detection) error {
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT OR IGNORE INTO `+s.table("detections")+`
			(id, page_id, page_url, selector, session, container,
			 product_title, product_md, product_hash, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.PageID, d.PageURL, d.Selector, d.Session, d.Container,
		d.Product.Title, d.Product.Markdown, d.Product.Hash, d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("store: record detection: %w", err)
	}
	return nil
}

// RecordNavigation inserts a navigation event.
func (s *Store) RecordNavigation(ctx context.Context, n event.Navigation) error {
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT OR IGNORE INTO `+s.table("navigations")+`
			(id, page_id, seq, kind, url, created_at)
		VALUES (?,?,?,?,?,?)`,
		n.ID, n.PageID, n.Seq, n.Kind, n.URL, n.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("store: record navigation: %w", err)
	}
	return nil
}

// ListDetections returns the most recent detections, newest first. An empty
// pageID lists every page.
func (s *Store) ListDetections(ctx context.Context, pageID string, limit int) ([]event.Detection, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, page_id, page_url, selector, session, container,
		       product_title, product_md, product_hash, created_at
		FROM `+s.table("detections")+`
		WHERE (? = '' OR page_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, pageID, pageID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list detections: %w", err)
	}
	defer rows.Close()

	out := []event.Detection{}
	for rows.Next() {
		var d event.Detection
		if err := rows.Scan(&d.ID, &d.PageID, &d.PageURL, &d.Selector, &d.Session, &d.Container,
			&d.Product.Title, &d.Product.Markdown, &d.Product.Hash, &d.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListNavigations returns the most recent navigation events, newest first.
func (s *Store) ListNavigations(ctx context.Context, pageID string, limit int) ([]event.Navigation, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, page_id, seq, kind, url, created_at
		FROM `+s.table("navigations")+`
		WHERE (? = '' OR page_id = ?)
		ORDER BY created_at DESC, seq DESC
		LIMIT ?`, pageID, pageID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list navigations: %w", err)
	}
	defer rows.Close()

	out := []event.Navigation{}
	for rows.Next() {
		var n event.Navigation
		if err := rows.Scan(&n.ID, &n.PageID, &n.Seq, &n.Kind, &n.URL, &n.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Stats summarises the log.
type Stats struct {
	Detections  int   `json:"detections"`
	Navigations int   `json:"navigations"`
	Pages       int   `json:"pages"`
	LastSeen    int64 `json:"last_seen,omitempty"`
}

// Stats counts recorded events.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	var last sql.NullInt64
	err := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT page_id), MAX(created_at)
		FROM `+s.table("detections")).Scan(&st.Detections, &st.Pages, &last)
	if err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	st.LastSeen = last.Int64
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.table("navigations")).Scan(&st.Navigations); err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}
	return &st, nil
}

// SendDetection implements sink.Sink.
func (s *Store) SendDetection(ctx context.Context, d event.Detection) error {
	return s.RecordDetection(ctx, d)
}

// SendNavigation implements sink.Sink.
func (s *Store) SendNavigation(ctx context.Context, n event.Navigation) error {
	return s.RecordNavigation(ctx, n)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
