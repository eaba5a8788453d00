package store

import "strings"

// PrefixByEnv returns the table name prefix for env: production tables are
// unprefixed, every other environment writes to "dev_" tables so a shared
// database never mixes the two.
func PrefixByEnv(env string) string {
	if env == "production" {
		return ""
	}
	return "dev_"
}

const schemaTemplate = `
CREATE TABLE IF NOT EXISTS {{p}}detections (
	id            TEXT PRIMARY KEY,
	page_id       TEXT NOT NULL,
	page_url      TEXT NOT NULL,
	selector      TEXT NOT NULL,
	session       INTEGER NOT NULL,
	container     TEXT NOT NULL,
	product_title TEXT NOT NULL DEFAULT '',
	product_md    TEXT NOT NULL DEFAULT '',
	product_hash  TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS {{p}}idx_detections_page ON {{p}}detections(page_id, created_at);

CREATE TABLE IF NOT EXISTS {{p}}navigations (
	id         TEXT PRIMARY KEY,
	page_id    TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	url        TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS {{p}}idx_navigations_page ON {{p}}navigations(page_id, created_at);
`

// Schema returns the DDL for the given table prefix.
func Schema(prefix string) string {
	return strings.ReplaceAll(schemaTemplate, "{{p}}", prefix)
}
