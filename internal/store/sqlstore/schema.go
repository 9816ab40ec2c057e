package sqlstore

// schema works unchanged on SQLite and PostgreSQL. Nested record data is
// kept as JSON text; the scalar columns exist for filtering and ordering.
const schema = `
CREATE TABLE IF NOT EXISTS url_records (
	url          TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	is_excluded  INTEGER NOT NULL DEFAULT 0,
	health_score INTEGER NOT NULL DEFAULT 0,
	data         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_url_records_status ON url_records (status);

CREATE TABLE IF NOT EXISTS settings (
	id   INTEGER PRIMARY KEY,
	data TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_history (
	seq  INTEGER PRIMARY KEY,
	id   TEXT NOT NULL,
	data TEXT NOT NULL
);
`
