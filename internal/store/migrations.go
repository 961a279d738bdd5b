package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	data       TEXT NOT NULL DEFAULT '{}',
	version    INTEGER NOT NULL DEFAULT 1,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS historical_cards (
	owner_id    TEXT NOT NULL,
	board_id    TEXT NOT NULL,
	card_id     TEXT NOT NULL,
	data        TEXT NOT NULL,
	recorded_at DATETIME NOT NULL,
	PRIMARY KEY (owner_id, board_id, card_id)
);

CREATE INDEX IF NOT EXISTS idx_historical_cards_board ON historical_cards(owner_id, board_id);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
