package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations",
		SQL: `
			CREATE TABLE conversations (
				id          TEXT PRIMARY KEY,
				document    TEXT NOT NULL,
				updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
	{
		Version: 2,
		Name:    "create feedback",
		SQL: `
			CREATE TABLE feedback (
				id               INTEGER PRIMARY KEY AUTOINCREMENT,
				conversation_id  TEXT NOT NULL,
				run_id           TEXT NOT NULL,
				item_id          TEXT NOT NULL DEFAULT '',
				polarity         TEXT NOT NULL,
				comment          TEXT NOT NULL DEFAULT '',
				created_at       TEXT NOT NULL
			);

			CREATE INDEX idx_feedback_conversation ON feedback (conversation_id, id);
			CREATE INDEX idx_feedback_run ON feedback (run_id);
		`,
	},
}
