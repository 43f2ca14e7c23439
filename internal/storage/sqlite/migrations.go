package sqlite

import "database/sql"

// schema sets up the database on startup.
// Dates are stored as Unix seconds. A NULL materialized_at marks a pending link.
// IMPORTANT: parents must be created before the tables that reference them.
const schema = `
CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    currency TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS participants (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    name TEXT NOT NULL,
    position INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    UNIQUE (group_id, name),
    FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS obligations (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL,
    title TEXT NOT NULL,
    category TEXT NOT NULL DEFAULT '',
    amount INTEGER NOT NULL CHECK (amount >= 0),
    payer_id TEXT NOT NULL,
    occurred_on INTEGER NOT NULL,
    split_policy TEXT NOT NULL,
    cadence TEXT NOT NULL DEFAULT '',
    is_reimbursement INTEGER NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE,
    FOREIGN KEY (payer_id) REFERENCES participants(id)
);

CREATE TABLE IF NOT EXISTS shares (
    obligation_id TEXT NOT NULL,
    participant_id TEXT NOT NULL,
    weight INTEGER NOT NULL,
    position INTEGER NOT NULL,
    PRIMARY KEY (obligation_id, participant_id),
    FOREIGN KEY (obligation_id) REFERENCES obligations(id) ON DELETE CASCADE,
    FOREIGN KEY (participant_id) REFERENCES participants(id)
);

CREATE TABLE IF NOT EXISTS attachments (
    id TEXT PRIMARY KEY,
    obligation_id TEXT NOT NULL,
    name TEXT NOT NULL,
    url TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (obligation_id) REFERENCES obligations(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS recurrence_links (
    id TEXT PRIMARY KEY,
    chain_id TEXT NOT NULL,
    group_id TEXT NOT NULL,
    obligation_id TEXT NOT NULL UNIQUE,
    cadence TEXT NOT NULL,
    next_date INTEGER NOT NULL,
    materialized_at INTEGER,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE,
    FOREIGN KEY (obligation_id) REFERENCES obligations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_participants_group_id ON participants(group_id);
CREATE INDEX IF NOT EXISTS idx_obligations_group_id ON obligations(group_id, occurred_on);
CREATE INDEX IF NOT EXISTS idx_shares_participant_id ON shares(participant_id);
CREATE INDEX IF NOT EXISTS idx_attachments_obligation_id ON attachments(obligation_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_recurrence_links_pending_chain
    ON recurrence_links(chain_id) WHERE materialized_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_recurrence_links_due
    ON recurrence_links(group_id, next_date) WHERE materialized_at IS NULL;
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
