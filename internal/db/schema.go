package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema. IDs are UUID strings assigned by the
// store layer. The custody_transfers table is append-only: nothing in the
// codebase updates its rows after insert.
const schema = `
CREATE TABLE IF NOT EXISTS agencies (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    contact_email TEXT,
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL,
    name          TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('lab_admin', 'agency', 'user')),
    agency_id     TEXT REFERENCES agencies(id),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_active
    ON users(email) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS test_types (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    method     TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS samples (
    id           TEXT PRIMARY KEY,
    agency_id    TEXT NOT NULL REFERENCES agencies(id),
    account_id   TEXT,
    created_by   TEXT NOT NULL REFERENCES users(id),
    test_type_id TEXT REFERENCES test_types(id),
    description  TEXT,
    status       TEXT NOT NULL DEFAULT 'pending'
                 CHECK (status IN ('pending', 'in_coc', 'submitted', 'pass', 'fail')),
    latitude     REAL,
    longitude    REAL,
    collected_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at   DATETIME
);

CREATE INDEX IF NOT EXISTS idx_samples_agency
    ON samples(agency_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS custody_transfers (
    id             TEXT PRIMARY KEY,
    sample_id      TEXT NOT NULL REFERENCES samples(id),
    transferred_by TEXT NOT NULL REFERENCES users(id),
    received_by    TEXT NOT NULL,
    signature      BLOB NOT NULL,
    photo_url      TEXT,
    latitude       REAL,
    longitude      REAL,
    transferred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at     DATETIME
);

CREATE INDEX IF NOT EXISTS idx_transfers_sample_time
    ON custody_transfers(sample_id, transferred_at);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
