package cache

const schema = `
CREATE TABLE IF NOT EXISTS frame_entries (
    fingerprint   TEXT PRIMARY KEY,
    status        TEXT NOT NULL,
    owner_token   TEXT,
    claimed_at    TEXT,
    attempt_count INTEGER NOT NULL DEFAULT 0,
    payload_path  TEXT,
    payload_bytes INTEGER NOT NULL DEFAULT 0,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_frame_entries_status ON frame_entries (status);
`
