package database

// Schema creates every table the service owns. Timestamps are unix
// milliseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS builds (
    id TEXT PRIMARY KEY,
    app_id TEXT NOT NULL,
    status TEXT NOT NULL CHECK(status IN ('queued', 'bundling', 'verifying', 'published', 'failed')),
    mode TEXT NOT NULL CHECK(mode IN ('publish', 'review')),
    stage TEXT NOT NULL DEFAULT '',
    detail TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_builds_app_id ON builds(app_id);
CREATE INDEX IF NOT EXISTS idx_builds_status ON builds(status);

CREATE TABLE IF NOT EXISTS apps (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    data TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_apps_owner_id ON apps(owner_id);

CREATE TABLE IF NOT EXISTS kv (
    namespace TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    data TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS app_pins (
    app_id TEXT PRIMARY KEY,
    pin_hash TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS pin_sessions (
    id TEXT PRIMARY KEY,
    app_id TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    last_seen_at INTEGER NOT NULL,
    expires_at INTEGER,
    identity_hash TEXT NOT NULL,
    user_agent TEXT NOT NULL DEFAULT '',
    anon_id TEXT NOT NULL DEFAULT '',
    revoked INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_pin_sessions_app_id ON pin_sessions(app_id);

CREATE TABLE IF NOT EXISTS rooms (
    app_id TEXT NOT NULL,
    code TEXT NOT NULL,
    name TEXT NOT NULL,
    pin_hash TEXT NOT NULL DEFAULT '',
    is_demo INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (app_id, code)
);
`
