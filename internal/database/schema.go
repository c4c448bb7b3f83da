package database

// SchemaVersion is the current PRAGMA user_version value
// Version 1 carried activities.start (event time); version 2 replaced it
// with last_updated (cache sync time)
const SchemaVersion = 2

// Schema contains all SQL statements for creating tables and indexes
const Schema = `
-- Activities table: one row per upstream activity, keyed by the Strava
-- activity id. raw holds the verbatim detailed-activity JSON; the other
-- columns are denormalized from it for querying.
CREATE TABLE IF NOT EXISTS activities (
    id INTEGER PRIMARY KEY,  -- Strava activity ID
    private_note TEXT,
    description TEXT,
    name TEXT,
    type TEXT,
    user_id TEXT NOT NULL,
    last_updated INTEGER NOT NULL,  -- Unix timestamp of last cache refresh
    raw TEXT NOT NULL
);

-- Athletes table: one profile per Strava athlete
CREATE TABLE IF NOT EXISTS athletes (
    athlete_id INTEGER PRIMARY KEY,
    user_id TEXT NOT NULL,
    last_updated INTEGER NOT NULL,
    raw TEXT NOT NULL
);

-- OAuth refresh tokens: at most one live token per local user
CREATE TABLE IF NOT EXISTS refresh_tokens (
    user_id TEXT PRIMARY KEY,
    athlete_id INTEGER,
    token TEXT NOT NULL,
    scope TEXT,
    raw TEXT NOT NULL
);

-- OAuth access tokens: short-lived, same one-per-user replace semantics
CREATE TABLE IF NOT EXISTS access_tokens (
    user_id TEXT PRIMARY KEY,
    athlete_id INTEGER,
    expires_at INTEGER NOT NULL,
    token TEXT NOT NULL,
    scope TEXT,
    raw TEXT NOT NULL
);

-- Sync job queue for the background worker
CREATE TABLE IF NOT EXISTS sync_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id TEXT NOT NULL,
    job_type TEXT NOT NULL,
    retry_count INTEGER NOT NULL DEFAULT 0,
    last_error TEXT,
    next_retry_at INTEGER,
    processing_started_at INTEGER,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

-- Indexes for activities table
CREATE INDEX IF NOT EXISTS idx_activities_user_id ON activities(user_id);
CREATE INDEX IF NOT EXISTS idx_activities_last_updated ON activities(last_updated DESC);

-- Indexes for athletes table
CREATE INDEX IF NOT EXISTS idx_athletes_user_id ON athletes(user_id);

-- Indexes for sync_jobs table
CREATE INDEX IF NOT EXISTS idx_sync_jobs_next_retry_at ON sync_jobs(next_retry_at);
`
