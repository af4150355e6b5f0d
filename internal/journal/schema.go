package journal

// Schema DDL. Statements use IF NOT EXISTS so Open can run them against an
// existing journal.
const (
	createRuns = `CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    script TEXT NOT NULL,
    status TEXT NOT NULL,
    error TEXT,
    step_count INTEGER NOT NULL,
    outstanding TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
);`

	createEvents = `CREATE TABLE IF NOT EXISTS events (
    event_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    op TEXT NOT NULL,
    target TEXT,
    as_name TEXT,
    result TEXT NOT NULL,
    value INTEGER,
    state TEXT,
    count INTEGER,
    detail TEXT,
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);`
)

// Index DDL for common queries.
const (
	idxRunsStarted = `CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`
	idxEventsRun   = `CREATE UNIQUE INDEX IF NOT EXISTS idx_events_run_seq ON events(run_id, seq);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createRuns,
	createEvents,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxRunsStarted,
	idxEventsRun,
}
