package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS posts (
	code       TEXT PRIMARY KEY,
	line_id    TEXT NOT NULL,
	position   INTEGER NOT NULL DEFAULT 0,
	capacity   INTEGER NOT NULL DEFAULT 0,
	stock      INTEGER NOT NULL DEFAULT 0,
	tu_ms      INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS maintenance_schedules (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	post_code         TEXT NOT NULL,
	status            TEXT NOT NULL,
	scheduled_date    TEXT NOT NULL,
	completed_date    TEXT,
	estimated_minutes INTEGER NOT NULL DEFAULT 0,
	notes             TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_maintenance_post ON maintenance_schedules(post_code);

CREATE TABLE IF NOT EXISTS orders (
	id         TEXT PRIMARY KEY,
	line_id    TEXT NOT NULL,
	quantity   INTEGER NOT NULL,
	finished   INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	ended_at   TEXT
);

CREATE TABLE IF NOT EXISTS stock_corrections (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	post_code  TEXT NOT NULL,
	before_qty INTEGER NOT NULL,
	after_qty  INTEGER NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	actor      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	actor       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS posts (
	code       TEXT PRIMARY KEY,
	line_id    TEXT NOT NULL,
	position   INTEGER NOT NULL DEFAULT 0,
	capacity   INTEGER NOT NULL DEFAULT 0,
	stock      INTEGER NOT NULL DEFAULT 0,
	tu_ms      BIGINT NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS maintenance_schedules (
	id                BIGSERIAL PRIMARY KEY,
	post_code         TEXT NOT NULL,
	status            TEXT NOT NULL,
	scheduled_date    TEXT NOT NULL,
	completed_date    TEXT,
	estimated_minutes INTEGER NOT NULL DEFAULT 0,
	notes             TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_maintenance_post ON maintenance_schedules(post_code);

CREATE TABLE IF NOT EXISTS orders (
	id         TEXT PRIMARY KEY,
	line_id    TEXT NOT NULL,
	quantity   INTEGER NOT NULL,
	finished   INTEGER NOT NULL DEFAULT 0,
	status     TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	ended_at   TEXT
);

CREATE TABLE IF NOT EXISTS stock_corrections (
	id         BIGSERIAL PRIMARY KEY,
	post_code  TEXT NOT NULL,
	before_qty INTEGER NOT NULL,
	after_qty  INTEGER NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	actor      TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id          BIGSERIAL PRIMARY KEY,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	actor       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
`
