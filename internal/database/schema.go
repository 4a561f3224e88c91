package database

// schema is the single source of truth for the engine's tables.
const schema = `
CREATE TABLE IF NOT EXISTS instruments (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	current_price    INTEGER NOT NULL,
	initial_price    INTEGER NOT NULL,
	min_relist_price INTEGER NOT NULL,
	listed           INTEGER NOT NULL DEFAULT 1,
	manual           INTEGER NOT NULL DEFAULT 0,
	uses_real_data   INTEGER NOT NULL DEFAULT 0,
	external_symbol  TEXT NOT NULL DEFAULT '',
	sector           TEXT NOT NULL DEFAULT '',
	product_type     TEXT NOT NULL DEFAULT 'stock',
	volatility       REAL NOT NULL DEFAULT 0,
	price_history    TEXT NOT NULL DEFAULT '[]',
	holder_count     INTEGER NOT NULL DEFAULT 0,
	buy_volume       INTEGER NOT NULL DEFAULT 0,
	sell_volume      INTEGER NOT NULL DEFAULT 0,
	ext_last_price   REAL NOT NULL DEFAULT 0,
	ext_prev_close   REAL NOT NULL DEFAULT 0,
	ext_change_pct   REAL NOT NULL DEFAULT 0,
	ext_currency     TEXT NOT NULL DEFAULT '',
	ext_session      TEXT NOT NULL DEFAULT 'CLOSED',
	ext_fetched_at   TEXT NOT NULL DEFAULT '',
	updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instruments_listed ON instruments(listed);

CREATE TABLE IF NOT EXISTS accounts (
	id         TEXT PRIMARY KEY,
	class_code TEXT NOT NULL,
	holder     TEXT NOT NULL,
	balance    INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_accounts_class ON accounts(class_code);

CREATE TABLE IF NOT EXISTS positions (
	account_id    TEXT NOT NULL,
	instrument_id TEXT NOT NULL,
	quantity      INTEGER NOT NULL,
	avg_price     INTEGER NOT NULL,
	last_buy_at   TEXT,
	updated_at    TEXT NOT NULL,
	PRIMARY KEY (account_id, instrument_id)
);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_settings (
	class_code   TEXT PRIMARY KEY,
	enabled      TEXT NOT NULL DEFAULT '[]',
	params       TEXT NOT NULL DEFAULT '{}',
	last_applied TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS snapshots (
	key          TEXT PRIMARY KEY,
	data         BLOB NOT NULL,
	count        INTEGER NOT NULL,
	refreshed_at TEXT NOT NULL
);
`
