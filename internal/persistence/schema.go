package persistence

import "database/sql"

// execer is the subset of *sql.DB that EnsureSchema needs, narrow enough
// to be satisfied by a transaction too if ever required.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// schema holds the DDL for the three relations a session writes to.
// Statements are idempotent (CREATE ... IF NOT EXISTS) so a launcher can
// run them on every startup without a separate migration step.
const schema = `
CREATE TABLE IF NOT EXISTS processing_sessions (
	session_id         TEXT PRIMARY KEY,
	symbol             TEXT NOT NULL,
	file_name          TEXT NOT NULL,
	file_size          BIGINT NOT NULL,
	status             TEXT NOT NULL,
	start_time         TIMESTAMPTZ NOT NULL DEFAULT now(),
	end_time           TIMESTAMPTZ,
	messages_received  BIGINT NOT NULL DEFAULT 0,
	orders_processed   BIGINT NOT NULL DEFAULT 0,
	throughput         DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_process_ns     DOUBLE PRECISION NOT NULL DEFAULT 0,
	p99_process_ns     DOUBLE PRECISION NOT NULL DEFAULT 0,
	final_total_orders INTEGER NOT NULL DEFAULT 0,
	final_bid_levels   INTEGER NOT NULL DEFAULT 0,
	final_ask_levels   INTEGER NOT NULL DEFAULT 0,
	final_best_bid     DOUBLE PRECISION NOT NULL DEFAULT 0,
	final_best_ask     DOUBLE PRECISION NOT NULL DEFAULT 0,
	final_spread       DOUBLE PRECISION NOT NULL DEFAULT 0,
	snapshots_written  BIGINT NOT NULL DEFAULT 0,
	error_message      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS order_book_snapshots (
	id               BIGSERIAL PRIMARY KEY,
	session_id       TEXT NOT NULL REFERENCES processing_sessions(session_id),
	symbol           TEXT NOT NULL,
	timestamp_ns     BIGINT NOT NULL,
	best_bid_price   BIGINT NOT NULL,
	best_bid_size    BIGINT NOT NULL,
	best_bid_count   INTEGER NOT NULL,
	best_ask_price   BIGINT NOT NULL,
	best_ask_size    BIGINT NOT NULL,
	best_ask_count   INTEGER NOT NULL,
	total_orders     INTEGER NOT NULL,
	bid_level_count  INTEGER NOT NULL,
	ask_level_count  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS bid_levels (
	snapshot_id BIGINT NOT NULL REFERENCES order_book_snapshots(id),
	price       BIGINT NOT NULL,
	size        BIGINT NOT NULL,
	count       INTEGER NOT NULL,
	level_index INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ask_levels (
	snapshot_id BIGINT NOT NULL REFERENCES order_book_snapshots(id),
	price       BIGINT NOT NULL,
	size        BIGINT NOT NULL,
	count       INTEGER NOT NULL,
	level_index INTEGER NOT NULL
);
`

const dropSnapshotIndexesSQL = `
DROP INDEX IF EXISTS idx_order_book_snapshots_session_ts;
DROP INDEX IF EXISTS idx_bid_levels_snapshot_idx;
DROP INDEX IF EXISTS idx_ask_levels_snapshot_idx;
`

const createSnapshotIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_order_book_snapshots_session_ts
	ON order_book_snapshots (session_id, timestamp_ns);
CREATE INDEX IF NOT EXISTS idx_bid_levels_snapshot_idx
	ON bid_levels (snapshot_id, level_index);
CREATE INDEX IF NOT EXISTS idx_ask_levels_snapshot_idx
	ON ask_levels (snapshot_id, level_index);
`

const insertSnapshotSQL = `
INSERT INTO order_book_snapshots
	(session_id, symbol, timestamp_ns, best_bid_price, best_bid_size, best_bid_count,
	 best_ask_price, best_ask_size, best_ask_count, total_orders, bid_level_count, ask_level_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING id
`

const insertBidLevelSQL = `
INSERT INTO bid_levels (snapshot_id, price, size, count, level_index)
VALUES ($1, $2, $3, $4, $5)
`

const insertAskLevelSQL = `
INSERT INTO ask_levels (snapshot_id, price, size, count, level_index)
VALUES ($1, $2, $3, $4, $5)
`

// EnsureSchema creates the relations this package depends on, if they do
// not already exist. It is meant to be called once at launcher startup.
func EnsureSchema(db execer) error {
	_, err := db.Exec(schema)
	return err
}
