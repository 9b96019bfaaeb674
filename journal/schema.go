package journal

const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT NOT NULL,
	run_id TEXT NOT NULL DEFAULT '',
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	realized_pl REAL NOT NULL,
	commission REAL NOT NULL DEFAULT 0,
	reason TEXT NOT NULL,
	correlation_group TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, trade_id)
);

CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, close_time);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL DEFAULT '',
	time DATETIME NOT NULL,
	cash REAL NOT NULL,
	equity REAL NOT NULL,
	at_risk REAL NOT NULL,
	daily_pnl_pct REAL NOT NULL,
	open_positions INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(run_id, time);

CREATE TABLE IF NOT EXISTS decisions (
	id TEXT NOT NULL,
	run_id TEXT NOT NULL DEFAULT '',
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	direction TEXT NOT NULL,
	approved INTEGER NOT NULL,
	code TEXT NOT NULL,
	outcome TEXT NOT NULL,
	order_id TEXT NOT NULL DEFAULT '',
	idempotency_key TEXT NOT NULL DEFAULT '',
	fill_price REAL NOT NULL DEFAULT 0,
	fill_quantity INTEGER NOT NULL DEFAULT 0,
	fill_time DATETIME,
	error TEXT NOT NULL DEFAULT '',
	candidate_json TEXT NOT NULL,
	assessment_json TEXT NOT NULL,
	PRIMARY KEY (run_id, id)
);

CREATE INDEX IF NOT EXISTS idx_decisions_time ON decisions(run_id, time);
CREATE INDEX IF NOT EXISTS idx_decisions_symbol ON decisions(symbol, time);

CREATE TRIGGER IF NOT EXISTS decisions_no_update BEFORE UPDATE ON decisions
BEGIN
	SELECT RAISE(ABORT, 'decisions are append-only');
END;

CREATE TRIGGER IF NOT EXISTS decisions_no_delete BEFORE DELETE ON decisions
BEGIN
	SELECT RAISE(ABORT, 'decisions are append-only');
END;

CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	strategy TEXT NOT NULL,
	dataset TEXT NOT NULL DEFAULT '',
	symbols TEXT NOT NULL DEFAULT '',
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	run_json TEXT NOT NULL
);
`
