package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store 信号与持仓的 SQLite 持久层
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库并执行建表。path 传 ":memory:" 用于测试。
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// migration 一个版本的结构变更；version 严格递增
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{version: 1, stmts: []string{
		`
CREATE TABLE IF NOT EXISTS signal_records (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  market_id TEXT NOT NULL,
  title TEXT NOT NULL DEFAULT '',
  strategy INTEGER NOT NULL,
  tradable INTEGER NOT NULL,
  reason TEXT,
  contracts REAL NOT NULL,
  tokens REAL NOT NULL,
  entry_price REAL NOT NULL,
  k1 REAL NOT NULL DEFAULT 0,
  k2 REAL NOT NULL DEFAULT 0,
  k_poly REAL NOT NULL DEFAULT 0,
  yes_bid REAL NOT NULL DEFAULT 0,
  yes_ask REAL NOT NULL DEFAULT 0,
  no_bid REAL NOT NULL DEFAULT 0,
  no_ask REAL NOT NULL DEFAULT 0,
  index_price REAL NOT NULL DEFAULT 0,
  mark_vol REAL NOT NULL DEFAULT 0,
  k1_bid REAL NOT NULL DEFAULT 0,
  k1_ask REAL NOT NULL DEFAULT 0,
  k2_bid REAL NOT NULL DEFAULT 0,
  k2_ask REAL NOT NULL DEFAULT 0,
  net_premium REAL NOT NULL DEFAULT 0,
  prob_itm REAL NOT NULL,
  prob_edge REAL NOT NULL,
  gross_ev REAL NOT NULL,
  net_ev REAL NOT NULL,
  skew_ev REAL NOT NULL,
  margin_usd REAL NOT NULL,
  cost_pm_slippage REAL NOT NULL,
  cost_option_fees REAL NOT NULL,
  cost_option_slippage REAL NOT NULL,
  cost_settlement REAL NOT NULL,
  cost_gas REAL NOT NULL,
  cost_holding REAL NOT NULL,
  total_entry_cost REAL NOT NULL DEFAULT 0,
  total_exit_cost REAL NOT NULL DEFAULT 0,
  investment_usd REAL NOT NULL,
  roi REAL NOT NULL,
  annualized_roi REAL NOT NULL,
  annualized_sharpe REAL NOT NULL,
  evaluated_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_signal_records_market_ts ON signal_records(market_id, evaluated_at DESC);`,
		`
CREATE TABLE IF NOT EXISTS positions (
  id TEXT PRIMARY KEY,
  market_id TEXT NOT NULL,
  strategy INTEGER NOT NULL,
  status TEXT NOT NULL,
  exit_state TEXT NOT NULL,
  contracts REAL NOT NULL,
  tokens REAL NOT NULL,
  k1 REAL NOT NULL,
  k2 REAL NOT NULL,
  k_poly REAL NOT NULL,
  entry_price REAL NOT NULL,
  stake_usd REAL NOT NULL,
  spread_premium REAL NOT NULL,
  margin_usd REAL NOT NULL,
  option_expiry TEXT NOT NULL,
  event_expiry TEXT NOT NULL,
  opened_at TEXT NOT NULL,
  closed_at TEXT,
  settlement_price REAL NOT NULL DEFAULT 0,
  option_pnl REAL NOT NULL DEFAULT 0
);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_market_open ON positions(market_id) WHERE status = 'OPEN';`,
		`
CREATE TABLE IF NOT EXISTS exit_evaluations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  position_id TEXT NOT NULL REFERENCES positions(id) ON DELETE CASCADE,
  state TEXT NOT NULL,
  option_pnl REAL NOT NULL,
  pm_actual_pnl REAL NOT NULL,
  pm_theoretical REAL NOT NULL,
  opportunity_pnl REAL NOT NULL,
  total_actual_pnl REAL NOT NULL,
  exit_cost_usd REAL NOT NULL,
  action TEXT NOT NULL,
  reason TEXT NOT NULL,
  evaluated_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_exit_evaluations_pos_ts ON exit_evaluations(position_id, evaluated_at DESC);`,
	}},
}

// migrate 逐版本应用结构变更，已应用版本记入 schema_migrations。
// PRAGMA 属连接级设置，不入版本管理，每次打开都执行。
func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, pragma := range []string{`PRAGMA journal_mode=WAL;`, `PRAGMA foreign_keys=ON;`} {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("migrate pragma: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);`,
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("migrate version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("migrate v%d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migrate v%d: %w", m.version, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			m.version, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate v%d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate v%d: %w", m.version, err)
		}
	}
	return nil
}

// SchemaVersion 当前已应用的最高迁移版本
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&v)
	return v, err
}
