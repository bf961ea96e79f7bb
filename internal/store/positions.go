package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
)

// InsertPosition 新建持仓。同一市场已有 OPEN 持仓时返回错误（唯一索引约束）。
func (s *Store) InsertPosition(ctx context.Context, p *domain.Position) error {
	var closedAt sql.NullString
	if p.ClosedAt != nil {
		closedAt = sql.NullString{String: p.ClosedAt.Format(time.RFC3339Nano), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO positions (
  id, market_id, strategy, status, exit_state, contracts, tokens,
  k1, k2, k_poly, entry_price, stake_usd, spread_premium, margin_usd,
  option_expiry, event_expiry, opened_at, closed_at, settlement_price, option_pnl
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
`,
		p.ID, p.MarketID, int(p.Strategy), string(p.Status), string(p.ExitState), p.Contracts, p.Tokens,
		p.K1, p.K2, p.KPoly, p.EntryPrice, p.StakeUSD, p.SpreadPremium, p.MarginUSD,
		p.OptionExpiry.Format(time.RFC3339Nano), p.EventExpiry.Format(time.RFC3339Nano),
		p.OpenedAt.Format(time.RFC3339Nano), closedAt, p.SettlementPrice, p.OptionPnL,
	)
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// UpdatePosition 回写持仓状态（退出状态机、结算信息、平仓时间）
func (s *Store) UpdatePosition(ctx context.Context, p *domain.Position) error {
	var closedAt sql.NullString
	if p.ClosedAt != nil {
		closedAt = sql.NullString{String: p.ClosedAt.Format(time.RFC3339Nano), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE positions
SET status=?, exit_state=?, closed_at=?, settlement_price=?, option_pnl=?
WHERE id=?
`, string(p.Status), string(p.ExitState), closedAt, p.SettlementPrice, p.OptionPnL, p.ID)
	if err != nil {
		return fmt.Errorf("update position: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update position: %s not found", p.ID)
	}
	return nil
}

// GetPosition 按 ID 取持仓；不存在返回 (nil, nil)
func (s *Store) GetPosition(ctx context.Context, id string) (*domain.Position, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, market_id, strategy, status, exit_state, contracts, tokens,
  k1, k2, k_poly, entry_price, stake_usd, spread_premium, margin_usd,
  option_expiry, event_expiry, opened_at, closed_at, settlement_price, option_pnl
FROM positions WHERE id=?
`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// OpenPositions 全部 OPEN 持仓，按开仓时间升序
func (s *Store) OpenPositions(ctx context.Context) ([]*domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, market_id, strategy, status, exit_state, contracts, tokens,
  k1, k2, k_poly, entry_price, stake_usd, spread_premium, margin_usd,
  option_expiry, event_expiry, opened_at, closed_at, settlement_price, option_pnl
FROM positions WHERE status=? ORDER BY opened_at ASC
`, string(domain.PositionStatusOpen))
	if err != nil {
		return nil, fmt.Errorf("query open positions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountOpenedSince 自 cutoff 起开仓的数量（用于日内开仓上限）
func (s *Store) CountOpenedSince(ctx context.Context, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM positions WHERE opened_at >= ?`,
		cutoff.Format(time.RFC3339Nano)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count opened: %w", err)
	}
	return n, nil
}

// InsertExitEvaluation 落库一次退出评估
func (s *Store) InsertExitEvaluation(ctx context.Context, e *domain.ExitEvaluation, dec domain.ExitDecision) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO exit_evaluations (
  position_id, state, option_pnl, pm_actual_pnl, pm_theoretical,
  opportunity_pnl, total_actual_pnl, exit_cost_usd, action, reason, evaluated_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?)
`,
		e.PositionID, string(e.State), e.OptionPnL, e.PMActualPnL, e.PMTheoretical,
		e.OpportunityPnL, e.TotalActualPnL, e.ExitCostUSD, string(dec.Action), dec.Reason,
		e.EvaluatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert exit evaluation: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var p domain.Position
	var strategy int
	var status, exitState, optionExpiry, eventExpiry, openedAt string
	var closedAt sql.NullString
	if err := row.Scan(
		&p.ID, &p.MarketID, &strategy, &status, &exitState, &p.Contracts, &p.Tokens,
		&p.K1, &p.K2, &p.KPoly, &p.EntryPrice, &p.StakeUSD, &p.SpreadPremium, &p.MarginUSD,
		&optionExpiry, &eventExpiry, &openedAt, &closedAt, &p.SettlementPrice, &p.OptionPnL,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan position: %w", err)
	}
	p.Strategy = domain.StrategyKind(strategy)
	p.Status = domain.PositionStatus(status)
	p.ExitState = domain.ExitState(exitState)
	p.OptionExpiry, _ = time.Parse(time.RFC3339Nano, optionExpiry)
	p.EventExpiry, _ = time.Parse(time.RFC3339Nano, eventExpiry)
	p.OpenedAt, _ = time.Parse(time.RFC3339Nano, openedAt)
	if closedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, closedAt.String)
		p.ClosedAt = &t
	}
	return &p, nil
}
