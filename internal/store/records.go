package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
)

// InsertRecord 追加一条信号记录（只增不改）。
// 快照字段一并落库，离线回放时不依赖行情可复算 EV。
func (s *Store) InsertRecord(ctx context.Context, r *domain.StrategyResult, snap *domain.MarketSnapshot) error {
	// 策略一卖 K1 买 K2（bid/ask 成交），策略二相反
	netPremium := snap.K1.BidUSD - snap.K2.AskUSD
	if r.Strategy == domain.StrategyBuyNoBuySpread {
		netPremium = snap.K1.AskUSD - snap.K2.BidUSD
	}
	entryCost := r.Costs.PMSlippage + r.Costs.OptionFees + r.Costs.OptionSlippage + r.Costs.Gas
	exitCost := r.Costs.SettlementFee

	_, err := s.db.ExecContext(ctx, `
INSERT INTO signal_records (
  market_id, title, strategy, tradable, reason, contracts, tokens, entry_price,
  k1, k2, k_poly, yes_bid, yes_ask, no_bid, no_ask,
  index_price, mark_vol, k1_bid, k1_ask, k2_bid, k2_ask, net_premium,
  prob_itm, prob_edge, gross_ev, net_ev, skew_ev, margin_usd,
  cost_pm_slippage, cost_option_fees, cost_option_slippage, cost_settlement, cost_gas, cost_holding,
  total_entry_cost, total_exit_cost,
  investment_usd, roi, annualized_roi, annualized_sharpe, evaluated_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
`,
		r.MarketID, snap.Title, int(r.Strategy), boolInt(r.Tradable), r.Reason, r.Contracts, r.Tokens, r.EntryPrice,
		snap.K1.Strike, snap.K2.Strike, snap.KPoly, snap.YesBid, snap.YesAsk, snap.NoBid, snap.NoAsk,
		snap.Spot, snap.K1.MarkVol, snap.K1.BidUSD, snap.K1.AskUSD, snap.K2.BidUSD, snap.K2.AskUSD, netPremium,
		r.ProbITM, r.ProbEdge, r.GrossEV, r.NetEV, r.SkewEV, r.MarginUSD,
		r.Costs.PMSlippage, r.Costs.OptionFees, r.Costs.OptionSlippage, r.Costs.SettlementFee, r.Costs.Gas, r.Costs.HoldingCost,
		entryCost, exitCost,
		r.InvestmentUSD, r.ROI, r.AnnualizedROI, r.AnnualizedSharpe, r.EvaluatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// RecentRecords 按时间倒序取某市场最近 n 条记录
func (s *Store) RecentRecords(ctx context.Context, marketID string, n int) ([]domain.StrategyResult, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT market_id, strategy, tradable, reason, contracts, tokens, entry_price,
  prob_itm, prob_edge, gross_ev, net_ev, skew_ev, margin_usd,
  cost_pm_slippage, cost_option_fees, cost_option_slippage, cost_settlement, cost_gas, cost_holding,
  investment_usd, roi, annualized_roi, annualized_sharpe, evaluated_at
FROM signal_records WHERE market_id = ? ORDER BY evaluated_at DESC LIMIT ?
`, marketID, n)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []domain.StrategyResult
	for rows.Next() {
		var r domain.StrategyResult
		var strategy, tradable int
		var ts string
		if err := rows.Scan(
			&r.MarketID, &strategy, &tradable, &r.Reason, &r.Contracts, &r.Tokens, &r.EntryPrice,
			&r.ProbITM, &r.ProbEdge, &r.GrossEV, &r.NetEV, &r.SkewEV, &r.MarginUSD,
			&r.Costs.PMSlippage, &r.Costs.OptionFees, &r.Costs.OptionSlippage, &r.Costs.SettlementFee, &r.Costs.Gas, &r.Costs.HoldingCost,
			&r.InvestmentUSD, &r.ROI, &r.AnnualizedROI, &r.AnnualizedSharpe, &ts,
		); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Strategy = domain.StrategyKind(strategy)
		r.Tradable = tradable != 0
		r.EvaluatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
