package filters

import (
	"fmt"

	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
)

// TradeConfig 下单阶段过滤参数（全部为硬约束）
type TradeConfig struct {
	MaxStakeUSD          float64 `yaml:"max_stake_usd"`          // 单笔最大投入
	AllowDuplicateMarket bool    `yaml:"allow_duplicate_market"` // 允许同一市场重复开仓
	MaxDailyTrades       int     `yaml:"max_daily_trades"`       // 每日最大开仓数
	MaxOpenPositions     int     `yaml:"max_open_positions"`     // 最大同时持仓数
	MinContracts         float64 `yaml:"min_contracts"`          // 最小合约张数
	MinNetEV             float64 `yaml:"min_net_ev"`             // 净 EV 下限
	MinROI               float64 `yaml:"min_roi"`                // ROI 下限（%）
	MinProbEdge          float64 `yaml:"min_prob_edge"`          // 概率边际下限
	PriceFloor           float64 `yaml:"price_floor"`            // PM 价格下限
	PriceCeiling         float64 `yaml:"price_ceiling"`          // PM 价格上限
	DepthMultiplier      float64 `yaml:"depth_multiplier"`       // 盘口深度需达下单量的倍数
	MaxAdjustPct         float64 `yaml:"max_adjust_pct"`         // 实际张数与理论张数最大偏离
}

// DefaultTradeConfig 默认下单约束
func DefaultTradeConfig() TradeConfig {
	return TradeConfig{
		MaxStakeUSD:      200,
		MaxDailyTrades:   1,
		MaxOpenPositions: 3,
		MinContracts:     0.1,
		MinNetEV:         0,
		MinROI:           1.0,
		MinProbEdge:      0.01,
		PriceFloor:       0.01,
		PriceCeiling:     0.99,
		DepthMultiplier:  2.0,
		MaxAdjustPct:     0.30,
	}
}

// TradeContext 账户与市场侧的实时状态，由调用方采集后传入
type TradeContext struct {
	OpenPositions     int     // 当前持仓数
	TradesToday       int     // 今日已开仓数
	HasPositionInMkt  bool    // 该市场是否已有持仓
	BookDepthShares   float64 // 目标侧盘口总深度（token）
	ExactContracts    float64 // 理论张数（取整前）
	AdjustedContracts float64 // 取整后张数
}

// TradeFilter 下单阶段：全部检查通过才允许开仓。
// 与记录阶段不同，任何一项失败即拦截。
type TradeFilter struct {
	cfg TradeConfig
}

// NewTradeFilter 创建下单过滤器
func NewTradeFilter(cfg TradeConfig) *TradeFilter {
	return &TradeFilter{cfg: cfg}
}

// ShouldTrade 逐项检查；返回全部检查明细便于审计落库
func (f *TradeFilter) ShouldTrade(res *domain.StrategyResult, stakeUSD float64, ctx TradeContext) domain.FilterVerdict {
	var v domain.FilterVerdict
	check := func(name string, passed bool, detail string) {
		v.Checks = append(v.Checks, domain.CheckResult{Name: name, Passed: passed, Detail: detail})
	}

	check("tradable", res.Tradable, res.Reason)
	check("stake_cap", stakeUSD <= f.cfg.MaxStakeUSD,
		fmt.Sprintf("stake=%.2f cap=%.2f", stakeUSD, f.cfg.MaxStakeUSD))
	check("daily_trades", ctx.TradesToday < f.cfg.MaxDailyTrades,
		fmt.Sprintf("today=%d max=%d", ctx.TradesToday, f.cfg.MaxDailyTrades))
	check("open_positions", ctx.OpenPositions < f.cfg.MaxOpenPositions,
		fmt.Sprintf("open=%d max=%d", ctx.OpenPositions, f.cfg.MaxOpenPositions))
	check("no_duplicate_market", f.cfg.AllowDuplicateMarket || !ctx.HasPositionInMkt, "")
	check("min_contracts", res.Contracts >= f.cfg.MinContracts,
		fmt.Sprintf("contracts=%.4f min=%.2f", res.Contracts, f.cfg.MinContracts))
	check("net_ev", res.NetEV >= f.cfg.MinNetEV,
		fmt.Sprintf("netEV=%.4f min=%.2f", res.NetEV, f.cfg.MinNetEV))
	check("roi", res.ROI >= f.cfg.MinROI,
		fmt.Sprintf("roi=%.2f%% min=%.2f%%", res.ROI, f.cfg.MinROI))
	check("prob_edge", res.ProbEdge >= f.cfg.MinProbEdge,
		fmt.Sprintf("edge=%.4f min=%.4f", res.ProbEdge, f.cfg.MinProbEdge))
	check("price_band",
		res.EntryPrice > f.cfg.PriceFloor && res.EntryPrice < f.cfg.PriceCeiling,
		fmt.Sprintf("entry=%.4f band=(%.2f,%.2f)", res.EntryPrice, f.cfg.PriceFloor, f.cfg.PriceCeiling))
	check("book_depth", ctx.BookDepthShares >= res.Tokens*f.cfg.DepthMultiplier,
		fmt.Sprintf("depth=%.0f need=%.0f", ctx.BookDepthShares, res.Tokens*f.cfg.DepthMultiplier))

	adjustOK := true
	if ctx.ExactContracts > 0 {
		dev := abs(ctx.AdjustedContracts-ctx.ExactContracts) / ctx.ExactContracts
		adjustOK = dev <= f.cfg.MaxAdjustPct
		check("contract_adjust", adjustOK, fmt.Sprintf("dev=%.1f%% max=%.0f%%", dev*100, f.cfg.MaxAdjustPct*100))
	}

	v.Passed = true
	for _, c := range v.Checks {
		if !c.Passed {
			v.Passed = false
			break
		}
	}
	return v
}
