package domain

import "time"

// StrategyKind 策略编号
type StrategyKind int

const (
	// StrategyBuyYesSellSpread 策略一：买 YES，卖出牛市看涨价差（收权利金）
	StrategyBuyYesSellSpread StrategyKind = 1
	// StrategyBuyNoBuySpread 策略二：买 NO，买入牛市看涨价差（付权利金）
	StrategyBuyNoBuySpread StrategyKind = 2
)

func (k StrategyKind) String() string {
	switch k {
	case StrategyBuyYesSellSpread:
		return "S1_BUY_YES_SELL_SPREAD"
	case StrategyBuyNoBuySpread:
		return "S2_BUY_NO_BUY_SPREAD"
	default:
		return "UNKNOWN"
	}
}

// CostBreakdown 成本逐项拆解，全部为正数 USD
type CostBreakdown struct {
	PMSlippage     float64 `json:"pm_slippage"`     // PM 盘口吃单滑点
	OptionFees     float64 `json:"option_fees"`     // 期权 taker 费（组合折扣后）
	OptionSlippage float64 `json:"option_slippage"` // 期权腿半价差滑点
	SettlementFee  float64 `json:"settlement_fee"`  // 结算费（日内到期为 0）
	Gas            float64 `json:"gas"`             // 开+平仓 gas
	HoldingCost    float64 `json:"holding_cost"`    // 资金占用成本
}

// Total 成本合计
func (c CostBreakdown) Total() float64 {
	return c.PMSlippage + c.OptionFees + c.OptionSlippage + c.SettlementFee + c.Gas + c.HoldingCost
}

// StrategyResult 单个策略的完整评估结果
type StrategyResult struct {
	MarketID string       `json:"market_id"`
	Strategy StrategyKind `json:"strategy"`

	Tradable bool   `json:"tradable"`         // 合约数/价差等硬约束是否通过
	Reason   string `json:"reason,omitempty"` // 不可交易原因

	Contracts  float64 `json:"contracts"`   // 期权合约数量
	Tokens     float64 `json:"tokens"`      // PM token 数量
	EntryPrice float64 `json:"entry_price"` // PM 成交均价（含滑点）

	ProbITM   float64 `json:"prob_itm"`   // 风险中性 P(S_T > K_poly)
	ProbEdge  float64 `json:"prob_edge"`  // |理论概率 - PM 价格|
	GrossEV   float64 `json:"gross_ev"`   // 毛期望收益 USD
	NetEV     float64 `json:"net_ev"`     // 毛 EV - 成本合计
	SkewEV    float64 `json:"skew_ev"`    // 结算时间差修正后的净 EV
	MarginUSD float64 `json:"margin_usd"` // PME 保证金估计

	Costs CostBreakdown `json:"costs"`

	InvestmentUSD    float64 `json:"investment_usd"`    // 总资金占用（保证金+PM 投入）
	ROI              float64 `json:"roi"`               // NetEV / InvestmentUSD（%）
	AnnualizedROI    float64 `json:"annualized_roi"`    // 年化 ROI（%）
	AnnualizedSharpe float64 `json:"annualized_sharpe"` // 年化 Sharpe 估计

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Evaluation 一个市场一次周期的双策略结果
type Evaluation struct {
	MarketID string          `json:"market_id"`
	S1       *StrategyResult `json:"s1,omitempty"`
	S2       *StrategyResult `json:"s2,omitempty"`
	Best     *StrategyResult `json:"best,omitempty"` // netEV 较高者；二者皆 ≤0 时为 nil
}
