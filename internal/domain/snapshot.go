package domain

import (
	"fmt"
	"time"

	"github.com/lazylemoncat/ProArb-MVP/pkg/orderbook"
)

// OptionQuote 单个行权价的期权盘口（USD 计价）
type OptionQuote struct {
	Strike  float64 // 行权价
	BidUSD  float64 // 最优买价
	AskUSD  float64 // 最优卖价
	MarkVol float64 // 年化隐含波动率（小数，例如 0.70）
}

// Mid 中间价
func (q OptionQuote) Mid() float64 {
	return (q.BidUSD + q.AskUSD) / 2
}

// MarketSnapshot 单个评估周期的完整市场快照。
// 采集后不可变；定价引擎只读，不做任何 I/O。
type MarketSnapshot struct {
	MarketID string // PM 市场标识（condition id 或 slug）
	Title    string // 市场标题

	Spot  float64     // 标的现货/指数价格（USD）
	K1    OptionQuote // 低行权价腿
	K2    OptionQuote // 高行权价腿
	KPoly float64     // PM 事件结算阈值价格

	YesBid float64 // PM YES 最优买价（0-1）
	YesAsk float64 // PM YES 最优卖价
	NoBid  float64 // PM NO 最优买价
	NoAsk  float64 // PM NO 最优卖价

	YesBook orderbook.Book // YES 侧可吃单深度（买入用 asks）
	NoBook  orderbook.Book // NO 侧可吃单深度

	TimeToExpiry float64 // 期权剩余时间（年）
	DailyExpiry  bool    // 是否日内到期合约（决定 settlement fee 是否为 0）

	Timestamp time.Time // 快照时间
}

// Validate 校验快照完整性。缺字段返回错误，由调用方跳过本周期（不做部分评估）。
func (s *MarketSnapshot) Validate() error {
	if s.MarketID == "" {
		return fmt.Errorf("snapshot: market id is empty")
	}
	if s.Spot <= 0 {
		return fmt.Errorf("snapshot %s: spot price missing", s.MarketID)
	}
	if s.K1.Strike <= 0 || s.K2.Strike <= 0 {
		return fmt.Errorf("snapshot %s: strikes missing", s.MarketID)
	}
	if s.K2.Strike <= s.K1.Strike {
		return fmt.Errorf("snapshot %s: K2 (%.0f) must be > K1 (%.0f)", s.MarketID, s.K2.Strike, s.K1.Strike)
	}
	if s.KPoly <= 0 {
		return fmt.Errorf("snapshot %s: event threshold missing", s.MarketID)
	}
	if s.K1.MarkVol <= 0 {
		return fmt.Errorf("snapshot %s: K1 mark vol missing", s.MarketID)
	}
	if s.YesAsk <= 0 || s.NoAsk <= 0 {
		return fmt.Errorf("snapshot %s: event market quotes missing", s.MarketID)
	}
	if s.Timestamp.IsZero() {
		return fmt.Errorf("snapshot %s: timestamp missing", s.MarketID)
	}
	return nil
}

// FeeSchedule 交易所费率表
type FeeSchedule struct {
	FeeCapRate     float64 // taker fee = min(feeCapRate × index, priceCapRate × option) × contracts
	PriceCapRate   float64 // 期权价格封顶比例（Deribit 0.125）
	SettlementRate float64 // 结算费率（日内到期为 0）
	GasOpenUSD     float64 // 开仓链上 gas（固定 USD）
	GasCloseUSD    float64 // 平仓链上 gas
}

// StrategyInput 一次评估的输入 = 快照 + 配置。每周期构造，不落库。
type StrategyInput struct {
	Snapshot MarketSnapshot

	StakeUSD     float64     // 目标投入名义金额
	RiskFreeRate float64     // 年化无风险利率
	Fees         FeeSchedule // 费率表

	// PM bid+ask 残差（和可能不等于 1）是否计入 edge；默认忽略
	TreatResidualAsEdge bool
}
