package costs

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
	"github.com/lazylemoncat/ProArb-MVP/pkg/orderbook"
)

// Model 全链路成本模型：PM 滑点、期权费用与滑点、结算费、gas、资金占用。
type Model struct {
	Fees        domain.FeeSchedule
	HoldingRate float64 // 年化资金占用成本率
}

// NewModel 创建成本模型
func NewModel(fees domain.FeeSchedule, holdingRate float64) *Model {
	return &Model{Fees: fees, HoldingRate: holdingRate}
}

// PMFill PM 盘口吃单结果
type PMFill struct {
	AvgPrice    float64 // 成交均价
	Shares      float64 // 成交 token 数
	SlippageUSD float64 // 相对最优价的滑点成本
}

// SimulatePMEntry 在 ask 盘口上按 USD 金额吃单，返回均价、数量与滑点。
// 深度不足返回 orderbook.ErrInsufficientLiquidity。
func (m *Model) SimulatePMEntry(book orderbook.Book, stakeUSD float64) (PMFill, error) {
	if stakeUSD <= 0 {
		return PMFill{}, fmt.Errorf("costs: stake %.2f must be positive", stakeUSD)
	}
	res, err := book.SimulateFill(decimal.NewFromFloat(stakeUSD), orderbook.SideBuy, orderbook.AmountUSD)
	if err != nil {
		return PMFill{}, err
	}
	avg, _ := res.AvgPrice.Float64()
	shares, _ := res.Shares.Float64()
	best, _ := res.BestPrice.Float64()
	return PMFill{
		AvgPrice:    avg,
		Shares:      shares,
		SlippageUSD: (avg - best) * shares,
	}, nil
}

// takerFee 单腿 taker 费：min(feeCapRate × index, priceCapRate × 期权价) × 张数
func (m *Model) takerFee(indexPrice, optionPrice, contracts float64) float64 {
	return math.Min(m.Fees.FeeCapRate*indexPrice, m.Fees.PriceCapRate*optionPrice) * contracts
}

// SpreadFees 价差组合的 taker 费。组合单享受费用折扣：只收两腿中较高的一腿。
func (m *Model) SpreadFees(indexPrice, k1Price, k2Price, contracts float64) float64 {
	f1 := m.takerFee(indexPrice, k1Price, contracts)
	f2 := m.takerFee(indexPrice, k2Price, contracts)
	return math.Max(f1, f2)
}

// SpreadSlippage 两腿各按半个买卖价差计滑点
func (m *Model) SpreadSlippage(k1 domain.OptionQuote, k2 domain.OptionQuote, contracts float64) float64 {
	half := (k1.AskUSD-k1.BidUSD)/2 + (k2.AskUSD-k2.BidUSD)/2
	return half * contracts
}

// SettlementFee 到期结算费：min(settlementRate × 交割价, priceCapRate × 期权价值) × 张数。
// 日内到期合约免结算费。
func (m *Model) SettlementFee(settlePrice, optionValue, contracts float64, dailyExpiry bool) float64 {
	if dailyExpiry || optionValue <= 0 {
		return 0
	}
	return math.Min(m.Fees.SettlementRate*settlePrice, m.Fees.PriceCapRate*optionValue) * contracts
}

// HoldingCost 资金占用成本 = 年化率 × (保证金 + PM 投入) × 天数/365
func (m *Model) HoldingCost(marginUSD, stakeUSD, days float64) float64 {
	if days < 0 {
		days = 0
	}
	return m.HoldingRate * (marginUSD + stakeUSD) * days / 365
}

// Gas 开仓 + 平仓的固定链上成本
func (m *Model) Gas() float64 {
	return m.Fees.GasOpenUSD + m.Fees.GasCloseUSD
}

// BreakdownInputs 一次完整成本拆解的输入
type BreakdownInputs struct {
	Snapshot  *domain.MarketSnapshot
	Kind      domain.StrategyKind
	StakeUSD  float64
	Contracts float64
	MarginUSD float64
	Fill      PMFill
}

// Breakdown 汇总全部成本项
func (m *Model) Breakdown(in BreakdownInputs) domain.CostBreakdown {
	s := in.Snapshot
	days := s.TimeToExpiry * 365

	// 策略一卖 K1 买回 K2（按 bid/ask 成交价计费），策略二相反
	k1Price, k2Price := s.K1.BidUSD, s.K2.AskUSD
	if in.Kind == domain.StrategyBuyNoBuySpread {
		k1Price, k2Price = s.K1.AskUSD, s.K2.BidUSD
	}

	return domain.CostBreakdown{
		PMSlippage:     in.Fill.SlippageUSD,
		OptionFees:     m.SpreadFees(s.Spot, k1Price, k2Price, in.Contracts),
		OptionSlippage: m.SpreadSlippage(s.K1, s.K2, in.Contracts),
		SettlementFee:  m.SettlementFee(s.Spot, spreadSettleValue(s), in.Contracts, s.DailyExpiry),
		Gas:            m.Gas(),
		HoldingCost:    m.HoldingCost(in.MarginUSD, in.StakeUSD, days),
	}
}

// spreadSettleValue 结算费基数：按现价估算的价差内在价值
func spreadSettleValue(s *domain.MarketSnapshot) float64 {
	return math.Max(s.Spot-s.K1.Strike, 0) - math.Max(s.Spot-s.K2.Strike, 0)
}
