package pricing

import (
	"fmt"
	"math"
	"sort"

	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
)

// GridConfig 价格网格参数
type GridConfig struct {
	StepUSD float64 // [K1, K2] 区间内的固定步长
	TailUSD float64 // 两侧尾部延伸宽度
}

// DefaultGridConfig 默认网格参数
func DefaultGridConfig() GridConfig {
	return GridConfig{StepUSD: 250, TailUSD: 10000}
}

// PayoffEngine 组合到期收益与期望收益计算引擎。
// 无状态、只读，不做任何 I/O。
type PayoffEngine struct {
	pricer *Pricer
	cfg    GridConfig
}

// NewPayoffEngine 创建收益引擎
func NewPayoffEngine(pricer *Pricer, cfg GridConfig) *PayoffEngine {
	if cfg.StepUSD <= 0 {
		cfg = DefaultGridConfig()
	}
	return &PayoffEngine{pricer: pricer, cfg: cfg}
}

// BuildGrid 构造积分用价格网格：
// 两侧各一个尾部点，[K1,K2] 内按固定步长取点，并强制插入 K_poly。
// 返回升序去重后的网格。
func (e *PayoffEngine) BuildGrid(k1, k2, kPoly float64) []float64 {
	points := []float64{math.Max(k1-e.cfg.TailUSD, 0), k2 + e.cfg.TailUSD}
	for p := k1; p <= k2+1e-9; p += e.cfg.StepUSD {
		points = append(points, p)
	}
	points = append(points, k2, kPoly)
	sort.Float64s(points)

	grid := points[:0]
	for _, p := range points {
		if len(grid) == 0 || p-grid[len(grid)-1] > 1e-9 {
			grid = append(grid, p)
		}
	}
	return grid
}

// EventLegPayoff 事件腿到期收益：
// 赢得事件得 (1/entry - 1)×stake，否则损失 stake。
// 策略一持有 YES（S_T > K_poly 获胜），策略二持有 NO（S_T < K_poly 获胜）。
func EventLegPayoff(kind domain.StrategyKind, settle, kPoly, entry, stake float64) float64 {
	win := settle > kPoly
	if kind == domain.StrategyBuyNoBuySpread {
		win = settle < kPoly
	}
	if win {
		return (1/entry - 1) * stake
	}
	return -stake
}

// spreadValue 牛市看涨价差的到期内在价值（单张）
func spreadValue(settle, k1, k2 float64) float64 {
	return math.Max(settle-k1, 0) - math.Max(settle-k2, 0)
}

// OptionLegPayoff 期权腿到期收益：
// 策略一卖出价差（premium 为收到的权利金），策略二买入价差（premium 为支付的权利金）。
func OptionLegPayoff(kind domain.StrategyKind, settle, k1, k2, premium, contracts float64) float64 {
	v := spreadValue(settle, k1, k2)
	if kind == domain.StrategyBuyYesSellSpread {
		return (premium - v) * contracts
	}
	return (v - premium) * contracts
}

// EVInputs 期望收益计算输入
type EVInputs struct {
	Kind      domain.StrategyKind
	Spot      float64
	K1, K2    float64
	KPoly     float64
	Vol       float64 // K1 腿隐含波动率，全网格统一使用
	T         float64 // 期权剩余时间（年）
	EventT    float64 // 事件结算剩余时间（年），≥ T
	Entry     float64 // PM 成交均价
	Stake     float64
	Premium   float64 // 价差权利金（单张，正数）
	Contracts float64
}

// EVResult 期望收益分解
type EVResult struct {
	EventEV  float64 // 事件腿期望收益
	OptionEV float64 // 期权腿期望收益
	GrossEV  float64 // 二者之和
	ProbWin  float64 // 事件获胜概率
}

// GrossEV 在价格网格上对两条腿积分。
// 区间概率 = Φ(d2(左端点)) − Φ(d2(右端点))，收益在区间中点取值。
// 事件腿使用 EventT 积分（PM 结算晚于期权到期）。
func (e *PayoffEngine) GrossEV(in EVInputs) (EVResult, error) {
	if in.Entry <= 0 || in.Entry >= 1 {
		return EVResult{}, fmt.Errorf("ev: entry price %.4f out of (0,1)", in.Entry)
	}
	if in.K2 <= in.K1 {
		return EVResult{}, fmt.Errorf("ev: K2 %.0f must be > K1 %.0f", in.K2, in.K1)
	}
	eventT := in.EventT
	if eventT < in.T {
		eventT = in.T
	}

	grid := e.BuildGrid(in.K1, in.K2, in.KPoly)
	var res EVResult
	for i := 0; i+1 < len(grid); i++ {
		lo, hi := grid[i], grid[i+1]
		mid := (lo + hi) / 2

		pOpt := e.intervalProb(in.Spot, lo, hi, in.T, in.Vol)
		pEvt := e.intervalProb(in.Spot, lo, hi, eventT, in.Vol)

		res.OptionEV += pOpt * OptionLegPayoff(in.Kind, mid, in.K1, in.K2, in.Premium, in.Contracts)
		res.EventEV += pEvt * EventLegPayoff(in.Kind, mid, in.KPoly, in.Entry, in.Stake)
	}
	// 最低尾部以下与最高尾部以上的剩余概率并入两端收益
	first, last := grid[0], grid[len(grid)-1]
	pBelow := 1 - e.pricer.ProbAbove(in.Spot, first, in.T, in.Vol)
	pAbove := e.pricer.ProbAbove(in.Spot, last, in.T, in.Vol)
	res.OptionEV += pBelow*OptionLegPayoff(in.Kind, first-1, in.K1, in.K2, in.Premium, in.Contracts) +
		pAbove*OptionLegPayoff(in.Kind, last+1, in.K1, in.K2, in.Premium, in.Contracts)
	pBelowEvt := 1 - e.pricer.ProbAbove(in.Spot, first, eventT, in.Vol)
	pAboveEvt := e.pricer.ProbAbove(in.Spot, last, eventT, in.Vol)
	res.EventEV += pBelowEvt*EventLegPayoff(in.Kind, first-1, in.KPoly, in.Entry, in.Stake) +
		pAboveEvt*EventLegPayoff(in.Kind, last+1, in.KPoly, in.Entry, in.Stake)

	res.GrossEV = res.EventEV + res.OptionEV
	res.ProbWin = e.pricer.ProbAbove(in.Spot, in.KPoly, eventT, in.Vol)
	if in.Kind == domain.StrategyBuyNoBuySpread {
		res.ProbWin = 1 - res.ProbWin
	}
	return res, nil
}

// intervalProb P(lo ≤ S_T < hi)
func (e *PayoffEngine) intervalProb(spot, lo, hi, t, vol float64) float64 {
	p := e.pricer.ProbAbove(spot, lo, t, vol) - e.pricer.ProbAbove(spot, hi, t, vol)
	if p < 0 {
		return 0
	}
	return p
}
