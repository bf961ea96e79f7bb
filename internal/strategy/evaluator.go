package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/lazylemoncat/ProArb-MVP/internal/costs"
	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
	"github.com/lazylemoncat/ProArb-MVP/internal/margin"
	"github.com/lazylemoncat/ProArb-MVP/internal/pricing"
	"github.com/lazylemoncat/ProArb-MVP/internal/sizing"
	"github.com/lazylemoncat/ProArb-MVP/pkg/logger"
)

// SettlementLagHours PM 结算晚于期权交割的时间差（小时）
const SettlementLagHours = 8

// Evaluator 每周期对一个市场评估两套策略并选出较优者。
// 纯计算组件：输入快照，输出结果,不触达网络与存储。
type Evaluator struct {
	pricer *pricing.Pricer
	payoff *pricing.PayoffEngine
	costs  *costs.Model
	margin *margin.Estimator
	sizer  *sizing.Sizer
}

// NewEvaluator 组装评估器
func NewEvaluator(
	pricer *pricing.Pricer,
	payoff *pricing.PayoffEngine,
	costModel *costs.Model,
	marginEst *margin.Estimator,
	sizer *sizing.Sizer,
) *Evaluator {
	return &Evaluator{pricer: pricer, payoff: payoff, costs: costModel, margin: marginEst, sizer: sizer}
}

// Evaluate 对单个市场跑完整评估。快照不完整直接返回错误，本周期跳过。
func (e *Evaluator) Evaluate(in domain.StrategyInput) (*domain.Evaluation, error) {
	if err := in.Snapshot.Validate(); err != nil {
		return nil, errors.Wrap(err, "evaluate")
	}

	ev := &domain.Evaluation{MarketID: in.Snapshot.MarketID}
	ev.S1 = e.evaluateOne(in, domain.StrategyBuyYesSellSpread)
	ev.S2 = e.evaluateOne(in, domain.StrategyBuyNoBuySpread)

	ev.Best = pickBest(ev.S1, ev.S2)
	return ev, nil
}

// pickBest netEV 较高且为正者；双负返回 nil
func pickBest(s1, s2 *domain.StrategyResult) *domain.StrategyResult {
	best := s1
	if s2.Tradable && (!s1.Tradable || s2.NetEV > s1.NetEV) {
		best = s2
	}
	if !best.Tradable || best.NetEV <= 0 {
		return nil
	}
	return best
}

// evaluateOne 评估单个策略；硬约束失败时返回 Tradable=false 的结果而非错误
func (e *Evaluator) evaluateOne(in domain.StrategyInput, kind domain.StrategyKind) *domain.StrategyResult {
	s := &in.Snapshot
	res := &domain.StrategyResult{
		MarketID:    s.MarketID,
		Strategy:    kind,
		EvaluatedAt: time.Now().UTC(),
	}

	// 1. PM 腿吃单模拟
	book := s.YesBook
	if kind == domain.StrategyBuyNoBuySpread {
		book = s.NoBook
	}
	fill, err := e.costs.SimulatePMEntry(book, in.StakeUSD)
	if err != nil {
		return untradable(res, fmt.Sprintf("pm fill: %v", err))
	}
	res.EntryPrice = fill.AvgPrice
	res.Tokens = fill.Shares

	// 2. 期权腿权利金
	premium := s.K1.BidUSD - s.K2.AskUSD // 策略一：卖价差收权利金
	if kind == domain.StrategyBuyNoBuySpread {
		premium = s.K1.AskUSD - s.K2.BidUSD // 策略二：买价差付权利金
	}
	if premium <= 0 {
		return untradable(res, fmt.Sprintf("spread premium %.2f not positive", premium))
	}

	// 3. 张数换算。取整被拒时继续用精确张数算 EV，只标记不可交易
	sized, sizeErr := e.sizer.Size(res.Tokens, s.K1.Strike, s.K2.Strike)
	res.Contracts = sized.Rounded
	if sizeErr != nil {
		res.Contracts = sized.Exact
	}

	// 4. 保证金
	res.MarginUSD, err = e.margin.Estimate(s, kind, res.Contracts)
	if err != nil {
		return untradable(res, fmt.Sprintf("margin: %v", err))
	}
	if kind == domain.StrategyBuyNoBuySpread {
		res.MarginUSD = premium * res.Contracts // 买方保证金即权利金
	}

	// 5. 成本拆解
	res.Costs = e.costs.Breakdown(costs.BreakdownInputs{
		Snapshot:  s,
		Kind:      kind,
		StakeUSD:  in.StakeUSD,
		Contracts: res.Contracts,
		MarginUSD: res.MarginUSD,
		Fill:      fill,
	})

	// 6. 毛 EV 积分（事件腿按 PM 延后结算的时间积分）
	eventT := s.TimeToExpiry + float64(SettlementLagHours)/24/365
	grossRes, err := e.payoff.GrossEV(pricing.EVInputs{
		Kind:  kind,
		Spot:  s.Spot,
		K1:    s.K1.Strike,
		K2:    s.K2.Strike,
		KPoly: s.KPoly,
		Vol:   s.K1.MarkVol,
		T:     s.TimeToExpiry, EventT: eventT,
		Entry: res.EntryPrice, Stake: in.StakeUSD,
		Premium: premium, Contracts: res.Contracts,
	})
	if err != nil {
		return untradable(res, fmt.Sprintf("ev: %v", err))
	}
	res.GrossEV = grossRes.GrossEV
	res.NetEV = res.GrossEV - res.Costs.Total()

	// 结算时间差修正：期权腿按到期时间、事件腿按延后时间各自积分后取差
	sameT, _ := e.payoff.GrossEV(pricing.EVInputs{
		Kind: kind, Spot: s.Spot, K1: s.K1.Strike, K2: s.K2.Strike, KPoly: s.KPoly,
		Vol: s.K1.MarkVol, T: s.TimeToExpiry, EventT: s.TimeToExpiry,
		Entry: res.EntryPrice, Stake: in.StakeUSD, Premium: premium, Contracts: res.Contracts,
	})
	res.SkewEV = res.NetEV
	if sameT != (pricing.EVResult{}) {
		res.SkewEV = res.NetEV - (sameT.GrossEV - grossRes.GrossEV)
	}

	// 7. 概率边际
	res.ProbITM = e.pricer.ProbAbove(s.Spot, s.KPoly, eventT, s.K1.MarkVol)
	pmProb := res.EntryPrice // YES 价即事件概率
	if kind == domain.StrategyBuyNoBuySpread {
		pmProb = 1 - res.EntryPrice
	}
	res.ProbEdge = math.Abs(res.ProbITM - pmProb)
	if in.TreatResidualAsEdge {
		residual := 1 - (s.YesAsk + s.NoAsk)
		res.ProbEdge += residual / 2
	}

	// 8. 收益率指标
	res.InvestmentUSD = res.MarginUSD + in.StakeUSD
	if res.InvestmentUSD > 0 {
		res.ROI = res.NetEV / res.InvestmentUSD * 100
	}
	days := math.Max(s.TimeToExpiry*365, 1.0/24)
	res.AnnualizedROI = res.ROI * 365 / days
	if s.K1.MarkVol > 0 {
		res.AnnualizedSharpe = (res.AnnualizedROI/100 - e.pricer.RiskFreeRate) / s.K1.MarkVol
	}

	res.Tradable = sizeErr == nil
	if sizeErr != nil {
		res.Reason = sizeErr.Error()
	}
	logger.Debugf("评估完成 market=%s strategy=%s tradable=%t netEV=%.2f roi=%.2f%%",
		s.MarketID, kind, res.Tradable, res.NetEV, res.ROI)
	return res
}

func untradable(res *domain.StrategyResult, reason string) *domain.StrategyResult {
	res.Tradable = false
	res.Reason = reason
	return res
}
