package earlyexit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
	"github.com/lazylemoncat/ProArb-MVP/internal/pricing"
	"github.com/lazylemoncat/ProArb-MVP/pkg/logger"
	"github.com/lazylemoncat/ProArb-MVP/pkg/orderbook"
)

// Config 提前退出规则参数
type Config struct {
	MonitorWindowSec int     `yaml:"monitor_window_sec"` // 到期前多少秒进入 MONITORING
	WindowStartUTC   int     `yaml:"window_start_utc"`   // 允许退出的 UTC 起始小时
	WindowEndUTC     int     `yaml:"window_end_utc"`     // 允许退出的 UTC 结束小时
	LossThresholdPct float64 `yaml:"loss_threshold_pct"` // 亏损容忍比例（相对总投入）
	PriceFloor       float64 `yaml:"price_floor"`        // 可退出的 PM 价格下限
	PriceCeiling     float64 `yaml:"price_ceiling"`      // 可退出的 PM 价格上限
	DepthMultiplier  float64 `yaml:"depth_multiplier"`   // 盘口深度需达持仓量的倍数
	GasCloseUSD      float64 `yaml:"gas_close_usd"`      // 平仓 gas
}

// DefaultConfig 默认退出规则
func DefaultConfig() Config {
	return Config{
		MonitorWindowSec: 300,
		WindowStartUTC:   8,
		WindowEndUTC:     16,
		LossThresholdPct: 0.05,
		PriceFloor:       0.001,
		PriceCeiling:     0.999,
		DepthMultiplier:  2.0,
		GasCloseUSD:      0.1,
	}
}

// Snapshot 退出评估所需的实时市场状态
type Snapshot struct {
	SettlementPrice float64        // 期权交割价（DR）
	ExitBook        orderbook.Book // 持仓方向的 bid 盘口（卖出退出用）
}

// Engine 提前退出决策引擎。
// WAITING → MONITORING（到期前窗口）→ EXPIRED（期权已交割，逐轮评估）→ TRIGGERED。
// 期权交割后、PM 结算前比较立即退出与持有到结算，按盈亏规则给出 HOLD/EXIT/STOP。
// 本引擎是 Position 退出状态的唯一写入方。
type Engine struct {
	cfg Config
}

// NewEngine 创建引擎
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Decide 对单个持仓做一次退出决策。
// 已平仓持仓天然幂等：直接返回 HOLD，不做任何计算或状态变更。
func (e *Engine) Decide(pos *domain.Position, snap Snapshot, now time.Time) domain.ExitDecision {
	if !pos.IsOpen() {
		logger.Warnf("已平仓持仓 %s 跳过退出评估", pos.ID)
		return domain.ExitDecision{Action: domain.ExitActionHold, Reason: "position already closed"}
	}

	window := time.Duration(e.cfg.MonitorWindowSec) * time.Second
	if now.Before(pos.OptionExpiry.Add(-window)) {
		pos.ExitState = domain.ExitStateWaiting
		return domain.ExitDecision{Action: domain.ExitActionHold, Reason: "option leg not yet near expiry"}
	}
	if now.Before(pos.OptionExpiry) {
		pos.ExitState = domain.ExitStateMonitoring
		return domain.ExitDecision{Action: domain.ExitActionHold, Reason: "awaiting option settlement"}
	}
	// 期权已交割：进入 EXPIRED 并立即评估
	pos.ExitState = domain.ExitStateExpired
	if !now.Before(pos.EventExpiry) {
		return domain.ExitDecision{Action: domain.ExitActionHold, Reason: "event market already settled"}
	}

	eval := e.Analyze(pos, snap, now)
	dec := e.decideFrom(pos, eval)
	if dec.Action != domain.ExitActionHold {
		pos.ExitState = domain.ExitStateTriggered
		pos.SettlementPrice = snap.SettlementPrice
		pos.OptionPnL = eval.OptionPnL
		logger.Infof("提前退出触发 position=%s action=%s pnl=%.2f", pos.ID, dec.Action, eval.TotalActualPnL)
	}
	return dec
}

// Analyze 计算退出评估明细：期权腿已实现盈亏、PM 立即退出盈亏（含退出费用）、
// 持有到结算的理论盈亏，以及放弃持有的机会成本。
func (e *Engine) Analyze(pos *domain.Position, snap Snapshot, now time.Time) *domain.ExitEvaluation {
	eval := &domain.ExitEvaluation{
		PositionID:  pos.ID,
		State:       pos.ExitState,
		EvaluatedAt: now,
	}

	// 期权腿按交割价结算，与开仓同一套收益规则
	eval.OptionPnL = pricing.OptionLegPayoff(
		pos.Strategy, snap.SettlementPrice, pos.K1, pos.K2, pos.SpreadPremium, pos.Contracts)

	// PM 腿：吃 bid 盘口立即卖出，扣除退出费用
	exitValue, exitPrice, fillOK := e.simulateExit(snap.ExitBook, pos.Tokens)
	eval.ExitCostUSD = e.cfg.GasCloseUSD
	eval.PMActualPnL = exitValue - pos.StakeUSD - eval.ExitCostUSD

	// 理论值：PM 按交割价对阈值做 $1/$0 确定性结算
	won := snap.SettlementPrice > pos.KPoly
	if pos.Strategy == domain.StrategyBuyNoBuySpread {
		won = !won
	}
	if won {
		eval.PMTheoretical = pos.Tokens - pos.StakeUSD
	} else {
		eval.PMTheoretical = -pos.StakeUSD
	}
	eval.OpportunityPnL = eval.PMTheoretical - eval.PMActualPnL
	eval.TotalActualPnL = eval.OptionPnL + eval.PMActualPnL

	// 可退出性检查
	h := now.UTC().Hour()
	eval.Checks = append(eval.Checks,
		domain.CheckResult{
			Name:   "exit_window",
			Passed: h >= e.cfg.WindowStartUTC && h < e.cfg.WindowEndUTC,
			Detail: fmt.Sprintf("hour=%02d window=[%02d,%02d)", h, e.cfg.WindowStartUTC, e.cfg.WindowEndUTC),
		},
		domain.CheckResult{
			Name:   "exit_fill",
			Passed: fillOK,
			Detail: fmt.Sprintf("tokens=%.0f", pos.Tokens),
		},
		domain.CheckResult{
			Name:   "price_band",
			Passed: fillOK && exitPrice > e.cfg.PriceFloor && exitPrice < e.cfg.PriceCeiling,
			Detail: fmt.Sprintf("price=%.4f band=(%.3f,%.3f)", exitPrice, e.cfg.PriceFloor, e.cfg.PriceCeiling),
		},
		domain.CheckResult{
			Name:   "book_depth",
			Passed: bookDepth(snap.ExitBook) >= pos.Tokens*e.cfg.DepthMultiplier,
			Detail: fmt.Sprintf("depth=%.0f need=%.0f", bookDepth(snap.ExitBook), pos.Tokens*e.cfg.DepthMultiplier),
		},
	)
	return eval
}

// decideFrom 套用盈亏规则：有盈利即退出；小亏继续持有；大亏止损。
func (e *Engine) decideFrom(pos *domain.Position, eval *domain.ExitEvaluation) domain.ExitDecision {
	for _, c := range eval.Checks {
		if !c.Passed {
			return domain.ExitDecision{
				Action:     domain.ExitActionHold,
				Reason:     fmt.Sprintf("check %s failed: %s", c.Name, c.Detail),
				Evaluation: eval,
			}
		}
	}

	invested := pos.MarginUSD + pos.StakeUSD
	switch {
	case eval.TotalActualPnL >= 0:
		return domain.ExitDecision{Action: domain.ExitActionExit, Reason: "locking in profit", Evaluation: eval}
	case invested > 0 && -eval.TotalActualPnL/invested <= e.cfg.LossThresholdPct:
		return domain.ExitDecision{
			Action:     domain.ExitActionHold,
			Reason:     fmt.Sprintf("loss %.2f within %.0f%% tolerance", -eval.TotalActualPnL, e.cfg.LossThresholdPct*100),
			Evaluation: eval,
		}
	default:
		return domain.ExitDecision{Action: domain.ExitActionStop, Reason: "loss beyond tolerance", Evaluation: eval}
	}
}

// simulateExit 按份额吃 bid 盘口，返回可得金额与均价
func (e *Engine) simulateExit(book orderbook.Book, tokens float64) (value, avgPrice float64, ok bool) {
	res, err := book.SimulateFill(decimal.NewFromFloat(tokens), orderbook.SideSell, orderbook.AmountShares)
	if err != nil {
		return 0, 0, false
	}
	value, _ = res.TotalCost.Float64()
	avgPrice, _ = res.AvgPrice.Float64()
	return value, avgPrice, true
}

func bookDepth(book orderbook.Book) float64 {
	d, _ := book.Depth().Float64()
	return d
}
