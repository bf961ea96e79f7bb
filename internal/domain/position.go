package domain

import "time"

// PositionStatus 持仓状态
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// ExitState 提前退出监控状态机
type ExitState string

const (
	ExitStateWaiting    ExitState = "WAITING"    // 距期权到期尚远，等待
	ExitStateMonitoring ExitState = "MONITORING" // 进入到期前监控窗口，等待期权交割
	ExitStateExpired    ExitState = "EXPIRED"    // 期权已交割，逐轮评估 PM 退出
	ExitStateTriggered  ExitState = "TRIGGERED"  // 已触发退出
)

// Position 已开仓的组合持仓。提前退出引擎是唯一的状态写入方。
type Position struct {
	ID       string       `json:"id"`
	MarketID string       `json:"market_id"`
	Strategy StrategyKind `json:"strategy"`

	Status    PositionStatus `json:"status"`
	ExitState ExitState      `json:"exit_state"`

	Contracts float64 `json:"contracts"`
	Tokens    float64 `json:"tokens"`
	K1        float64 `json:"k1"`
	K2        float64 `json:"k2"`
	KPoly     float64 `json:"k_poly"`

	EntryPrice    float64 `json:"entry_price"`    // PM 开仓均价
	StakeUSD      float64 `json:"stake_usd"`      // PM 投入
	SpreadPremium float64 `json:"spread_premium"` // 价差权利金（S1 为收入，S2 为支出，正数）
	MarginUSD     float64 `json:"margin_usd"`

	OptionExpiry time.Time `json:"option_expiry"` // 期权到期时间
	EventExpiry  time.Time `json:"event_expiry"`  // PM 结算时间（晚于期权到期）

	OpenedAt time.Time  `json:"opened_at"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`

	// 期权结算后由监控回填
	SettlementPrice float64 `json:"settlement_price,omitempty"` // 交割价
	OptionPnL       float64 `json:"option_pnl,omitempty"`       // 期权腿已实现盈亏
}

// IsOpen 是否仍为开仓状态
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// CheckResult 单项检查结果
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ExitEvaluation 一次提前退出评估的明细
type ExitEvaluation struct {
	PositionID string    `json:"position_id"`
	State      ExitState `json:"state"`

	OptionPnL      float64 `json:"option_pnl"`       // DR 结算腿已实现盈亏
	PMActualPnL    float64 `json:"pm_actual_pnl"`    // 按当前盘口立即退出的 PM 盈亏（含退出费用）
	PMTheoretical  float64 `json:"pm_theoretical"`   // 按交割价 $1/$0 结算的理论 PM 盈亏
	OpportunityPnL float64 `json:"opportunity_pnl"`  // 理论 - 实际（放弃的机会成本）
	TotalActualPnL float64 `json:"total_actual_pnl"` // OptionPnL + PMActualPnL
	ExitCostUSD    float64 `json:"exit_cost_usd"`

	Checks []CheckResult `json:"checks"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// ExitAction 退出决策动作
type ExitAction string

const (
	ExitActionHold ExitAction = "HOLD" // 继续持有
	ExitActionExit ExitAction = "EXIT" // 立即退出
	ExitActionStop ExitAction = "STOP" // 止损退出
)

// ExitDecision 提前退出决策
type ExitDecision struct {
	Action     ExitAction      `json:"action"`
	Reason     string          `json:"reason"`
	Evaluation *ExitEvaluation `json:"evaluation,omitempty"`
}
