package domain

import "time"

// SignalSnapshot 上次记录信号时的关键字段，用于变化检测
type SignalSnapshot struct {
	MarketID string       `json:"market_id"`
	Strategy StrategyKind `json:"strategy"`

	NetEV    float64 `json:"net_ev"`
	ROI      float64 `json:"roi"`
	PMPrice  float64 `json:"pm_price"`  // 当时的 PM 入场价
	K1Mid    float64 `json:"k1_mid"`    // 当时的 K1 期权中间价
	K2Mid    float64 `json:"k2_mid"`    // 当时的 K2 期权中间价
	Positive bool    `json:"positive"`  // netEV 符号
	LoggedAt time.Time `json:"logged_at"`
}

// FilterVerdict 一个阶段（记录或下单）的过滤结论
type FilterVerdict struct {
	Passed bool          `json:"passed"`
	Checks []CheckResult `json:"checks"`
}

// FirstFailure 第一个未通过的检查；全部通过返回 nil
func (v FilterVerdict) FirstFailure() *CheckResult {
	for i := range v.Checks {
		if !v.Checks[i].Passed {
			return &v.Checks[i]
		}
	}
	return nil
}
