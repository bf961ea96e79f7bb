package filters

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
)

// RecordConfig 记录阶段过滤参数
type RecordConfig struct {
	Cooldown          time.Duration `yaml:"cooldown"`            // 同一市场两次记录的最小间隔
	ROIChangePct      float64       `yaml:"roi_change_pct"`      // ROI 变化触发阈值（百分点）
	EVChangeUSD       float64       `yaml:"ev_change_usd"`       // 净 EV 绝对变化阈值
	PMPriceChange     float64       `yaml:"pm_price_change"`     // PM 价格变化阈值
	OptionPriceChange float64       `yaml:"option_price_change"` // 期权中间价变化阈值（USD）
}

// DefaultRecordConfig 默认记录阈值
func DefaultRecordConfig() RecordConfig {
	return RecordConfig{
		Cooldown:          5 * time.Minute,
		ROIChangePct:      0.5,
		EVChangeUSD:       5,
		PMPriceChange:     0.02,
		OptionPriceChange: 50,
	}
}

// UnmarshalYAML 支持 "5m" 这类时长字符串
func (c *RecordConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Cooldown          string  `yaml:"cooldown"`
		ROIChangePct      float64 `yaml:"roi_change_pct"`
		EVChangeUSD       float64 `yaml:"ev_change_usd"`
		PMPriceChange     float64 `yaml:"pm_price_change"`
		OptionPriceChange float64 `yaml:"option_price_change"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Cooldown != "" {
		d, err := time.ParseDuration(raw.Cooldown)
		if err != nil {
			return fmt.Errorf("parse cooldown: %w", err)
		}
		c.Cooldown = d
	}
	c.ROIChangePct = raw.ROIChangePct
	c.EVChangeUSD = raw.EVChangeUSD
	c.PMPriceChange = raw.PMPriceChange
	c.OptionPriceChange = raw.OptionPriceChange
	return nil
}

// RecordFilter 记录阶段：决定本周期结果是否值得落库。
// 冷却 + 净 EV 为正是必要条件；此外还需任一显著变化。
// 只返回结论，从不 panic、从不返回错误。
type RecordFilter struct {
	cfg   RecordConfig
	state *StateStore
}

// NewRecordFilter 创建记录过滤器
func NewRecordFilter(cfg RecordConfig, state *StateStore) *RecordFilter {
	return &RecordFilter{cfg: cfg, state: state}
}

// ShouldRecord 判断是否记录。首次见到某市场且净 EV 为正 → 记录。
func (f *RecordFilter) ShouldRecord(res *domain.StrategyResult, k1Mid, k2Mid float64, now time.Time) domain.FilterVerdict {
	var v domain.FilterVerdict
	check := func(name string, passed bool, detail string) {
		v.Checks = append(v.Checks, domain.CheckResult{Name: name, Passed: passed, Detail: detail})
	}

	check("net_ev_positive", res.NetEV > 0, fmt.Sprintf("netEV=%.4f", res.NetEV))

	prev, seen := f.state.Get(res.MarketID)
	if !seen {
		check("first_seen", true, "no prior signal for market")
		v.Passed = res.NetEV > 0
		return v
	}

	elapsed := now.Sub(prev.LoggedAt)
	check("cooldown", elapsed >= f.cfg.Cooldown,
		fmt.Sprintf("elapsed=%s min=%s", elapsed.Truncate(time.Second), f.cfg.Cooldown))

	roiDelta := abs(res.ROI - prev.ROI)
	evDelta := abs(res.NetEV - prev.NetEV)
	pmDelta := abs(res.EntryPrice - prev.PMPrice)
	optDelta := maxFloat(abs(k1Mid-prev.K1Mid), abs(k2Mid-prev.K2Mid))
	signFlip := (res.NetEV > 0) != prev.Positive || res.Strategy != prev.Strategy

	changed := roiDelta >= f.cfg.ROIChangePct ||
		evDelta >= f.cfg.EVChangeUSD ||
		pmDelta >= f.cfg.PMPriceChange ||
		optDelta >= f.cfg.OptionPriceChange ||
		signFlip
	check("roi_change", roiDelta >= f.cfg.ROIChangePct, fmt.Sprintf("Δ=%.2f", roiDelta))
	check("ev_change", evDelta >= f.cfg.EVChangeUSD, fmt.Sprintf("Δ=%.2f", evDelta))
	check("pm_price_change", pmDelta >= f.cfg.PMPriceChange, fmt.Sprintf("Δ=%.4f", pmDelta))
	check("option_price_change", optDelta >= f.cfg.OptionPriceChange, fmt.Sprintf("Δ=%.2f", optDelta))
	check("sign_or_strategy_flip", signFlip, "")

	v.Passed = res.NetEV > 0 && elapsed >= f.cfg.Cooldown && changed
	return v
}

// Commit 记录通过后回写状态
func (f *RecordFilter) Commit(res *domain.StrategyResult, k1Mid, k2Mid float64, now time.Time) {
	f.state.Put(domain.SignalSnapshot{
		MarketID: res.MarketID,
		Strategy: res.Strategy,
		NetEV:    res.NetEV,
		ROI:      res.ROI,
		PMPrice:  res.EntryPrice,
		K1Mid:    k1Mid,
		K2Mid:    k2Mid,
		Positive: res.NetEV > 0,
		LoggedAt: now,
	})
}

// Evict 驱逐 cutoff 之前的市场状态，返回驱逐数量
func (f *RecordFilter) Evict(cutoff time.Time) int {
	return f.state.EvictBefore(cutoff)
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
