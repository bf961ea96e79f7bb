package margin

import (
	"fmt"
	"math"

	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
	"github.com/lazylemoncat/ProArb-MVP/internal/pricing"
)

// ShockGrid PME 情景网格参数。必须显式配置，空网格在启动时报错。
type ShockGrid struct {
	PriceShocks    []float64 `yaml:"price_shocks"`    // 主区间价格冲击（相对比例）
	ExtendedShocks []float64 `yaml:"extended_shocks"` // 极端价格冲击
	ExtendedDamp   float64   `yaml:"extended_damp"`   // 极端情景的 PnL 衰减系数 (0,1]
	VolShockUp     float64   `yaml:"vol_shock_up"`    // 波动率上冲比例
	VolShockDown   float64   `yaml:"vol_shock_down"`  // 波动率下冲比例
	VegaPower      float64   `yaml:"vega_power"`      // 波动率冲击的时间因子指数
}

// DefaultShockGrid Deribit PME 的常用网格
func DefaultShockGrid() ShockGrid {
	main := make([]float64, 0, 17)
	for s := -0.16; s <= 0.16+1e-9; s += 0.02 {
		main = append(main, math.Round(s*100)/100)
	}
	return ShockGrid{
		PriceShocks:    main,
		ExtendedShocks: []float64{-0.66, -0.50, -0.33, 0.33, 0.50, 1.00, 2.00, 5.00},
		ExtendedDamp:   0.30,
		VolShockUp:     0.45,
		VolShockDown:   0.45,
		VegaPower:      0.30,
	}
}

// Validate 空网格视为配置错误（启动即失败，不允许静默估 0 保证金）
func (g ShockGrid) Validate() error {
	if len(g.PriceShocks) == 0 {
		return fmt.Errorf("margin: price shock grid is empty")
	}
	if g.ExtendedDamp <= 0 || g.ExtendedDamp > 1 {
		return fmt.Errorf("margin: extended damp %.2f out of (0,1]", g.ExtendedDamp)
	}
	if g.VegaPower < 0 {
		return fmt.Errorf("margin: vega power must be >= 0")
	}
	return nil
}

// Estimator 组合保证金估算器（Deribit Portfolio Margin Engine 的本地近似）
type Estimator struct {
	pricer *pricing.Pricer
	grid   ShockGrid
}

// NewEstimator 创建估算器；网格非法直接返回错误
func NewEstimator(pricer *pricing.Pricer, grid ShockGrid) (*Estimator, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	return &Estimator{pricer: pricer, grid: grid}, nil
}

// simulatedVol 情景波动率：冲击幅度按 (30/剩余天数)^vegaPower 放大短期合约
func (e *Estimator) simulatedVol(vol, t float64, up bool) float64 {
	days := math.Max(t*365, 1.0/24)
	factor := math.Pow(30/days, e.grid.VegaPower)
	if up {
		return vol * (1 + e.grid.VolShockUp*factor)
	}
	return math.Max(vol*(1-e.grid.VolShockDown*factor), 0.01)
}

// spreadValue 当前参数下牛市价差的 BS 理论价值（单张）
func (e *Estimator) spreadValue(spot, k1, k2, t, vol float64) float64 {
	return e.pricer.CallPrice(spot, k1, t, vol) - e.pricer.CallPrice(spot, k2, t, vol)
}

// Estimate 估算期权腿保证金。
// 策略一（卖出价差）：遍历价格×波动率情景取最坏 PnL，保证金 = |最坏 PnL|。
// 策略二（买入价差）：最大亏损为已付权利金，无额外保证金。
func (e *Estimator) Estimate(s *domain.MarketSnapshot, kind domain.StrategyKind, contracts float64) (float64, error) {
	if contracts <= 0 {
		return 0, fmt.Errorf("margin: contracts %.4f must be positive", contracts)
	}
	if kind == domain.StrategyBuyNoBuySpread {
		return 0, nil
	}

	k1, k2 := s.K1.Strike, s.K2.Strike
	vol := s.K1.MarkVol
	base := e.spreadValue(s.Spot, k1, k2, s.TimeToExpiry, vol)

	worst := 0.0
	eval := func(shock, damp float64) {
		spot := s.Spot * (1 + shock)
		if spot <= 0 {
			spot = 1
		}
		for _, v := range []float64{
			vol,
			e.simulatedVol(vol, s.TimeToExpiry, true),
			e.simulatedVol(vol, s.TimeToExpiry, false),
		} {
			// 空头价差：价差价值上升即亏损
			pnl := (base - e.spreadValue(spot, k1, k2, s.TimeToExpiry, v)) * contracts * damp
			if pnl < worst {
				worst = pnl
			}
		}
	}
	for _, shock := range e.grid.PriceShocks {
		eval(shock, 1)
	}
	for _, shock := range e.grid.ExtendedShocks {
		eval(shock, e.grid.ExtendedDamp)
	}
	return math.Abs(worst), nil
}
