package pricing

import "math"

// Pricer Black-Scholes 风险中性定价器
type Pricer struct {
	RiskFreeRate float64 // 年化无风险利率
}

// NewPricer 创建定价器
func NewPricer(riskFreeRate float64) *Pricer {
	return &Pricer{RiskFreeRate: riskFreeRate}
}

// normCDF 标准正态分布累积函数
func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// normPDF 标准正态分布密度函数
func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

// d1d2 返回 Black-Scholes 的 d1、d2
func (p *Pricer) d1d2(spot, strike, t, vol float64) (float64, float64) {
	d1 := (math.Log(spot/strike) + (p.RiskFreeRate+vol*vol/2)*t) / (vol * math.Sqrt(t))
	return d1, d1 - vol*math.Sqrt(t)
}

// ProbAbove 风险中性概率 P(S_T > K) = Φ(d2)。
// 退化情形（t≤0 或 vol≤0）返回示性函数：spot>strike 为 1，否则 0。
func (p *Pricer) ProbAbove(spot, strike, t, vol float64) float64 {
	if strike <= 0 {
		return 1
	}
	if spot <= 0 {
		return 0
	}
	if t <= 0 || vol <= 0 {
		if spot > strike {
			return 1
		}
		return 0
	}
	_, d2 := p.d1d2(spot, strike, t, vol)
	return normCDF(d2)
}

// CallPrice 欧式看涨期权理论价（USD）
func (p *Pricer) CallPrice(spot, strike, t, vol float64) float64 {
	if t <= 0 || vol <= 0 {
		return math.Max(spot-strike, 0)
	}
	d1, d2 := p.d1d2(spot, strike, t, vol)
	return spot*normCDF(d1) - strike*math.Exp(-p.RiskFreeRate*t)*normCDF(d2)
}

// Greeks 希腊字母
type Greeks struct {
	Delta float64
	Gamma float64
	Vega  float64 // 对应波动率变动 1 个百分点
	Theta float64 // 每日时间价值衰减
}

// CallGreeks 看涨期权希腊字母；退化情形返回零值
func (p *Pricer) CallGreeks(spot, strike, t, vol float64) Greeks {
	if t <= 0 || vol <= 0 || spot <= 0 || strike <= 0 {
		return Greeks{}
	}
	d1, d2 := p.d1d2(spot, strike, t, vol)
	sqt := math.Sqrt(t)
	disc := math.Exp(-p.RiskFreeRate * t)
	return Greeks{
		Delta: normCDF(d1),
		Gamma: normPDF(d1) / (spot * vol * sqt),
		Vega:  spot * normPDF(d1) * sqt / 100,
		Theta: (-spot*normPDF(d1)*vol/(2*sqt) - p.RiskFreeRate*strike*disc*normCDF(d2)) / 365,
	}
}
