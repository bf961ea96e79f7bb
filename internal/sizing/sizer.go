package sizing

import (
	"fmt"
	"math"
)

// Sizer 把 PM token 数量换算为期权合约张数并做可行性校验。
type Sizer struct {
	MinContracts float64 // 交易所最小下单张数
	ContractStep float64 // 张数步进
	Tolerance    float64 // 取整偏差容忍比例
}

// NewSizer 默认参数对应 Deribit BTC 期权
func NewSizer() *Sizer {
	return &Sizer{MinContracts: 0.1, ContractStep: 0.1, Tolerance: 0.10}
}

// Result 换算结果
type Result struct {
	Exact   float64 // 理论张数 tokens/(K2-K1)
	Rounded float64 // 按步进取整后的张数
}

// Size 换算：对冲 tokens 份 PM 头寸需要 tokens/(K2−K1) 张价差。
// 张数低于交易所下限、或取整偏差超容忍时返回错误（该市场本周期不可交易）。
func (s *Sizer) Size(tokens, k1, k2 float64) (Result, error) {
	if tokens <= 0 {
		return Result{}, fmt.Errorf("sizing: tokens %.4f must be positive", tokens)
	}
	width := k2 - k1
	if width <= 0 {
		return Result{}, fmt.Errorf("sizing: strike width %.2f must be positive", width)
	}

	exact := tokens / width
	rounded := math.Round(exact/s.ContractStep) * s.ContractStep
	res := Result{Exact: exact, Rounded: rounded}

	if rounded < s.MinContracts {
		return res, fmt.Errorf("sizing: %.4f contracts below exchange minimum %.2f", rounded, s.MinContracts)
	}
	if dev := math.Abs(rounded-exact) / exact; dev > s.Tolerance {
		return res, fmt.Errorf("sizing: rounding deviation %.1f%% exceeds %.0f%% tolerance",
			dev*100, s.Tolerance*100)
	}
	return res, nil
}
