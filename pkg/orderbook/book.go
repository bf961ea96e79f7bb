package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Level 订单簿的一档（价格 + 数量）。
// Polymarket 的 tick size 可能到 0.0001，金额累加用 decimal 避免二进制浮点误差。
type Level struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Book 单侧订单簿（按吃单顺序排列：买入用 asks 从低到高，卖出用 bids 从高到低）。
type Book []Level

// Side 吃单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// AmountType 数量类型：按 USD 金额吃单，或按份额吃单
type AmountType string

const (
	AmountUSD    AmountType = "usd"
	AmountShares AmountType = "shares"
)

// ErrInsufficientLiquidity 订单簿深度不足以完全吃下给定数量
var ErrInsufficientLiquidity = fmt.Errorf("orderbook: insufficient liquidity")

// FillResult 模拟吃单结果
type FillResult struct {
	AvgPrice    decimal.Decimal // 平均成交价
	Shares      decimal.Decimal // 成交份额
	TotalCost   decimal.Decimal // 成交总金额（USD）
	BestPrice   decimal.Decimal // 盘口最优价
	SlippagePct decimal.Decimal // 滑点百分比（相对最优价）
}

// NewLevel 从 float 构造一档（仅供测试和快照装配使用）
func NewLevel(price, size float64) Level {
	return Level{
		Price: decimal.NewFromFloat(price),
		Size:  decimal.NewFromFloat(size),
	}
}

// Depth 订单簿总份额
func (b Book) Depth() decimal.Decimal {
	total := decimal.Zero
	for _, lv := range b {
		total = total.Add(lv.Size)
	}
	return total
}

// SimulateFill 在订单簿上模拟吃单。
// 只在“能完整吃下 amount”的情况下给出结果；深度不足返回 ErrInsufficientLiquidity。
func (b Book) SimulateFill(amount decimal.Decimal, side Side, amountType AmountType) (*FillResult, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("orderbook: empty book")
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("orderbook: amount must be positive")
	}

	bestPrice := b[0].Price
	totalCost := decimal.Zero
	totalSize := decimal.Zero

	switch amountType {
	case AmountUSD:
		remaining := amount
		for _, lv := range b {
			if remaining.Sign() <= 0 {
				break
			}
			levelValue := lv.Price.Mul(lv.Size)
			if remaining.GreaterThanOrEqual(levelValue) {
				// 吃完整一档
				totalCost = totalCost.Add(levelValue)
				totalSize = totalSize.Add(lv.Size)
				remaining = remaining.Sub(levelValue)
			} else {
				// 吃部分这一档
				partial := remaining.Div(lv.Price)
				totalCost = totalCost.Add(remaining)
				totalSize = totalSize.Add(partial)
				remaining = decimal.Zero
				break
			}
		}
		if remaining.Sign() > 0 {
			return nil, ErrInsufficientLiquidity
		}

	case AmountShares:
		remaining := amount
		for _, lv := range b {
			if remaining.Sign() <= 0 {
				break
			}
			if remaining.GreaterThanOrEqual(lv.Size) {
				totalCost = totalCost.Add(lv.Price.Mul(lv.Size))
				totalSize = totalSize.Add(lv.Size)
				remaining = remaining.Sub(lv.Size)
			} else {
				totalCost = totalCost.Add(lv.Price.Mul(remaining))
				totalSize = totalSize.Add(remaining)
				remaining = decimal.Zero
				break
			}
		}
		if remaining.Sign() > 0 {
			return nil, ErrInsufficientLiquidity
		}

	default:
		return nil, fmt.Errorf("orderbook: unknown amount type %q", amountType)
	}

	if totalSize.Sign() == 0 {
		return nil, ErrInsufficientLiquidity
	}

	avgPrice := totalCost.Div(totalSize)

	// 买入时滑点 = (均价 - 最优价)/最优价；卖出反向
	var slip decimal.Decimal
	hundred := decimal.NewFromInt(100)
	if side == SideBuy {
		slip = avgPrice.Sub(bestPrice).Div(bestPrice).Mul(hundred)
	} else {
		slip = bestPrice.Sub(avgPrice).Div(bestPrice).Mul(hundred)
	}

	return &FillResult{
		AvgPrice:    avgPrice,
		Shares:      totalSize,
		TotalCost:   totalCost,
		BestPrice:   bestPrice,
		SlippagePct: slip,
	}, nil
}
