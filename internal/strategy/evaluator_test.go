package strategy

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/lazylemoncat/ProArb-MVP/internal/costs"
	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
	"github.com/lazylemoncat/ProArb-MVP/internal/margin"
	"github.com/lazylemoncat/ProArb-MVP/internal/pricing"
	"github.com/lazylemoncat/ProArb-MVP/internal/sizing"
	"github.com/lazylemoncat/ProArb-MVP/pkg/orderbook"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	pricer := pricing.NewPricer(0.05)
	est, err := margin.NewEstimator(pricer, margin.DefaultShockGrid())
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	fees := domain.FeeSchedule{
		FeeCapRate: 0.0003, PriceCapRate: 0.125, SettlementRate: 0.00015,
		GasOpenUSD: 0.1, GasCloseUSD: 0.1,
	}
	return NewEvaluator(
		pricer,
		pricing.NewPayoffEngine(pricer, pricing.GridConfig{StepUSD: 500, TailUSD: 10000}),
		costs.NewModel(fees, 0.05),
		est,
		sizing.NewSizer(),
	)
}

func testInput() domain.StrategyInput {
	deep := orderbook.Book{orderbook.NewLevel(0.55, 100000)}
	return domain.StrategyInput{
		Snapshot: domain.MarketSnapshot{
			MarketID:     "btc-above-101500-aug26",
			Title:        "Will BTC be above $101,500?",
			Spot:         102000,
			K1:           domain.OptionQuote{Strike: 100000, BidUSD: 2400, AskUSD: 2600, MarkVol: 0.70},
			K2:           domain.OptionQuote{Strike: 104000, BidUSD: 900, AskUSD: 1100, MarkVol: 0.72},
			KPoly:        101500,
			YesBid:       0.54, YesAsk: 0.55,
			NoBid:        0.54, NoAsk: 0.55,
			YesBook:      deep,
			NoBook:       deep,
			TimeToExpiry: 7.0 / 365,
			DailyExpiry:  true,
			Timestamp:    time.Now().UTC(),
		},
		StakeUSD:     440, // 800 tokens @0.55 → 正好 0.2 张
		RiskFreeRate: 0.05,
	}
}

func TestEvaluateBothStrategies(t *testing.T) {
	ev, err := newTestEvaluator(t).Evaluate(testInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for _, res := range []*domain.StrategyResult{ev.S1, ev.S2} {
		if !res.Tradable {
			t.Fatalf("%s not tradable: %s", res.Strategy, res.Reason)
		}
		if math.Abs(res.Contracts-0.2) > 1e-9 {
			t.Fatalf("%s contracts = %.4f, want 0.2", res.Strategy, res.Contracts)
		}
		if math.Abs(res.NetEV-(res.GrossEV-res.Costs.Total())) > 1e-9 {
			t.Fatalf("%s netEV %.4f != grossEV %.4f - costs %.4f",
				res.Strategy, res.NetEV, res.GrossEV, res.Costs.Total())
		}
		if res.ProbITM <= 0 || res.ProbITM >= 1 {
			t.Fatalf("%s probITM %.4f out of (0,1)", res.Strategy, res.ProbITM)
		}
		if res.InvestmentUSD < 440 {
			t.Fatalf("%s investment %.2f below stake", res.Strategy, res.InvestmentUSD)
		}
	}
	// 卖方需要 PME 保证金，买方只占用权利金
	if ev.S1.MarginUSD <= 0 {
		t.Fatalf("S1 margin = %.2f, want > 0", ev.S1.MarginUSD)
	}
	wantS2 := (2600.0 - 900.0) * 0.2
	if math.Abs(ev.S2.MarginUSD-wantS2) > 1e-9 {
		t.Fatalf("S2 margin = %.2f, want premium %.2f", ev.S2.MarginUSD, wantS2)
	}
}

func TestEvaluateBestSelection(t *testing.T) {
	ev, err := newTestEvaluator(t).Evaluate(testInput())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Best != nil {
		if ev.Best.NetEV <= 0 {
			t.Fatalf("best netEV %.4f must be positive", ev.Best.NetEV)
		}
		if ev.Best.NetEV < ev.S1.NetEV || ev.Best.NetEV < ev.S2.NetEV {
			t.Fatalf("best %.4f not the max of %.4f / %.4f", ev.Best.NetEV, ev.S1.NetEV, ev.S2.NetEV)
		}
	} else if ev.S1.NetEV > 0 || ev.S2.NetEV > 0 {
		t.Fatal("positive netEV present but best is nil")
	}
}

func TestEvaluateEmptyBook(t *testing.T) {
	in := testInput()
	in.Snapshot.YesBook = orderbook.Book{}
	ev, err := newTestEvaluator(t).Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.S1.Tradable {
		t.Fatal("S1 should be untradable with empty YES book")
	}
	if !strings.Contains(ev.S1.Reason, "pm fill") {
		t.Fatalf("unexpected reason: %s", ev.S1.Reason)
	}
	// S2 不受 YES 盘口影响
	if !ev.S2.Tradable {
		t.Fatalf("S2 should still be tradable: %s", ev.S2.Reason)
	}
}

func TestEvaluateNegativeCredit(t *testing.T) {
	in := testInput()
	in.Snapshot.K1.BidUSD = 1000 // K1 bid < K2 ask → 卖价差收不到权利金
	ev, err := newTestEvaluator(t).Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.S1.Tradable {
		t.Fatal("S1 should be untradable with negative credit")
	}
	if !strings.Contains(ev.S1.Reason, "premium") {
		t.Fatalf("unexpected reason: %s", ev.S1.Reason)
	}
}

func TestEvaluateSizingRejectedStillComputesEV(t *testing.T) {
	in := testInput()
	in.StakeUSD = 50 // ~90 tokens → 0.023 张，低于交易所下限
	ev, err := newTestEvaluator(t).Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for _, res := range []*domain.StrategyResult{ev.S1, ev.S2} {
		if res.Tradable {
			t.Fatalf("%s should be untradable at tiny stake", res.Strategy)
		}
		if !strings.Contains(res.Reason, "below exchange minimum") {
			t.Fatalf("%s unexpected reason: %s", res.Strategy, res.Reason)
		}
		// 即使不可交易，诊断字段仍按精确张数算满
		if res.Contracts <= 0 {
			t.Fatalf("%s contracts = %.4f, want exact fallback > 0", res.Strategy, res.Contracts)
		}
		if res.GrossEV == 0 || res.NetEV == 0 {
			t.Fatalf("%s EV not computed: gross=%.4f net=%.4f", res.Strategy, res.GrossEV, res.NetEV)
		}
		if res.ProbITM <= 0 || res.ProbITM >= 1 {
			t.Fatalf("%s probITM %.4f out of (0,1)", res.Strategy, res.ProbITM)
		}
	}
	if ev.Best != nil {
		t.Fatal("untradable results must never be selected as best")
	}
}

// 深度虚值场景：现价远低于事件阈值时 YES 明显高估，
// 买 NO + 买价差应给出大幅正 EV，卖方向则深度为负。
func TestEvaluateReferenceScenario(t *testing.T) {
	yesBook := orderbook.Book{orderbook.NewLevel(0.435, 20000)}
	noBook := orderbook.Book{orderbook.NewLevel(0.575, 20000)}
	in := domain.StrategyInput{
		Snapshot: domain.MarketSnapshot{
			MarketID:     "btc-above-100000-weekly",
			Title:        "Will BTC be above $100,000?",
			Spot:         90668,
			K1:           domain.OptionQuote{Strike: 100000, BidUSD: 740, AskUSD: 790, MarkVol: 0.70},
			K2:           domain.OptionQuote{Strike: 102000, BidUSD: 495, AskUSD: 540, MarkVol: 0.71},
			KPoly:        100000,
			YesBid:       0.425, YesAsk: 0.435,
			NoBid:        0.565, NoAsk: 0.575,
			YesBook:      yesBook,
			NoBook:       noBook,
			TimeToExpiry: 7.0 / 365,
			DailyExpiry:  false,
			Timestamp:    time.Now().UTC(),
		},
		StakeUSD:     5000,
		RiskFreeRate: 0.05,
	}

	ev, err := newTestEvaluator(t).Evaluate(in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	// 张数：11494 token / 2000 宽 → 5.7；8696 token / 2000 → 4.3
	if math.Abs(ev.S1.Contracts-5.7) > 1e-9 {
		t.Fatalf("S1 contracts = %.4f, want 5.7", ev.S1.Contracts)
	}
	if math.Abs(ev.S2.Contracts-4.3) > 1e-9 {
		t.Fatalf("S2 contracts = %.4f, want 4.3", ev.S2.Contracts)
	}

	// 风险中性 P(S_T > 100000) ≈ 0.152（按 PM 延后结算时点）
	if math.Abs(ev.S2.ProbITM-0.1523) > 1e-3 {
		t.Fatalf("probITM = %.4f, want ≈0.1523", ev.S2.ProbITM)
	}

	// 卖价差+买 YES：YES 价 0.435 远高于真实概率，深度负 EV
	if math.Abs(ev.S1.NetEV-(-3976.72)) > 1.0 {
		t.Fatalf("S1 netEV = %.2f, want ≈-3976.72", ev.S1.NetEV)
	}
	// 买价差+买 NO：吃到高估的 YES 对手盘，净 EV 大幅为正
	if math.Abs(ev.S2.NetEV-1852.56) > 1.0 {
		t.Fatalf("S2 netEV = %.2f, want ≈1852.56", ev.S2.NetEV)
	}
	if math.Abs(ev.S2.GrossEV-2179.98) > 1.0 {
		t.Fatalf("S2 grossEV = %.2f, want ≈2179.98", ev.S2.GrossEV)
	}

	// 买方保证金即已付权利金：(790-495) × 4.3
	if math.Abs(ev.S2.MarginUSD-1268.5) > 1e-6 {
		t.Fatalf("S2 margin = %.2f, want 1268.50", ev.S2.MarginUSD)
	}
	if math.Abs(ev.S2.ROI-29.55) > 0.1 {
		t.Fatalf("S2 roi = %.2f%%, want ≈29.55%%", ev.S2.ROI)
	}

	if ev.Best == nil || ev.Best.Strategy != domain.StrategyBuyNoBuySpread {
		t.Fatal("best strategy should be buy-NO + buy-spread")
	}
}

func TestEvaluateIncompleteSnapshot(t *testing.T) {
	in := testInput()
	in.Snapshot.Spot = 0
	if _, err := newTestEvaluator(t).Evaluate(in); err == nil {
		t.Fatal("expected error for incomplete snapshot")
	}
}
