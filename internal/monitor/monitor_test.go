package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazylemoncat/ProArb-MVP/internal/costs"
	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
	"github.com/lazylemoncat/ProArb-MVP/internal/earlyexit"
	"github.com/lazylemoncat/ProArb-MVP/internal/filters"
	"github.com/lazylemoncat/ProArb-MVP/internal/margin"
	"github.com/lazylemoncat/ProArb-MVP/internal/notify"
	"github.com/lazylemoncat/ProArb-MVP/internal/pricing"
	"github.com/lazylemoncat/ProArb-MVP/internal/sizing"
	"github.com/lazylemoncat/ProArb-MVP/internal/store"
	"github.com/lazylemoncat/ProArb-MVP/internal/strategy"
	"github.com/lazylemoncat/ProArb-MVP/pkg/config"
	"github.com/lazylemoncat/ProArb-MVP/pkg/orderbook"
)

type fakeMarketData struct {
	snap *domain.MarketSnapshot
}

func (f *fakeMarketData) Snapshot(_ context.Context, _ config.MarketConfig) (*domain.MarketSnapshot, error) {
	return f.snap, nil
}

type fakeExitData struct {
	snap earlyexit.Snapshot
}

func (f *fakeExitData) ExitSnapshot(_ context.Context, _ *domain.Position, _ config.MarketConfig) (earlyexit.Snapshot, error) {
	return f.snap, nil
}

// mispricedSnapshot PM 严重低估 YES 的市场：净 EV 必为正
func mispricedSnapshot() *domain.MarketSnapshot {
	deep := orderbook.Book{orderbook.NewLevel(0.05, 50000)}
	deepNo := orderbook.Book{orderbook.NewLevel(0.50, 50000)}
	return &domain.MarketSnapshot{
		MarketID:     "mkt-a",
		Spot:         100800,
		K1:           domain.OptionQuote{Strike: 100000, BidUSD: 1800, AskUSD: 2000, MarkVol: 0.70},
		K2:           domain.OptionQuote{Strike: 101000, BidUSD: 1300, AskUSD: 1400, MarkVol: 0.71},
		KPoly:        100500,
		YesBid:       0.04, YesAsk: 0.05,
		NoBid:        0.49, NoAsk: 0.50,
		YesBook:      deep,
		NoBook:       deepNo,
		TimeToExpiry: 7.0 / 365,
		DailyExpiry:  true,
		Timestamp:    time.Now().UTC(),
	}
}

func newTestMonitor(t *testing.T, data MarketData, exit ExitData) (*Monitor, *store.Store) {
	t.Helper()
	cfg := &config.Config{
		Markets: []config.MarketConfig{{
			MarketID: "mkt-a", YesTokenID: "yes", NoTokenID: "no",
			Instrument: "BTC", K1: 100000, K2: 101000, KPoly: 100500, Expiry: "29AUG26",
		}},
		Engine: config.EngineConfig{StakeUSD: 150, RiskFreeRate: 0.05, HoldingRate: 0.05, GridStepUSD: 250, GridTailUSD: 10000},
	}
	cfg.ApplyDefaults()
	cfg.Engine.StakeUSD = 150

	pricer := pricing.NewPricer(cfg.Engine.RiskFreeRate)
	est, err := margin.NewEstimator(pricer, cfg.Margin)
	require.NoError(t, err)
	eval := strategy.NewEvaluator(
		pricer,
		pricing.NewPayoffEngine(pricer, pricing.GridConfig{StepUSD: cfg.Engine.GridStepUSD, TailUSD: cfg.Engine.GridTailUSD}),
		costs.NewModel(domain.FeeSchedule{
			FeeCapRate: cfg.Fees.FeeCapRate, PriceCapRate: cfg.Fees.PriceCapRate,
			SettlementRate: cfg.Fees.SettlementRate, GasOpenUSD: cfg.Fees.GasOpenUSD, GasCloseUSD: cfg.Fees.GasCloseUSD,
		}, cfg.Engine.HoldingRate),
		est,
		sizing.NewSizer(),
	)
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	n, err := notify.NewNotifier("", 0)
	require.NoError(t, err)

	m := New(cfg, data, exit,
		eval,
		filters.NewRecordFilter(cfg.Record, filters.NewStateStore()),
		filters.NewTradeFilter(cfg.Trade),
		earlyexit.NewEngine(cfg.EarlyExit),
		st, n)
	return m, st
}

func TestRunCycleRecordsAndOpensPosition(t *testing.T) {
	m, st := newTestMonitor(t, &fakeMarketData{snap: mispricedSnapshot()}, &fakeExitData{})
	ctx := context.Background()

	m.RunCycle(ctx)

	latest := m.Latest()
	require.Len(t, latest, 1)
	require.NotNil(t, latest[0].Best, "mispriced market must yield positive netEV")
	assert.Greater(t, latest[0].Best.NetEV, 0.0)

	records, err := st.RecentRecords(ctx, "mkt-a", 10)
	require.NoError(t, err)
	require.Len(t, records, 1, "record filter should log the first positive signal")

	open, err := st.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1, "trade filter should pass and open a paper position")
	assert.Equal(t, "mkt-a", open[0].MarketID)
	assert.Equal(t, domain.PositionStatusOpen, open[0].Status)
}

func TestRunCycleRespectsCooldown(t *testing.T) {
	m, st := newTestMonitor(t, &fakeMarketData{snap: mispricedSnapshot()}, &fakeExitData{})
	ctx := context.Background()

	m.RunCycle(ctx)
	m.RunCycle(ctx) // 冷却期内且无变化，不应产生第二条记录

	records, err := st.RecentRecords(ctx, "mkt-a", 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	// 第二轮也不会重复开仓（同市场已有 OPEN 持仓）
	open, err := st.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestRunExitCycleAdvancesPreExpiryState(t *testing.T) {
	m, st := newTestMonitor(t, &fakeMarketData{snap: mispricedSnapshot()}, &fakeExitData{})
	ctx := context.Background()

	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	pos := &domain.Position{
		ID: "pos-1", MarketID: "mkt-a", Strategy: domain.StrategyBuyYesSellSpread,
		Status: domain.PositionStatusOpen, ExitState: domain.ExitStateWaiting,
		Contracts: 0.3, Tokens: 3000, K1: 100000, K2: 101000, KPoly: 100500,
		EntryPrice: 0.05, StakeUSD: 150, SpreadPremium: 400, MarginUSD: 200,
		// 距交割 2 分钟：已进入监控窗口但无需退出行情
		OptionExpiry: now.Add(2 * time.Minute), EventExpiry: now.Add(8 * time.Hour),
		OpenedAt: now.Add(-24 * time.Hour),
	}
	require.NoError(t, st.InsertPosition(ctx, pos))

	m.RunExitCycle(ctx)

	got, err := st.GetPosition(ctx, "pos-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.PositionStatusOpen, got.Status)
	assert.Equal(t, domain.ExitStateMonitoring, got.ExitState, "state must advance and persist before settlement")
}

func TestRunExitCycleClosesProfitablePosition(t *testing.T) {
	exitData := &fakeExitData{snap: earlyexit.Snapshot{
		SettlementPrice: 99000, // 价差作废，权利金全留
		ExitBook:        orderbook.Book{orderbook.NewLevel(0.50, 50000)},
	}}
	m, st := newTestMonitor(t, &fakeMarketData{snap: mispricedSnapshot()}, exitData)
	ctx := context.Background()

	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	pos := &domain.Position{
		ID: "pos-1", MarketID: "mkt-a", Strategy: domain.StrategyBuyYesSellSpread,
		Status: domain.PositionStatusOpen, ExitState: domain.ExitStateWaiting,
		Contracts: 0.3, Tokens: 3000, K1: 100000, K2: 101000, KPoly: 100500,
		EntryPrice: 0.05, StakeUSD: 150, SpreadPremium: 400, MarginUSD: 200,
		OptionExpiry: now.Add(-2 * time.Hour), EventExpiry: now.Add(6 * time.Hour),
		OpenedAt: now.Add(-24 * time.Hour),
	}
	require.NoError(t, st.InsertPosition(ctx, pos))

	m.RunExitCycle(ctx)

	got, err := st.GetPosition(ctx, "pos-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.PositionStatusClosed, got.Status)
	assert.Equal(t, domain.ExitStateTriggered, got.ExitState)
	assert.NotNil(t, got.ClosedAt)
}
