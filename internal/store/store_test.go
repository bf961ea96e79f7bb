package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResult(marketID string, ts time.Time) *domain.StrategyResult {
	return &domain.StrategyResult{
		MarketID:   marketID,
		Strategy:   domain.StrategyBuyYesSellSpread,
		Tradable:   true,
		Contracts:  0.2,
		Tokens:     800,
		EntryPrice: 0.55,
		ProbITM:    0.52,
		ProbEdge:   0.03,
		GrossEV:    25.4,
		NetEV:      12.5,
		SkewEV:     11.8,
		MarginUSD:  310,
		Costs: domain.CostBreakdown{
			PMSlippage: 1.8, OptionFees: 6.0, OptionSlippage: 4.0,
			Gas: 0.2, HoldingCost: 0.9,
		},
		InvestmentUSD:    750,
		ROI:              1.67,
		AnnualizedROI:    87.1,
		AnnualizedSharpe: 1.17,
		EvaluatedAt:      ts,
	}
}

func sampleSnapshot(marketID string) *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		MarketID: marketID,
		Title:    "Will BTC be above $101,500?",
		Spot:     102000,
		K1:       domain.OptionQuote{Strike: 100000, BidUSD: 2400, AskUSD: 2600, MarkVol: 0.70},
		K2:       domain.OptionQuote{Strike: 104000, BidUSD: 900, AskUSD: 1100, MarkVol: 0.72},
		KPoly:    101500,
		YesBid:   0.54, YesAsk: 0.55,
		NoBid:    0.44, NoAsk: 0.46,
	}
}

func samplePosition(id, marketID string) *domain.Position {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Position{
		ID:            id,
		MarketID:      marketID,
		Strategy:      domain.StrategyBuyYesSellSpread,
		Status:        domain.PositionStatusOpen,
		ExitState:     domain.ExitStateWaiting,
		Contracts:     0.2,
		Tokens:        800,
		K1:            100000,
		K2:            104000,
		KPoly:         101500,
		EntryPrice:    0.55,
		StakeUSD:      440,
		SpreadPremium: 1300,
		MarginUSD:     310,
		OptionExpiry:  now.Add(24 * time.Hour),
		EventExpiry:   now.Add(32 * time.Hour),
		OpenedAt:      now,
	}
}

func TestInsertAndQueryRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)

	for i := 0; i < 3; i++ {
		r := sampleResult("mkt-a", base.Add(time.Duration(i)*time.Minute))
		r.NetEV = float64(i)
		require.NoError(t, s.InsertRecord(ctx, r, sampleSnapshot("mkt-a")))
	}
	require.NoError(t, s.InsertRecord(ctx, sampleResult("mkt-b", base), sampleSnapshot("mkt-b")))

	got, err := s.RecentRecords(ctx, "mkt-a", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// 最近的在前
	assert.Equal(t, 2.0, got[0].NetEV)
	assert.Equal(t, 1.0, got[1].NetEV)
	assert.Equal(t, domain.StrategyBuyYesSellSpread, got[0].Strategy)
	assert.True(t, got[0].Tradable)
	assert.InDelta(t, 1.8, got[0].Costs.PMSlippage, 1e-9)
}

func TestRecordStoresMarketContext(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertRecord(ctx, sampleResult("mkt-a", time.Now().UTC()), sampleSnapshot("mkt-a")))

	var (
		title                                  string
		k1, k2, kPoly                          float64
		yesBid, yesAsk, noBid, noAsk           float64
		indexPrice, markVol                    float64
		k1Bid, k1Ask, k2Bid, k2Ask, netPremium float64
		entryCost, exitCost                    float64
	)
	require.NoError(t, s.db.QueryRow(`
SELECT title, k1, k2, k_poly, yes_bid, yes_ask, no_bid, no_ask,
  index_price, mark_vol, k1_bid, k1_ask, k2_bid, k2_ask, net_premium,
  total_entry_cost, total_exit_cost
FROM signal_records WHERE market_id = 'mkt-a'
`).Scan(&title, &k1, &k2, &kPoly, &yesBid, &yesAsk, &noBid, &noAsk,
		&indexPrice, &markVol, &k1Bid, &k1Ask, &k2Bid, &k2Ask, &netPremium,
		&entryCost, &exitCost))

	assert.Equal(t, "Will BTC be above $101,500?", title)
	assert.Equal(t, 100000.0, k1)
	assert.Equal(t, 104000.0, k2)
	assert.Equal(t, 101500.0, kPoly)
	assert.Equal(t, 0.54, yesBid)
	assert.Equal(t, 0.55, yesAsk)
	assert.Equal(t, 0.44, noBid)
	assert.Equal(t, 0.46, noAsk)
	assert.Equal(t, 102000.0, indexPrice)
	assert.InDelta(t, 0.70, markVol, 1e-9)
	assert.Equal(t, 2400.0, k1Bid)
	assert.Equal(t, 2600.0, k1Ask)
	assert.Equal(t, 900.0, k2Bid)
	assert.Equal(t, 1100.0, k2Ask)
	// 策略一卖 K1 买 K2：bid(K1) − ask(K2)
	assert.Equal(t, 1300.0, netPremium)
	// 开仓成本 = PM 滑点 + 期权费 + 期权滑点 + gas；退出成本 = 结算费
	assert.InDelta(t, 1.8+6.0+4.0+0.2, entryCost, 1e-9)
	assert.Equal(t, 0.0, exitCost)
}

func TestMigrationsVersionedAndIdempotent(t *testing.T) {
	path := t.TempDir() + "/proarb.db"

	s, err := Open(path)
	require.NoError(t, err)
	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, s.InsertRecord(context.Background(), sampleResult("mkt-a", time.Now().UTC()), sampleSnapshot("mkt-a")))
	require.NoError(t, s.Close())

	// 重新打开不得重放已应用的版本
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	v, err = s2.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	got, err := s2.RecentRecords(context.Background(), "mkt-a", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPositionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := samplePosition("pos-1", "mkt-a")
	require.NoError(t, s.InsertPosition(ctx, p))

	got, err := s.GetPosition(ctx, "pos-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p.MarketID, got.MarketID)
	assert.Equal(t, domain.PositionStatusOpen, got.Status)
	assert.True(t, got.OptionExpiry.Equal(p.OptionExpiry))

	missing, err := s.GetPosition(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDuplicateOpenPositionRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertPosition(ctx, samplePosition("pos-1", "mkt-a")))
	err := s.InsertPosition(ctx, samplePosition("pos-2", "mkt-a"))
	require.Error(t, err, "second OPEN position in same market must be rejected")

	// 已平仓后允许再开
	p1, _ := s.GetPosition(ctx, "pos-1")
	p1.Status = domain.PositionStatusClosed
	now := time.Now().UTC()
	p1.ClosedAt = &now
	require.NoError(t, s.UpdatePosition(ctx, p1))
	require.NoError(t, s.InsertPosition(ctx, samplePosition("pos-3", "mkt-a")))
}

func TestOpenPositionsAndDailyCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := samplePosition("pos-a", "mkt-a")
	b := samplePosition("pos-b", "mkt-b")
	b.OpenedAt = a.OpenedAt.Add(-48 * time.Hour)
	b.Status = domain.PositionStatusClosed
	require.NoError(t, s.InsertPosition(ctx, a))
	require.NoError(t, s.InsertPosition(ctx, b))

	open, err := s.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "pos-a", open[0].ID)

	n, err := s.CountOpenedSince(ctx, a.OpenedAt.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateMissingPosition(t *testing.T) {
	s := newTestStore(t)
	p := samplePosition("ghost", "mkt-x")
	err := s.UpdatePosition(context.Background(), p)
	require.Error(t, err)
}

func TestInsertExitEvaluation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertPosition(ctx, samplePosition("pos-1", "mkt-a")))

	eval := &domain.ExitEvaluation{
		PositionID:     "pos-1",
		State:          domain.ExitStateMonitoring,
		OptionPnL:      260,
		PMActualPnL:    -40,
		PMTheoretical:  -400,
		OpportunityPnL: -360,
		TotalActualPnL: 219.9,
		ExitCostUSD:    0.1,
		EvaluatedAt:    time.Now().UTC(),
	}
	dec := domain.ExitDecision{Action: domain.ExitActionExit, Reason: "locking in profit"}
	require.NoError(t, s.InsertExitEvaluation(ctx, eval, dec))
}
