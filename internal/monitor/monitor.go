package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
	"github.com/lazylemoncat/ProArb-MVP/internal/earlyexit"
	"github.com/lazylemoncat/ProArb-MVP/internal/filters"
	"github.com/lazylemoncat/ProArb-MVP/internal/notify"
	"github.com/lazylemoncat/ProArb-MVP/internal/store"
	"github.com/lazylemoncat/ProArb-MVP/internal/strategy"
	"github.com/lazylemoncat/ProArb-MVP/pkg/config"
	"github.com/lazylemoncat/ProArb-MVP/pkg/logger"
)

// MarketData 评估快照来源
type MarketData interface {
	Snapshot(ctx context.Context, m config.MarketConfig) (*domain.MarketSnapshot, error)
}

// ExitData 退出评估快照来源
type ExitData interface {
	ExitSnapshot(ctx context.Context, pos *domain.Position, m config.MarketConfig) (earlyexit.Snapshot, error)
}

// Monitor 主循环：按周期评估全部市场，驱动记录/下单过滤与退出状态机。
type Monitor struct {
	cfg    *config.Config
	data   MarketData
	exit   ExitData
	eval   *strategy.Evaluator
	record *filters.RecordFilter
	trade  *filters.TradeFilter
	engine *earlyexit.Engine
	store  *store.Store
	notify *notify.Notifier

	mu     sync.RWMutex
	latest map[string]*domain.Evaluation

	now func() time.Time // 测试注入用
}

// New 组装监控器
func New(
	cfg *config.Config,
	data MarketData,
	exit ExitData,
	eval *strategy.Evaluator,
	record *filters.RecordFilter,
	trade *filters.TradeFilter,
	engine *earlyexit.Engine,
	st *store.Store,
	n *notify.Notifier,
) *Monitor {
	return &Monitor{
		cfg:    cfg,
		data:   data,
		exit:   exit,
		eval:   eval,
		record: record,
		trade:  trade,
		engine: engine,
		store:  st,
		notify: n,
		latest: make(map[string]*domain.Evaluation),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Latest 各市场最近一次评估结果
func (m *Monitor) Latest() []*domain.Evaluation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Evaluation, 0, len(m.latest))
	for _, ev := range m.latest {
		out = append(out, ev)
	}
	return out
}

// Run 启动评估循环与退出监控循环，阻塞直至 ctx 取消
func (m *Monitor) Run(ctx context.Context) {
	evalTicker := time.NewTicker(m.cfg.Interval.Std())
	exitTicker := time.NewTicker(m.cfg.ExitInterval.Std())
	defer evalTicker.Stop()
	defer exitTicker.Stop()

	m.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Info("监控循环退出")
			return
		case <-evalTicker.C:
			m.RunCycle(ctx)
		case <-exitTicker.C:
			m.RunExitCycle(ctx)
		}
	}
}

// RunCycle 评估全部配置市场一轮
func (m *Monitor) RunCycle(ctx context.Context) {
	for _, mkt := range m.cfg.Markets {
		if err := m.evaluateMarket(ctx, mkt); err != nil {
			logger.Warnf("市场 %s 本周期跳过: %v", mkt.MarketID, err)
		}
	}
	// 长期无信号的市场状态驱逐，防止状态表无限增长
	m.record.Evict(m.now().Add(-24 * time.Hour))
}

func (m *Monitor) evaluateMarket(ctx context.Context, mkt config.MarketConfig) error {
	snap, err := m.data.Snapshot(ctx, mkt)
	if err != nil {
		return err
	}

	ev, err := m.eval.Evaluate(domain.StrategyInput{
		Snapshot:            *snap,
		StakeUSD:            m.cfg.Engine.StakeUSD,
		RiskFreeRate:        m.cfg.Engine.RiskFreeRate,
		Fees:                feeSchedule(m.cfg),
		TreatResidualAsEdge: m.cfg.Engine.TreatResidualAsEdge,
	})
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.latest[mkt.MarketID] = ev
	m.mu.Unlock()

	if ev.Best == nil {
		return nil
	}
	now := m.now()
	verdict := m.record.ShouldRecord(ev.Best, snap.K1.Mid(), snap.K2.Mid(), now)
	if !verdict.Passed {
		return nil
	}

	if err := m.store.InsertRecord(ctx, ev.Best, snap); err != nil {
		logger.Errorf("信号落库失败 %s: %v", mkt.MarketID, err)
	}
	m.record.Commit(ev.Best, snap.K1.Mid(), snap.K2.Mid(), now)
	m.notify.SignalOpened(ev.Best)

	return m.maybeOpenPosition(ctx, mkt, snap, ev.Best, now)
}

// maybeOpenPosition 下单阶段过滤全部通过时开一笔模拟持仓
func (m *Monitor) maybeOpenPosition(ctx context.Context, mkt config.MarketConfig, snap *domain.MarketSnapshot, best *domain.StrategyResult, now time.Time) error {
	open, err := m.store.OpenPositions(ctx)
	if err != nil {
		return err
	}
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	tradesToday, err := m.store.CountOpenedSince(ctx, dayStart)
	if err != nil {
		return err
	}

	hasPos := false
	for _, p := range open {
		if p.MarketID == mkt.MarketID {
			hasPos = true
			break
		}
	}
	book := snap.YesBook
	if best.Strategy == domain.StrategyBuyNoBuySpread {
		book = snap.NoBook
	}
	depth, _ := book.Depth().Float64()

	verdict := m.trade.ShouldTrade(best, m.cfg.Engine.StakeUSD, filters.TradeContext{
		OpenPositions:     len(open),
		TradesToday:       tradesToday,
		HasPositionInMkt:  hasPos,
		BookDepthShares:   depth,
		ExactContracts:    best.Tokens / (snap.K2.Strike - snap.K1.Strike),
		AdjustedContracts: best.Contracts,
	})
	if !verdict.Passed {
		if f := verdict.FirstFailure(); f != nil {
			logger.Debugf("下单拦截 %s: %s (%s)", mkt.MarketID, f.Name, f.Detail)
		}
		return nil
	}

	premium := snap.K1.BidUSD - snap.K2.AskUSD
	if best.Strategy == domain.StrategyBuyNoBuySpread {
		premium = snap.K1.AskUSD - snap.K2.BidUSD
	}
	optionExpiry, err := ParseExpiry(mkt.Expiry)
	if err != nil {
		optionExpiry = now.Add(time.Duration(snap.TimeToExpiry * 365 * 24 * float64(time.Hour)))
	}
	pos := &domain.Position{
		ID:            uuid.NewString(),
		MarketID:      mkt.MarketID,
		Strategy:      best.Strategy,
		Status:        domain.PositionStatusOpen,
		ExitState:     domain.ExitStateWaiting,
		Contracts:     best.Contracts,
		Tokens:        best.Tokens,
		K1:            snap.K1.Strike,
		K2:            snap.K2.Strike,
		KPoly:         snap.KPoly,
		EntryPrice:    best.EntryPrice,
		StakeUSD:      m.cfg.Engine.StakeUSD,
		SpreadPremium: premium,
		MarginUSD:     best.MarginUSD,
		OptionExpiry:  optionExpiry,
		EventExpiry:   EventExpiry(optionExpiry),
		OpenedAt:      now,
	}
	if err := m.store.InsertPosition(ctx, pos); err != nil {
		return err
	}
	logger.Infof("开仓 %s market=%s strategy=%s contracts=%.2f", pos.ID, pos.MarketID, pos.Strategy, pos.Contracts)
	return nil
}

// RunExitCycle 对全部开仓持仓跑一轮退出决策
func (m *Monitor) RunExitCycle(ctx context.Context) {
	open, err := m.store.OpenPositions(ctx)
	if err != nil {
		logger.Errorf("读取持仓失败: %v", err)
		return
	}
	now := m.now()
	for _, pos := range open {
		mkt, ok := m.marketConfig(pos.MarketID)
		if !ok {
			logger.Warnf("持仓 %s 对应市场 %s 已不在配置中", pos.ID, pos.MarketID)
			continue
		}
		// 期权未到期时无需拉退出行情，只推进 WAITING/MONITORING 状态
		if now.Before(pos.OptionExpiry) {
			m.engine.Decide(pos, earlyexit.Snapshot{}, now)
			if err := m.store.UpdatePosition(ctx, pos); err != nil {
				logger.Errorf("持仓回写失败 %s: %v", pos.ID, err)
			}
			continue
		}

		snap, err := m.exit.ExitSnapshot(ctx, pos, mkt)
		if err != nil {
			logger.Warnf("持仓 %s 退出行情缺失: %v", pos.ID, err)
			continue
		}
		dec := m.engine.Decide(pos, snap, now)
		if dec.Evaluation != nil {
			if err := m.store.InsertExitEvaluation(ctx, dec.Evaluation, dec); err != nil {
				logger.Errorf("退出评估落库失败 %s: %v", pos.ID, err)
			}
		}
		if dec.Action != domain.ExitActionHold {
			pos.Status = domain.PositionStatusClosed
			closedAt := now
			pos.ClosedAt = &closedAt
			m.notify.ExitTriggered(pos, dec)
		}
		if err := m.store.UpdatePosition(ctx, pos); err != nil {
			logger.Errorf("持仓回写失败 %s: %v", pos.ID, err)
		}
	}
}

func (m *Monitor) marketConfig(marketID string) (config.MarketConfig, bool) {
	for _, mkt := range m.cfg.Markets {
		if mkt.MarketID == marketID {
			return mkt, true
		}
	}
	return config.MarketConfig{}, false
}

func feeSchedule(cfg *config.Config) domain.FeeSchedule {
	return domain.FeeSchedule{
		FeeCapRate:     cfg.Fees.FeeCapRate,
		PriceCapRate:   cfg.Fees.PriceCapRate,
		SettlementRate: cfg.Fees.SettlementRate,
		GasOpenUSD:     cfg.Fees.GasOpenUSD,
		GasCloseUSD:    cfg.Fees.GasCloseUSD,
	}
}
