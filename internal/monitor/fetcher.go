package monitor

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
	"github.com/lazylemoncat/ProArb-MVP/internal/earlyexit"
	"github.com/lazylemoncat/ProArb-MVP/internal/exchange/deribit"
	"github.com/lazylemoncat/ProArb-MVP/internal/exchange/polymarket"
	"github.com/lazylemoncat/ProArb-MVP/internal/strategy"
	"github.com/lazylemoncat/ProArb-MVP/pkg/config"
	"github.com/lazylemoncat/ProArb-MVP/pkg/logger"
)

// deribitExpiryHour Deribit 期权每日 08:00 UTC 交割
const deribitExpiryHour = 8

// Fetcher 聚合 Deribit 与 Polymarket 行情，组装评估快照。
// PM 盘口优先读 websocket 缓存，缓存缺失或过期时回落 REST。
type Fetcher struct {
	deribit *deribit.Client
	pm      *polymarket.Client
	books   *polymarket.BookCache // 可为 nil（纯 REST 模式）
}

// NewFetcher 创建聚合器
func NewFetcher(dr *deribit.Client, pm *polymarket.Client, books *polymarket.BookCache) *Fetcher {
	return &Fetcher{deribit: dr, pm: pm, books: books}
}

// book 缓存优先取盘口，未命中走 REST
func (f *Fetcher) book(ctx context.Context, tokenID string) (*polymarket.BookSnapshot, error) {
	if f.books != nil {
		if b, ok := f.books.Get(tokenID); ok {
			return b, nil
		}
		logger.Debugf("盘口缓存未命中，回落 REST token=%s", tokenID)
	}
	return f.pm.GetBook(ctx, tokenID)
}

// ParseExpiry 解析 Deribit 到期代码（如 29AUG25）为交割时刻
func ParseExpiry(code string) (time.Time, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < 6 {
		return time.Time{}, errors.Errorf("bad expiry code %q", code)
	}
	// Go 的月份布局大小写敏感，归一成 29Aug25 再解析
	day := code[:len(code)-5]
	mon := code[len(code)-5 : len(code)-2]
	yr := code[len(code)-2:]
	normalized := day + mon[:1] + strings.ToLower(mon[1:]) + yr
	t, err := time.Parse("2Jan06", normalized)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse expiry %q", code)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), deribitExpiryHour, 0, 0, 0, time.UTC), nil
}

// Snapshot 拉取一个市场的完整快照。任何一条腿缺数据都返回错误，本周期跳过。
// 已关闭的市场同样以错误返回，由调用方跳过。
func (f *Fetcher) Snapshot(ctx context.Context, m config.MarketConfig) (*domain.MarketSnapshot, error) {
	expiry, err := ParseExpiry(m.Expiry)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	ttl := expiry.Sub(now).Hours() / 24 / 365

	meta, err := f.pm.GetMarket(ctx, m.MarketID)
	if err != nil {
		return nil, err
	}
	if meta.Closed {
		return nil, errors.Errorf("market %s: already closed", m.MarketID)
	}

	k1Ticker, err := f.deribit.GetTicker(ctx, deribit.InstrumentName(m.Instrument, m.Expiry, m.K1))
	if err != nil {
		return nil, err
	}
	k2Ticker, err := f.deribit.GetTicker(ctx, deribit.InstrumentName(m.Instrument, m.Expiry, m.K2))
	if err != nil {
		return nil, err
	}
	spot := k1Ticker.IndexPrice
	if spot <= 0 {
		return nil, errors.Errorf("market %s: index price missing", m.MarketID)
	}

	yesBook, err := f.book(ctx, m.YesTokenID)
	if err != nil {
		return nil, err
	}
	noBook, err := f.book(ctx, m.NoTokenID)
	if err != nil {
		return nil, err
	}

	snap := &domain.MarketSnapshot{
		MarketID: m.MarketID,
		Title:    meta.Question,
		Spot:     spot,
		// Deribit 期权以标的计价，换算成 USD
		K1: domain.OptionQuote{
			Strike:  m.K1,
			BidUSD:  k1Ticker.BestBidPrice * spot,
			AskUSD:  k1Ticker.BestAskPrice * spot,
			MarkVol: k1Ticker.MarkIV / 100,
		},
		K2: domain.OptionQuote{
			Strike:  m.K2,
			BidUSD:  k2Ticker.BestBidPrice * spot,
			AskUSD:  k2Ticker.BestAskPrice * spot,
			MarkVol: k2Ticker.MarkIV / 100,
		},
		KPoly:        m.KPoly,
		YesBid:       yesBook.BestBid(),
		YesAsk:       yesBook.BestAsk(),
		NoBid:        noBook.BestBid(),
		NoAsk:        noBook.BestAsk(),
		YesBook:      yesBook.Asks, // 买入吃 ask
		NoBook:       noBook.Asks,
		TimeToExpiry: ttl,
		DailyExpiry:  expiry.Sub(now) <= 36*time.Hour,
		Timestamp:    now,
	}
	return snap, nil
}

// ExitSnapshot 组装退出评估用的实时状态：交割价 + 持仓方向的退出盘口。
// 交割价未发布时回落用指数价（仅在交割后极短的窗口内出现）。
func (f *Fetcher) ExitSnapshot(ctx context.Context, pos *domain.Position, m config.MarketConfig) (earlyexit.Snapshot, error) {
	indexName := strings.ToLower(m.Instrument) + "_usd"
	settle, err := f.deribit.GetDeliveryPrice(ctx, indexName)
	if err != nil || settle <= 0 {
		settle, err = f.deribit.GetIndexPrice(ctx, indexName)
		if err != nil {
			return earlyexit.Snapshot{}, err
		}
	}

	// 退出即卖出持仓方向的 token，吃 bid 盘口
	tokenID := m.YesTokenID
	if pos.Strategy == domain.StrategyBuyNoBuySpread {
		tokenID = m.NoTokenID
	}
	book, err := f.book(ctx, tokenID)
	if err != nil {
		return earlyexit.Snapshot{}, err
	}

	return earlyexit.Snapshot{
		SettlementPrice: settle,
		ExitBook:        book.Bids,
	}, nil
}

// EventExpiry PM 结算时刻 = 期权交割后推迟固定时长
func EventExpiry(optionExpiry time.Time) time.Time {
	return optionExpiry.Add(time.Duration(strategy.SettlementLagHours) * time.Hour)
}
