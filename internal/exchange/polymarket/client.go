package polymarket

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/lazylemoncat/ProArb-MVP/pkg/orderbook"
)

// Client Polymarket CLOB 只读客户端
type Client struct {
	clob  *resty.Client
	gamma *resty.Client
}

// NewClient 创建客户端
func NewClient(clobURL, gammaURL string, timeout time.Duration) *Client {
	newREST := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(strings.TrimSuffix(base, "/")).
			SetTimeout(timeout).
			SetRetryCount(3).
			SetRetryWaitTime(1 * time.Second).
			SetRetryMaxWaitTime(10 * time.Second)
	}
	return &Client{clob: newREST(clobURL), gamma: newREST(gammaURL)}
}

type rawLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type rawBook struct {
	Bids []rawLevel `json:"bids"`
	Asks []rawLevel `json:"asks"`
}

// BookSnapshot 某个 token 的双边盘口
type BookSnapshot struct {
	Bids orderbook.Book // 价格降序
	Asks orderbook.Book // 价格升序
}

// BestBid 最优买价；空盘口返回 0
func (b BookSnapshot) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	p, _ := b.Bids[0].Price.Float64()
	return p
}

// BestAsk 最优卖价；空盘口返回 0
func (b BookSnapshot) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	p, _ := b.Asks[0].Price.Float64()
	return p
}

// GetBook 拉取并排序某 token 的盘口
func (c *Client) GetBook(ctx context.Context, tokenID string) (*BookSnapshot, error) {
	var raw rawBook
	resp, err := c.clob.R().
		SetContext(ctx).
		SetQueryParam("token_id", tokenID).
		SetResult(&raw).
		Get("/book")
	if err != nil {
		return nil, errors.Wrapf(err, "pm book %s", tokenID)
	}
	if resp.IsError() {
		return nil, errors.Errorf("pm book %s: http %d", tokenID, resp.StatusCode())
	}
	return sortBook(raw)
}

func sortBook(raw rawBook) (*BookSnapshot, error) {
	parse := func(levels []rawLevel) (orderbook.Book, error) {
		book := make(orderbook.Book, 0, len(levels))
		for _, lv := range levels {
			price, err := strconv.ParseFloat(lv.Price, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "bad price %q", lv.Price)
			}
			size, err := strconv.ParseFloat(lv.Size, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "bad size %q", lv.Size)
			}
			if size <= 0 {
				continue
			}
			book = append(book, orderbook.NewLevel(price, size))
		}
		return book, nil
	}

	bids, err := parse(raw.Bids)
	if err != nil {
		return nil, err
	}
	asks, err := parse(raw.Asks)
	if err != nil {
		return nil, err
	}
	// CLOB 返回顺序不保证，统一整理成吃单方向
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })
	return &BookSnapshot{Bids: bids, Asks: asks}, nil
}

// Market gamma 市场元数据
type Market struct {
	ConditionID string `json:"conditionId"`
	Question    string `json:"question"`
	EndDateISO  string `json:"endDateIso"`
	Closed      bool   `json:"closed"`
}

// GetMarket 按 condition id 查询市场元数据
func (c *Client) GetMarket(ctx context.Context, conditionID string) (*Market, error) {
	var out []Market
	resp, err := c.gamma.R().
		SetContext(ctx).
		SetQueryParam("condition_ids", conditionID).
		SetResult(&out).
		Get("/markets")
	if err != nil {
		return nil, errors.Wrapf(err, "pm market %s", conditionID)
	}
	if resp.IsError() {
		return nil, errors.Errorf("pm market %s: http %d", conditionID, resp.StatusCode())
	}
	if len(out) == 0 {
		return nil, errors.Errorf("pm market %s: not found", conditionID)
	}
	return &out[0], nil
}
