package deribit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Client Deribit 公共行情客户端（只读，无需鉴权）
type Client struct {
	client *resty.Client
}

// NewClient 创建客户端。resty 会自动读取 HTTP_PROXY 等环境变量。
func NewClient(baseURL string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 遇到 429 限流按 Retry-After 头等待
			if resp.StatusCode() == 429 {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})
	return &Client{client: client}
}

type apiResponse[T any] struct {
	Result T      `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Ticker 期权工具行情
type Ticker struct {
	InstrumentName string  `json:"instrument_name"`
	BestBidPrice   float64 `json:"best_bid_price"` // 以标的计价（BTC）
	BestAskPrice   float64 `json:"best_ask_price"`
	MarkIV         float64 `json:"mark_iv"`        // 百分数，如 70.5
	IndexPrice     float64 `json:"index_price"`    // USD
	UnderlyingPrice float64 `json:"underlying_price"`
	SettlementPrice float64 `json:"settlement_price"`
}

// GetTicker 拉取单个工具的行情
func (c *Client) GetTicker(ctx context.Context, instrument string) (*Ticker, error) {
	var out apiResponse[Ticker]
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("instrument_name", instrument).
		SetResult(&out).
		Get("/api/v2/public/ticker")
	if err != nil {
		return nil, errors.Wrapf(err, "deribit ticker %s", instrument)
	}
	if resp.IsError() {
		return nil, errors.Errorf("deribit ticker %s: http %d", instrument, resp.StatusCode())
	}
	if out.Error != nil {
		return nil, errors.Errorf("deribit ticker %s: %d %s", instrument, out.Error.Code, out.Error.Message)
	}
	return &out.Result, nil
}

// GetIndexPrice 拉取指数价格（如 btc_usd）
func (c *Client) GetIndexPrice(ctx context.Context, indexName string) (float64, error) {
	var out apiResponse[struct {
		IndexPrice float64 `json:"index_price"`
	}]
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("index_name", indexName).
		SetResult(&out).
		Get("/api/v2/public/get_index_price")
	if err != nil {
		return 0, errors.Wrapf(err, "deribit index %s", indexName)
	}
	if resp.IsError() {
		return 0, errors.Errorf("deribit index %s: http %d", indexName, resp.StatusCode())
	}
	if out.Error != nil {
		return 0, errors.Errorf("deribit index %s: %d %s", indexName, out.Error.Code, out.Error.Message)
	}
	return out.Result.IndexPrice, nil
}

// GetDeliveryPrice 拉取某指数最近一次交割价；无记录返回错误
func (c *Client) GetDeliveryPrice(ctx context.Context, indexName string) (float64, error) {
	var out apiResponse[struct {
		Data []struct {
			DeliveryPrice float64 `json:"delivery_price"`
			Date          string  `json:"date"`
		} `json:"data"`
	}]
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"index_name": indexName,
			"count":      "1",
		}).
		SetResult(&out).
		Get("/api/v2/public/get_delivery_prices")
	if err != nil {
		return 0, errors.Wrapf(err, "deribit delivery %s", indexName)
	}
	if resp.IsError() {
		return 0, errors.Errorf("deribit delivery %s: http %d", indexName, resp.StatusCode())
	}
	if out.Error != nil {
		return 0, errors.Errorf("deribit delivery %s: %d %s", indexName, out.Error.Code, out.Error.Message)
	}
	if len(out.Result.Data) == 0 {
		return 0, errors.Errorf("deribit delivery %s: no delivery prices", indexName)
	}
	return out.Result.Data[0].DeliveryPrice, nil
}

// InstrumentName 拼接 Deribit 期权工具名，如 BTC-29AUG25-100000-C
func InstrumentName(underlying, expiry string, strike float64) string {
	return fmt.Sprintf("%s-%s-%d-C", strings.ToUpper(underlying), strings.ToUpper(expiry), int(strike))
}
