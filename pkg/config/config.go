package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lazylemoncat/ProArb-MVP/internal/earlyexit"
	"github.com/lazylemoncat/ProArb-MVP/internal/filters"
	"github.com/lazylemoncat/ProArb-MVP/internal/margin"
)

// EngineConfig 定价引擎参数
type EngineConfig struct {
	RiskFreeRate        float64 `yaml:"risk_free_rate"`         // 年化无风险利率
	StakeUSD            float64 `yaml:"stake_usd"`              // 单笔目标投入
	HoldingRate         float64 `yaml:"holding_rate"`           // 年化资金占用成本率
	GridStepUSD         float64 `yaml:"grid_step_usd"`          // EV 积分网格步长
	GridTailUSD         float64 `yaml:"grid_tail_usd"`          // EV 积分网格尾部宽度
	TreatResidualAsEdge bool    `yaml:"treat_residual_as_edge"` // PM bid+ask 残差是否计入 edge
}

// FeesConfig 费率配置
type FeesConfig struct {
	FeeCapRate     float64 `yaml:"fee_cap_rate"`    // taker 费率（按指数价）
	PriceCapRate   float64 `yaml:"price_cap_rate"`  // 期权价格封顶比例
	SettlementRate float64 `yaml:"settlement_rate"` // 结算费率
	GasOpenUSD     float64 `yaml:"gas_open_usd"`
	GasCloseUSD    float64 `yaml:"gas_close_usd"`
}

// MarketConfig 被监控的单个市场
type MarketConfig struct {
	MarketID   string  `yaml:"market_id"`   // PM 市场标识
	YesTokenID string  `yaml:"yes_token_id"`
	NoTokenID  string  `yaml:"no_token_id"`
	Instrument string  `yaml:"instrument"`  // Deribit 标的（如 BTC）
	K1         float64 `yaml:"k1"`          // 低行权价
	K2         float64 `yaml:"k2"`          // 高行权价
	KPoly      float64 `yaml:"k_poly"`      // 事件阈值价格
	Expiry     string  `yaml:"expiry"`      // Deribit 到期代码（如 29AUG25）
}

// DeribitConfig Deribit 接入配置
type DeribitConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// PolymarketConfig Polymarket 接入配置
type PolymarketConfig struct {
	ClobURL  string   `yaml:"clob_url"`
	GammaURL string   `yaml:"gamma_url"`
	WSURL    string   `yaml:"ws_url"`
	Timeout  Duration `yaml:"timeout"`
}

// TelegramConfig 通知配置；Token 留空则关闭通知
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// ServerConfig HTTP 查询服务配置
type ServerConfig struct {
	Listen string `yaml:"listen"` // 例如 ":8080"，留空不启动
}

// Config 应用配置
type Config struct {
	Engine     EngineConfig         `yaml:"engine"`
	Fees       FeesConfig           `yaml:"fees"`
	Margin     margin.ShockGrid     `yaml:"margin"`
	Record     filters.RecordConfig `yaml:"record_filter"`
	Trade      filters.TradeConfig  `yaml:"trade_filter"`
	EarlyExit  earlyexit.Config     `yaml:"early_exit"`
	Markets    []MarketConfig       `yaml:"markets"`
	Deribit    DeribitConfig        `yaml:"deribit"`
	Polymarket PolymarketConfig     `yaml:"polymarket"`
	Telegram   TelegramConfig       `yaml:"telegram"`
	Server     ServerConfig         `yaml:"server"`

	Interval     Duration `yaml:"interval"`      // 评估周期
	ExitInterval Duration `yaml:"exit_interval"` // 退出监控周期
	DBPath       string   `yaml:"db_path"`
	LogLevel     string   `yaml:"log_level"`
	LogFile      string   `yaml:"log_file"`
}

// Load 读取 yaml 配置。先加载 .env（可选），敏感字段允许用环境变量覆盖。
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("PROARB_DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults 填充缺省值
func (c *Config) ApplyDefaults() {
	if c.Engine.RiskFreeRate == 0 {
		c.Engine.RiskFreeRate = 0.05
	}
	if c.Engine.StakeUSD == 0 {
		c.Engine.StakeUSD = 100
	}
	if c.Engine.HoldingRate == 0 {
		c.Engine.HoldingRate = 0.05
	}
	if c.Engine.GridStepUSD == 0 {
		c.Engine.GridStepUSD = 250
	}
	if c.Engine.GridTailUSD == 0 {
		c.Engine.GridTailUSD = 10000
	}
	if c.Fees.FeeCapRate == 0 {
		c.Fees.FeeCapRate = 0.0003
	}
	if c.Fees.PriceCapRate == 0 {
		c.Fees.PriceCapRate = 0.125
	}
	if c.Fees.SettlementRate == 0 {
		c.Fees.SettlementRate = 0.00015
	}
	if c.Fees.GasOpenUSD == 0 {
		c.Fees.GasOpenUSD = 0.1
	}
	if c.Fees.GasCloseUSD == 0 {
		c.Fees.GasCloseUSD = 0.1
	}
	if len(c.Margin.PriceShocks) == 0 && len(c.Margin.ExtendedShocks) == 0 {
		c.Margin = margin.DefaultShockGrid()
	}
	if c.Record.Cooldown == 0 {
		c.Record = filters.DefaultRecordConfig()
	}
	if c.Trade.MaxStakeUSD == 0 {
		c.Trade = filters.DefaultTradeConfig()
	}
	if c.EarlyExit.DepthMultiplier == 0 {
		c.EarlyExit = earlyexit.DefaultConfig()
	}
	if c.EarlyExit.MonitorWindowSec == 0 {
		c.EarlyExit.MonitorWindowSec = 300
	}
	if c.Deribit.BaseURL == "" {
		c.Deribit.BaseURL = "https://www.deribit.com"
	}
	if c.Deribit.Timeout == 0 {
		c.Deribit.Timeout = Duration(10 * time.Second)
	}
	if c.Polymarket.ClobURL == "" {
		c.Polymarket.ClobURL = "https://clob.polymarket.com"
	}
	if c.Polymarket.GammaURL == "" {
		c.Polymarket.GammaURL = "https://gamma-api.polymarket.com"
	}
	if c.Polymarket.WSURL == "" {
		c.Polymarket.WSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if c.Polymarket.Timeout == 0 {
		c.Polymarket.Timeout = Duration(10 * time.Second)
	}
	if c.Interval == 0 {
		c.Interval = Duration(time.Minute)
	}
	if c.ExitInterval == 0 {
		c.ExitInterval = Duration(30 * time.Second)
	}
	if c.DBPath == "" {
		c.DBPath = "proarb.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate 验证配置；保证金网格为空视为致命错误
func (c *Config) Validate() error {
	if c.Engine.StakeUSD <= 0 {
		return fmt.Errorf("config: engine.stake_usd must be positive")
	}
	if c.Engine.GridStepUSD <= 0 {
		return fmt.Errorf("config: engine.grid_step_usd must be positive")
	}
	if err := c.Margin.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if len(c.Markets) == 0 {
		return fmt.Errorf("config: no markets configured")
	}
	for i, m := range c.Markets {
		if m.MarketID == "" {
			return fmt.Errorf("config: markets[%d].market_id is empty", i)
		}
		if m.K2 <= m.K1 || m.K1 <= 0 {
			return fmt.Errorf("config: markets[%d] strikes invalid (k1=%.0f k2=%.0f)", i, m.K1, m.K2)
		}
		if m.KPoly <= 0 {
			return fmt.Errorf("config: markets[%d].k_poly is missing", i)
		}
	}
	if c.Telegram.Token != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("config: telegram.chat_id required when token is set")
	}
	return nil
}
