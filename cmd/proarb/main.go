package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lazylemoncat/ProArb-MVP/internal/api"
	"github.com/lazylemoncat/ProArb-MVP/internal/costs"
	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
	"github.com/lazylemoncat/ProArb-MVP/internal/earlyexit"
	"github.com/lazylemoncat/ProArb-MVP/internal/exchange/deribit"
	"github.com/lazylemoncat/ProArb-MVP/internal/exchange/polymarket"
	"github.com/lazylemoncat/ProArb-MVP/internal/filters"
	"github.com/lazylemoncat/ProArb-MVP/internal/margin"
	"github.com/lazylemoncat/ProArb-MVP/internal/monitor"
	"github.com/lazylemoncat/ProArb-MVP/internal/notify"
	"github.com/lazylemoncat/ProArb-MVP/internal/pricing"
	"github.com/lazylemoncat/ProArb-MVP/internal/sizing"
	"github.com/lazylemoncat/ProArb-MVP/internal/store"
	"github.com/lazylemoncat/ProArb-MVP/internal/strategy"
	"github.com/lazylemoncat/ProArb-MVP/pkg/config"
	"github.com/lazylemoncat/ProArb-MVP/pkg/logger"
	"github.com/lazylemoncat/ProArb-MVP/pkg/shutdown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "proarb: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{Level: cfg.LogLevel, OutputFile: cfg.LogFile}); err != nil {
		return err
	}
	logger.Infof("proarb 启动，监控 %d 个市场，周期 %s", len(cfg.Markets), cfg.Interval)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	pricer := pricing.NewPricer(cfg.Engine.RiskFreeRate)
	marginEst, err := margin.NewEstimator(pricer, cfg.Margin)
	if err != nil {
		// 空情景网格宁可拒绝启动，也不允许估出 0 保证金
		return err
	}

	fees := domain.FeeSchedule{
		FeeCapRate:     cfg.Fees.FeeCapRate,
		PriceCapRate:   cfg.Fees.PriceCapRate,
		SettlementRate: cfg.Fees.SettlementRate,
		GasOpenUSD:     cfg.Fees.GasOpenUSD,
		GasCloseUSD:    cfg.Fees.GasCloseUSD,
	}
	evaluator := strategy.NewEvaluator(
		pricer,
		pricing.NewPayoffEngine(pricer, pricing.GridConfig{StepUSD: cfg.Engine.GridStepUSD, TailUSD: cfg.Engine.GridTailUSD}),
		costs.NewModel(fees, cfg.Engine.HoldingRate),
		marginEst,
		sizing.NewSizer(),
	)

	notifier, err := notify.NewNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mgr := shutdown.NewManager()

	// PM 盘口走 websocket 推送，订阅失败则降级为纯 REST
	var books *polymarket.BookCache
	if tokens := marketTokenIDs(cfg); len(tokens) > 0 {
		cache := polymarket.NewBookCache(time.Minute)
		stream := polymarket.NewStream(cfg.Polymarket.WSURL, tokens, cache.Update)
		if err := stream.Start(ctx); err != nil {
			logger.Warnf("PM 行情订阅失败，降级为 REST 轮询: %v", err)
		} else {
			books = cache
			mgr.OnShutdown("pm-stream", func(context.Context) { _ = stream.Close() })
		}
	}

	fetcher := monitor.NewFetcher(
		deribit.NewClient(cfg.Deribit.BaseURL, cfg.Deribit.Timeout.Std()),
		polymarket.NewClient(cfg.Polymarket.ClobURL, cfg.Polymarket.GammaURL, cfg.Polymarket.Timeout.Std()),
		books,
	)

	mon := monitor.New(cfg, fetcher, fetcher,
		evaluator,
		filters.NewRecordFilter(cfg.Record, filters.NewStateStore()),
		filters.NewTradeFilter(cfg.Trade),
		earlyexit.NewEngine(cfg.EarlyExit),
		st, notifier)

	if cfg.Server.Listen != "" {
		srv := api.NewServer(mon, st)
		srv.Start(cfg.Server.Listen)
		mgr.OnShutdown("http", func(ctx context.Context) {
			_ = srv.Shutdown(ctx)
		})
	}

	go mon.Run(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("收到退出信号，开始停机")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	mgr.Shutdown(shutdownCtx)
	return nil
}

// marketTokenIDs 全部配置市场的 YES/NO token，用于行情订阅
func marketTokenIDs(cfg *config.Config) []string {
	out := make([]string, 0, len(cfg.Markets)*2)
	for _, m := range cfg.Markets {
		if m.YesTokenID != "" {
			out = append(out, m.YesTokenID)
		}
		if m.NoTokenID != "" {
			out = append(out, m.NoTokenID)
		}
	}
	return out
}
