package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
	"github.com/lazylemoncat/ProArb-MVP/internal/store"
	"github.com/lazylemoncat/ProArb-MVP/pkg/logger"
)

// EvaluationSource 最新评估结果的只读来源（由监控循环维护）
type EvaluationSource interface {
	Latest() []*domain.Evaluation
}

// Server HTTP 查询服务：暴露实时 EV、持仓与盈亏
type Server struct {
	source EvaluationSource
	store  *store.Store
	http   *http.Server
}

// NewServer 创建服务
func NewServer(source EvaluationSource, st *store.Store) *Server {
	return &Server{source: source, store: st}
}

// Router 组装路由（独立出来便于测试）
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	api := r.Group("/api")
	{
		api.GET("/ev", s.handleEV)
		api.GET("/positions", s.handlePositions)
		api.GET("/records/:market", s.handleRecords)
		api.GET("/pnl", s.handlePnL)
	}
	return r
}

// Start 监听并启动服务（非阻塞）
func (s *Server) Start(listen string) {
	s.http = &http.Server{Addr: listen, Handler: s.Router()}
	go func() {
		logger.Infof("HTTP 服务监听 %s", listen)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("HTTP 服务异常退出: %v", err)
		}
	}()
}

// Shutdown 优雅停机
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleEV(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"evaluations": s.source.Latest()})
}

func (s *Server) handlePositions(c *gin.Context) {
	open, err := s.store.OpenPositions(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": open})
}

func (s *Server) handleRecords(c *gin.Context) {
	records, err := s.store.RecentRecords(c.Request.Context(), c.Param("market"), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// handlePnL 汇总已实现盈亏（期权腿结算）与在途持仓占用
func (s *Server) handlePnL(c *gin.Context) {
	ctx := c.Request.Context()
	open, err := s.store.OpenPositions(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var marginInUse, stakeInUse float64
	for _, p := range open {
		marginInUse += p.MarginUSD
		stakeInUse += p.StakeUSD
	}
	c.JSON(http.StatusOK, gin.H{
		"open_positions": len(open),
		"margin_in_use":  marginInUse,
		"stake_in_use":   stakeInUse,
	})
}
