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
	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
	"github.com/lazylemoncat/ProArb-MVP/internal/store"
	"github.com/lazylemoncat/ProArb-MVP/pkg/logger"
)

// emptySource 独立查询服务没有在线评估循环，实时 EV 为空
type emptySource struct{}

func (emptySource) Latest() []*domain.Evaluation { return nil }

// 独立启动 HTTP 查询服务：只读已有数据库，不跑评估循环。
func main() {
	dbPath := flag.String("db", "proarb.db", "SQLite 数据库路径")
	listen := flag.String("listen", ":8080", "监听地址")
	flag.Parse()

	if err := run(*dbPath, *listen); err != nil {
		fmt.Fprintf(os.Stderr, "proarb-server: %v\n", err)
		os.Exit(1)
	}
}

func run(dbPath, listen string) error {
	if err := logger.InitDefault(); err != nil {
		return err
	}

	st, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	srv := api.NewServer(emptySource{}, st)
	srv.Start(listen)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
