package shutdown

import (
	"context"
	"sync"

	"github.com/lazylemoncat/ProArb-MVP/pkg/logger"
)

// Handler 单个组件的关闭函数；应在 ctx 取消前返回
type Handler func(ctx context.Context)

type entry struct {
	name string
	fn   Handler
}

// Manager 具名关闭回调的优雅关闭管理器。
// 回调并发执行，整体受调用方传入的超时 ctx 约束。
type Manager struct {
	mu      sync.Mutex
	entries []entry
}

// NewManager 创建关闭管理器
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown 注册具名关闭回调
func (m *Manager) OnShutdown(name string, fn Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry{name: name, fn: fn})
}

// Shutdown 并发执行全部回调，阻塞至完成或 ctx 超时。
// 返回是否在超时前全部完成。
func (m *Manager) Shutdown(ctx context.Context) bool {
	m.mu.Lock()
	entries := m.entries
	m.mu.Unlock()

	if len(entries) == 0 {
		return true
	}
	logger.Infof("开始优雅关闭，共 %d 个组件", len(entries))

	var wg sync.WaitGroup
	wg.Add(len(entries))
	for _, e := range entries {
		go func(e entry) {
			defer wg.Done()
			e.fn(ctx)
			logger.Debugf("组件 %s 已关闭", e.name)
		}(e)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("全部组件已关闭")
		return true
	case <-ctx.Done():
		logger.Warnf("关闭超时: %v", ctx.Err())
		return false
	}
}
