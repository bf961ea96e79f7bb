package filters

import (
	"sync"
	"time"

	"github.com/lazylemoncat/ProArb-MVP/internal/domain"
)

// StateStore 各市场上次记录信号的内存快照，用于冷却与变化检测。
// 并发安全；过期市场定期驱逐防止无限增长。
type StateStore struct {
	mu    sync.RWMutex
	items map[string]domain.SignalSnapshot
}

// NewStateStore 创建空状态表
func NewStateStore() *StateStore {
	return &StateStore{items: make(map[string]domain.SignalSnapshot)}
}

// Get 取某市场的上次快照
func (s *StateStore) Get(marketID string) (domain.SignalSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.items[marketID]
	return snap, ok
}

// Put 记录本次信号快照
func (s *StateStore) Put(snap domain.SignalSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[snap.MarketID] = snap
}

// EvictBefore 驱逐最后记录时间早于 cutoff 的市场，返回驱逐数量
func (s *StateStore) EvictBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, snap := range s.items {
		if snap.LoggedAt.Before(cutoff) {
			delete(s.items, id)
			n++
		}
	}
	return n
}

// Len 当前跟踪的市场数
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
