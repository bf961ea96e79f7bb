package polymarket

import (
	"sync"
	"time"
)

// BookCache 保存 websocket 推送的最新盘口，带过期时间。
// Update 与 BookHandler 同签名，可直接挂到 Stream 上。
type BookCache struct {
	mu    sync.RWMutex
	ttl   time.Duration
	books map[string]cachedBook
}

type cachedBook struct {
	book *BookSnapshot
	at   time.Time
}

// NewBookCache 创建缓存；ttl ≤ 0 时取 1 分钟
func NewBookCache(ttl time.Duration) *BookCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &BookCache{ttl: ttl, books: make(map[string]cachedBook)}
}

// Update 写入某 token 的全量盘口
func (c *BookCache) Update(tokenID string, book *BookSnapshot) {
	c.mu.Lock()
	c.books[tokenID] = cachedBook{book: book, at: time.Now()}
	c.mu.Unlock()
}

// Get 读取盘口；缺失或超过 ttl 未更新返回 false
func (c *BookCache) Get(tokenID string) (*BookSnapshot, bool) {
	c.mu.RLock()
	entry, ok := c.books[tokenID]
	c.mu.RUnlock()
	if !ok || time.Since(entry.at) > c.ttl {
		return nil, false
	}
	return entry.book, true
}

// Len 当前缓存的 token 数（含已过期条目）
func (c *BookCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.books)
}
