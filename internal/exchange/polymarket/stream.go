package polymarket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/lazylemoncat/ProArb-MVP/pkg/logger"
)

// BookHandler 收到某 token 全量盘口时的回调
type BookHandler func(tokenID string, book *BookSnapshot)

// Stream CLOB 市场频道的 websocket 订阅。
// 断线后信号驱动重连，重连成功自动重新订阅。
type Stream struct {
	url      string
	tokenIDs []string
	handler  BookHandler

	mu         sync.Mutex
	conn       *websocket.Conn
	reconnectC chan struct{}
	delay      time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// NewStream 创建订阅；handler 在读循环 goroutine 中被调用
func NewStream(url string, tokenIDs []string, handler BookHandler) *Stream {
	return &Stream{
		url:        url,
		tokenIDs:   tokenIDs,
		handler:    handler,
		reconnectC: make(chan struct{}, 1),
		delay:      5 * time.Second,
	}
}

// Start 建立连接并启动读循环与重连器
func (s *Stream) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)
	if err := s.connect(); err != nil {
		return err
	}
	go s.readLoop()
	go s.reconnector()
	return nil
}

// Close 关闭连接并停止全部 goroutine
func (s *Stream) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func (s *Stream) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(s.ctx, s.url, nil)
	if err != nil {
		return errors.Wrap(err, "pm stream dial")
	}

	sub := map[string]any{"type": "market", "assets_ids": s.tokenIDs}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "pm stream subscribe")
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	logger.Infof("PM 行情连接就绪 tokens=%d", len(s.tokenIDs))
	return nil
}

// signalReconnect 非阻塞投递重连信号
func (s *Stream) signalReconnect() {
	select {
	case s.reconnectC <- struct{}{}:
	default:
	}
}

func (s *Stream) reconnector() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.reconnectC:
			logger.Warnf("PM 行情断开，%v 后重连", s.delay)
			time.Sleep(s.delay)
			if err := s.connect(); err != nil {
				logger.Errorf("PM 行情重连失败: %v", err)
				s.signalReconnect()
				continue
			}
			go s.readLoop()
		}
	}
}

type wsBookMessage struct {
	EventType string     `json:"event_type"`
	AssetID   string     `json:"asset_id"`
	Bids      []rawLevel `json:"bids"`
	Asks      []rawLevel `json:"asks"`
}

func (s *Stream) readLoop() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil {
				s.signalReconnect()
			}
			return
		}

		// 频道推送既可能是单条对象也可能是数组
		var msgs []wsBookMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			var one wsBookMessage
			if err := json.Unmarshal(data, &one); err != nil {
				continue
			}
			msgs = []wsBookMessage{one}
		}
		for _, msg := range msgs {
			if msg.EventType != "book" {
				continue
			}
			book, err := sortBook(rawBook{Bids: msg.Bids, Asks: msg.Asks})
			if err != nil {
				logger.Warnf("PM 行情解析失败 asset=%s: %v", msg.AssetID, err)
				continue
			}
			s.handler(msg.AssetID, book)
		}
	}
}
