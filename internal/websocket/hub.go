package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tempbox/backend/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Event 推送给订阅端的事件
type Event struct {
	Type    string      `json:"type"`
	InboxID string      `json:"inbox_id"`
	Data    interface{} `json:"data,omitempty"`
}

// messageNotice 新邮件事件的载荷，只含元数据不含正文
type messageNotice struct {
	ID             string    `json:"id"`
	From           string    `json:"from"`
	Subject        string    `json:"subject"`
	ReceivedAt     time.Time `json:"received_at"`
	HasAttachments bool      `json:"has_attachments"`
}

type client struct {
	conn    *websocket.Conn
	inboxID string
	send    chan Event
}

// Hub 按邮箱分组管理WebSocket订阅，新邮件到达时实时推送元数据。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{} // inboxID -> clients
	logger  *zap.Logger

	upgrader websocket.Upgrader
}

// NewHub 构造推送中心
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Run 阻塞到 ctx 取消，然后关闭全部连接
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			close(c.send)
		}
	}
	h.clients = make(map[string]map[*client]struct{})
	return nil
}

// NotifyNewMessage 向邮箱的全部订阅端推送新邮件事件。
// 发送缓冲已满的慢订阅端直接丢弃本次事件。
func (h *Hub) NotifyNewMessage(inboxID string, msg *domain.Message) {
	event := Event{
		Type:    "message.new",
		InboxID: inboxID,
		Data: messageNotice{
			ID:             msg.ID,
			From:           msg.From,
			Subject:        msg.Subject,
			ReceivedAt:     msg.ReceivedAt,
			HasAttachments: msg.HasAttachments,
		},
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[inboxID] {
		select {
		case c.send <- event:
		default:
			h.logger.Warn("websocket client too slow, dropping event",
				zap.String("inbox_id", inboxID))
		}
	}
}

// Subscribe 把HTTP请求升级为WebSocket并订阅指定邮箱。
// 调用方必须先完成令牌鉴权。
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, inboxID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn, inboxID: inboxID, send: make(chan Event, 16)}
	h.mu.Lock()
	if h.clients[inboxID] == nil {
		h.clients[inboxID] = make(map[*client]struct{})
	}
	h.clients[inboxID][c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.inboxID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.inboxID)
	}
	close(c.send)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
