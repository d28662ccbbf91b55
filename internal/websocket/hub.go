package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mailtrace/backend/internal/auth/jwt"
	"mailtrace/backend/internal/domain"
)

// MessageType WebSocket 消息类型
type MessageType string

const (
	MessageTypeTracking MessageType = "tracking_event"
	MessageTypePing     MessageType = "ping"
	MessageTypePong     MessageType = "pong"
	MessageTypeError    MessageType = "error"
)

// Message WebSocket 消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client 一个已认证的 WebSocket 客户端连接。
type Client struct {
	ID     string
	UserID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub 管理实时追踪事件的推送。
//
// 连接按用户分组：一次打开/点击迁移发生后，事件只推给发信用户
// 自己的连接。事件投递是尽力而为的，慢客户端会被丢弃消息。
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client            // clientID -> client
	byUser     map[string]map[string]*Client // userID -> clientID -> client
	register   chan *Client
	unregister chan *Client
	events     chan *domain.TrackingEvent
	done       chan struct{} // Run 退出后关闭，解除读写循环对主循环的依赖
	upgrader   websocket.Upgrader
	jwtManager *jwt.Manager
	log        *zap.Logger
}

// NewHub 创建 WebSocket Hub。
func NewHub(allowedOrigins []string, jwtManager *jwt.Manager, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:    make(map[string]*Client),
		byUser:     make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan *domain.TrackingEvent, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		jwtManager: jwtManager,
		log:        log,
	}
}

// originChecker 创建 Origin 验证函数。
func originChecker(allowedOrigins []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		for _, origin := range allowedOrigins {
			if origin == "*" {
				return true
			}
		}

		requestOrigin := r.Header.Get("Origin")
		if requestOrigin == "" {
			// 没有 Origin 视为同源请求
			return true
		}
		for _, origin := range allowedOrigins {
			if requestOrigin == origin {
				return true
			}
		}
		return false
	}
}

// Run 启动 Hub 主循环。
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if _, ok := h.byUser[client.UserID]; !ok {
				h.byUser[client.UserID] = make(map[string]*Client)
			}
			h.byUser[client.UserID][client.ID] = client
			h.mu.Unlock()
			h.log.Info("client registered",
				zap.String("id", client.ID),
				zap.String("user_id", client.UserID),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				if userClients, exists := h.byUser[client.UserID]; exists {
					delete(userClients, client.ID)
					if len(userClients) == 0 {
						delete(h.byUser, client.UserID)
					}
				}
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.events:
			h.deliver(event)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// Notify 推送追踪事件给事件所属用户的所有连接。Hub 繁忙时事件被丢弃。
func (h *Hub) Notify(event *domain.TrackingEvent) {
	e := *event
	e.OccurredAt = e.OccurredAt.UTC()
	select {
	case h.events <- &e:
	default:
		h.log.Warn("event queue full, dropping tracking event",
			zap.String("user_id", event.UserID),
			zap.String("tracking_id", event.TrackingID),
		)
	}
}

func (h *Hub) deliver(event *domain.TrackingEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Error("failed to marshal tracking event", zap.Error(err))
		return
	}
	msg := Message{
		Type:      MessageTypeTracking,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.byUser[event.UserID] {
		select {
		case client.send <- payload:
		default:
			// 慢客户端，丢弃这条消息
		}
	}
}

// pingAllClients 定期向所有客户端发送 ping。
func (h *Hub) pingAllClients() {
	msg := Message{Type: MessageTypePing, Timestamp: time.Now().UTC()}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- payload:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接。
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.send)
		client.conn.Close()
		delete(h.clients, id)
	}
	h.byUser = make(map[string]map[string]*Client)
}

// HandleConnection 处理 WebSocket 升级请求，token 通过查询参数传入。
func (h *Hub) HandleConnection(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}

	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:     uuid.New().String(),
		UserID: claims.UserID,
		conn:   conn,
		send:   make(chan []byte, 64),
	}

	select {
	case h.register <- client:
	case <-h.done:
		// Hub 已停止，不再接收新连接
		conn.Close()
		return
	}

	go client.writeLoop()
	go client.readLoop(h)
}

// writeLoop 把 send 通道里的消息写到连接。
func (c *Client) writeLoop() {
	defer c.conn.Close()
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// dropClient 把断开的客户端交还主循环注销；Hub 停止后主循环不再收取，直接放弃。
func (h *Hub) dropClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// readLoop 消费客户端消息，只处理 pong/ping，连接断开时注销。
func (c *Client) readLoop(h *Hub) {
	defer func() {
		h.dropClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == MessageTypePing || msg.Type == MessageTypePong {
			c.conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		}
	}
}
