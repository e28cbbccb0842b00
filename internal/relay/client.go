package relay

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// 单次写超时
	writeWait = 10 * time.Second

	// 等待 pong 的超时
	pongWait = 60 * time.Second

	// ping 周期，必须小于 pongWait
	pingPeriod = (pongWait * 9) / 10

	// 单条消息上限
	maxMessageSize = 8192

	sendBuffer = 256
)

// Client 一条已鉴权的 websocket 连接，可以同时在多个房间
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// 待发送的消息队列
	Send chan []byte

	UserID   uint64
	Username string

	// 由 hub.mu 保护
	rooms  map[uint64]struct{}
	closed bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uint64, username string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		UserID:   userID,
		Username: username,
		rooms:    make(map[uint64]struct{}),
	}
}

// ReadPump 读取客户端消息交给 hub，直到连接断开
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("relay read failed", "user_id", c.UserID, "error", err)
			}
			return
		}
		c.hub.HandleFrame(ctx, c, message)
	}
}

// WritePump 把队列中的消息写回连接，并定时发送 ping
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub 已关闭队列
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend 不阻塞，队列满时只丢弃这个客户端的这条消息
// 调用方持有 hub.mu，Send 不会被并发关闭
func (c *Client) trySend(message []byte) bool {
	if c.closed {
		droppedTotal.WithLabelValues("closed").Inc()
		return false
	}
	select {
	case c.Send <- message:
		return true
	default:
		droppedTotal.WithLabelValues("full").Inc()
		return false
	}
}
