// Package relay 把聊天消息分发给加入社区房间的 websocket 连接
package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"commUnity/internal/pkg"
)

// MembershipChecker 判断用户能否进入社区房间
type MembershipChecker interface {
	IsMember(ctx context.Context, communityID, userID uint64) (bool, error)
}

// Bus 在实例之间转发消息；Subscribe 阻塞到 ctx 结束，并按发布顺序调用 handler
type Bus interface {
	Publish(ctx context.Context, communityID uint64, payload []byte) error
	Subscribe(ctx context.Context, handler func(communityID uint64, payload []byte)) error
}

type Hub struct {
	// mu 同时串行化分发，每个房间按发布顺序收到消息
	mu      sync.Mutex
	rooms   map[uint64]map[*Client]struct{}
	clients map[*Client]struct{}

	members MembershipChecker
	bus     Bus
	now     func() time.Time
	logger  *slog.Logger
}

// NewHub bus 为 nil 时只在进程内分发
func NewHub(members MembershipChecker, bus Bus) *Hub {
	return &Hub{
		rooms:   make(map[uint64]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
		members: members,
		bus:     bus,
		now:     time.Now,
		logger:  pkg.Component("relay"),
	}
}

// Run 消费 bus 直到 ctx 结束；没有 bus 时只等待
func (h *Hub) Run(ctx context.Context) error {
	if h.bus == nil {
		<-ctx.Done()
		return nil
	}
	return h.bus.Subscribe(ctx, h.Deliver)
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	connectionsGauge.Inc()
}

// Unregister 移出所有房间并关闭发送队列，可重复调用
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(c)
}

func (h *Hub) unregisterLocked(c *Client) {
	if c.closed {
		return
	}
	for id := range c.rooms {
		h.leaveLocked(c, id)
	}
	delete(h.clients, c)
	c.closed = true
	close(c.Send)
	connectionsGauge.Dec()
}

// Join 校验成员关系后加入房间
func (h *Hub) Join(ctx context.Context, c *Client, communityID uint64) error {
	ok, err := h.members.IsMember(ctx, communityID, c.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return pkg.NewForbiddenError("you are not a member of this community")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return nil
	}
	room, ok := h.rooms[communityID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[communityID] = room
		roomsGauge.Inc()
	}
	room[c] = struct{}{}
	c.rooms[communityID] = struct{}{}
	return nil
}

func (h *Hub) Leave(c *Client, communityID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, communityID)
}

func (h *Hub) leaveLocked(c *Client, communityID uint64) {
	delete(c.rooms, communityID)
	room, ok := h.rooms[communityID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, communityID)
		roomsGauge.Dec()
	}
}

// Evict 把用户在本实例的连接移出房间，并通知客户端
func (h *Hub) Evict(communityID, userID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[communityID] {
		if c.UserID == userID {
			h.leaveLocked(c, communityID)
			c.trySend(removedFrame(communityID))
		}
	}
}

// CloseRoom 社区删除后清空房间
func (h *Hub) CloseRoom(communityID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[communityID] {
		h.leaveLocked(c, communityID)
		c.trySend(removedFrame(communityID))
	}
}

// EvictUser 账号删除后断开该用户的全部连接
func (h *Hub) EvictUser(userID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.UserID == userID {
			h.unregisterLocked(c)
		}
	}
}

func (h *Hub) InRoom(c *Client, communityID uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := c.rooms[communityID]
	return ok
}

// RoomSize 房间内本实例的连接数
func (h *Hub) RoomSize(communityID uint64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[communityID])
}

// Publish 发给房间内所有人，包括发送者
func (h *Hub) Publish(ctx context.Context, msg ChatMessage) error {
	payload, err := encode(EventReceiveMessage, msg)
	if err != nil {
		return err
	}
	if h.bus != nil {
		return h.bus.Publish(ctx, msg.CommunityID, payload)
	}
	h.Deliver(msg.CommunityID, payload)
	return nil
}

// Deliver 把编码好的消息分发给房间内本实例的连接
func (h *Hub) Deliver(communityID uint64, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[communityID] {
		c.trySend(payload)
	}
}

// reply 只回复给一个客户端
func (h *Hub) reply(c *Client, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.trySend(payload)
}

// HandleFrame 处理一条客户端消息，失败时回复 error 消息
func (h *Hub) HandleFrame(ctx context.Context, c *Client, raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		h.reply(c, errorFrame("malformed frame"))
		return
	}
	framesTotal.WithLabelValues(frameLabel(f.Event)).Inc()

	switch f.Event {
	case EventJoinRoom:
		id, err := parseCommunityID(f.Data)
		if err != nil {
			h.reply(c, errorFrame(err.Error()))
			return
		}
		if err = h.Join(ctx, c, id); err != nil {
			h.reply(c, errorFrame(h.clientMessage(err)))
			return
		}
		joined, _ := encode(EventJoined, map[string]uint64{"communityId": id})
		h.reply(c, joined)

	case EventLeaveRoom:
		id, err := parseCommunityID(f.Data)
		if err != nil {
			h.reply(c, errorFrame(err.Error()))
			return
		}
		h.Leave(c, id)

	case EventSendMessage:
		var data sendMessageData
		if err := json.Unmarshal(f.Data, &data); err != nil {
			h.reply(c, errorFrame("malformed message"))
			return
		}
		id, err := parseCommunityID(data.CommunityID)
		if err != nil {
			h.reply(c, errorFrame(err.Error()))
			return
		}
		text := strings.TrimSpace(data.Message)
		if text == "" {
			h.reply(c, errorFrame("message cannot be empty"))
			return
		}
		if !h.InRoom(c, id) {
			h.reply(c, errorFrame("join the room before sending messages"))
			return
		}
		// 成员关系可能在进入房间后结束，发送前再确认一次
		ok, err := h.members.IsMember(ctx, id, c.UserID)
		if err != nil {
			h.reply(c, errorFrame(h.clientMessage(err)))
			return
		}
		if !ok {
			h.Leave(c, id)
			h.reply(c, errorFrame("you are no longer a member of this community"))
			return
		}
		msg := ChatMessage{
			CommunityID: id,
			Message:     text,
			Sender:      c.Username,
			SenderID:    c.UserID,
			SentAt:      h.now().UTC(),
		}
		if err = h.Publish(ctx, msg); err != nil {
			h.logger.ErrorContext(ctx, "relay publish failed", "community_id", id, "error", err)
			h.reply(c, errorFrame("message could not be delivered"))
		}

	default:
		h.reply(c, errorFrame("unknown event"))
	}
}

func (h *Hub) clientMessage(err error) string {
	app := pkg.AsAppError(err)
	if app.Kind == pkg.KindInternal {
		h.logger.Error("relay membership check failed", "error", err)
	}
	return app.Message
}

func frameLabel(event string) string {
	switch event {
	case EventJoinRoom, EventLeaveRoom, EventSendMessage:
		return event
	default:
		return "unknown"
	}
}

// Shutdown 关闭所有发送队列，随后 WritePump 发送 close 帧
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.unregisterLocked(c)
	}
}
