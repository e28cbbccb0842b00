package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMembers struct {
	members map[uint64]map[uint64]bool
}

func (s *stubMembers) IsMember(_ context.Context, communityID, userID uint64) (bool, error) {
	return s.members[communityID][userID], nil
}

func newTestHub() *Hub {
	h := NewHub(&stubMembers{members: map[uint64]map[uint64]bool{
		1: {10: true, 11: true},
		2: {10: true},
	}}, nil)
	h.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return h
}

func newTestClient(h *Hub, userID uint64, name string) *Client {
	c := NewClient(h, nil, userID, name)
	h.Register(c)
	return c
}

func readFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case raw := <-c.Send:
		var f Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return Frame{}
	}
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected frame %s", raw)
	default:
	}
}

func TestHub_JoinRequiresMembership(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()
	outsider := newTestClient(h, 99, "outsider")

	h.HandleFrame(ctx, outsider, []byte(`{"event":"join-room","data":1}`))
	f := readFrame(t, outsider)
	assert.Equal(t, EventError, f.Event)
	assert.False(t, h.InRoom(outsider, 1))

	member := newTestClient(h, 10, "alice")
	h.HandleFrame(ctx, member, []byte(`{"event":"join-room","data":"1"}`))
	f = readFrame(t, member)
	assert.Equal(t, EventJoined, f.Event)
	assert.True(t, h.InRoom(member, 1))
	assert.Equal(t, 1, h.RoomSize(1))
}

func TestHub_SendMessageFansOutIncludingSender(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()
	alice := newTestClient(h, 10, "alice")
	bob := newTestClient(h, 11, "bob")
	for _, c := range []*Client{alice, bob} {
		h.HandleFrame(ctx, c, []byte(`{"event":"join-room","data":{"communityId":1}}`))
		readFrame(t, c)
	}
	// alice 也在 2 号房间，但不应收到 1 号房间以外的消息
	h.HandleFrame(ctx, alice, []byte(`{"event":"join-room","data":2}`))
	readFrame(t, alice)

	h.HandleFrame(ctx, alice, []byte(`{"event":"send-message","data":{"communityId":1,"message":"hi","sender":"mallory"}}`))

	for _, c := range []*Client{alice, bob} {
		f := readFrame(t, c)
		require.Equal(t, EventReceiveMessage, f.Event)
		var msg ChatMessage
		require.NoError(t, json.Unmarshal(f.Data, &msg))
		assert.Equal(t, uint64(1), msg.CommunityID)
		assert.Equal(t, "hi", msg.Message)
		assert.Equal(t, "alice", msg.Sender, "sender is taken from the session")
		assert.Equal(t, uint64(10), msg.SenderID)
	}
	assertNoFrame(t, alice)
}

func TestHub_SendWithoutJoinIsRejected(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()
	alice := newTestClient(h, 10, "alice")

	h.HandleFrame(ctx, alice, []byte(`{"event":"send-message","data":{"communityId":1,"message":"hi"}}`))
	assert.Equal(t, EventError, readFrame(t, alice).Event)

	h.HandleFrame(ctx, alice, []byte(`{"event":"join-room","data":1}`))
	readFrame(t, alice)
	h.HandleFrame(ctx, alice, []byte(`{"event":"leave-room","data":1}`))
	assert.False(t, h.InRoom(alice, 1))
	assert.Equal(t, 0, h.RoomSize(1))

	h.HandleFrame(ctx, alice, []byte(`{"event":"send-message","data":{"communityId":1,"message":"hi"}}`))
	assert.Equal(t, EventError, readFrame(t, alice).Event)
}

func TestHub_SendRechecksMembership(t *testing.T) {
	members := &stubMembers{members: map[uint64]map[uint64]bool{1: {10: true, 11: true}}}
	h := NewHub(members, nil)
	ctx := context.Background()
	alice := newTestClient(h, 10, "alice")
	bob := newTestClient(h, 11, "bob")
	require.NoError(t, h.Join(ctx, alice, 1))
	require.NoError(t, h.Join(ctx, bob, 1))

	// bob 已退出社区，但连接还在房间里
	members.members[1][11] = false
	h.HandleFrame(ctx, bob, []byte(`{"event":"send-message","data":{"communityId":1,"message":"still here?"}}`))

	f := readFrame(t, bob)
	assert.Equal(t, EventError, f.Event)
	assert.Contains(t, string(f.Data), "no longer a member")
	assert.False(t, h.InRoom(bob, 1))
	assertNoFrame(t, alice)
}

func TestHub_EvictRemovesUserFromRoom(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()
	alice := newTestClient(h, 10, "alice")
	bob := newTestClient(h, 11, "bob")
	bobTab := newTestClient(h, 11, "bob")
	for _, c := range []*Client{alice, bob, bobTab} {
		require.NoError(t, h.Join(ctx, c, 1))
	}

	h.Evict(1, 11)
	for _, c := range []*Client{bob, bobTab} {
		f := readFrame(t, c)
		assert.Equal(t, EventRemoved, f.Event)
		assert.JSONEq(t, `{"communityId":1}`, string(f.Data))
		assert.False(t, h.InRoom(c, 1))
	}
	assert.Equal(t, 1, h.RoomSize(1))

	require.NoError(t, h.Publish(ctx, ChatMessage{CommunityID: 1, Message: "members only"}))
	assert.Equal(t, EventReceiveMessage, readFrame(t, alice).Event)
	assertNoFrame(t, bob)
	assertNoFrame(t, bobTab)
}

func TestHub_CloseRoomAndEvictUser(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()
	alice := newTestClient(h, 10, "alice")
	bob := newTestClient(h, 11, "bob")
	require.NoError(t, h.Join(ctx, alice, 1))
	require.NoError(t, h.Join(ctx, alice, 2))
	require.NoError(t, h.Join(ctx, bob, 1))

	h.CloseRoom(1)
	assert.Equal(t, 0, h.RoomSize(1))
	assert.Equal(t, EventRemoved, readFrame(t, alice).Event)
	assert.Equal(t, EventRemoved, readFrame(t, bob).Event)
	assert.True(t, h.InRoom(alice, 2))

	h.EvictUser(10)
	assert.Equal(t, 0, h.RoomSize(2))
	_, ok := <-alice.Send
	assert.False(t, ok)
	assert.Empty(t, bob.Send)
}

func TestHub_BadFrames(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()
	c := newTestClient(h, 10, "alice")

	for _, raw := range []string{
		`not json`,
		`{"event":"dance"}`,
		`{"event":"join-room","data":"abc"}`,
		`{"event":"join-room","data":0}`,
		`{"event":"send-message","data":"oops"}`,
	} {
		h.HandleFrame(ctx, c, []byte(raw))
		assert.Equal(t, EventError, readFrame(t, c).Event, raw)
	}
}

func TestHub_FullQueueDropsOnlyForThatClient(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()
	slow := newTestClient(h, 10, "slow")
	fast := newTestClient(h, 11, "fast")
	require.NoError(t, h.Join(ctx, slow, 1))
	require.NoError(t, h.Join(ctx, fast, 1))

	for i := 0; i < sendBuffer; i++ {
		slow.Send <- []byte("filler")
	}
	require.NoError(t, h.Publish(ctx, ChatMessage{CommunityID: 1, Message: "x"}))

	assert.Len(t, slow.Send, sendBuffer)
	assert.Equal(t, EventReceiveMessage, readFrame(t, fast).Event)
}

func TestHub_PreservesPublishOrderPerRoom(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()
	c := newTestClient(h, 10, "alice")
	require.NoError(t, h.Join(ctx, c, 1))

	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, h.Publish(ctx, ChatMessage{CommunityID: 1, Message: string(rune('a' + i%26)), SenderID: uint64(i)}))
	}
	for i := 0; i < n; i++ {
		var msg ChatMessage
		require.NoError(t, json.Unmarshal(readFrame(t, c).Data, &msg))
		assert.Equal(t, uint64(i), msg.SenderID)
	}
}

func TestHub_UnregisterAndShutdown(t *testing.T) {
	h := newTestHub()
	ctx := context.Background()
	a := newTestClient(h, 10, "a")
	b := newTestClient(h, 11, "b")
	require.NoError(t, h.Join(ctx, a, 1))
	require.NoError(t, h.Join(ctx, b, 1))

	h.Unregister(a)
	h.Unregister(a)
	assert.Equal(t, 1, h.RoomSize(1))
	_, ok := <-a.Send
	assert.False(t, ok)

	// 已关闭的连接不会再收到消息，也不会 panic
	h.Deliver(1, []byte(`{}`))
	assert.Len(t, b.Send, 1)

	h.Shutdown()
	assert.Equal(t, 0, h.RoomSize(1))
}

type memoryBus struct {
	mu      sync.Mutex
	handler func(uint64, []byte)
	ready   chan struct{}
}

func (b *memoryBus) Publish(_ context.Context, communityID uint64, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler(communityID, payload)
	return nil
}

func (b *memoryBus) Subscribe(ctx context.Context, handler func(uint64, []byte)) error {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()
	close(b.ready)
	<-ctx.Done()
	return nil
}

func TestHub_PublishesThroughBus(t *testing.T) {
	bus := &memoryBus{ready: make(chan struct{})}
	h := NewHub(&stubMembers{members: map[uint64]map[uint64]bool{1: {10: true}}}, bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Run(ctx) }()
	<-bus.ready

	c := newTestClient(h, 10, "alice")
	require.NoError(t, h.Join(ctx, c, 1))
	require.NoError(t, h.Publish(ctx, ChatMessage{CommunityID: 1, Message: "via bus"}))

	var msg ChatMessage
	require.NoError(t, json.Unmarshal(readFrame(t, c).Data, &msg))
	assert.Equal(t, "via bus", msg.Message)
}
