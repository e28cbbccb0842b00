package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const RelayChannelPrefix = "chat:community:"

// RelayBus 跨实例转发聊天消息：每个实例都发布到 Redis，再由订阅者投递给本地连接
type RelayBus struct {
	RDB *redis.Client
}

func (b *RelayBus) Publish(ctx context.Context, communityID uint64, payload []byte) error {
	return b.RDB.Publish(ctx, fmt.Sprintf("%s%d", RelayChannelPrefix, communityID), payload).Err()
}

// Subscribe 阻塞直到 ctx 结束；handler 在订阅协程中按到达顺序调用
func (b *RelayBus) Subscribe(ctx context.Context, handler func(communityID uint64, payload []byte)) error {
	pubsub := b.RDB.PSubscribe(ctx, RelayChannelPrefix+"*")
	defer pubsub.Close()

	// 等待订阅确认，保证返回前已经生效
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			id, err := strconv.ParseUint(strings.TrimPrefix(msg.Channel, RelayChannelPrefix), 10, 64)
			if err != nil {
				continue
			}
			handler(id, []byte(msg.Payload))
		}
	}
}
