package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const CodePrefix = "otp"

var (
	ErrCodeSaveFailed    = errors.New("code save failed")
	ErrCodeConsumeFailed = errors.New("code consume failed")
)

// 原子执行：比较验证码，一致则删除
var consumeScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if not val then
  return 0
end
if val ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`)

// CodeRepository 一次性验证码，key 为 otp:<purpose>:<email>，过期由 Redis TTL 控制
type CodeRepository struct {
	RDB *redis.Client
}

func codeKey(purpose, email string) string {
	return fmt.Sprintf("%s:%s:%s", CodePrefix, purpose, email)
}

// Save 覆盖写入，之前未使用的验证码随之失效
func (r *CodeRepository) Save(ctx context.Context, purpose, email, code string, ttl time.Duration) error {
	if err := r.RDB.Set(ctx, codeKey(purpose, email), code, ttl).Err(); err != nil {
		return ErrCodeSaveFailed
	}
	return nil
}

// Consume 验证码匹配时删除并返回 true
func (r *CodeRepository) Consume(ctx context.Context, purpose, email, code string) (bool, error) {
	n, err := consumeScript.Run(ctx, r.RDB, []string{codeKey(purpose, email)}, code).Int()
	if err != nil {
		return false, ErrCodeConsumeFailed
	}
	return n == 1, nil
}
