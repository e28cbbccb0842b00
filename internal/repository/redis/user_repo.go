package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrRedisUnavailable = errors.New("redis unavailable")
	ErrExtendFailed     = errors.New("token extend failed")
	ErrTokenDeleted     = errors.New("token delete failed")
)

const (
	UserTokenPrefix = "login:user:token"
	UserTokenExpire = 30 * time.Minute
)

// UserRepository 保存每个用户当前唯一有效的 access token，新登录会顶掉旧会话
type UserRepository struct {
	RDB *redis.Client
}

func tokenKey(usrID uint64) string {
	return fmt.Sprintf("%s:%d", UserTokenPrefix, usrID)
}

func (r *UserRepository) AddUserToken(ctx context.Context, usrID uint64, token string) error {
	if err := r.RDB.Set(ctx, tokenKey(usrID), token, UserTokenExpire).Err(); err != nil {
		return ErrRedisUnavailable
	}
	return nil
}

func (r *UserRepository) GetUserToken(ctx context.Context, usrID uint64) (string, error) {
	token, err := r.RDB.Get(ctx, tokenKey(usrID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrTokenNotFound
	}
	if err != nil {
		return "", ErrRedisUnavailable
	}
	return token, nil
}

// ExtendUserToken 滑动过期
func (r *UserRepository) ExtendUserToken(ctx context.Context, usrID uint64) error {
	if err := r.RDB.Expire(ctx, tokenKey(usrID), UserTokenExpire).Err(); err != nil {
		return ErrExtendFailed
	}
	return nil
}

func (r *UserRepository) DeleteUserToken(ctx context.Context, usrID uint64) error {
	if err := r.RDB.Del(ctx, tokenKey(usrID)).Err(); err != nil {
		return ErrTokenDeleted
	}
	return nil
}
