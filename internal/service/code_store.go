package service

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

// CodeStore 每个 (purpose, email) 只保留一个待用验证码
type CodeStore interface {
	// Save 覆盖之前未使用的验证码
	Save(ctx context.Context, purpose, email, code string, ttl time.Duration) error
	// Consume 完全匹配且未过期时删除并返回 true
	Consume(ctx context.Context, purpose, email, code string) (bool, error)
}

type codeEntry struct {
	code      string
	expiresAt time.Time
}

// MemoryCodeStore 进程内验证码存储，重启即丢失
type MemoryCodeStore struct {
	mu    sync.Mutex
	codes map[string]codeEntry
	now   func() time.Time
}

func NewMemoryCodeStore(now func() time.Time) *MemoryCodeStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryCodeStore{codes: make(map[string]codeEntry), now: now}
}

func memoryKey(purpose, email string) string {
	return purpose + ":" + email
}

func (s *MemoryCodeStore) Save(_ context.Context, purpose, email, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.codes {
		if !now.Before(e.expiresAt) {
			delete(s.codes, k)
		}
	}
	s.codes[memoryKey(purpose, email)] = codeEntry{code: code, expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryCodeStore) Consume(_ context.Context, purpose, email, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memoryKey(purpose, email)
	e, ok := s.codes[key]
	if !ok {
		return false, nil
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.codes, key)
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(e.code), []byte(code)) != 1 {
		return false, nil
	}
	delete(s.codes, key)
	return true, nil
}

func (s *MemoryCodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.codes)
}
