package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/oriys/logid/internal/credential"
	"github.com/oriys/logid/internal/region"
)

// DefaultTTL 是令牌的固定有效期
const DefaultTTL = time.Hour

// Token 是某个区域换取到的短期访问令牌。
// 创建后不再修改，刷新时整体替换。
type Token struct {
	Value     string
	IssuedAt  time.Time
	TTL       time.Duration
	ExpiresAt time.Time
	// Subject 取自 JWT 的 sub 声明，仅用于展示
	Subject string
}

// newToken 构造令牌。若 jwtExp 早于 issuedAt+ttl，过期时间截断到 jwtExp。
func newToken(value string, issuedAt time.Time, ttl time.Duration, jwtExp time.Time, subject string) Token {
	expires := issuedAt.Add(ttl)
	if !jwtExp.IsZero() && jwtExp.Before(expires) {
		expires = jwtExp
	}
	return Token{
		Value:     value,
		IssuedAt:  issuedAt,
		TTL:       ttl,
		ExpiresAt: expires,
		Subject:   subject,
	}
}

// ValidAt 报告令牌在 now 时刻、预留 skew 之后是否仍然有效。
func (t Token) ValidAt(now time.Time, skew time.Duration) bool {
	return t.Value != "" && now.Before(t.ExpiresAt.Add(-skew))
}

// Remaining 返回距离过期的剩余时间，已过期时为 0。
func (t Token) Remaining(now time.Time) time.Duration {
	if d := t.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

func (t Token) String() string {
	return fmt.Sprintf("token(%s, expires %s)", credential.Mask(t.Value), t.ExpiresAt.Format(time.RFC3339))
}

// GoString 同样只输出掩码。
func (t Token) GoString() string { return t.String() }

// TokenStore 保存每个区域至多一个令牌。
// 实现必须对并发访问安全，且不同区域之间互不阻塞。
type TokenStore interface {
	Load(id region.ID) (Token, bool)
	Store(id region.ID, tok Token)
	Delete(id region.ID)
}

// MemoryStore 是进程内的 TokenStore，不做任何持久化。
type MemoryStore struct {
	mu      sync.Mutex
	entries map[region.ID]*storeEntry
}

type storeEntry struct {
	mu  sync.RWMutex
	tok *Token
}

// NewMemoryStore 创建空的内存令牌存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[region.ID]*storeEntry)}
}

// entry 返回区域对应的条目，map 锁只在查找期间持有。
func (s *MemoryStore) entry(id region.ID) *storeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		e = &storeEntry{}
		s.entries[id] = e
	}
	return e
}

// Load 返回区域当前缓存的令牌。
func (s *MemoryStore) Load(id region.ID) (Token, bool) {
	e := s.entry(id)
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.tok == nil {
		return Token{}, false
	}
	return *e.tok, true
}

// Store 用新令牌替换区域的旧条目。
func (s *MemoryStore) Store(id region.ID, tok Token) {
	e := s.entry(id)
	e.mu.Lock()
	e.tok = &tok
	e.mu.Unlock()
}

// Delete 删除区域的缓存条目。
func (s *MemoryStore) Delete(id region.ID) {
	e := s.entry(id)
	e.mu.Lock()
	e.tok = nil
	e.mu.Unlock()
}
