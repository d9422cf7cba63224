package session

import (
	"context"
	"sync"
	"time"

	"github.com/docchat/backend-go/internal/logger"
	"go.uber.org/zap"
)

const (
	// DefaultTTL 会话默认过期时间
	DefaultTTL = time.Hour
	// DefaultReapInterval 过期清理默认周期
	DefaultReapInterval = time.Hour
)

type memorySession struct {
	id           string
	messages     []Message
	createdAt    time.Time
	lastActivity time.Time
}

// MemoryStore 进程内会话存储，带TTL后台清理
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession

	ttl      time.Duration
	interval time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewMemoryStore 创建内存会话存储并启动清理协程
func NewMemoryStore(ttl, reapInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if reapInterval <= 0 {
		reapInterval = DefaultReapInterval
	}

	s := &MemoryStore{
		sessions: make(map[string]*memorySession),
		ttl:      ttl,
		interval: reapInterval,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}

	go s.reapLoop()
	return s
}

// GetOrCreate 获取或创建会话并刷新活跃时间
func (s *MemoryStore) GetOrCreate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.getOrCreateLocked(id)
	return nil
}

// Touch 刷新已存在会话的活跃时间
func (s *MemoryStore) Touch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if now := s.now(); now.After(sess.lastActivity) {
		sess.lastActivity = now
	}
	return nil
}

// Append 向会话追加消息
func (s *MemoryStore) Append(_ context.Context, id string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(id)
	sess.messages = append(sess.messages, msgs...)
	return nil
}

// Get 返回会话快照
func (s *MemoryStore) Get(_ context.Context, id string) (*Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false, nil
	}

	snapshot := &Snapshot{
		ID:           sess.id,
		Messages:     make([]Message, len(sess.messages)),
		CreatedAt:    sess.createdAt,
		LastActivity: sess.lastActivity,
	}
	copy(snapshot.Messages, sess.messages)
	return snapshot, true, nil
}

// Clear 删除会话
func (s *MemoryStore) Clear(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok, nil
}

// ClearAll 删除所有会话
func (s *MemoryStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[string]*memorySession)
	return nil
}

// Close 停止清理协程
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	return nil
}

// Count 返回当前会话数，仅用于测试和指标
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) getOrCreateLocked(id string) *memorySession {
	now := s.now()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &memorySession{
			id:        id,
			createdAt: now,
		}
		s.sessions[id] = sess
	}
	// lastActivity单调不减
	if now.After(sess.lastActivity) {
		sess.lastActivity = now
	}
	return sess
}

func (s *MemoryStore) reapLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reap()
		case <-s.stopCh:
			return
		}
	}
}

// reap 删除超过TTL未活跃的会话
func (s *MemoryStore) reap() {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, sess := range s.sessions {
		// 持锁复核活跃时间，避免误删清理期间被触达的会话
		if sess.lastActivity.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}

	if evicted > 0 {
		logger.Info("expired sessions evicted",
			zap.Int("count", evicted),
			zap.Int("remaining", len(s.sessions)))
	}
}
