package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "docchat:session:"

// RedisStore Redis会话存储，过期由Redis TTL机制负责
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration

	// 单实例内串行化同一进程的读改写，跨实例部署需改用WATCH事务
	mu sync.Mutex
}

// NewRedisStore 创建Redis会话存储
func NewRedisStore(client *redis.Client, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis客户端未初始化")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

// GetOrCreate 获取或创建会话并刷新活跃时间
func (s *RedisStore) GetOrCreate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	if !ok {
		snapshot = &Snapshot{
			ID:        id,
			CreatedAt: now,
		}
	}
	if now.After(snapshot.LastActivity) {
		snapshot.LastActivity = now
	}

	return s.save(ctx, snapshot)
}

// Touch 刷新已存在会话的活跃时间
func (s *RedisStore) Touch(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok, err := s.load(ctx, id)
	if err != nil || !ok {
		return err
	}

	if now := time.Now(); now.After(snapshot.LastActivity) {
		snapshot.LastActivity = now
	}
	return s.save(ctx, snapshot)
}

// Append 向会话追加消息
func (s *RedisStore) Append(ctx context.Context, id string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	if !ok {
		snapshot = &Snapshot{
			ID:        id,
			CreatedAt: now,
		}
	}
	snapshot.Messages = append(snapshot.Messages, msgs...)
	if now.After(snapshot.LastActivity) {
		snapshot.LastActivity = now
	}

	return s.save(ctx, snapshot)
}

// Get 返回会话快照
func (s *RedisStore) Get(ctx context.Context, id string) (*Snapshot, bool, error) {
	return s.load(ctx, id)
}

// Clear 删除会话
func (s *RedisStore) Clear(ctx context.Context, id string) (bool, error) {
	deleted, err := s.client.Del(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		return false, fmt.Errorf("删除会话失败: %w", err)
	}
	return deleted > 0, nil
}

// ClearAll 删除所有会话
func (s *RedisStore) ClearAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("删除会话失败: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("扫描会话键失败: %w", err)
	}
	return nil
}

// Close 关闭存储，底层Redis连接由连接管理方负责
func (s *RedisStore) Close() error {
	return nil
}

func (s *RedisStore) load(ctx context.Context, id string) (*Snapshot, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("读取会话失败: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, false, fmt.Errorf("解析会话数据失败: %w", err)
	}
	return &snapshot, true, nil
}

func (s *RedisStore) save(ctx context.Context, snapshot *Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("序列化会话数据失败: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+snapshot.ID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("写入会话失败: %w", err)
	}
	return nil
}
