package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AppendAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, time.Hour)
	defer store.Close()

	require.NoError(t, store.Append(ctx, "s1",
		Message{Role: "user", Content: "question", Timestamp: time.Now()},
		Message{Role: "assistant", Content: "answer", Timestamp: time.Now()},
	))

	snapshot, ok, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, snapshot.Messages, 2)
	assert.Equal(t, "user", snapshot.Messages[0].Role)
	assert.Equal(t, "assistant", snapshot.Messages[1].Role)

	_, ok, err = store.Get(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, time.Hour)
	defer store.Close()

	require.NoError(t, store.Append(ctx, "s1", Message{Role: "user", Content: "one"}))

	snapshot, _, err := store.Get(ctx, "s1")
	require.NoError(t, err)

	// 修改快照不应影响存储内部状态
	snapshot.Messages[0].Content = "mutated"

	fresh, _, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "one", fresh.Messages[0].Content)
}

func TestMemoryStore_ReapExpiredSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, time.Hour)
	defer store.Close()

	require.NoError(t, store.GetOrCreate(ctx, "stale"))
	require.NoError(t, store.GetOrCreate(ctx, "active"))

	// 回拨时钟模拟时间流逝：stale已过期61分钟，active仅59分钟
	store.mu.Lock()
	now := time.Now()
	store.sessions["stale"].lastActivity = now.Add(-61 * time.Minute)
	store.sessions["active"].lastActivity = now.Add(-59 * time.Minute)
	store.mu.Unlock()

	store.reap()

	_, ok, err := store.Get(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, ok, "session idle beyond TTL should be evicted")

	_, ok, err = store.Get(ctx, "active")
	require.NoError(t, err)
	assert.True(t, ok, "session within TTL should survive")
}

func TestMemoryStore_LastActivityMonotone(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, time.Hour)
	defer store.Close()

	require.NoError(t, store.GetOrCreate(ctx, "s1"))
	first, _, err := store.Get(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, store.Append(ctx, "s1", Message{Role: "user", Content: "hi"}))
	second, _, err := store.Get(ctx, "s1")
	require.NoError(t, err)

	assert.False(t, second.LastActivity.Before(first.LastActivity))
}

func TestMemoryStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, time.Hour)
	defer store.Close()

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = store.Append(ctx, "shared", Message{
					Role:    "user",
					Content: fmt.Sprintf("writer-%d-msg-%d", w, i),
				})
			}
		}(w)
	}
	wg.Wait()

	snapshot, ok, err := store.Get(ctx, "shared")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, snapshot.Messages, writers*perWriter)
}

func TestMemoryStore_ClearAndClearAll(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, time.Hour)
	defer store.Close()

	require.NoError(t, store.GetOrCreate(ctx, "a"))
	require.NoError(t, store.GetOrCreate(ctx, "b"))

	existed, err := store.Clear(ctx, "a")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.Clear(ctx, "a")
	require.NoError(t, err)
	assert.False(t, existed)

	require.NoError(t, store.ClearAll(ctx))
	assert.Equal(t, 0, store.Count())
}

func TestMemoryStore_TouchRefreshesActivity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Hour, time.Hour)
	defer store.Close()

	// Touch不存在的会话不创建也不报错
	require.NoError(t, store.Touch(ctx, "ghost"))
	assert.Equal(t, 0, store.Count())

	require.NoError(t, store.GetOrCreate(ctx, "s1"))

	store.mu.Lock()
	store.sessions["s1"].lastActivity = time.Now().Add(-30 * time.Minute)
	store.mu.Unlock()

	require.NoError(t, store.Touch(ctx, "s1"))

	snapshot, _, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), snapshot.LastActivity, time.Second)
}
