package session

import (
	"context"
	"time"
)

// ContextRef 消息引用的检索上下文
type ContextRef struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Message 会话消息，追加后不可变
type Message struct {
	Role      string       `json:"role"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
	Context   []ContextRef `json:"context,omitempty"`
	ModelUsed string       `json:"model_used,omitempty"`
}

// Snapshot 会话状态快照，与存储内部状态不共享底层数据
type Snapshot struct {
	ID           string    `json:"id"`
	Messages     []Message `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Store 会话存储抽象
// 同一会话的写操作必须串行化，lastActivity单调不减
type Store interface {
	// GetOrCreate 获取或创建会话并刷新活跃时间
	GetOrCreate(ctx context.Context, id string) error
	// Touch 刷新已存在会话的活跃时间，会话不存在时不报错
	Touch(ctx context.Context, id string) error
	// Append 向会话追加消息，会话不存在时隐式创建
	Append(ctx context.Context, id string, msgs ...Message) error
	// Get 返回会话快照，不存在时第二个返回值为false
	Get(ctx context.Context, id string) (*Snapshot, bool, error)
	// Clear 删除会话，返回会话是否存在
	Clear(ctx context.Context, id string) (bool, error)
	// ClearAll 删除所有会话
	ClearAll(ctx context.Context) error
	// Close 停止后台任务并释放资源
	Close() error
}
