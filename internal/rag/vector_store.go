package rag

import "context"

// DocumentChunk 待入库的文档分块
type DocumentChunk struct {
	ID       string
	Text     string
	Metadata map[string]interface{}
	Vector   []float32
}

// SearchMatch 向量检索结果，按相似度从高到低排序
type SearchMatch struct {
	Content  string
	Metadata map[string]interface{}
	Score    float64
}

// VectorStore 向量存储抽象
// EnsureCollection为幂等操作，必须在首次检索前调用
type VectorStore interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, chunks []DocumentChunk) error
	Search(ctx context.Context, queryVector []float32, limit int) ([]SearchMatch, error)
	Ready() bool
}

// Prober 可选的健康探测能力
type Prober interface {
	Heartbeat(ctx context.Context) error
}
