package rag

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memoryPoint struct {
	id       string
	text     string
	metadata map[string]interface{}
	vector   []float32
	seq      int
}

// MemoryVectorStore 进程内向量存储，用于开发和测试
// 余弦相似度检索，分数相同时按写入顺序排序
type MemoryVectorStore struct {
	mu      sync.RWMutex
	points  map[string]*memoryPoint
	created bool
	nextSeq int
}

// NewMemoryVectorStore 创建内存向量存储
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{
		points: make(map[string]*memoryPoint),
	}
}

func (s *MemoryVectorStore) EnsureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = true
	return nil
}

func (s *MemoryVectorStore) Upsert(ctx context.Context, chunks []DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.created {
		return errors.New("collection not created")
	}

	for _, chunk := range chunks {
		if len(chunk.Vector) == 0 {
			return errors.New("embedding is empty")
		}

		id := chunk.ID
		if id == "" {
			id = uuid.NewString()
		}

		vector := make([]float32, len(chunk.Vector))
		copy(vector, chunk.Vector)
		metadata := make(map[string]interface{}, len(chunk.Metadata))
		for k, v := range chunk.Metadata {
			metadata[k] = v
		}

		point := &memoryPoint{
			id:       id,
			text:     chunk.Text,
			metadata: metadata,
			vector:   vector,
		}
		if existing, ok := s.points[id]; ok {
			point.seq = existing.seq
		} else {
			point.seq = s.nextSeq
			s.nextSeq++
		}
		s.points[id] = point
	}

	return nil
}

func (s *MemoryVectorStore) Search(ctx context.Context, queryVector []float32, limit int) ([]SearchMatch, error) {
	if len(queryVector) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.created {
		return nil, errors.New("collection not created")
	}

	type scored struct {
		point *memoryPoint
		score float64
	}

	candidates := make([]scored, 0, len(s.points))
	for _, point := range s.points {
		candidates = append(candidates, scored{
			point: point,
			score: cosineSimilarity(queryVector, point.vector),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].point.seq < candidates[j].point.seq
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]SearchMatch, 0, len(candidates))
	for _, c := range candidates {
		metadata := make(map[string]interface{}, len(c.point.metadata))
		for k, v := range c.point.metadata {
			metadata[k] = v
		}
		results = append(results, SearchMatch{
			Content:  c.point.text,
			Metadata: metadata,
			Score:    c.score,
		})
	}

	return results, nil
}

func (s *MemoryVectorStore) Ready() bool {
	return true
}

// Count 返回已存储的向量数量
func (s *MemoryVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
