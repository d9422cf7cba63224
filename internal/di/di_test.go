package di

import (
	"testing"
	"time"

	"github.com/docchat/backend-go/internal/chat"
	"github.com/docchat/backend-go/internal/config"
	"github.com/docchat/backend-go/internal/ingest"
	"github.com/docchat/backend-go/internal/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerWiring(t *testing.T) {
	config.AppConfig = &config.Config{
		Qdrant: config.QdrantConfig{
			Endpoint:   "http://localhost:6333",
			Collection: "docchat_chunks",
			VectorSize: 384,
			Distance:   "cosine",
		},
		Embedding: config.EmbeddingConfig{
			Provider:  "http",
			Endpoint:  "http://localhost:5001",
			BatchSize: 32,
		},
		Ollama: config.OllamaConfig{
			Host:    "http://localhost:11434",
			Timeout: 10 * time.Second,
		},
		Chat: config.ChatConfig{
			TopK:           3,
			DefaultModel:   "llama3.1",
			DefaultSession: "default",
		},
		Session: config.SessionConfig{
			Provider:     "memory",
			TTL:          time.Hour,
			ReapInterval: time.Hour,
		},
		Ingest: config.IngestConfig{
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},
	}

	container, err := NewContainer()
	require.NoError(t, err)

	err = container.Invoke(func(chunker *rag.Chunker, worker *ingest.Worker, orchestrator *chat.Orchestrator) {
		assert.Equal(t, 1000, chunker.ChunkSize())
		assert.NotNil(t, worker)
		assert.NotNil(t, orchestrator)
	})
	require.NoError(t, err)
}
