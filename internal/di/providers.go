package di

import (
	"fmt"

	"github.com/docchat/backend-go/internal/chat"
	"github.com/docchat/backend-go/internal/config"
	"github.com/docchat/backend-go/internal/database"
	"github.com/docchat/backend-go/internal/document"
	"github.com/docchat/backend-go/internal/ingest"
	"github.com/docchat/backend-go/internal/logger"
	"github.com/docchat/backend-go/internal/ollama"
	"github.com/docchat/backend-go/internal/rag"
	"github.com/docchat/backend-go/internal/session"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container) error {
	providers := []interface{}{
		provideConfig,
		provideParserManager,
		provideChunker,
		provideEmbedder,
		provideVectorStore,
		provideOllamaClient,
		provideSessionStore,
		provideWorker,
		provideOrchestrator,
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return fmt.Errorf("注册依赖提供者失败: %w", err)
		}
	}
	return nil
}

func provideConfig() (*config.Config, error) {
	cfg := config.AppConfig
	if cfg == nil {
		return nil, fmt.Errorf("配置未加载")
	}
	return cfg, nil
}

func provideParserManager() *document.ParserManager {
	return document.NewParserManager()
}

func provideChunker(cfg *config.Config) *rag.Chunker {
	return rag.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
}

// provideEmbedder 按配置选择embedding实现
func provideEmbedder(cfg *config.Config) rag.Embedder {
	switch cfg.Embedding.Provider {
	case "openai":
		logger.Info("使用OpenAI embedding服务", zap.String("model", cfg.Embedding.Model))
		return rag.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model)
	default:
		logger.Info("使用自建embedding服务", zap.String("endpoint", cfg.Embedding.Endpoint))
		return rag.NewHTTPEmbedder(rag.HTTPEmbedderOptions{
			Endpoint:  cfg.Embedding.Endpoint,
			BatchSize: cfg.Embedding.BatchSize,
			Timeout:   cfg.Embedding.Timeout,
		})
	}
}

func provideVectorStore(cfg *config.Config) (rag.VectorStore, error) {
	return rag.NewQdrantVectorStore(rag.QdrantOptions{
		Endpoint:   cfg.Qdrant.Endpoint,
		APIKey:     cfg.Qdrant.APIKey,
		Collection: cfg.Qdrant.Collection,
		VectorSize: cfg.Qdrant.VectorSize,
		Distance:   cfg.Qdrant.Distance,
		Timeout:    cfg.Qdrant.Timeout,
	})
}

func provideOllamaClient(cfg *config.Config) *ollama.Client {
	return ollama.NewClient(cfg.Ollama.Host, cfg.Ollama.Timeout)
}

// provideSessionStore 按配置选择会话存储实现
func provideSessionStore(cfg *config.Config) (session.Store, error) {
	if cfg.Session.Provider == "redis" {
		client, err := database.NewRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("使用Redis会话存储")
		return session.NewRedisStore(client, cfg.Session.TTL)
	}

	logger.Info("使用内存会话存储",
		zap.Duration("ttl", cfg.Session.TTL),
		zap.Duration("reap_interval", cfg.Session.ReapInterval))
	return session.NewMemoryStore(cfg.Session.TTL, cfg.Session.ReapInterval), nil
}

func provideWorker(parser *document.ParserManager, chunker *rag.Chunker, embedder rag.Embedder, store rag.VectorStore, cfg *config.Config) *ingest.Worker {
	return ingest.NewWorker(parser, chunker, embedder, store, ingest.WorkerOptions{
		EmbedBatchSize: cfg.Embedding.BatchSize,
	})
}

func provideOrchestrator(sessions session.Store, embedder rag.Embedder, store rag.VectorStore, llm *ollama.Client, cfg *config.Config) *chat.Orchestrator {
	return chat.NewOrchestrator(sessions, embedder, store, llm, chat.Options{
		TopK:           cfg.Chat.TopK,
		DefaultModel:   cfg.Chat.DefaultModel,
		DefaultSession: cfg.Chat.DefaultSession,
		Temperature:    cfg.Ollama.Temperature,
		TopP:           cfg.Ollama.TopP,
	})
}
