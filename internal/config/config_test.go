package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()

	// 清理可能影响测试的环境变量
	testEnvVars := []string{
		"PORT", "REDIS_HOST", "REDIS_PORT", "KAFKA_BROKERS", "KAFKA_ENABLED",
		"OLLAMA_HOST", "QDRANT_URL", "EMBEDDING_URL", "OPENAI_API_KEY", "CONFIG_FILE",
	}
	for _, envVar := range testEnvVars {
		os.Unsetenv(envVar)
	}

	require.NoError(t, LoadConfig())
	require.NotNil(t, AppConfig)

	// 验证默认值
	assert.Equal(t, "8000", AppConfig.Server.Port)
	assert.Equal(t, "development", AppConfig.Server.Env)

	assert.Equal(t, []string{"localhost:9092"}, AppConfig.Kafka.Brokers)
	assert.Equal(t, "file-upload-queue", AppConfig.Kafka.Topic)
	assert.Equal(t, 2, AppConfig.Kafka.Concurrency)
	assert.Equal(t, 3, AppConfig.Kafka.MaxRetries)

	assert.Equal(t, "http://localhost:6333", AppConfig.Qdrant.Endpoint)
	assert.Equal(t, "docchat_chunks", AppConfig.Qdrant.Collection)

	assert.Equal(t, "http://localhost:11434", AppConfig.Ollama.Host)
	assert.InDelta(t, 0.7, AppConfig.Ollama.Temperature, 1e-9)
	assert.InDelta(t, 0.9, AppConfig.Ollama.TopP, 1e-9)

	assert.Equal(t, 3, AppConfig.Chat.TopK)
	assert.Equal(t, "llama3.1", AppConfig.Chat.DefaultModel)
	assert.Equal(t, "default", AppConfig.Chat.DefaultSession)

	assert.Equal(t, 1000, AppConfig.Ingest.ChunkSize)
	assert.Equal(t, 200, AppConfig.Ingest.ChunkOverlap)

	assert.Equal(t, "memory", AppConfig.Session.Provider)
	assert.Equal(t, "1h0m0s", AppConfig.Session.TTL.String())
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	viper.Reset()

	envVars := map[string]string{
		"PORT":          "9000",
		"OLLAMA_HOST":   "http://ollama:11434",
		"QDRANT_URL":    "http://qdrant:6333",
		"EMBEDDING_URL": "http://embeddings:5001",
		"KAFKA_BROKERS": "kafka-1:9092, kafka-2:9092",
	}
	for key, value := range envVars {
		os.Setenv(key, value)
	}
	defer func() {
		for key := range envVars {
			os.Unsetenv(key)
		}
	}()

	require.NoError(t, LoadConfig())

	assert.Equal(t, "9000", AppConfig.Server.Port)
	assert.Equal(t, "http://ollama:11434", AppConfig.Ollama.Host)
	assert.Equal(t, "http://qdrant:6333", AppConfig.Qdrant.Endpoint)
	assert.Equal(t, "http://embeddings:5001", AppConfig.Embedding.Endpoint)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, AppConfig.Kafka.Brokers)
}
