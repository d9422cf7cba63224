package config

import (
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Qdrant     QdrantConfig
	Embedding  EmbeddingConfig
	Ollama     OllamaConfig
	Chat       ChatConfig
	Session    SessionConfig
	Ingest     IngestConfig
	FileUpload FileUploadConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type RedisConfig struct {
	Host     string
	Port     string
	DB       int
	Password string
}

type KafkaConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	Enabled     bool
	Concurrency int
	MaxRetries  int
	// RetryBackoff 重试消息处理前的基础退避时间，按尝试次数线性放大
	RetryBackoff time.Duration
}

type QdrantConfig struct {
	Endpoint   string
	APIKey     string
	Collection string
	VectorSize int
	Distance   string
	Timeout    time.Duration
}

type EmbeddingConfig struct {
	// Provider http=自建embedding服务，openai=OpenAI API
	Provider  string
	Endpoint  string
	APIKey    string
	Model     string
	BatchSize int
	Timeout   time.Duration
}

type OllamaConfig struct {
	Host        string
	Timeout     time.Duration
	Temperature float64
	TopP        float64
}

type ChatConfig struct {
	TopK           int
	DefaultModel   string
	DefaultSession string
}

type SessionConfig struct {
	// Provider memory=进程内存储，redis=Redis存储（多实例部署）
	Provider     string
	TTL          time.Duration
	ReapInterval time.Duration
}

type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type FileUploadConfig struct {
	MaxSize      int64
	AllowedTypes []string
	UploadPath   string
}

var AppConfig *Config

func LoadConfig() error {
	// 设置默认值
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "file-upload-queue")
	viper.SetDefault("kafka.group_id", "docchat-ingest-group")
	viper.SetDefault("kafka.enabled", true)
	viper.SetDefault("kafka.concurrency", 2)
	viper.SetDefault("kafka.max_retries", 3)
	viper.SetDefault("kafka.retry_backoff", "5s")
	viper.SetDefault("qdrant.endpoint", "http://localhost:6333")
	viper.SetDefault("qdrant.api_key", "")
	viper.SetDefault("qdrant.collection", "docchat_chunks")
	viper.SetDefault("qdrant.vector_size", 384)
	viper.SetDefault("qdrant.distance", "cosine")
	viper.SetDefault("qdrant.timeout", "10s")
	viper.SetDefault("embedding.provider", "http")
	viper.SetDefault("embedding.endpoint", "http://localhost:5001")
	viper.SetDefault("embedding.api_key", "")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.batch_size", 32)
	viper.SetDefault("embedding.timeout", "30s")
	viper.SetDefault("ollama.host", "http://localhost:11434")
	viper.SetDefault("ollama.timeout", "120s")
	viper.SetDefault("ollama.temperature", 0.7)
	viper.SetDefault("ollama.top_p", 0.9)
	viper.SetDefault("chat.top_k", 3)
	viper.SetDefault("chat.default_model", "llama3.1")
	viper.SetDefault("chat.default_session", "default")
	viper.SetDefault("session.provider", "memory")
	viper.SetDefault("session.ttl", "1h")
	viper.SetDefault("session.reap_interval", "1h")
	viper.SetDefault("ingest.chunk_size", 1000)
	viper.SetDefault("ingest.chunk_overlap", 200)
	viper.SetDefault("file_upload.max_size", 15728640) // 15MB
	viper.SetDefault("file_upload.allowed_types", []string{".pdf", ".txt", ".md", ".docx"})
	viper.SetDefault("file_upload.upload_path", "./upload")

	// 读取环境变量
	viper.SetEnvPrefix("DOCCHAT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 兼容原有的环境变量命名
	if port := os.Getenv("PORT"); port != "" {
		viper.Set("server.port", port)
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		viper.Set("redis.host", redisHost)
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		viper.Set("redis.port", redisPort)
	}
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		// 支持逗号分隔的broker列表
		brokers := strings.Split(kafkaBrokers, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		viper.Set("kafka.brokers", brokers)
	}
	if kafkaEnabled := os.Getenv("KAFKA_ENABLED"); kafkaEnabled == "false" {
		viper.Set("kafka.enabled", false)
	}
	if ollamaHost := os.Getenv("OLLAMA_HOST"); ollamaHost != "" {
		viper.Set("ollama.host", ollamaHost)
	}
	if qdrantURL := os.Getenv("QDRANT_URL"); qdrantURL != "" {
		viper.Set("qdrant.endpoint", qdrantURL)
	}
	if embeddingURL := os.Getenv("EMBEDDING_URL"); embeddingURL != "" {
		viper.Set("embedding.endpoint", embeddingURL)
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		viper.Set("embedding.api_key", apiKey)
	}

	// 支持可选的配置文件
	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return err
		}
		// 监听配置文件变更
		viper.OnConfigChange(func(e fsnotify.Event) {
			cfg := buildConfig()
			AppConfig = cfg
		})
		viper.WatchConfig()
	}

	AppConfig = buildConfig()
	return nil
}

func buildConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: viper.GetString("server.port"),
			Env:  viper.GetString("server.env"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetString("redis.port"),
			DB:       viper.GetInt("redis.db"),
			Password: viper.GetString("redis.password"),
		},
		Kafka: KafkaConfig{
			Brokers:      viper.GetStringSlice("kafka.brokers"),
			Topic:        viper.GetString("kafka.topic"),
			GroupID:      viper.GetString("kafka.group_id"),
			Enabled:      viper.GetBool("kafka.enabled"),
			Concurrency:  viper.GetInt("kafka.concurrency"),
			MaxRetries:   viper.GetInt("kafka.max_retries"),
			RetryBackoff: viper.GetDuration("kafka.retry_backoff"),
		},
		Qdrant: QdrantConfig{
			Endpoint:   viper.GetString("qdrant.endpoint"),
			APIKey:     viper.GetString("qdrant.api_key"),
			Collection: viper.GetString("qdrant.collection"),
			VectorSize: viper.GetInt("qdrant.vector_size"),
			Distance:   viper.GetString("qdrant.distance"),
			Timeout:    viper.GetDuration("qdrant.timeout"),
		},
		Embedding: EmbeddingConfig{
			Provider:  viper.GetString("embedding.provider"),
			Endpoint:  viper.GetString("embedding.endpoint"),
			APIKey:    viper.GetString("embedding.api_key"),
			Model:     viper.GetString("embedding.model"),
			BatchSize: viper.GetInt("embedding.batch_size"),
			Timeout:   viper.GetDuration("embedding.timeout"),
		},
		Ollama: OllamaConfig{
			Host:        viper.GetString("ollama.host"),
			Timeout:     viper.GetDuration("ollama.timeout"),
			Temperature: viper.GetFloat64("ollama.temperature"),
			TopP:        viper.GetFloat64("ollama.top_p"),
		},
		Chat: ChatConfig{
			TopK:           viper.GetInt("chat.top_k"),
			DefaultModel:   viper.GetString("chat.default_model"),
			DefaultSession: viper.GetString("chat.default_session"),
		},
		Session: SessionConfig{
			Provider:     viper.GetString("session.provider"),
			TTL:          viper.GetDuration("session.ttl"),
			ReapInterval: viper.GetDuration("session.reap_interval"),
		},
		Ingest: IngestConfig{
			ChunkSize:    viper.GetInt("ingest.chunk_size"),
			ChunkOverlap: viper.GetInt("ingest.chunk_overlap"),
		},
		FileUpload: FileUploadConfig{
			MaxSize:      viper.GetInt64("file_upload.max_size"),
			AllowedTypes: viper.GetStringSlice("file_upload.allowed_types"),
			UploadPath:   viper.GetString("file_upload.upload_path"),
		},
	}
}
