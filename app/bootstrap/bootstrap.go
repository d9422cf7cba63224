package bootstrap

import (
	"context"
	"log"
	"time"

	"github.com/docchat/backend-go/app/controllers"
	"github.com/docchat/backend-go/internal/chat"
	"github.com/docchat/backend-go/internal/config"
	"github.com/docchat/backend-go/internal/di"
	"github.com/docchat/backend-go/internal/ingest"
	"github.com/docchat/backend-go/internal/logger"
	"github.com/docchat/backend-go/internal/metrics"
	"github.com/docchat/backend-go/internal/ollama"
	"github.com/docchat/backend-go/internal/queue"
	"github.com/docchat/backend-go/internal/rag"
	"github.com/docchat/backend-go/internal/session"
	"github.com/joho/godotenv"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	Container *dig.Container

	cleanupTasks []func() error
	producer     *queue.Producer
	consumer     *queue.Consumer
}

// Options 控制启动时装配哪些组件
type Options struct {
	// StartConsumer 在本进程内启动Kafka消费者
	StartConsumer bool
	// RegisterHTTP 注入HTTP控制器依赖
	RegisterHTTP bool
}

// Init bootstraps configuration, logger, the DI container and shared
// infrastructure components required by the application.
func Init(opts Options) (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize structured logger.
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	// Load dynamic configuration.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}

	container, err := di.NewContainer()
	if err != nil {
		return nil, err
	}

	app := &App{Container: container}
	cfg := config.AppConfig

	// 启动时显式确保向量集合存在，失败降级运行，由健康检查暴露状态
	if err := container.Invoke(func(store rag.VectorStore) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.EnsureCollection(ctx); err != nil {
			logger.Warn("初始化向量集合失败，服务降级运行", zap.Error(err))
		} else {
			logger.Info("向量集合就绪", zap.String("collection", cfg.Qdrant.Collection))
		}
	}); err != nil {
		return nil, err
	}

	// 会话存储随进程退出关闭
	if err := container.Invoke(func(store session.Store) {
		app.cleanupTasks = append(app.cleanupTasks, store.Close)
	}); err != nil {
		return nil, err
	}

	// Initialize Kafka (optional). Failure shouldn't block the app.
	if cfg.Kafka.Enabled {
		producer, err := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Warn("Failed to initialize Kafka producer", zap.Error(err))
		} else {
			app.producer = producer
			app.cleanupTasks = append(app.cleanupTasks, producer.Close)
		}

		if opts.StartConsumer && app.producer != nil {
			if err := app.startConsumer(cfg); err != nil {
				logger.Warn("Failed to initialize Kafka consumer", zap.Error(err))
			}
		}
	} else {
		logger.Warn("Kafka已禁用，上传的文件不会被处理")
	}

	if opts.RegisterHTTP {
		if err := app.injectControllers(cfg); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// startConsumer 启动摄取任务消费者
func (a *App) startConsumer(cfg *config.Config) error {
	var worker *ingest.Worker
	if err := a.Container.Invoke(func(w *ingest.Worker) {
		worker = w
	}); err != nil {
		return err
	}

	consumer, err := queue.NewConsumer(queue.ConsumerOptions{
		Brokers:      cfg.Kafka.Brokers,
		GroupID:      cfg.Kafka.GroupID,
		Topic:        cfg.Kafka.Topic,
		Concurrency:  cfg.Kafka.Concurrency,
		MaxRetries:   cfg.Kafka.MaxRetries,
		RetryBackoff: cfg.Kafka.RetryBackoff,
	}, a.producer, ingestHandler(worker))
	if err != nil {
		return err
	}

	consumer.Start()
	a.consumer = consumer
	a.cleanupTasks = append(a.cleanupTasks, consumer.Close)
	return nil
}

// ingestHandler 将队列消息解码为摄取任务并交给工作器
func ingestHandler(worker *ingest.Worker) queue.Handler {
	return func(ctx context.Context, payload []byte, attempts int) error {
		job, err := ingest.ParseJob(payload)
		if err != nil {
			// 无法解析的消息重试也不会成功，直接计入失败
			metrics.IngestJobsFailed.Inc()
			return err
		}

		if attempts > 0 {
			logger.Info("重试摄取任务",
				zap.String("job_id", job.ID),
				zap.Int("attempts", attempts))
		}

		if _, err := worker.Process(ctx, job); err != nil {
			metrics.IngestJobsFailed.Inc()
			return err
		}

		metrics.IngestJobsProcessed.Inc()
		return nil
	}
}

// injectControllers 将容器内的依赖注入控制器注册表
func (a *App) injectControllers(cfg *config.Config) error {
	return a.Container.Invoke(func(
		orchestrator *chat.Orchestrator,
		client *ollama.Client,
		embedder rag.Embedder,
		store rag.VectorStore,
	) {
		controllers.Inject(&controllers.Dependencies{
			Chat:        orchestrator,
			Ollama:      client,
			Enqueuer:    ingest.NewEnqueuer(a.producer),
			Embedder:    embedder,
			VectorStore: store,
			UploadDir:   cfg.FileUpload.UploadPath,
			MaxUpload:   cfg.FileUpload.MaxSize,
		})
	})
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}

	// Flush logger buffers.
	logger.Sync()
}
