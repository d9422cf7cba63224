package ingest

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/docchat/backend-go/internal/document"
	"github.com/docchat/backend-go/internal/logger"
	"github.com/docchat/backend-go/internal/metrics"
	"github.com/docchat/backend-go/internal/rag"
	"go.uber.org/zap"
)

// Summary 摄取任务处理结果
type Summary struct {
	DocumentsProcessed int `json:"documents_processed"`
	ChunksCreated      int `json:"chunks_created"`
}

// WorkerOptions 摄取工作器配置
type WorkerOptions struct {
	EmbedBatchSize int
}

// Worker 文件摄取工作器
// 流水线：读取文件 → 解析文本 → 切分 → 向量化 → 写入向量库
type Worker struct {
	parser   *document.ParserManager
	chunker  *rag.Chunker
	embedder rag.Embedder
	store    rag.VectorStore
	opts     WorkerOptions
}

// NewWorker 创建摄取工作器
func NewWorker(parser *document.ParserManager, chunker *rag.Chunker, embedder rag.Embedder, store rag.VectorStore, opts WorkerOptions) *Worker {
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 32
	}
	return &Worker{
		parser:   parser,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		opts:     opts,
	}
}

// Process 处理单个摄取任务
// 任一阶段失败即返回错误，由队列的重试策略决定后续投递
func (w *Worker) Process(ctx context.Context, job Job) (*Summary, error) {
	start := time.Now()
	logger.Info("开始处理摄取任务",
		zap.String("job_id", job.ID),
		zap.String("filename", job.Filename),
		zap.String("source_path", job.SourcePath))

	// 源文件不可读立即失败，不做部分处理
	if _, err := os.Stat(job.SourcePath); err != nil {
		return nil, fmt.Errorf("源文件不可访问: %w", err)
	}

	text, err := w.parser.ParseFile(job.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("解析文件失败: %w", err)
	}

	chunks := w.chunker.Split(text)
	if len(chunks) == 0 {
		logger.Warn("文件无有效文本内容",
			zap.String("job_id", job.ID),
			zap.String("filename", job.Filename))
		return &Summary{DocumentsProcessed: 1, ChunksCreated: 0}, nil
	}

	docs, err := w.embedChunks(ctx, job, chunks)
	if err != nil {
		return nil, err
	}

	if err := w.store.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("准备向量集合失败: %w", err)
	}

	if err := w.store.Upsert(ctx, docs); err != nil {
		return nil, fmt.Errorf("写入向量库失败: %w", err)
	}

	// 写入后做一次检索探测，仅用于诊断，失败不影响任务结果
	w.probe(ctx, docs)

	metrics.IngestChunksCreated.Add(float64(len(docs)))
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	logger.Info("摄取任务处理完成",
		zap.String("job_id", job.ID),
		zap.String("filename", job.Filename),
		zap.Int("chunks", len(docs)),
		zap.Duration("elapsed", time.Since(start)))

	return &Summary{DocumentsProcessed: 1, ChunksCreated: len(docs)}, nil
}

// embedChunks 分批向量化并组装文档块
func (w *Worker) embedChunks(ctx context.Context, job Job, chunks []rag.Chunk) ([]rag.DocumentChunk, error) {
	docs := make([]rag.DocumentChunk, 0, len(chunks))

	for offset := 0; offset < len(chunks); offset += w.opts.EmbedBatchSize {
		end := offset + w.opts.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[offset:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		vectors, err := w.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("向量化文本失败: %w", err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("向量化结果数量不匹配: 期望%d实际%d", len(batch), len(vectors))
		}

		for i, chunk := range batch {
			docs = append(docs, rag.DocumentChunk{
				Text:   chunk.Text,
				Vector: vectors[i],
				Metadata: map[string]interface{}{
					"source":      job.Filename,
					"chunk_index": chunk.Index,
					"job_id":      job.ID,
				},
			})
		}
	}

	return docs, nil
}

// probe 用首块向量做一次检索验证写入可见性
func (w *Worker) probe(ctx context.Context, docs []rag.DocumentChunk) {
	if len(docs) == 0 || len(docs[0].Vector) == 0 {
		return
	}

	results, err := w.store.Search(ctx, docs[0].Vector, 1)
	if err != nil {
		logger.Warn("写入后检索探测失败", zap.Error(err))
		return
	}
	if len(results) == 0 {
		logger.Warn("写入后检索探测未命中")
		return
	}
	logger.Debug("写入后检索探测命中", zap.Float64("score", results[0].Score))
}
