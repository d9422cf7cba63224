package chat

import (
	"context"
	"strings"
	"time"

	"github.com/docchat/backend-go/internal/errors"
	"github.com/docchat/backend-go/internal/logger"
	"github.com/docchat/backend-go/internal/metrics"
	"github.com/docchat/backend-go/internal/ollama"
	"github.com/docchat/backend-go/internal/rag"
	"github.com/docchat/backend-go/internal/session"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Request 聊天请求
type Request struct {
	Query     string `json:"query" validate:"required"`
	Model     string `json:"model"`
	SessionID string `json:"sessionId"`
}

// Response 聊天响应
type Response struct {
	Answer    string               `json:"answer"`
	Context   []session.ContextRef `json:"context"`
	ModelUsed string               `json:"model_used"`
	SessionID string               `json:"sessionId"`
	Timestamp time.Time            `json:"timestamp"`
}

// LLM 推理服务抽象
type LLM interface {
	Chat(ctx context.Context, req ollama.ChatRequest) (*ollama.ChatResponse, error)
}

// Options 聊天编排配置
type Options struct {
	TopK           int
	DefaultModel   string
	DefaultSession string
	Temperature    float64
	TopP           float64
}

// Orchestrator 检索增强聊天编排器
// 流程：校验 → 触达会话 → 检索上下文 → 组装提示词 → 生成回答 → 写入会话
type Orchestrator struct {
	validate *validator.Validate
	sessions session.Store
	embedder rag.Embedder
	store    rag.VectorStore
	llm      LLM
	opts     Options
}

// NewOrchestrator 创建聊天编排器
func NewOrchestrator(sessions session.Store, embedder rag.Embedder, store rag.VectorStore, llm LLM, opts Options) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = 3
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = "llama3.1"
	}
	if opts.DefaultSession == "" {
		opts.DefaultSession = "default"
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if opts.TopP == 0 {
		opts.TopP = 0.9
	}

	return &Orchestrator{
		validate: validator.New(),
		sessions: sessions,
		embedder: embedder,
		store:    store,
		llm:      llm,
		opts:     opts,
	}
}

// Handle 处理一次聊天请求
// 校验失败不产生任何副作用；仅在完整成功后写入会话消息
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if err := o.validate.Struct(req); err != nil {
		return nil, errors.NewValidationError("Valid query is required").WithDetails(err.Error())
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.NewValidationError("Valid query is required").WithDetails("query must not be blank")
	}

	model := req.Model
	if model == "" {
		model = o.opts.DefaultModel
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = o.opts.DefaultSession
	}

	logger.Info("收到聊天请求",
		zap.String("session_id", sessionID),
		zap.String("model", model),
		zap.Int("query_length", len(req.Query)))

	if err := o.sessions.GetOrCreate(ctx, sessionID); err != nil {
		return nil, o.fail(errors.NewSystemError(errors.ErrCodeInternalServer, "会话存储访问失败").WithCause(err))
	}

	matches, err := o.retrieve(ctx, req.Query)
	if err != nil {
		return nil, o.fail(err)
	}

	contexts := make([]string, len(matches))
	refs := make([]session.ContextRef, len(matches))
	for i, match := range matches {
		contexts[i] = match.Content
		refs[i] = session.ContextRef{
			Content:  match.Content,
			Metadata: match.Metadata,
		}
	}

	chatResp, err := o.llm.Chat(ctx, ollama.ChatRequest{
		Model: model,
		Messages: []ollama.Message{
			{Role: "user", Content: BuildPrompt(contexts, req.Query)},
		},
		Options: ollama.Options{
			Temperature: o.opts.Temperature,
			TopP:        o.opts.TopP,
		},
	})
	if err != nil {
		return nil, o.fail(errors.ClassifyUpstream("ollama", err))
	}

	answer := chatResp.Message.Content
	now := time.Now()

	// 生成成功后才写入会话，失败的请求不留下痕迹
	err = o.sessions.Append(ctx, sessionID,
		session.Message{
			Role:      "user",
			Content:   req.Query,
			Timestamp: now,
		},
		session.Message{
			Role:      "assistant",
			Content:   answer,
			Timestamp: now,
			Context:   refs,
			ModelUsed: model,
		},
	)
	if err != nil {
		return nil, o.fail(errors.NewSystemError(errors.ErrCodeInternalServer, "写入会话失败").WithCause(err))
	}

	metrics.ChatRequests.WithLabelValues("success").Inc()
	metrics.ChatDuration.Observe(time.Since(start).Seconds())
	logger.Info("聊天请求处理完成",
		zap.String("session_id", sessionID),
		zap.Int("context_count", len(refs)),
		zap.Duration("elapsed", time.Since(start)))

	return &Response{
		Answer:    answer,
		Context:   refs,
		ModelUsed: model,
		SessionID: sessionID,
		Timestamp: now,
	}, nil
}

// retrieve 将问题向量化并检索TopK相关文档块
func (o *Orchestrator) retrieve(ctx context.Context, query string) ([]rag.SearchMatch, error) {
	vectors, err := o.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, errors.ClassifyUpstream("embedding", err)
	}
	if len(vectors) == 0 {
		return nil, errors.NewSystemError(errors.ErrCodeInternalServer, "向量化结果为空")
	}

	matches, err := o.store.Search(ctx, vectors[0], o.opts.TopK)
	if err != nil {
		return nil, errors.ClassifyUpstream("qdrant", err)
	}

	if len(matches) == 0 {
		logger.Info("向量库未命中相关上下文")
	}
	return matches, nil
}

// History 返回会话的消息历史
func (o *Orchestrator) History(ctx context.Context, sessionID string) (*session.Snapshot, error) {
	if sessionID == "" {
		sessionID = o.opts.DefaultSession
	}

	snapshot, ok, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.NewSystemError(errors.ErrCodeInternalServer, "会话存储访问失败").WithCause(err)
	}
	if !ok {
		return nil, errors.NewSessionNotFoundError(sessionID)
	}
	return snapshot, nil
}

// ClearHistory 清空会话历史，对不存在的会话幂等
func (o *Orchestrator) ClearHistory(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		sessionID = o.opts.DefaultSession
	}

	if _, err := o.sessions.Clear(ctx, sessionID); err != nil {
		return errors.NewSystemError(errors.ErrCodeInternalServer, "会话存储访问失败").WithCause(err)
	}
	return nil
}

func (o *Orchestrator) fail(err error) error {
	metrics.ChatRequests.WithLabelValues("error").Inc()
	return err
}
