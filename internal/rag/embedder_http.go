package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// HTTPEmbedderOptions 自建embedding服务客户端配置
type HTTPEmbedderOptions struct {
	Endpoint  string
	BatchSize int
	Timeout   time.Duration
}

// HTTPEmbedder 调用自建embedding HTTP服务（sentence-transformers）
// 接口约定：POST /embed {"texts": [...]} → {"embeddings": [[...]], "dimension": n}
type HTTPEmbedder struct {
	client     *http.Client
	endpoint   string
	batchSize  int
	dimensions atomic.Int64
}

// NewHTTPEmbedder 创建embedding服务客户端
func NewHTTPEmbedder(opts HTTPEmbedderOptions) *HTTPEmbedder {
	if opts.Endpoint == "" {
		opts.Endpoint = "http://localhost:5001"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPEmbedder{
		client: &http.Client{
			Timeout: timeout,
		},
		endpoint:  strings.TrimSuffix(opts.Endpoint, "/"),
		batchSize: opts.BatchSize,
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimension  int         `json:"dimension"`
	Error      string      `json:"error,omitempty"`
}

func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("texts is empty")
	}

	results := make([][]float32, 0, len(texts))
	// 分批请求，减少单次请求体大小
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, batch...)
	}

	return results, nil
}

func (e *HTTPEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/embed", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embedding服务调用失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	var embedResp embedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if embedResp.Error != "" {
			return nil, fmt.Errorf("embedding服务错误: %s", embedResp.Error)
		}
		return nil, fmt.Errorf("embedding服务错误: HTTP %d - %s", resp.StatusCode, string(body))
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding数量不匹配: 期望%d，实际%d", len(texts), len(embedResp.Embeddings))
	}

	if embedResp.Dimension > 0 {
		e.dimensions.Store(int64(embedResp.Dimension))
	}

	return embedResp.Embeddings, nil
}

// Dimensions 返回向量维度，服务首次响应前为0
func (e *HTTPEmbedder) Dimensions() int {
	return int(e.dimensions.Load())
}

func (e *HTTPEmbedder) Ready() bool {
	return e.client != nil
}

// Heartbeat 检查embedding服务健康状态
func (e *HTTPEmbedder) Heartbeat(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding服务状态异常: %s", resp.Status)
	}
	return nil
}
