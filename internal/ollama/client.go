package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docchat/backend-go/internal/errors"
	"github.com/docchat/backend-go/internal/logger"
	"go.uber.org/zap"
)

// Client Ollama推理服务客户端
type Client struct {
	host   string
	client *http.Client
}

// Message 聊天消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options 采样参数
type Options struct {
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

// ChatRequest 聊天请求
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  Options   `json:"options"`
}

// ChatResponse 聊天响应
type ChatResponse struct {
	Model     string  `json:"model"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`
	CreatedAt string  `json:"created_at"`
}

// ModelInfo 模型信息
type ModelInfo struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
}

type listResponse struct {
	Models []ModelInfo `json:"models"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewClient 创建Ollama客户端
func NewClient(host string, timeout time.Duration) *Client {
	if host == "" {
		host = "http://localhost:11434"
	}
	if timeout == 0 {
		timeout = 120 * time.Second // 生成响应可能耗时较长
	}

	return &Client{
		host: strings.TrimSuffix(host, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Chat 调用聊天接口，非流式
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("ollama client not initialized")
	}

	req.Stream = false
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API调用失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			if isModelNotFound(resp.StatusCode, errResp.Error) {
				return nil, errors.NewModelNotFoundError(req.Model).WithCause(fmt.Errorf("%s", errResp.Error))
			}
			return nil, fmt.Errorf("ollama API错误: %s", errResp.Error)
		}
		return nil, fmt.Errorf("ollama API错误: HTTP %d - %s", resp.StatusCode, string(body))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	logger.Debug("ollama chat completed",
		zap.String("model", req.Model),
		zap.Int("response_length", len(chatResp.Message.Content)))

	return &chatResp, nil
}

// List 获取可用模型列表
func (c *Client) List(ctx context.Context) ([]ModelInfo, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("ollama client not initialized")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API调用失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API错误: HTTP %d - %s", resp.StatusCode, string(body))
	}

	var listResp listResponse
	if err := json.Unmarshal(body, &listResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	return listResp.Models, nil
}

// Heartbeat 检查Ollama服务健康状态
func (c *Client) Heartbeat(ctx context.Context) error {
	_, err := c.List(ctx)
	return err
}

// Ready 检查客户端是否就绪
func (c *Client) Ready() bool {
	return c != nil && c.client != nil
}

// isModelNotFound 判断错误是否为模型不存在
func isModelNotFound(status int, message string) bool {
	if status == http.StatusNotFound {
		return true
	}
	msg := strings.ToLower(message)
	return strings.Contains(msg, "model") && strings.Contains(msg, "not found")
}
