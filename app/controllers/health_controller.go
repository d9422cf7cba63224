package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/docchat/backend-go/internal/ollama"
	"github.com/docchat/backend-go/internal/rag"
)

const healthCheckTimeout = 3 * time.Second

// HealthController 健康检查控制器
type HealthController struct {
	BaseController
	client      *ollama.Client
	vectorStore rag.VectorStore
	embedder    rag.Embedder
}

func (c *HealthController) Prepare() {
	d := getDeps()
	if c.client == nil {
		c.client = d.Ollama
	}
	if c.vectorStore == nil {
		c.vectorStore = d.VectorStore
	}
	if c.embedder == nil {
		c.embedder = d.Embedder
	}
}

// Get 返回服务及其依赖的健康状态
// GET /health
func (c *HealthController) Get() {
	status := "OK"
	services := map[string]string{}

	check := func(name string, probe func(ctx context.Context) error) {
		ctx, cancel := context.WithTimeout(c.Ctx.Request.Context(), healthCheckTimeout)
		defer cancel()

		if err := probe(ctx); err != nil {
			services[name] = "DOWN"
			status = "DEGRADED"
			return
		}
		services[name] = "OK"
	}

	check("ollama", c.client.Heartbeat)

	if prober, ok := c.vectorStore.(rag.Prober); ok {
		check("qdrant", prober.Heartbeat)
	}

	if prober, ok := c.embedder.(rag.Prober); ok {
		check("embedding", prober.Heartbeat)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"services":  services,
	})
}

// RootController 根路径控制器
type RootController struct {
	BaseController
}

// Index 服务信息
// GET /
func (c *RootController) Index() {
	c.JSON(http.StatusOK, map[string]string{
		"service": "docchat-backend",
		"status":  "running",
	})
}
