package controllers

import (
	"net/http"

	"github.com/docchat/backend-go/internal/errors"
	"github.com/docchat/backend-go/internal/ollama"
)

// ModelController 模型列表控制器
type ModelController struct {
	BaseController
	client *ollama.Client
}

func (c *ModelController) Prepare() {
	if c.client == nil {
		c.client = getDeps().Ollama
	}
}

// Get 返回Ollama可用模型列表
// GET /models
func (c *ModelController) Get() {
	models, err := c.client.List(c.Ctx.Request.Context())
	if err != nil {
		if errors.IsUnreachable(err) {
			c.ServeError(errors.NewUpstreamUnavailableError("Ollama").WithCause(err))
			return
		}
		c.JSONError(http.StatusInternalServerError, "Failed to fetch models")
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"models": models,
	})
}
