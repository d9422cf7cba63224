package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/docchat/backend-go/internal/chat"
)

// ChatController 聊天接口控制器
type ChatController struct {
	BaseController
	orchestrator *chat.Orchestrator
}

func (c *ChatController) Prepare() {
	if c.orchestrator == nil {
		c.orchestrator = getDeps().Chat
	}
}

// Post 处理聊天请求
// POST /chat
func (c *ChatController) Post() {
	var req chat.Request
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "Valid query is required")
		return
	}

	resp, err := c.orchestrator.Handle(c.Ctx.Request.Context(), req)
	if err != nil {
		c.ServeError(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetHistory 获取会话历史
// GET /chat/history 和 GET /chat/history/:sessionId
func (c *ChatController) GetHistory() {
	sessionID := c.Ctx.Input.Param(":sessionId")

	snapshot, err := c.orchestrator.History(c.Ctx.Request.Context(), sessionID)
	if err != nil {
		c.ServeError(err)
		return
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"messages":     snapshot.Messages,
		"createdAt":    snapshot.CreatedAt,
		"lastActivity": snapshot.LastActivity,
	})
}

// ClearHistory 清空会话历史，对不存在的会话同样返回成功
// DELETE /chat/history 和 DELETE /chat/history/:sessionId
func (c *ChatController) ClearHistory() {
	sessionID := c.Ctx.Input.Param(":sessionId")

	if err := c.orchestrator.ClearHistory(c.Ctx.Request.Context(), sessionID); err != nil {
		c.ServeError(err)
		return
	}

	c.JSON(http.StatusOK, map[string]string{
		"message": "Chat history cleared",
	})
}
