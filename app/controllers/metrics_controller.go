package controllers

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/docchat/backend-go/internal/metrics"
)

// MetricsController Prometheus指标暴露控制器
type MetricsController struct {
	web.Controller
}

// Get 输出Prometheus格式指标
// GET /metrics
func (c *MetricsController) Get() {
	metrics.Handler().ServeHTTP(c.Ctx.ResponseWriter, c.Ctx.Request)
}
