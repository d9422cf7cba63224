package controllers

import (
	"github.com/docchat/backend-go/internal/chat"
	"github.com/docchat/backend-go/internal/ingest"
	"github.com/docchat/backend-go/internal/ollama"
	"github.com/docchat/backend-go/internal/rag"
)

// Dependencies 控制器依赖集合
// Beego按请求反射创建控制器实例，字段无法随路由注册传递，
// 因此依赖在启动时注入包级注册表，控制器在Prepare中获取
type Dependencies struct {
	Chat        *chat.Orchestrator
	Ollama      *ollama.Client
	Enqueuer    *ingest.Enqueuer
	Embedder    rag.Embedder
	VectorStore rag.VectorStore
	UploadDir   string
	MaxUpload   int64
}

var deps *Dependencies

// Inject 注入控制器依赖，必须在路由注册前调用一次
func Inject(d *Dependencies) {
	deps = d
}

func getDeps() *Dependencies {
	return deps
}
