package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/docchat/backend-go/app/controllers"
	"github.com/docchat/backend-go/app/middleware"
)

// Init 注册所有路由，必须在依赖注入完成后调用
func Init() {
	web.InsertFilter("/*", web.BeforeRouter, middleware.CORSMiddleware)

	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Get")
	web.Router("/metrics", &controllers.MetricsController{}, "get:Get")

	web.Router("/upload/pdf", &controllers.UploadController{}, "post:Post")

	chatController := &controllers.ChatController{}
	web.Router("/chat", chatController, "post:Post")
	web.Router("/chat/history", chatController, "get:GetHistory;delete:ClearHistory")
	web.Router("/chat/history/:sessionId", chatController, "get:GetHistory;delete:ClearHistory")

	web.Router("/models", &controllers.ModelController{}, "get:Get")
}
