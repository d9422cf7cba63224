package main

import (
	"log"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"github.com/docchat/backend-go/app/bootstrap"
	"github.com/docchat/backend-go/app/router"
	"github.com/docchat/backend-go/internal/config"
	"github.com/docchat/backend-go/internal/logger"
	"go.uber.org/zap"
)

func main() {
	app, err := bootstrap.Init(bootstrap.Options{
		StartConsumer: true,
		RegisterHTTP:  true,
	})
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()

	router.Init()

	web.BConfig.AppName = "docchat-backend"
	web.BConfig.CopyRequestBody = true
	if p, err := strconv.Atoi(config.AppConfig.Server.Port); err == nil {
		web.BConfig.Listen.HTTPPort = p
	}

	logger.Info("🚀 Starting docchat backend", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}
