package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/docchat/backend-go/app/bootstrap"
	"github.com/docchat/backend-go/internal/logger"
)

// 独立的摄取工作器进程，仅消费队列不提供HTTP接口
func main() {
	app, err := bootstrap.Init(bootstrap.Options{
		StartConsumer: true,
	})
	if err != nil {
		log.Fatalf("failed to bootstrap worker: %v", err)
	}
	defer app.Shutdown()

	logger.Info("🚀 Starting docchat ingest worker")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down ingest worker")
}
