package controllers

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/docchat/backend-go/internal/document"
	"github.com/docchat/backend-go/internal/ingest"
	"github.com/docchat/backend-go/internal/logger"
	"go.uber.org/zap"
)

// UploadController 文件上传控制器
type UploadController struct {
	BaseController
	enqueuer  *ingest.Enqueuer
	parser    *document.ParserManager
	uploadDir string
	maxUpload int64
}

func (c *UploadController) Prepare() {
	d := getDeps()
	if c.enqueuer == nil {
		c.enqueuer = d.Enqueuer
	}
	if c.parser == nil {
		c.parser = document.NewParserManager()
	}
	if c.uploadDir == "" {
		c.uploadDir = d.UploadDir
	}
	if c.maxUpload == 0 {
		c.maxUpload = d.MaxUpload
	}
}

// Post 接收上传文件并投递摄取任务
// POST /upload/pdf
func (c *UploadController) Post() {
	file, header, err := c.GetFile("pdf")
	if err != nil || file == nil {
		c.JSONError(http.StatusBadRequest, "No PDF file uploaded")
		return
	}
	defer file.Close()

	if !c.parser.Supports(header.Filename) {
		c.JSONError(http.StatusBadRequest,
			fmt.Sprintf("Unsupported file format, allowed: %v", c.parser.SupportedFormats()))
		return
	}

	if c.maxUpload > 0 && header.Size > c.maxUpload {
		c.JSONError(http.StatusBadRequest, "File exceeds the maximum allowed size")
		return
	}

	if err := os.MkdirAll(c.uploadDir, 0o755); err != nil {
		logger.Error("创建上传目录失败", zap.String("dir", c.uploadDir), zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "Failed to upload PDF")
		return
	}

	// 时间戳+随机数前缀避免同名文件覆盖
	storedName := fmt.Sprintf("%d-%d-%s",
		time.Now().UnixMilli(), rand.Intn(1_000_000_000), filepath.Base(header.Filename))
	storedPath := filepath.Join(c.uploadDir, storedName)

	if err := c.SaveToFile("pdf", storedPath); err != nil {
		logger.Error("保存上传文件失败", zap.String("path", storedPath), zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "Failed to upload PDF")
		return
	}

	job := ingest.NewJob(header.Filename, storedPath)
	if err := c.enqueuer.Enqueue(job); err != nil {
		// 任务未入队时清理落盘文件，避免孤儿文件
		_ = os.Remove(storedPath)
		logger.Error("摄取任务入队失败", zap.String("job_id", job.ID), zap.Error(err))
		c.JSONError(http.StatusInternalServerError, "Failed to upload PDF")
		return
	}

	logger.Info("文件上传成功",
		zap.String("job_id", job.ID),
		zap.String("filename", header.Filename),
		zap.String("stored_as", storedName),
		zap.Int64("size", header.Size))

	c.JSON(http.StatusOK, map[string]string{
		"message":  "PDF uploaded successfully",
		"filename": header.Filename,
		"fileId":   storedName,
	})
}
