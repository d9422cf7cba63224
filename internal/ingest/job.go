package ingest

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Job 文件摄取任务，经Kafka投递给后台工作器
type Job struct {
	ID             string    `json:"id"`
	Filename       string    `json:"filename"`
	SourcePath     string    `json:"source_path"`
	DestinationDir string    `json:"destination_dir,omitempty"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// NewJob 创建摄取任务
func NewJob(filename, sourcePath string) Job {
	return Job{
		ID:             uuid.NewString(),
		Filename:       filename,
		SourcePath:     sourcePath,
		DestinationDir: filepath.Dir(sourcePath),
		EnqueuedAt:     time.Now(),
	}
}

// Encode 序列化任务
func (j Job) Encode() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("序列化摄取任务失败: %w", err)
	}
	return data, nil
}

// ParseJob 解析任务数据
func ParseJob(data []byte) (Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("解析摄取任务失败: %w", err)
	}
	if job.Filename == "" || job.SourcePath == "" {
		return Job{}, fmt.Errorf("摄取任务缺少必要字段")
	}
	return job, nil
}

// Publisher 任务发布接口
type Publisher interface {
	Publish(key string, value []byte) error
}

// Enqueuer 摄取任务入队器
type Enqueuer struct {
	publisher Publisher
}

// NewEnqueuer 创建任务入队器
func NewEnqueuer(publisher Publisher) *Enqueuer {
	return &Enqueuer{publisher: publisher}
}

// Enqueue 将摄取任务发送到队列
func (e *Enqueuer) Enqueue(job Job) error {
	if e == nil || e.publisher == nil {
		return fmt.Errorf("任务队列未初始化")
	}

	data, err := job.Encode()
	if err != nil {
		return err
	}
	return e.publisher.Publish(job.ID, data)
}
