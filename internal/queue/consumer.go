package queue

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/docchat/backend-go/internal/logger"
	"github.com/docchat/backend-go/internal/metrics"
	"go.uber.org/zap"
)

const (
	headerAttempts  = "attempts"
	headerNotBefore = "not_before"
	headerLastError = "last_error"
)

// Handler 消息处理函数，attempts为当前消息已失败的次数
type Handler func(ctx context.Context, payload []byte, attempts int) error

// ConsumerOptions 消费者配置
type ConsumerOptions struct {
	Brokers      []string
	GroupID      string
	Topic        string
	Concurrency  int
	MaxRetries   int
	RetryBackoff time.Duration
}

// Consumer Kafka消费者组
// 订阅主主题和重试主题，失败消息按退避重新入队，超限进入死信主题
type Consumer struct {
	group    sarama.ConsumerGroup
	producer *Producer
	handler  Handler
	opts     ConsumerOptions

	topics []string
	// 全局信号量，多个分区共享同一个在途消息上限
	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RetryTopic 返回主题对应的重试主题名
func RetryTopic(topic string) string {
	return topic + ".retry"
}

// DeadLetterTopic 返回主题对应的死信主题名
func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}

// NewConsumer 创建消费者组
func NewConsumer(opts ConsumerOptions, producer *Producer, handler Handler) (*Consumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("消息处理函数未设置")
	}
	if producer == nil {
		return nil, fmt.Errorf("Kafka生产者未初始化")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 5 * time.Second
	}

	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true
	config.Version = sarama.V2_6_0_0

	group, err := sarama.NewConsumerGroup(opts.Brokers, opts.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("创建Kafka消费者组失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Consumer{
		group:    group,
		producer: producer,
		handler:  handler,
		opts:     opts,
		topics:   []string{opts.Topic, RetryTopic(opts.Topic)},
		sem:      make(chan struct{}, opts.Concurrency),
		ctx:      ctx,
		cancel:   cancel,
	}

	logger.Info("Kafka消费者初始化成功",
		zap.Strings("brokers", opts.Brokers),
		zap.String("group_id", opts.GroupID),
		zap.Strings("topics", c.topics),
		zap.Int("concurrency", opts.Concurrency),
		zap.Int("max_retries", opts.MaxRetries))

	return c, nil
}

// Start 启动消费循环
func (c *Consumer) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				logger.Info("Kafka消费者停止")
				return
			default:
				handler := &groupHandler{consumer: c}
				if err := c.group.Consume(c.ctx, c.topics, handler); err != nil {
					logger.Error("消费消息失败", zap.Error(err))
					time.Sleep(5 * time.Second)
				}
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.group.Errors() {
			logger.Error("Kafka消费者错误", zap.Error(err))
		}
	}()
}

// Close 关闭消费者，等待在途消息处理完成
func (c *Consumer) Close() error {
	if c == nil {
		return nil
	}
	c.cancel()
	c.wg.Wait()
	if c.group != nil {
		return c.group.Close()
	}
	return nil
}

// groupHandler 消费者组会话处理器
type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim 消费分区消息，共享信号量限制总在途消息数
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			select {
			case h.consumer.sem <- struct{}{}:
			case <-session.Context().Done():
				return nil
			}

			wg.Add(1)
			go func(msg *sarama.ConsumerMessage) {
				defer wg.Done()
				defer func() { <-h.consumer.sem }()

				// 处理成功或已转发到重试/死信主题才提交偏移量，
				// 否则消息留在原主题等待重投
				if h.consumer.process(session, msg) {
					session.MarkMessage(msg, "")
				}
			}(message)

		case <-session.Context().Done():
			return nil
		}
	}
}

// process 处理单条消息，失败时按重试策略转发
// 返回true表示消息已落定（处理成功或成功转发），可以提交偏移量
func (c *Consumer) process(session sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) bool {
	attempts := parseAttempts(msg.Headers)

	// 重试消息遵守退避时间
	if notBefore, ok := parseNotBefore(msg.Headers); ok {
		if wait := time.Until(notBefore); wait > 0 {
			select {
			case <-time.After(wait):
			case <-session.Context().Done():
				// 会话关闭，不再处理也不提交偏移量，重平衡后重投
				return false
			}
		}
	}

	err := c.handler(session.Context(), msg.Value, attempts)
	if err == nil {
		logger.Debug("消息处理成功",
			zap.String("topic", msg.Topic),
			zap.Int("partition", int(msg.Partition)),
			zap.Int64("offset", msg.Offset))
		return true
	}

	logger.Error("处理消息失败",
		zap.String("topic", msg.Topic),
		zap.Int("partition", int(msg.Partition)),
		zap.Int64("offset", msg.Offset),
		zap.Int("attempts", attempts),
		zap.Error(err))

	return c.forward(string(msg.Key), msg.Value, attempts, err) == nil
}

// forward 失败消息进入重试主题，超过最大次数进入死信主题
// 转发失败时返回错误，调用方不得提交原始偏移量
func (c *Consumer) forward(key string, value []byte, attempts int, cause error) error {
	next := attempts + 1

	if next >= c.opts.MaxRetries {
		headers := []sarama.RecordHeader{
			{Key: []byte(headerAttempts), Value: []byte(strconv.Itoa(next))},
			{Key: []byte(headerLastError), Value: []byte(cause.Error())},
		}
		if err := c.producer.PublishTo(DeadLetterTopic(c.opts.Topic), key, value, headers); err != nil {
			logger.Error("发送死信消息失败", zap.String("key", key), zap.Error(err))
			return err
		}
		metrics.IngestJobsDeadLettered.Inc()
		logger.Warn("消息进入死信主题",
			zap.String("key", key),
			zap.Int("attempts", next),
			zap.String("last_error", cause.Error()))
		return nil
	}

	notBefore := time.Now().Add(c.opts.RetryBackoff)
	headers := []sarama.RecordHeader{
		{Key: []byte(headerAttempts), Value: []byte(strconv.Itoa(next))},
		{Key: []byte(headerNotBefore), Value: []byte(notBefore.Format(time.RFC3339Nano))},
		{Key: []byte(headerLastError), Value: []byte(cause.Error())},
	}
	if err := c.producer.PublishTo(RetryTopic(c.opts.Topic), key, value, headers); err != nil {
		logger.Error("发送重试消息失败", zap.String("key", key), zap.Error(err))
		return err
	}

	logger.Info("消息重新入队",
		zap.String("key", key),
		zap.Int("attempts", next),
		zap.Duration("backoff", c.opts.RetryBackoff))
	return nil
}

func parseAttempts(headers []*sarama.RecordHeader) int {
	for _, h := range headers {
		if h != nil && string(h.Key) == headerAttempts {
			if n, err := strconv.Atoi(string(h.Value)); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}

func parseNotBefore(headers []*sarama.RecordHeader) (time.Time, bool) {
	for _, h := range headers {
		if h != nil && string(h.Key) == headerNotBefore {
			if t, err := time.Parse(time.RFC3339Nano, string(h.Value)); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
