package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopicNames(t *testing.T) {
	assert.Equal(t, "file-upload-queue.retry", RetryTopic("file-upload-queue"))
	assert.Equal(t, "file-upload-queue.dlq", DeadLetterTopic("file-upload-queue"))
}

func TestParseAttempts(t *testing.T) {
	assert.Equal(t, 0, parseAttempts(nil))
	assert.Equal(t, 0, parseAttempts([]*sarama.RecordHeader{
		{Key: []byte("attempts"), Value: []byte("garbage")},
	}))
	assert.Equal(t, 2, parseAttempts([]*sarama.RecordHeader{
		{Key: []byte("last_error"), Value: []byte("boom")},
		{Key: []byte("attempts"), Value: []byte("2")},
	}))
}

func TestParseNotBefore(t *testing.T) {
	_, ok := parseNotBefore(nil)
	assert.False(t, ok)

	want := time.Now().Add(5 * time.Second).Truncate(time.Millisecond)
	got, ok := parseNotBefore([]*sarama.RecordHeader{
		{Key: []byte("not_before"), Value: []byte(want.Format(time.RFC3339Nano))},
	})
	assert.True(t, ok)
	assert.True(t, got.Equal(want))
}

// fakeGroupSession 记录偏移量提交的消费者组会话
type fakeGroupSession struct {
	ctx context.Context

	mu     sync.Mutex
	marked []*sarama.ConsumerMessage
}

func (s *fakeGroupSession) Claims() map[string][]int32               { return nil }
func (s *fakeGroupSession) MemberID() string                         { return "test-member" }
func (s *fakeGroupSession) GenerationID() int32                      { return 1 }
func (s *fakeGroupSession) MarkOffset(string, int32, int64, string)  {}
func (s *fakeGroupSession) Commit()                                  {}
func (s *fakeGroupSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeGroupSession) Context() context.Context                 { return s.ctx }

func (s *fakeGroupSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg)
}

func (s *fakeGroupSession) markedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.marked)
}

// fakeGroupClaim 预填消息后关闭通道，ConsumeClaim读到nil即返回
type fakeGroupClaim struct {
	topic    string
	messages chan *sarama.ConsumerMessage
}

func newFakeClaim(topic string, msgs ...*sarama.ConsumerMessage) *fakeGroupClaim {
	ch := make(chan *sarama.ConsumerMessage, len(msgs))
	for _, msg := range msgs {
		ch <- msg
	}
	close(ch)
	return &fakeGroupClaim{topic: topic, messages: ch}
}

func (c *fakeGroupClaim) Topic() string                            { return c.topic }
func (c *fakeGroupClaim) Partition() int32                         { return 0 }
func (c *fakeGroupClaim) InitialOffset() int64                     { return 0 }
func (c *fakeGroupClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeGroupClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

// newTestConsumer 构造不连接broker的消费者，仅用于驱动处理逻辑
func newTestConsumer(producer *Producer, handler Handler, opts ConsumerOptions) *Consumer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 10 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		producer: producer,
		handler:  handler,
		opts:     opts,
		topics:   []string{opts.Topic, RetryTopic(opts.Topic)},
		sem:      make(chan struct{}, opts.Concurrency),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func headerValue(headers []sarama.RecordHeader, key string) (string, bool) {
	for _, h := range headers {
		if string(h.Key) == key {
			return string(h.Value), true
		}
	}
	return "", false
}

func TestConsumer_FailedMessageRepublishedToRetry(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		require.Equal(t, "file-upload-queue.retry", msg.Topic)

		attempts, ok := headerValue(msg.Headers, "attempts")
		require.True(t, ok)
		assert.Equal(t, "1", attempts)

		lastErr, ok := headerValue(msg.Headers, "last_error")
		require.True(t, ok)
		assert.Equal(t, "解析失败", lastErr)

		raw, ok := headerValue(msg.Headers, "not_before")
		require.True(t, ok)
		notBefore, err := time.Parse(time.RFC3339Nano, raw)
		require.NoError(t, err)
		assert.True(t, notBefore.After(time.Now()), "retry should carry a future backoff deadline")
		return nil
	})

	consumer := newTestConsumer(
		&Producer{producer: mp, topic: "file-upload-queue"},
		func(ctx context.Context, payload []byte, attempts int) error {
			return errors.New("解析失败")
		},
		ConsumerOptions{Topic: "file-upload-queue", MaxRetries: 3, RetryBackoff: time.Minute},
	)

	session := &fakeGroupSession{ctx: context.Background()}
	claim := newFakeClaim("file-upload-queue", &sarama.ConsumerMessage{
		Topic: "file-upload-queue",
		Key:   []byte("job-1"),
		Value: []byte(`{"id":"job-1"}`),
	})

	handler := &groupHandler{consumer: consumer}
	require.NoError(t, handler.ConsumeClaim(session, claim))

	// 消息已转发到重试主题，原始偏移量可以提交
	assert.Equal(t, 1, session.markedCount())
	require.NoError(t, mp.Close())
}

func TestConsumer_DeadLetterAfterMaxRetries(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		require.Equal(t, "file-upload-queue.dlq", msg.Topic)

		attempts, ok := headerValue(msg.Headers, "attempts")
		require.True(t, ok)
		assert.Equal(t, "3", attempts)

		lastErr, ok := headerValue(msg.Headers, "last_error")
		require.True(t, ok)
		assert.Equal(t, "解析失败", lastErr)
		return nil
	})

	consumer := newTestConsumer(
		&Producer{producer: mp, topic: "file-upload-queue"},
		func(ctx context.Context, payload []byte, attempts int) error {
			assert.Equal(t, 2, attempts)
			return errors.New("解析失败")
		},
		ConsumerOptions{Topic: "file-upload-queue", MaxRetries: 3},
	)

	session := &fakeGroupSession{ctx: context.Background()}
	claim := newFakeClaim(RetryTopic("file-upload-queue"), &sarama.ConsumerMessage{
		Topic: RetryTopic("file-upload-queue"),
		Key:   []byte("job-1"),
		Value: []byte(`{"id":"job-1"}`),
		Headers: []*sarama.RecordHeader{
			{Key: []byte("attempts"), Value: []byte("2")},
		},
	})

	handler := &groupHandler{consumer: consumer}
	require.NoError(t, handler.ConsumeClaim(session, claim))

	assert.Equal(t, 1, session.markedCount())
	require.NoError(t, mp.Close())
}

func TestConsumer_ForwardFailureKeepsOffsetUncommitted(t *testing.T) {
	mp := mocks.NewSyncProducer(t, nil)
	mp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	consumer := newTestConsumer(
		&Producer{producer: mp, topic: "file-upload-queue"},
		func(ctx context.Context, payload []byte, attempts int) error {
			return errors.New("解析失败")
		},
		ConsumerOptions{Topic: "file-upload-queue", MaxRetries: 3},
	)

	session := &fakeGroupSession{ctx: context.Background()}
	claim := newFakeClaim("file-upload-queue", &sarama.ConsumerMessage{
		Topic: "file-upload-queue",
		Key:   []byte("job-1"),
		Value: []byte(`{"id":"job-1"}`),
	})

	handler := &groupHandler{consumer: consumer}
	require.NoError(t, handler.ConsumeClaim(session, claim))

	// 处理失败且转发也失败时不得提交偏移量，消息留待Kafka重投
	assert.Equal(t, 0, session.markedCount(),
		"offset must stay uncommitted when the message could not be republished")
	require.NoError(t, mp.Close())
}

func TestConsumer_ShutdownDuringBackoffSkipsProcessing(t *testing.T) {
	var calls int32
	consumer := newTestConsumer(
		&Producer{producer: mocks.NewSyncProducer(t, nil), topic: "file-upload-queue"},
		func(ctx context.Context, payload []byte, attempts int) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
		ConsumerOptions{Topic: "file-upload-queue"},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	session := &fakeGroupSession{ctx: ctx}

	notBefore := time.Now().Add(time.Hour).Format(time.RFC3339Nano)
	handled := consumer.process(session, &sarama.ConsumerMessage{
		Topic: RetryTopic("file-upload-queue"),
		Value: []byte(`{"id":"job-1"}`),
		Headers: []*sarama.RecordHeader{
			{Key: []byte("attempts"), Value: []byte("1")},
			{Key: []byte("not_before"), Value: []byte(notBefore)},
		},
	})

	// 会话已关闭时不消耗重试次数，偏移量不提交
	assert.False(t, handled)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestConsumer_ConcurrencySharedAcrossClaims(t *testing.T) {
	var inFlight, peak int32
	consumer := newTestConsumer(
		&Producer{producer: mocks.NewSyncProducer(t, nil), topic: "file-upload-queue"},
		func(ctx context.Context, payload []byte, attempts int) error {
			cur := atomic.AddInt32(&inFlight, 1)
			for {
				prev := atomic.LoadInt32(&peak)
				if cur <= prev || atomic.CompareAndSwapInt32(&peak, prev, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return nil
		},
		ConsumerOptions{Topic: "file-upload-queue", Concurrency: 1},
	)

	session := &fakeGroupSession{ctx: context.Background()}
	newMessages := func(topic string, n int) []*sarama.ConsumerMessage {
		msgs := make([]*sarama.ConsumerMessage, n)
		for i := range msgs {
			msgs[i] = &sarama.ConsumerMessage{Topic: topic, Value: []byte(`{"id":"job"}`), Offset: int64(i)}
		}
		return msgs
	}

	var wg sync.WaitGroup
	for _, topic := range []string{"file-upload-queue", RetryTopic("file-upload-queue")} {
		claim := newFakeClaim(topic, newMessages(topic, 3)...)
		wg.Add(1)
		go func(claim *fakeGroupClaim) {
			defer wg.Done()
			handler := &groupHandler{consumer: consumer}
			assert.NoError(t, handler.ConsumeClaim(session, claim))
		}(claim)
	}
	wg.Wait()

	// 两个分区共享同一个并发上限
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
	assert.Equal(t, 6, session.markedCount())
}
