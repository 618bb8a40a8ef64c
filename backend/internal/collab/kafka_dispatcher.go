package collab

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

var ErrDispatcherClosed = errors.New("kafka dispatcher closed")

// EventPublisher 接收已应用的操作事件，Submit 只负责入队
type EventPublisher interface {
	Enqueue(ctx context.Context, evt DocOpEvent) error
}

// KafkaDispatcher：本地有界队列 + worker 异步发送 + 有限重试。
// - Kafka 短暂阻塞时靠队列吸收，后台慢慢补发
// - 队列满时允许降级（丢弃），避免内存无限增长
type KafkaDispatcher struct {
	producer sarama.SyncProducer
	topic    string
	log      *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan DocOpEvent
	wg     sync.WaitGroup

	// sem 限制并发的 SendMessage 数量。
	sendSem *SemaphoreControl

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type KafkaDispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Logger      *slog.Logger
}

func NewKafkaDispatcher(producer sarama.SyncProducer, topic string, sendSem *SemaphoreControl, opt KafkaDispatcherOptions) *KafkaDispatcher {
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.QueueSize < 0 {
		opt.QueueSize = 0
	}
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &KafkaDispatcher{
		producer:    producer,
		topic:       topic,
		log:         logger.With("component", "kafka_dispatcher", "topic", topic),
		queue:       make(chan DocOpEvent, opt.QueueSize),
		sendSem:     sendSem,
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}

	d.start()
	return d
}

// Enqueue：把事件放入本地队列。
// - 队列满时，等待直到 ctx 超时
// - ctx 超时返回错误 （kafka不要求强一致性，不是每个事件都必须送达）
func (d *KafkaDispatcher) Enqueue(ctx context.Context, evt DocOpEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	select {
	case d.queue <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events and waits until the queue has drained.
func (d *KafkaDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *KafkaDispatcher) start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.workerLoop(i)
	}
}

func (d *KafkaDispatcher) workerLoop(workerID int) {
	defer d.wg.Done()
	for evt := range d.queue {
		d.sendWithRetry(workerID, evt)
	}
}

func (d *KafkaDispatcher) sendWithRetry(workerID int, evt DocOpEvent) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		if d.sendSem != nil {
			// worker 允许一直等待（不会影响主链路）
			_ = d.sendSem.Acquire(context.Background())
		}

		err := d.sendOnce(evt)

		if d.sendSem != nil {
			_ = d.sendSem.Release()
		}

		if err == nil {
			return
		}

		if attempt == d.maxRetry {
			d.log.Error("kafka send failed, drop event",
				"doc", evt.DocID, "op", evt.OperationID, "rev", evt.Revision,
				"worker", workerID, "err", err)
			return
		}
		d.log.Warn("kafka send failed, retrying",
			"doc", evt.DocID, "rev", evt.Revision, "attempt", attempt+1, "err", err)

		time.Sleep(d.backoff(attempt))
	}
}

// 退避，每次退避时间X2，不超过 maxBackoff
func (d *KafkaDispatcher) backoff(attempt int) time.Duration {
	b := d.baseBackoff * time.Duration(1<<attempt)
	if d.maxBackoff > 0 && b > d.maxBackoff {
		b = d.maxBackoff
	}
	return b
}

func (d *KafkaDispatcher) sendOnce(evt DocOpEvent) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		// 以 docId 做 key，同一文档的事件落在同一分区，保持顺序
		Key:   sarama.StringEncoder(evt.DocID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
