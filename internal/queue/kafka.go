package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/lyrixx/ClickHouse/internal/logging"
	"github.com/lyrixx/ClickHouse/internal/utils"
)

// KafkaConfig configures the Kafka-backed queue.
type KafkaConfig struct {
	Brokers      []string      // broker addresses, at least one
	GroupID      string        // consumer group, default "mergetree-ingest"
	BatchSize    int           // producer batch size, default 100
	BatchTimeout time.Duration // producer linger, default 10ms
	RequiredAcks int           // 0 defaults to leader-only acks, -1 waits for all replicas
	MaxRetries   int           // write and commit attempts, default utils.DefaultMaxRetries
	RetryBackoff time.Duration // pause between commit attempts, default utils.DefaultRetryBackoff
}

// KafkaQueue maps subjects onto Kafka topics: one writer and one reader
// per topic, consumer offsets committed only after the handler succeeds.
type KafkaQueue struct {
	cfg KafkaConfig

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers map[string]*kafka.Reader
	cancels map[string]context.CancelFunc
}

// NewKafkaQueue validates cfg, fills defaults and returns a queue.
// Connections open lazily on first publish or subscribe per topic.
func NewKafkaQueue(cfg KafkaConfig) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	if cfg.GroupID == "" {
		cfg.GroupID = "mergetree-ingest"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = int(kafka.RequireOne)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = utils.DefaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = utils.DefaultRetryBackoff
	}

	return &KafkaQueue{
		cfg:     cfg,
		writers: make(map[string]*kafka.Writer),
		readers: make(map[string]*kafka.Reader),
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

// writer returns the topic writer, creating it on first use.
func (q *KafkaQueue) writer(topic string) *kafka.Writer {
	q.mu.Lock()
	defer q.mu.Unlock()

	w, ok := q.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:                   kafka.TCP(q.cfg.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.RoundRobin{},
			BatchSize:              q.cfg.BatchSize,
			BatchTimeout:           q.cfg.BatchTimeout,
			RequiredAcks:           kafka.RequiredAcks(q.cfg.RequiredAcks),
			MaxAttempts:            q.cfg.MaxRetries,
			AllowAutoTopicCreation: true,
		}
		q.writers[topic] = w
	}
	return w
}

// Publish writes one message to the subject's topic.
func (q *KafkaQueue) Publish(ctx context.Context, subject string, data []byte) error {
	msg := kafka.Message{Value: data, Time: time.Now()}
	if err := q.writer(subject).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", subject, err)
	}
	return nil
}

// PublishBatch groups messages by topic and writes each group in one
// call, letting the client batch within a topic.
func (q *KafkaQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	byTopic := make(map[string][]kafka.Message)
	now := time.Now()
	for _, m := range messages {
		byTopic[m.Subject] = append(byTopic[m.Subject], kafka.Message{Value: m.Data, Time: now})
	}

	accepted := 0
	var firstErr error
	for topic, batch := range byTopic {
		if err := q.writer(topic).WriteMessages(ctx, batch...); err != nil {
			logging.Warn("kafka batch write failed", "topic", topic, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		accepted += len(batch)
	}

	if accepted == 0 && firstErr != nil {
		return 0, fmt.Errorf("kafka batch publish: %w", firstErr)
	}
	return accepted, nil
}

// Subscribe consumes the subject's topic through the configured consumer
// group. Offsets commit only after the handler succeeds, so failed
// messages come back after a rebalance or restart.
func (q *KafkaQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.cancels[subject]; dup {
		return fmt.Errorf("kafka: duplicate subscription for %s", subject)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  q.cfg.Brokers,
		GroupID:  q.cfg.GroupID,
		Topic:    subject,
		MinBytes: 1,
		MaxBytes: 10 << 20,
		MaxWait:  time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	q.readers[subject] = reader
	q.cancels[subject] = cancel

	go q.consumeLoop(ctx, reader, handler)
	return nil
}

// consumeLoop fetches, handles and commits messages until ctx is
// cancelled. Handler failures skip the commit; fetch failures back off.
func (q *KafkaQueue) consumeLoop(ctx context.Context, reader *kafka.Reader, handler MessageHandler) {
	for ctx.Err() == nil {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Warn("kafka fetch failed", "topic", reader.Config().Topic, "error", err)
			time.Sleep(q.cfg.RetryBackoff)
			continue
		}

		if handler(msg.Value) != nil {
			continue
		}

		q.commit(ctx, reader, msg)
	}
}

// commit retries the offset commit a bounded number of times.
func (q *KafkaQueue) commit(ctx context.Context, reader *kafka.Reader, msg kafka.Message) {
	for attempt := 0; attempt < q.cfg.MaxRetries; attempt++ {
		if err := reader.CommitMessages(ctx, msg); err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		time.Sleep(q.cfg.RetryBackoff)
	}
	logging.Warn("kafka commit gave up", "topic", reader.Config().Topic, "offset", msg.Offset)
}

// Unsubscribe stops the consume loop and closes the topic reader.
func (q *KafkaQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, ok := q.cancels[subject]
	if !ok {
		return fmt.Errorf("kafka: no subscription for %s", subject)
	}
	cancel()
	delete(q.cancels, subject)

	if r, ok := q.readers[subject]; ok {
		_ = r.Close()
		delete(q.readers, subject)
	}
	return nil
}

// Close stops every consumer and closes every reader and writer.
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var firstErr error
	for subject, cancel := range q.cancels {
		cancel()
		delete(q.cancels, subject)
	}
	for topic, r := range q.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(q.readers, topic)
	}
	for topic, w := range q.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(q.writers, topic)
	}
	return firstErr
}

// WriterStats reports producer counters for a topic.
func (q *KafkaQueue) WriterStats(topic string) kafka.WriterStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	if w, ok := q.writers[topic]; ok {
		return w.Stats()
	}
	return kafka.WriterStats{}
}

// ReaderStats reports consumer counters for a topic.
func (q *KafkaQueue) ReaderStats(topic string) kafka.ReaderStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	if r, ok := q.readers[topic]; ok {
		return r.Stats()
	}
	return kafka.ReaderStats{}
}
