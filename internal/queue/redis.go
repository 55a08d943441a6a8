package queue

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lyrixx/ClickHouse/internal/logging"
)

// Redis Streams consumer tuning.
const (
	redisDialTimeout = 5 * time.Second
	redisBlock       = 5 * time.Second
	redisReadCount   = 100
)

// redisField is the stream entry field the message body travels in.
const redisField = "payload"

// RedisConfig configures the Redis Streams queue.
type RedisConfig struct {
	URL      string // redis:// URL or plain host:port
	Password string // used only when URL is a plain address
	DB       int    // used only when URL is a plain address
	Stream   string // stream key prefix, default "mergetree"
	Group    string // consumer group, default "mergetree-ingest"
	Consumer string // consumer name, default hostname
}

// RedisQueue is the Redis Streams Queue. Subjects map to stream keys;
// consumer groups track deliveries and acknowledgments per consumer.
type RedisQueue struct {
	client *redis.Client
	cfg    RedisConfig

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewRedisQueue connects to Redis and verifies the server answers.
func NewRedisQueue(cfg RedisConfig) (*RedisQueue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		// Plain host:port address
		opts = &redis.Options{Addr: cfg.URL, Password: cfg.Password, DB: cfg.DB}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}

	if cfg.Stream == "" {
		cfg.Stream = "mergetree"
	}
	if cfg.Group == "" {
		cfg.Group = "mergetree-ingest"
	}
	if cfg.Consumer == "" {
		if host, err := os.Hostname(); err == nil && host != "" {
			cfg.Consumer = host
		} else {
			cfg.Consumer = "consumer-1"
		}
	}

	return &RedisQueue{
		client:  client,
		cfg:     cfg,
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

// key returns the stream key for a subject.
func (q *RedisQueue) key(subject string) string {
	return q.cfg.Stream + ":" + subject
}

// Publish appends one entry to the subject's stream.
func (q *RedisQueue) Publish(ctx context.Context, subject string, data []byte) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.key(subject),
		Values: map[string]any{redisField: data},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", subject, err)
	}
	return nil
}

// PublishBatch appends all entries through one pipeline round trip.
func (q *RedisQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	pipe := q.client.Pipeline()
	for _, m := range messages {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: q.key(m.Subject),
			Values: map[string]any{redisField: m.Data},
		})
	}

	cmds, err := pipe.Exec(ctx)
	if err != nil && len(cmds) == 0 {
		return 0, fmt.Errorf("redis batch publish: %w", err)
	}

	accepted := 0
	for _, cmd := range cmds {
		if cmd.Err() == nil {
			accepted++
		}
	}
	return accepted, nil
}

// Subscribe ensures the consumer group exists and starts the read loop.
// The group starts at the beginning of the stream, so history delivers
// to the first subscriber.
func (q *RedisQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.cancels[subject]; dup {
		return fmt.Errorf("redis: duplicate subscription for %s", subject)
	}

	stream := q.key(subject)
	ctx, cancel := context.WithCancel(context.Background())

	err := q.client.XGroupCreateMkStream(ctx, stream, q.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		cancel()
		return fmt.Errorf("redis consumer group %s: %w", q.cfg.Group, err)
	}

	q.cancels[subject] = cancel
	go q.readLoop(ctx, stream, handler)
	return nil
}

// readLoop blocks on XREADGROUP and delivers entries until ctx is
// cancelled.
func (q *RedisQueue) readLoop(ctx context.Context, stream string, handler MessageHandler) {
	for ctx.Err() == nil {
		res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.cfg.Group,
			Consumer: q.cfg.Consumer,
			Streams:  []string{stream, ">"},
			Count:    redisReadCount,
			Block:    redisBlock,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			logging.Warn("redis stream read failed", "stream", stream, "error", err)
			continue
		}

		for _, s := range res {
			for _, entry := range s.Messages {
				q.deliver(ctx, stream, entry, handler)
			}
		}
	}
}

// deliver runs the handler for one entry, acking on success. Entries
// without a payload field ack immediately so they never redeliver.
func (q *RedisQueue) deliver(ctx context.Context, stream string, entry redis.XMessage, handler MessageHandler) {
	body, ok := entry.Values[redisField].(string)
	if !ok {
		q.client.XAck(ctx, stream, q.cfg.Group, entry.ID)
		return
	}
	if handler([]byte(body)) != nil {
		return
	}
	q.client.XAck(ctx, stream, q.cfg.Group, entry.ID)
}

// Unsubscribe stops the read loop for subject. Pending entries stay in
// the group and redeliver to the next subscriber.
func (q *RedisQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, ok := q.cancels[subject]
	if !ok {
		return fmt.Errorf("redis: no subscription for %s", subject)
	}
	cancel()
	delete(q.cancels, subject)
	return nil
}

// Close stops all read loops and closes the client.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for subject, cancel := range q.cancels {
		cancel()
		delete(q.cancels, subject)
	}
	return q.client.Close()
}
