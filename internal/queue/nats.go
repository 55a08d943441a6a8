package queue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lyrixx/ClickHouse/internal/logging"
	"github.com/lyrixx/ClickHouse/internal/utils"
)

// JetStream consumer policy for insert streams. Unacknowledged messages
// redeliver until the delivery cap is reached.
const (
	natsAckWait       = 30 * time.Second
	natsMaxAckPending = 100
	natsMaxDeliver    = utils.DefaultMaxRetries
)

// streamPrefix namespaces the streams this module creates on a shared
// NATS deployment.
const streamPrefix = "mergetree-"

// NATSQueue is the JetStream-backed Queue and the default backend.
// Insert streams and part events persist to file storage and survive
// restarts of either end.
type NATSQueue struct {
	conn *nats.Conn
	js   nats.JetStreamContext

	mu      sync.Mutex
	subs    map[string]*nats.Subscription
	ensured map[string]bool
}

// NewNATSQueue connects to url and enables JetStream.
func NewNATSQueue(url string) (*NATSQueue, error) {
	conn, err := nats.Connect(url,
		nats.Name("mergetree"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	q, err := NewNATSQueueWithConn(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

// NewNATSQueueWithConn wraps an existing connection. The queue owns the
// connection from here on and closes it with Close.
func NewNATSQueueWithConn(conn *nats.Conn) (*NATSQueue, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	return &NATSQueue{
		conn:    conn,
		js:      js,
		subs:    make(map[string]*nats.Subscription),
		ensured: make(map[string]bool),
	}, nil
}

// ensureStream creates the file-backed stream covering subject on first
// use, so publishers do not depend on a subscriber having come up first.
// Streams are provisioned per subject family: every subject under one
// leading token shares a stream, and filtered consumers narrow within
// it. That keeps wildcard subscriptions like "parts.logs.>" in the same
// stream as the exact subjects publishers write to.
func (q *NATSQueue) ensureStream(subject string) error {
	family, _, _ := strings.Cut(subject, ".")

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ensured[family] {
		return nil
	}

	name := streamPrefix + safeName(family)
	if _, err := q.js.StreamInfo(name); err != nil {
		_, err = q.js.AddStream(&nats.StreamConfig{
			Name:     name,
			Subjects: []string{family, family + ".>"},
			Storage:  nats.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("create stream %s: %w", name, err)
		}
	}

	q.ensured[family] = true
	return nil
}

// Publish writes one message to subject's stream and waits for the
// server acknowledgment.
func (q *NATSQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := q.ensureStream(subject); err != nil {
		return err
	}

	if _, err := q.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// PublishBatch queues all messages through the async publisher and waits
// for the server to acknowledge the batch in one round trip.
func (q *NATSQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	futures := make([]nats.PubAckFuture, 0, len(messages))
	for _, m := range messages {
		if err := q.ensureStream(m.Subject); err != nil {
			logging.Warn("stream setup failed for batch message", "subject", m.Subject, "error", err)
			continue
		}
		f, err := q.js.PublishAsync(m.Subject, m.Data)
		if err != nil {
			logging.Warn("async publish rejected", "subject", m.Subject, "error", err)
			continue
		}
		futures = append(futures, f)
	}

	select {
	case <-q.js.PublishAsyncComplete():
	case <-ctx.Done():
		return 0, fmt.Errorf("batch publish interrupted: %w", ctx.Err())
	}

	acked := 0
	for _, f := range futures {
		select {
		case <-f.Ok():
			acked++
		case err := <-f.Err():
			logging.Warn("batch message rejected by server", "error", err)
		default:
			// Resolved but neither channel fired yet.
			acked++
		}
	}
	return acked, nil
}

// Subscribe attaches a durable JetStream consumer to subject. Messages
// replay from the start of the stream, require an explicit ack and
// redeliver on handler failure.
func (q *NATSQueue) Subscribe(subject string, handler MessageHandler) error {
	if err := q.ensureStream(subject); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.subs[subject]; dup {
		return fmt.Errorf("nats: duplicate subscription for %s", subject)
	}

	sub, err := q.js.Subscribe(subject, func(msg *nats.Msg) {
		if handler(msg.Data) != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("consumer-"+safeName(subject)),
		nats.ManualAck(),
		nats.AckWait(natsAckWait),
		nats.MaxAckPending(natsMaxAckPending),
		nats.MaxDeliver(natsMaxDeliver),
		nats.DeliverAll(),
	)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	q.subs[subject] = sub
	return nil
}

// Unsubscribe stops delivery for subject and deletes its durable
// consumer, so a later Subscribe starts over from the beginning.
func (q *NATSQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	sub, ok := q.subs[subject]
	if !ok {
		return fmt.Errorf("nats: no subscription for %s", subject)
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	delete(q.subs, subject)
	return nil
}

// Close closes the connection. Durable consumers stay on the server, so
// a restarted node resumes from its last acknowledged message.
func (q *NATSQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.subs = make(map[string]*nats.Subscription)
	q.conn.Close()
	return nil
}

// Conn exposes the underlying connection for health checks.
func (q *NATSQueue) Conn() *nats.Conn {
	return q.conn
}

// safeName maps a subject to the A-Za-z0-9_- alphabet JetStream allows
// in stream and consumer names.
func safeName(subject string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, subject)
}
