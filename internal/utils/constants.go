package utils

import "time"

// HTTP server limits.
const (
	// DefaultRequestTimeout bounds a single HTTP request.
	DefaultRequestTimeout = 30 * time.Second

	// ShutdownTimeout bounds graceful server shutdown.
	ShutdownTimeout = 10 * time.Second
)

// Retry policy shared by the queue backends.
const (
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 100 * time.Millisecond
)

// QueueType names a message queue backend.
type QueueType string

const (
	QueueTypeNATS   QueueType = "nats"
	QueueTypeRedis  QueueType = "redis"
	QueueTypeKafka  QueueType = "kafka"
	QueueTypeMemory QueueType = "memory"
)
