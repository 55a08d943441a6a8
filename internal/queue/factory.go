package queue

import (
	"fmt"
	"strings"

	"github.com/lyrixx/ClickHouse/internal/config"
	"github.com/lyrixx/ClickHouse/internal/utils"
)

// NewQueue builds the backend named by cfg.Type. An empty type selects
// NATS, the deployment default.
func NewQueue(cfg config.QueueConfig) (Queue, error) {
	switch utils.QueueType(strings.ToLower(strings.TrimSpace(cfg.Type))) {
	case utils.QueueTypeNATS, "":
		return NewNATSQueue(cfg.URL)

	case utils.QueueTypeRedis:
		return NewRedisQueue(RedisConfig{
			URL:      cfg.URL,
			Password: cfg.Password,
			DB:       cfg.RedisDB,
			Stream:   cfg.RedisStream,
			Group:    cfg.RedisGroup,
			Consumer: cfg.RedisConsumer,
		})

	case utils.QueueTypeKafka:
		return NewKafkaQueue(KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
		})

	case utils.QueueTypeMemory:
		return NewMemoryQueue(), nil
	}

	return nil, fmt.Errorf("unknown queue type %q (want nats, redis, kafka or memory)", cfg.Type)
}
