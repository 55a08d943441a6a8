// Package subscriber drains insert streams from the message queue into
// table stores. The HTTP insert endpoint and the queue consumer share one
// write path: decode rows, coerce them against the table schema, hand them
// to the store.
package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/lyrixx/ClickHouse/internal/logging"
	"github.com/lyrixx/ClickHouse/internal/mergetree"
	"github.com/lyrixx/ClickHouse/internal/models"
	"github.com/lyrixx/ClickHouse/internal/queue"
)

// InsertSubject is the queue subject carrying insert batches for a table.
func InsertSubject(table string) string {
	return "ingest." + table
}

// InsertMessage is the wire shape published to ingest.{table} subjects.
type InsertMessage struct {
	Rows []map[string]any `json:"rows"`
}

// InsertConsumer subscribes to the insert subject of every configured table
// and feeds decoded batches into the matching store. A handler error leaves
// the message unacknowledged so the transport can redeliver it.
type InsertConsumer struct {
	sub    queue.Subscriber
	stores map[string]*mergetree.Store
	logger *logging.Logger

	mu       sync.Mutex
	subjects []string

	ctx    context.Context
	cancel context.CancelFunc
}

// NewInsertConsumer creates a consumer over the given subscriber. The stores
// map is keyed by table name.
func NewInsertConsumer(sub queue.Subscriber, stores map[string]*mergetree.Store, logger *logging.Logger) (*InsertConsumer, error) {
	if sub == nil {
		return nil, fmt.Errorf("subscriber is nil")
	}
	if logger == nil {
		logger = logging.Global()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &InsertConsumer{
		sub:    sub,
		stores: stores,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start subscribes to every table's insert subject.
func (c *InsertConsumer) Start() error {
	tables := make([]string, 0, len(c.stores))
	for table := range c.stores {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		store := c.stores[table]
		subject := InsertSubject(table)
		if err := c.sub.Subscribe(subject, c.handler(table, store)); err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}

		c.mu.Lock()
		c.subjects = append(c.subjects, subject)
		c.mu.Unlock()

		c.logger.Info("insert stream subscribed", "subject", subject)
	}
	return nil
}

func (c *InsertConsumer) handler(table string, store *mergetree.Store) queue.MessageHandler {
	return func(data []byte) error {
		var msg InsertMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Error("malformed insert message",
				"table", table,
				"error", err)
			return err
		}
		if len(msg.Rows) == 0 {
			return nil
		}

		rows, err := models.ToRows(store.Schema(), msg.Rows)
		if err != nil {
			c.logger.Error("insert batch rejected",
				"table", table,
				"rows", len(msg.Rows),
				"error", err)
			return err
		}

		parts, err := store.InsertRows(c.ctx, rows)
		if err != nil {
			c.logger.Error("insert batch write failed",
				"table", table,
				"rows", len(rows),
				"error", err)
			return err
		}

		for _, p := range parts {
			c.logger.Debug("part committed from insert stream",
				"table", table,
				"part", p.Name.String(),
				"rows", p.Rows)
		}
		return nil
	}
}

// Stop cancels in-flight writes and unsubscribes from all insert subjects.
// The underlying subscriber stays open; the caller owns its lifecycle.
func (c *InsertConsumer) Stop() {
	c.cancel()

	c.mu.Lock()
	subjects := c.subjects
	c.subjects = nil
	c.mu.Unlock()

	for _, subject := range subjects {
		if err := c.sub.Unsubscribe(subject); err != nil {
			c.logger.Warn("insert stream unsubscribe failed",
				"subject", subject,
				"error", err)
		}
	}
}
