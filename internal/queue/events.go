package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lyrixx/ClickHouse/internal/mergetree"
)

// PartEventPublisher adapts a Publisher into the storage layer's event sink,
// serializing part lifecycle events as JSON on the event's own subject.
type PartEventPublisher struct {
	pub Publisher
}

// NewPartEventPublisher wraps a queue publisher for part event delivery.
func NewPartEventPublisher(pub Publisher) *PartEventPublisher {
	return &PartEventPublisher{pub: pub}
}

// PublishPartEvent implements mergetree.EventPublisher.
func (p *PartEventPublisher) PublishPartEvent(ctx context.Context, e *mergetree.PartEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode part event: %w", err)
	}
	return p.pub.Publish(ctx, e.Subject(), data)
}
