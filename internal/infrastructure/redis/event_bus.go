package redis

import (
	"context"
	"encoding/json"

	"cartflow/internal/domain"

	"github.com/redis/go-redis/v9"
)

const eventsChannel = "workflow:events"

// EventBus fans workflow lifecycle events out over Redis Pub/Sub so order,
// payment, and analytics services can react without polling the event log.
// It is notification-only; the event store remains the source of truth.
type EventBus struct {
	client  *redis.Client
	channel string
}

func NewEventBus(client *redis.Client) *EventBus {
	return &EventBus{
		client:  client,
		channel: eventsChannel,
	}
}

// Publish broadcasts one appended event record.
func (b *EventBus) Publish(ctx context.Context, record *domain.WorkflowEventRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe opens a continuous stream of workflow events for a consumer
// service. The returned channel closes when ctx is cancelled.
func (b *EventBus) Subscribe(ctx context.Context) (<-chan domain.WorkflowEventRecord, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)

	msgChan := make(chan domain.WorkflowEventRecord)

	go func() {
		defer close(msgChan)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				msg, err := pubsub.ReceiveMessage(ctx)
				if err != nil {
					continue
				}
				var record domain.WorkflowEventRecord
				if err := json.Unmarshal([]byte(msg.Payload), &record); err == nil {
					msgChan <- record
				}
			}
		}
	}()

	return msgChan, nil
}
