// internal/events/redis.go
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher appends events to a Redis stream per topic via XADD.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, event ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.ID, err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			"id":       event.ID,
			"name":     event.Name,
			"resource": event.Resource,
			"key":      event.Key,
			"kind":     string(event.Kind),
			"payload":  string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd to %s: %w", topic, err)
	}
	return nil
}
