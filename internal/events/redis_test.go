// internal/events/redis_test.go
package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisherAppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	publisher := NewRedisPublisher(client)
	event := testEvent()
	require.NoError(t, publisher.Publish(context.Background(), "changes.pets", event))

	entries, err := client.XRange(context.Background(), "changes.pets", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	values := entries[0].Values
	assert.Equal(t, event.ID, values["id"])
	assert.Equal(t, "PetCreated", values["name"])
	assert.Equal(t, "Pet", values["resource"])
	assert.Equal(t, "p1", values["key"])
	assert.Equal(t, "created", values["kind"])

	var decoded ChangeEvent
	require.NoError(t, json.Unmarshal([]byte(values["payload"].(string)), &decoded))
	assert.Equal(t, event.Payload["name"], decoded.Payload["name"])
}

func TestRedisPublisherReportsBrokerFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	publisher := NewRedisPublisher(client)
	err := publisher.Publish(context.Background(), "changes.pets", testEvent())
	assert.Error(t, err)
}
