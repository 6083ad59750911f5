// Package history pushes applied room events onto a Redis queue for the
// historian worker to persist. Publishing is best effort: gameplay never
// waits on the archive.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/monopolymoney/moneyservice/internal/models"
)

// DefaultQueueName is the Redis list the historian drains.
var DefaultQueueName = "moneyservice_room_events"

// RoomEventRecord is one queue entry: the room it happened in plus the event
// in its wire form (type discriminator included).
type RoomEventRecord struct {
	RoomCode  string          `json:"room_code"`
	EventID   int             `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	QueuedAt  int64           `json:"queued_at"`
}

// Publisher wraps the queue client. A nil Publisher is valid and publishes
// nothing, so the room service can run without the archive.
type Publisher struct {
	rdb   *redis.Client
	queue string
}

func NewPublisher(rdb *redis.Client) *Publisher {
	queue := os.Getenv("HISTORIAN_QUEUE_NAME")
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Publisher{rdb: rdb, queue: queue}
}

// Publish serializes the event and pushes it onto the queue.
func (p *Publisher) Publish(ctx context.Context, roomCode string, ev models.GameEvent) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(models.EventLog{ev})
	if err != nil {
		return fmt.Errorf("failed to marshal event %d for room %s: %w", ev.EventID(), roomCode, err)
	}
	// EventLog marshals as a one-element array; unwrap to the bare object.
	var entries []json.RawMessage
	if err := json.Unmarshal(payload, &entries); err != nil || len(entries) != 1 {
		return fmt.Errorf("unexpected event encoding for room %s", roomCode)
	}

	record := RoomEventRecord{
		RoomCode:  roomCode,
		EventID:   ev.EventID(),
		EventType: string(ev.EventType()),
		Payload:   entries[0],
		QueuedAt:  time.Now().UnixMilli(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal room event record: %w", err)
	}
	if err := p.rdb.RPush(ctx, p.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", p.queue, err)
	}
	return nil
}
