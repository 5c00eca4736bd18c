package redis

import (
	"context"
	"encoding/json"
	"log"

	"quiz-battle-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Broadcaster mirrors room events onto Redis pub/sub so instances other than
// the one owning the room can relay them. Delivery is fire-and-forget: a
// publish failure is logged and dropped, matching the no-replay contract.
type Broadcaster struct {
	client *redis.Client
}

func NewBroadcaster(client *redis.Client) *Broadcaster {
	return &Broadcaster{client: client}
}

func (b *Broadcaster) Publish(ctx context.Context, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("marshal broadcast event: %v", err)
		return
	}
	if err := b.client.Publish(ctx, Channel(event.BattleID), data).Err(); err != nil {
		log.Printf("publish battle event: %v", err)
	}
}

// Channel returns the pub/sub channel name for a battle's events.
func Channel(battleID string) string {
	return "battle:events:" + battleID
}
