package redis

import (
	"context"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// AnswerLoader resolves option correctness from a backing store.
type AnswerLoader interface {
	LoadOptionCorrect(ctx context.Context, optionID string) (bool, error)
}

// AnswerOracle caches the answer key in Redis and falls back to a loader on
// cache miss. Correctness is stored as: SET battle:option:{optionID} 0|1
type AnswerOracle struct {
	client *redis.Client
	loader AnswerLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewAnswerOracle(client *redis.Client, loader AnswerLoader, ttl time.Duration) *AnswerOracle {
	return &AnswerOracle{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (o *AnswerOracle) IsOptionCorrect(ctx context.Context, optionID string) (bool, error) {
	key := o.key(optionID)

	cached, err := o.client.Get(ctx, key).Result()
	if err == nil {
		return cached == "1", nil
	}

	result, err, _ := o.sf.Do(optionID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		cached, err := o.client.Get(ctx, key).Result()
		if err == nil {
			return cached == "1", nil
		}

		correct, err := o.loader.LoadOptionCorrect(ctx, optionID)
		if err != nil {
			return false, err
		}

		value := "0"
		if correct {
			value = "1"
		}
		_ = o.client.Set(ctx, key, value, o.ttlWithJitter()).Err()
		return correct, nil
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func (o *AnswerOracle) key(optionID string) string {
	return "battle:option:" + optionID
}

func (o *AnswerOracle) ttlWithJitter() time.Duration {
	if o.ttl <= 0 {
		return 0
	}
	jitterMax := int64(o.ttl) / 10
	return o.ttl + time.Duration(o.rnd.Int63n(jitterMax+1))
}
