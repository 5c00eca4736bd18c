package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches quiz display names from a backing store.
type CatalogLoader interface {
	LoadQuizName(ctx context.Context, quizID string) (string, error)
}

// QuizCatalog caches quiz names with TTL to avoid repeated backing-store hits.
type QuizCatalog struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedName
}

type cachedName struct {
	name      string
	expiresAt time.Time
}

func NewQuizCatalog(loader CatalogLoader, ttl time.Duration) *QuizCatalog {
	return &QuizCatalog{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedName),
	}
}

func (c *QuizCatalog) GetQuizName(ctx context.Context, quizID string) (string, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.name, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[quizID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.name, nil
		}
		c.mu.RUnlock()

		name, err := c.loader.LoadQuizName(ctx, quizID)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.cache[quizID] = cachedName{name: name, expiresAt: now.Add(c.ttlWithJitter())}
		c.mu.Unlock()
		return name, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (c *QuizCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
