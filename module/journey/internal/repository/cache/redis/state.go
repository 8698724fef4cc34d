package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
	"github.com/nandanugg/journey-tracker/module/journey/internal/repository/cache"
)

var _ cache.StateCache = (*StateCache)(nil)

const (
	DefaultTTL = 10 * time.Minute
	keyPrefix  = "journey:state:"
)

// Client is the subset of go-redis the cache needs; *goredis.Client satisfies it.
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

type StateCache struct {
	client Client
	ttl    time.Duration
}

func NewStateCache(client Client, ttl time.Duration) *StateCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &StateCache{client: client, ttl: ttl}
}

func Key(journeyID string) string {
	return keyPrefix + journeyID
}

func (c *StateCache) Get(ctx context.Context, journeyID string) (*domain.JourneyState, error) {
	raw, err := c.client.Get(ctx, Key(journeyID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s: %w", Key(journeyID), err)
	}

	var st domain.JourneyState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode cached state %s: %w", journeyID, err)
	}
	return &st, nil
}

func (c *StateCache) Set(ctx context.Context, st *domain.JourneyState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", st.JourneyID, err)
	}
	if err := c.client.Set(ctx, Key(st.JourneyID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET %s: %w", Key(st.JourneyID), err)
	}
	return nil
}

func (c *StateCache) Delete(ctx context.Context, journeyID string) error {
	if err := c.client.Del(ctx, Key(journeyID)).Err(); err != nil {
		return fmt.Errorf("redis DEL %s: %w", Key(journeyID), err)
	}
	return nil
}
