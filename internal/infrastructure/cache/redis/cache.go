package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"mdcollector/internal/application/port"
	"mdcollector/internal/domain"
)

// Cache mirrors the newest ticker per symbol into a Redis hash so external
// dashboards can read current prices without touching the symbol stores.
type Cache struct {
	rdb       *redis.Client
	keyLatest string // prefix + ":latest"
	ttl       time.Duration
}

func New(rdb *redis.Client, prefix string, ttl time.Duration) *Cache {
	return &Cache{
		rdb:       rdb,
		keyLatest: prefix + ":latest",
		ttl:       ttl,
	}
}

type latestTicker struct {
	Symbol string  `json:"symbol"`
	Last   float64 `json:"last"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Ts     int64   `json:"ts"`
}

func (c *Cache) SetLatestTicker(ctx context.Context, t domain.Ticker) error {
	b, err := json.Marshal(latestTicker{
		Symbol: t.Symbol,
		Last:   t.Last,
		Bid:    t.Bid,
		Ask:    t.Ask,
		Ts:     t.Timestamp,
	})
	if err != nil {
		return err
	}

	// Hash: field = symbol -> json
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, c.keyLatest, t.Symbol, string(b))
	if c.ttl > 0 {
		pipe.Expire(ctx, c.keyLatest, c.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

var _ port.LatestCache = (*Cache)(nil)
