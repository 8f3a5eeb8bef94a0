package stats

import (
	"context"
	"fmt"
	"time"

	"golang-infomoney-crawler/pkg/common"

	"github.com/redis/go-redis/v9"
)

// Publisher stores run snapshots in Redis so operators can inspect recent runs.
type Publisher interface {
	Publish(ctx context.Context, runID string, snapshot map[string]int64) error
}

type redisPublisher struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPublisher creates a Publisher that keeps each run hash for ttl.
func NewRedisPublisher(client *redis.Client, ttl time.Duration) Publisher {
	return &redisPublisher{client: client, ttl: ttl}
}

func (p *redisPublisher) Publish(ctx context.Context, runID string, snapshot map[string]int64) error {
	key := fmt.Sprintf(common.RedisKeyCrawlStats, runID)

	values := make(map[string]interface{}, len(snapshot)+1)
	for k, v := range snapshot {
		values[k] = v
	}
	values["finished_at"] = time.Now().UTC().Format(time.RFC3339)

	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		if p.ttl > 0 {
			pipe.Expire(ctx, key, p.ttl)
		}
		pipe.Set(ctx, common.RedisKeyCrawlLastRun, runID, p.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish crawl stats: %w", err)
	}
	return nil
}

// nopPublisher is used when Redis is not configured.
type nopPublisher struct{}

func NewNopPublisher() Publisher { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, string, map[string]int64) error { return nil }
