package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStreamConfig configures RedisStreamPublisher.
type RedisStreamConfig struct {
	Addr     string
	Password string
	Stream   string
	MaxLen   int64
}

// RedisStreamPublisher appends events to a capped Redis stream.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisStreamPublisher builds a publisher.
func NewRedisStreamPublisher(cfg RedisStreamConfig) (*RedisStreamPublisher, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = "shotreview:events"
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisStreamPublisher{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}),
		stream: stream,
		maxLen: maxLen,
	}, nil
}

// Publish implements Publisher.
func (p *RedisStreamPublisher) Publish(ctx context.Context, e Event) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id":        e.JobID,
			"kind":          string(e.Kind),
			"op":            e.Op,
			"screenshot_id": strconv.FormatInt(e.ScreenshotID, 10),
			"at":            e.At.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd event: %w", err)
	}
	return nil
}

// Close releases the client.
func (p *RedisStreamPublisher) Close() error {
	return p.client.Close()
}
