// Package messaging queues background jobs on Redis Streams.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"inboxt_server/core/port/out"
)

// Stream names
const (
	StreamDigestBuild = "digest:build"

	dlqPrefix    = "dlq:"
	streamMaxLen = 10000
)

// DeadLetterStream returns the DLQ stream for stream.
func DeadLetterStream(stream string) string {
	return dlqPrefix + stream
}

// RedisProducer implements out.JobPublisher using Redis Streams.
type RedisProducer struct {
	client *redis.Client
}

func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{client: client}
}

// PublishDigestBuild publishes a digest build job.
func (p *RedisProducer) PublishDigestBuild(ctx context.Context, job *out.DigestBuildJob) error {
	return p.publish(ctx, StreamDigestBuild, job)
}

func (p *RedisProducer) publish(ctx context.Context, stream string, job any) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"data": string(data)},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}

// Depth returns the number of entries in stream.
func (p *RedisProducer) Depth(ctx context.Context, stream string) (int64, error) {
	return p.client.XLen(ctx, stream).Result()
}

var _ out.JobPublisher = (*RedisProducer)(nil)
