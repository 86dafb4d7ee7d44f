package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrUnprocessable marks a message that can never succeed. Handlers wrap it
// and the consumer dead-letters the message at once instead of redelivering it.
var ErrUnprocessable = errors.New("unprocessable message")

// JobHandler processes jobs from streams.
type JobHandler interface {
	Handle(ctx context.Context, stream string, data []byte) error
}

// Consumer reads jobs with a consumer group, reclaims messages left pending by
// dead consumers and moves messages that keep failing to a DLQ stream.
type Consumer struct {
	client   *redis.Client
	group    string
	consumer string
	streams  []string
	handler  JobHandler
	log      zerolog.Logger

	batchSize            int64
	block                time.Duration
	pendingCheckInterval time.Duration
	pendingIdleTime      time.Duration
	maxDeliveries        int64
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Group    string
	Consumer string
	Streams  []string
	Handler  JobHandler
	Logger   zerolog.Logger

	BatchSize            int
	Block                time.Duration
	PendingCheckInterval time.Duration
	PendingIdleTime      time.Duration
	// MaxDeliveries is how many times a message may be delivered before it is dead-lettered.
	MaxDeliveries int
}

func NewConsumer(client *redis.Client, cfg *ConsumerConfig) *Consumer {
	c := &Consumer{
		client:               client,
		group:                cfg.Group,
		consumer:             cfg.Consumer,
		streams:              cfg.Streams,
		handler:              cfg.Handler,
		log:                  cfg.Logger,
		batchSize:            int64(cfg.BatchSize),
		block:                cfg.Block,
		pendingCheckInterval: cfg.PendingCheckInterval,
		pendingIdleTime:      cfg.PendingIdleTime,
		maxDeliveries:        int64(cfg.MaxDeliveries),
	}
	if c.batchSize <= 0 {
		c.batchSize = 10
	}
	if c.block <= 0 {
		c.block = 5 * time.Second
	}
	if c.pendingCheckInterval <= 0 {
		c.pendingCheckInterval = 30 * time.Second
	}
	if c.pendingIdleTime <= 0 {
		c.pendingIdleTime = 2 * time.Minute
	}
	if c.maxDeliveries <= 0 {
		c.maxDeliveries = 3
	}
	return c
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().
		Str("group", c.group).
		Str("consumer", c.consumer).
		Strs("streams", c.streams).
		Msg("starting consumer")

	for _, stream := range c.streams {
		if err := c.createConsumerGroup(ctx, stream); err != nil {
			return err
		}
	}

	go c.processPendingMessages(ctx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		result, err := c.readMessages(ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.log.Error().Err(err).Msg("error reading from streams")
			sleep(ctx, time.Second)
			continue
		}

		// A batch is handled concurrently; the next read waits for all of it.
		var g errgroup.Group
		for _, stream := range result {
			for _, msg := range stream.Messages {
				g.Go(func() error {
					c.handle(ctx, stream.Stream, msg)
					return nil
				})
			}
		}
		_ = g.Wait()
	}
}

// handle runs the handler and acks on success. Unprocessable messages go to
// the DLQ, other failures stay pending for the pending processor.
func (c *Consumer) handle(ctx context.Context, stream string, msg redis.XMessage) {
	data, err := messageData(msg)
	if err != nil {
		c.log.Warn().Err(err).Str("stream", stream).Str("id", msg.ID).Msg("malformed message")
		c.deadLetter(ctx, stream, msg, err)
		return
	}

	err = c.handler.Handle(ctx, stream, data)
	switch outcomeOf(err) {
	case outcomeAck:
		c.ack(ctx, stream, msg.ID)
	case outcomeDeadLetter:
		c.log.Warn().Err(err).Str("stream", stream).Str("id", msg.ID).Msg("unprocessable message")
		c.deadLetter(ctx, stream, msg, err)
	default:
		c.log.Error().
			Err(err).
			Str("stream", stream).
			Str("id", msg.ID).
			Msg("error processing message")
	}
}

type outcome int

const (
	outcomeAck outcome = iota
	outcomeDeadLetter
	outcomeRetry
)

func outcomeOf(err error) outcome {
	switch {
	case err == nil:
		return outcomeAck
	case errors.Is(err, ErrUnprocessable):
		return outcomeDeadLetter
	}
	return outcomeRetry
}

func (c *Consumer) ack(ctx context.Context, stream, id string) {
	if err := c.client.XAck(ctx, stream, c.group, id).Err(); err != nil {
		c.log.Error().Err(err).Str("stream", stream).Str("id", id).Msg("error acknowledging message")
	}
}

func (c *Consumer) processPendingMessages(ctx context.Context) {
	ticker := time.NewTicker(c.pendingCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, stream := range c.streams {
				c.claimPending(ctx, stream)
			}
		}
	}
}

// claimPending takes over messages idle longer than pendingIdleTime.
func (c *Consumer) claimPending(ctx context.Context, stream string) {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  c.group,
		Idle:   c.pendingIdleTime,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Error().Err(err).Str("stream", stream).Msg("error getting pending messages")
		}
		return
	}

	for _, p := range pending {
		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    c.group,
			Consumer: c.consumer,
			MinIdle:  c.pendingIdleTime,
			Messages: []string{p.ID},
		}).Result()
		if err != nil {
			c.log.Error().Err(err).Str("id", p.ID).Msg("error claiming message")
			continue
		}

		for _, msg := range claimed {
			if exhausted(p.RetryCount, c.maxDeliveries) {
				c.log.Warn().
					Str("stream", stream).
					Str("id", msg.ID).
					Int64("deliveries", p.RetryCount).
					Msg("message exceeded max deliveries, moving to DLQ")
				c.deadLetter(ctx, stream, msg, fmt.Errorf("exceeded %d deliveries", c.maxDeliveries))
				continue
			}
			c.log.Info().Str("stream", stream).Str("id", msg.ID).Int64("deliveries", p.RetryCount).
				Msg("reprocessing pending message")
			c.handle(ctx, stream, msg)
		}
	}
}

// deadLetter copies msg to the DLQ stream and acks the original.
func (c *Consumer) deadLetter(ctx context.Context, stream string, msg redis.XMessage, cause error) {
	_, err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStream(stream),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: deadLetterValues(stream, msg, c.group, c.consumer, cause, time.Now()),
	}).Result()
	if err != nil {
		c.log.Error().Err(err).Str("id", msg.ID).Msg("error moving message to DLQ")
		return
	}
	c.ack(ctx, stream, msg.ID)
}

func (c *Consumer) createConsumerGroup(ctx context.Context, stream string) error {
	err := c.client.XGroupCreateMkStream(ctx, stream, c.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group on %s: %w", stream, err)
	}
	return nil
}

func (c *Consumer) readMessages(ctx context.Context) ([]redis.XStream, error) {
	args := make([]string, len(c.streams)*2)
	for i, stream := range c.streams {
		args[i] = stream
		args[len(c.streams)+i] = ">"
	}

	return c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  args,
		Count:    c.batchSize,
		Block:    c.block,
	}).Result()
}

func messageData(msg redis.XMessage) ([]byte, error) {
	data, ok := msg.Values["data"]
	if !ok {
		return nil, errors.New("invalid message format: missing data field")
	}
	s, ok := data.(string)
	if !ok {
		return nil, errors.New("invalid message format: data is not a string")
	}
	return []byte(s), nil
}

// exhausted reports whether a message delivered deliveries times must be
// dead-lettered instead of retried.
func exhausted(deliveries, max int64) bool {
	return deliveries >= max
}

func deadLetterValues(stream string, msg redis.XMessage, group, consumer string, cause error, now time.Time) map[string]any {
	values := map[string]any{
		"original_stream": stream,
		"original_id":     msg.ID,
		"failed_at":       now.UTC().Format(time.RFC3339),
		"group":           group,
		"consumer":        consumer,
	}
	if cause != nil {
		values["error"] = cause.Error()
	}
	for k, v := range msg.Values {
		values["original_"+k] = v
	}
	return values
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
