package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-hydration/internal/platform/logger"
)

type StreamsConfig struct {
	Addr        string
	Password    string
	DB          int
	Prefix      string
	Group       string
	Consumer    string
	MaxAttempts int
	Block       time.Duration
}

// StreamsQueue implements Queue over Redis Streams with one consumer group per stream.
type StreamsQueue struct {
	client      *redis.Client
	prefix      string
	group       string
	consumer    string
	maxAttempts int
	block       time.Duration
	log         *logger.Logger
}

func NewStreamsQueue(ctx context.Context, cfg StreamsConfig, baseLog *logger.Logger) (*StreamsQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "hydration"
	}
	if cfg.Group == "" {
		cfg.Group = "hydration_workers"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-1"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &StreamsQueue{
		client:      client,
		prefix:      cfg.Prefix,
		group:       cfg.Group,
		consumer:    cfg.Consumer,
		maxAttempts: cfg.MaxAttempts,
		block:       cfg.Block,
		log:         baseLog.With("component", "StreamsQueue"),
	}, nil
}

func (q *StreamsQueue) Close() error { return q.client.Close() }

func (q *StreamsQueue) stream(queue string) string { return q.prefix + ":" + queue }

func (q *StreamsQueue) dlqStream(queue string) string { return q.stream(queue) + ":dlq" }

func (q *StreamsQueue) Enqueue(ctx context.Context, queue string, env Envelope) (string, error) {
	return q.add(ctx, queue, env, 0)
}

func (q *StreamsQueue) add(ctx context.Context, queue string, env Envelope, attempt int) (string, error) {
	body, err := env.Encode()
	if err != nil {
		return "", err
	}
	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream(queue),
		Values: map[string]any{
			"name":        env.Type,
			"data":        string(body),
			"attempt":     attempt,
			"enqueued_at": time.Now().UTC().Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue to stream: %w", err)
	}
	return id, nil
}

func (q *StreamsQueue) Consume(ctx context.Context, queue string, concurrency int, handler Handler) error {
	if err := q.ensureGroup(ctx, queue); err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		consumer := fmt.Sprintf("%s-%d", q.consumer, i+1)
		g.Go(func() error { return q.readLoop(gctx, queue, consumer, handler) })
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (q *StreamsQueue) readLoop(ctx context.Context, queue, consumer string, handler Handler) error {
	stream := q.stream(queue)
	for {
		if ctx.Err() != nil {
			return nil
		}
		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    1,
			Block:    q.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("xreadgroup: %w", err)
		}
		for _, s := range streams {
			for _, item := range s.Messages {
				q.handle(ctx, queue, item, handler)
			}
		}
	}
}

func (q *StreamsQueue) handle(ctx context.Context, queue string, item redis.XMessage, handler Handler) {
	d, err := parseStreamMessage(item)
	if err != nil {
		_ = q.sendToDLQ(ctx, queue, item, err.Error())
		_ = q.ackAndDelete(ctx, queue, item.ID)
		return
	}

	handleErr := handler(ctx, d)
	if handleErr == nil {
		if err := q.ackAndDelete(ctx, queue, item.ID); err != nil {
			q.log.Warn("ack failed", "stream_id", item.ID, "error", err)
		}
		return
	}

	if d.Attempt >= q.maxAttempts {
		_ = q.sendToDLQ(ctx, queue, item, handleErr.Error())
		_ = q.ackAndDelete(ctx, queue, item.ID)
		return
	}
	if _, err := q.add(ctx, queue, d.Data, d.Attempt); err != nil {
		_ = q.sendToDLQ(ctx, queue, item, fmt.Sprintf("requeue failed: %v", err))
	}
	_ = q.ackAndDelete(ctx, queue, item.ID)
}

func (q *StreamsQueue) ensureGroup(ctx context.Context, queue string) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream(queue), q.group, "0").Err()
	if err == nil || strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return fmt.Errorf("ensure stream group: %w", err)
}

func (q *StreamsQueue) ackAndDelete(ctx context.Context, queue, streamID string) error {
	if err := q.client.XAck(ctx, q.stream(queue), q.group, streamID).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	if err := q.client.XDel(ctx, q.stream(queue), streamID).Err(); err != nil {
		return fmt.Errorf("xdel: %w", err)
	}
	return nil
}

func (q *StreamsQueue) sendToDLQ(ctx context.Context, queue string, item redis.XMessage, reason string) error {
	values := map[string]any{
		"stream_id": item.ID,
		"error":     reason,
		"moved_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range item.Values {
		values[k] = v
	}
	if _, err := q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.dlqStream(queue), Values: values}).Result(); err != nil {
		return fmt.Errorf("send to dlq: %w", err)
	}
	q.log.Warn("message moved to DLQ", "queue", queue, "stream_id", item.ID, "error", reason)
	return nil
}

// Len reports the stream length, used as a queue depth gauge.
func (q *StreamsQueue) Len(ctx context.Context, queue string) (int64, error) {
	return q.client.XLen(ctx, q.stream(queue)).Result()
}

func parseStreamMessage(item redis.XMessage) (Delivery, error) {
	getString := func(key string) (string, error) {
		value, ok := item.Values[key]
		if !ok {
			return "", fmt.Errorf("missing field %s", key)
		}
		switch casted := value.(type) {
		case string:
			return casted, nil
		case []byte:
			return string(casted), nil
		default:
			return fmt.Sprintf("%v", casted), nil
		}
	}

	data, err := getString("data")
	if err != nil {
		return Delivery{}, err
	}
	env, err := DecodeEnvelope([]byte(data))
	if err != nil {
		return Delivery{}, err
	}
	attemptString, err := getString("attempt")
	if err != nil {
		return Delivery{}, err
	}
	attempt, err := strconv.Atoi(attemptString)
	if err != nil {
		return Delivery{}, fmt.Errorf("invalid attempt: %w", err)
	}
	name, _ := getString("name")
	return Delivery{ID: item.ID, Name: name, Attempt: attempt + 1, Data: env}, nil
}
