package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/jonathan/shift-backfill/internal/logging"
	"github.com/jonathan/shift-backfill/internal/metrics"
	"github.com/jonathan/shift-backfill/internal/types"
)

const (
	dataField        = "data"
	publishedAtField = "published_at"

	defaultPrefix       = "backfill"
	defaultGroup        = "backfill-engine"
	defaultBlockTimeout = 5 * time.Second
	defaultBatchSize    = 10
	defaultClaimMinIdle = time.Minute
	connectTimeout      = 2 * time.Second
	retryPause          = time.Second
)

// Handling outcomes reported to metrics.
const (
	resultOK     = "ok"
	resultRetry  = "retry"
	resultPoison = "poison"
)

// RedisConfig holds connection settings.
type RedisConfig struct {
	Addr     string
	Password string `json:"-"`
	DB       int
}

// Connect opens a Redis client and verifies it responds.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// BusConfig configures a Bus. Zero values take defaults.
type BusConfig struct {
	Prefix       string        // Stream key prefix
	Group        string        // Consumer group name
	ConsumerID   string        // Unique consumer identifier
	BlockTimeout time.Duration // Block timeout for reads
	BatchSize    int64         // Messages per read
	ClaimMinIdle time.Duration // Idle time before a pending message is reclaimed
}

// Bus is a Redis Streams signal bus with one consumer group per stream.
// Messages are acknowledged after their handler succeeds; failed messages stay
// pending and are reclaimed by any consumer once idle for ClaimMinIdle.
type Bus struct {
	client  *redis.Client
	cfg     BusConfig
	log     logging.Logger
	metrics *metrics.Metrics
}

// NewBus creates a Bus on an existing client.
func NewBus(client *redis.Client, cfg BusConfig, log logging.Logger, m *metrics.Metrics) (*Bus, error) {
	if cfg.ConsumerID == "" {
		return nil, errors.New("consumer ID is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.Group == "" {
		cfg.Group = defaultGroup
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = defaultBlockTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.ClaimMinIdle <= 0 {
		cfg.ClaimMinIdle = defaultClaimMinIdle
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Bus{client: client, cfg: cfg, log: log, metrics: m}, nil
}

// StreamName returns the stream key for a topic.
func (b *Bus) StreamName(topic string) string {
	return b.cfg.Prefix + ":signals:" + topic
}

func (b *Bus) topics() []string {
	return []string{TopicShiftCancelled, TopicResponse}
}

// EnsureGroups creates the consumer group on every stream if missing.
func (b *Bus) EnsureGroups(ctx context.Context) error {
	for _, topic := range b.topics() {
		stream := b.StreamName(topic)
		err := b.client.XGroupCreateMkStream(ctx, stream, b.cfg.Group, "0").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group for %s: %w", stream, err)
		}
	}
	return nil
}

// Publish appends payload to the topic's stream and returns the message id.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s signal: %w", topic, err)
	}
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.StreamName(topic),
		Values: map[string]any{
			dataField:        string(data),
			publishedAtField: time.Now().UTC().Format(time.RFC3339),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish %s signal: %w", topic, err)
	}
	return id, nil
}

// EmitShiftCancelled validates and publishes a trigger signal.
func (b *Bus) EmitShiftCancelled(ctx context.Context, sig types.ShiftCancelled) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	_, err := b.Publish(ctx, TopicShiftCancelled, sig)
	return err
}

// EmitResponse validates and publishes a response signal.
func (b *Bus) EmitResponse(ctx context.Context, sig types.BackfillResponse) error {
	if err := sig.Validate(); err != nil {
		return err
	}
	_, err := b.Publish(ctx, TopicResponse, sig)
	return err
}

// Run consumes both streams until ctx is cancelled.
func (b *Bus) Run(ctx context.Context, h Handler) error {
	if err := b.EnsureGroups(ctx); err != nil {
		return err
	}
	b.log.Info("signal consumer started",
		logging.String("group", b.cfg.Group),
		logging.String("consumer", b.cfg.ConsumerID),
	)

	for {
		if ctx.Err() != nil {
			b.log.Info("signal consumer stopped")
			return nil
		}
		if _, err := b.Poll(ctx, h); err != nil {
			if ctx.Err() != nil {
				continue
			}
			b.log.Warn("signal poll failed", logging.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(retryPause):
			}
		}
	}
}

// Poll reclaims idle pending messages and reads new ones, handling each.
// It returns how many messages were handled.
func (b *Bus) Poll(ctx context.Context, h Handler) (int, error) {
	handled := 0
	for _, topic := range b.topics() {
		msgs, err := b.reclaim(ctx, topic)
		if err != nil {
			return handled, err
		}
		for _, msg := range msgs {
			b.handle(ctx, h, topic, msg)
			handled++
		}
	}
	if handled > 0 {
		return handled, nil
	}

	streams := make([]string, 0, 4)
	for _, topic := range b.topics() {
		streams = append(streams, b.StreamName(topic))
	}
	for range b.topics() {
		streams = append(streams, ">")
	}
	result, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.cfg.Group,
		Consumer: b.cfg.ConsumerID,
		Streams:  streams,
		Count:    b.cfg.BatchSize,
		Block:    b.cfg.BlockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read signals: %w", err)
	}

	for _, stream := range result {
		topic := b.topicOf(stream.Stream)
		for _, msg := range stream.Messages {
			b.handle(ctx, h, topic, msg)
			handled++
		}
	}
	return handled, nil
}

func (b *Bus) reclaim(ctx context.Context, topic string) ([]redis.XMessage, error) {
	msgs, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   b.StreamName(topic),
		Group:    b.cfg.Group,
		Consumer: b.cfg.ConsumerID,
		MinIdle:  b.cfg.ClaimMinIdle,
		Start:    "0-0",
		Count:    b.cfg.BatchSize,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to reclaim %s signals: %w", topic, err)
	}
	return msgs, nil
}

func (b *Bus) topicOf(stream string) string {
	return strings.TrimPrefix(stream, b.cfg.Prefix+":signals:")
}

// handle dispatches one message and acknowledges it unless a retry could help.
func (b *Bus) handle(ctx context.Context, h Handler, topic string, msg redis.XMessage) {
	log := b.log.With(logging.String("topic", topic), logging.String("message_id", msg.ID))

	result := resultOK
	if err := b.dispatch(ctx, h, topic, msg); err != nil {
		if retryable(err) {
			b.metrics.SignalHandled(topic, resultRetry)
			log.Warn("signal handling failed; left pending", logging.Error(err))
			return
		}
		result = resultPoison
		log.Error("dropping unprocessable signal", logging.Error(err))
	}

	if err := b.client.XAck(ctx, b.StreamName(topic), b.cfg.Group, msg.ID).Err(); err != nil {
		log.Warn("failed to acknowledge signal", logging.Error(err))
	}
	b.metrics.SignalHandled(topic, result)
}

func (b *Bus) dispatch(ctx context.Context, h Handler, topic string, msg redis.XMessage) error {
	data, ok := msg.Values[dataField].(string)
	if !ok {
		return &payloadError{reason: "missing data field"}
	}

	switch topic {
	case TopicShiftCancelled:
		var sig types.ShiftCancelled
		if err := json.Unmarshal([]byte(data), &sig); err != nil {
			return &payloadError{reason: err.Error()}
		}
		run, err := h.HandleShiftCancelled(ctx, sig)
		if err != nil && run != nil {
			// The run exists and its failure is audited; the deadline takes over.
			return nil
		}
		return err
	case TopicResponse:
		var sig types.BackfillResponse
		if err := json.Unmarshal([]byte(data), &sig); err != nil {
			return &payloadError{reason: err.Error()}
		}
		_, err := h.HandleResponse(ctx, sig)
		return err
	default:
		return &payloadError{reason: "unknown topic " + topic}
	}
}

type payloadError struct {
	reason string
}

func (e *payloadError) Error() string {
	return "malformed signal: " + e.reason
}

// retryable reports whether redelivering the message could succeed.
func retryable(err error) bool {
	var payload *payloadError
	var notFound *types.NotFoundError
	var invalid *types.InvalidTransitionError
	var validation validator.ValidationErrors
	switch {
	case errors.As(err, &payload),
		errors.As(err, &notFound),
		errors.As(err, &invalid),
		errors.As(err, &validation):
		return false
	}
	return true
}
