package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BusMessage one match event addressed to a player, as sent over pub/sub
type BusMessage struct {
	Origin    string          `json:"origin"`
	UserID    string          `json:"user_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventBus relays match events between engine instances so that a player
// connected to any instance sees them. Messages published by this instance
// are not handed back to it.
type EventBus struct {
	client     redis.UniversalClient
	logger     *zap.Logger
	instanceID string
	channel    string

	stopChan  chan struct{}
	stopOnce  sync.Once
	cancelSub context.CancelFunc
	mu        sync.Mutex
}

func NewEventBus(client redis.UniversalClient, channel string, logger *zap.Logger) *EventBus {
	if channel == "" {
		channel = "arena:events"
	}
	return &EventBus{
		client:     client,
		logger:     logger,
		instanceID: uuid.New().String(),
		channel:    channel,
		stopChan:   make(chan struct{}),
	}
}

// Publish sends payload, JSON encoded, to every other instance
func (b *EventBus) Publish(ctx context.Context, userID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	data, err := json.Marshal(BusMessage{
		Origin:    b.instanceID,
		UserID:    userID,
		Payload:   raw,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Start subscribes and blocks, calling handler for every message from
// another instance, until Stop is called or ctx is done.
func (b *EventBus) Start(ctx context.Context, handler func(userID string, payload []byte)) error {
	subCtx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.cancelSub = cancel
	b.mu.Unlock()
	defer cancel()

	pubsub := b.client.Subscribe(subCtx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	b.logger.Info("Event bus started",
		zap.String("instance_id", b.instanceID),
		zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if msg == nil {
				continue
			}

			var m BusMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				b.logger.Error("Failed to unmarshal bus message", zap.Error(err))
				continue
			}
			if m.Origin == b.instanceID {
				continue
			}
			handler(m.UserID, m.Payload)

		case <-b.stopChan:
			b.logger.Info("Event bus stopped")
			return nil

		case <-subCtx.Done():
			return subCtx.Err()
		}
	}
}

func (b *EventBus) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopChan)
		b.mu.Lock()
		if b.cancelSub != nil {
			b.cancelSub()
		}
		b.mu.Unlock()
	})
}
