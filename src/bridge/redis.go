package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/chat-relay/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrQueueFull is returned by Publish when the outbound queue is saturated.
var ErrQueueFull = errors.New("bridge publish queue full")

// redisEnvelope wraps an event with the originating instance ID
// so that a node can skip its own published events.
type redisEnvelope struct {
	InstanceID string      `json:"instance_id"`
	Event      types.Event `json:"event"`
}

// RedisBridge relays chat events between server instances via Redis pub/sub.
// Publish never blocks on the network; a background writer drains the queue.
type RedisBridge struct {
	client     *redis.Client
	channel    string
	instanceID string
	hub        BroadcastTarget
	logger     zerolog.Logger
	out        chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisBridge creates a bridge that uses Redis pub/sub for cross-instance messaging.
func NewRedisBridge(cfg *RedisConfig, hub BroadcastTarget, logger zerolog.Logger) *RedisBridge {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultRedisConfig().QueueSize
	}

	return &RedisBridge{
		client:     client,
		channel:    cfg.Prefix + "broadcast",
		instanceID: uuid.New().String(),
		hub:        hub,
		logger:     logger.With().Str("component", "redis-bridge").Logger(),
		out:        make(chan []byte, size),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the Redis broadcast channel and begins relaying events.
func (b *RedisBridge) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return err
	}

	sub := b.client.Subscribe(b.ctx, b.channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(b.ctx); err != nil {
		sub.Close()
		return err
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	b.wg.Add(2)
	go b.listen(sub)
	go b.drain()

	b.logger.Info().
		Str("instance_id", b.instanceID).
		Str("channel", b.channel).
		Msg("redis bridge started")
	return nil
}

// Publish queues an event for the other instances.
func (b *RedisBridge) Publish(ev types.Event) error {
	data, err := b.encode(ev)
	if err != nil {
		return err
	}
	select {
	case b.out <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop unsubscribes and closes the Redis connection.
func (b *RedisBridge) Stop() error {
	b.mu.Lock()
	b.active = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

// Available reports whether the bridge is connected.
func (b *RedisBridge) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

func (b *RedisBridge) encode(ev types.Event) ([]byte, error) {
	return json.Marshal(redisEnvelope{InstanceID: b.instanceID, Event: ev})
}

// drain publishes queued envelopes until the bridge stops.
func (b *RedisBridge) drain() {
	defer b.wg.Done()
	for {
		select {
		case data := <-b.out:
			if err := b.client.Publish(b.ctx, b.channel, data).Err(); err != nil {
				b.logger.Error().Err(err).Msg("redis publish failed")
			}
		case <-b.ctx.Done():
			return
		}
	}
}

// listen reads events from the Redis subscription and forwards them to the local hub.
func (b *RedisBridge) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.handlePayload(msg.Payload)
		case <-b.ctx.Done():
			return
		}
	}
}

// handlePayload decodes an envelope and forwards non-self events to the hub.
func (b *RedisBridge) handlePayload(payload string) {
	var env redisEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		b.logger.Error().Err(err).Msg("failed to decode redis message")
		return
	}

	// Skip events that originated from this instance.
	if env.InstanceID == b.instanceID {
		return
	}
	if env.Event.Type == types.EventNotice && env.Event.Code != types.NoticeAnnouncement {
		return
	}

	b.logger.Debug().
		Str("from_instance", env.InstanceID).
		Str("event", string(env.Event.Type)).
		Msg("relaying event from redis")

	b.hub.BroadcastToLocal(env.Event)
}
