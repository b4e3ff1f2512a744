package ws

import (
	"context"
	"fmt"
	"time"

	"callcast/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// Broker publishes events to a member's channel. Delivery is best effort.
type Broker interface {
	Publish(ctx context.Context, memberID uint, ev Event) error
}

// LocalBroker delivers straight to this process's hub.
type LocalBroker struct {
	hub *Hub
}

func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

func (b *LocalBroker) Publish(ctx context.Context, memberID uint, ev Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	b.hub.Deliver(memberID, data)
	return nil
}

// RedisBroker fans events out through Redis pub/sub so every instance can
// deliver to the connections it holds.
type RedisBroker struct {
	client *redis.Client
	hub    *Hub
}

// NewRedisClient connects and pings with a five second timeout.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

func NewRedisBroker(client *redis.Client, hub *Hub) *RedisBroker {
	return &RedisBroker{client: client, hub: hub}
}

func (b *RedisBroker) Publish(ctx context.Context, memberID uint, ev Event) error {
	data, err := ev.Encode()
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, Channel(memberID), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", Channel(memberID), err)
	}
	return nil
}

// Run forwards messages from every member channel to the local hub until ctx is done.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("psubscribe: %w", err)
	}
	log := logger.With("ws")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			id, err := MemberFromChannel(msg.Channel)
			if err != nil {
				log.WithError(err).Warn("[Broker] dropping message")
				continue
			}
			b.hub.Deliver(id, []byte(msg.Payload))
		}
	}
}
