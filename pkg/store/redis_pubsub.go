package store

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisPubSub implements PubSub over go-redis/v9's channel and keyspace
// pattern subscriptions.
type RedisPubSub struct {
	client *redis.Client
	log    *logrus.Entry
}

// NewRedisPubSub wraps an existing Redis client.
func NewRedisPubSub(client *redis.Client, log *logrus.Entry) *RedisPubSub {
	return &RedisPubSub{client: client, log: log}
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

func (r *RedisPubSub) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) func() {
	sub := r.client.Subscribe(ctx, channel)
	ch := sub.Channel()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		if err := sub.Close(); err != nil && r.log != nil {
			r.log.WithError(err).Warn("closing redis subscription")
		}
		<-done
	}
}

func (r *RedisPubSub) PSubscribe(ctx context.Context, pattern string, handler func(channel string, payload []byte)) func() {
	sub := r.client.PSubscribe(ctx, pattern)
	ch := sub.Channel()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(msg.Channel, []byte(msg.Payload))
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		if err := sub.Close(); err != nil && r.log != nil {
			r.log.WithError(err).Warn("closing redis pattern subscription")
		}
		<-done
	}
}
