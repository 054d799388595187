package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher fans events out over Redis pub/sub. Payloads are JSON so
// the host app can consume them without sharing Go types.
type RedisPublisher struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisPublisher(addr, password string, db int) *RedisPublisher {
	return &RedisPublisher{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ctx: context.Background(),
	}
}

func (p *RedisPublisher) Ping() error {
	return p.client.Ping(p.ctx).Err()
}

func (p *RedisPublisher) Publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.client.Publish(p.ctx, topic, data).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
