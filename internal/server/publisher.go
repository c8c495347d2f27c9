package server

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const EventChannel = "linepad:events"

// Publisher receives a copy of every broadcast frame, in order.
type Publisher interface {
	Publish(frame []byte) error
}

// RedisPublisher mirrors broadcasts onto a redis pub/sub channel so other
// processes can follow the session.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(frame []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	return p.rdb.Publish(ctx, p.channel, frame).Err()
}
