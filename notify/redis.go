package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "commentserve:comments"

// Event is the JSON document published for each comment.
type Event struct {
	Parent  string    `json:"parent"`
	User    string    `json:"user"`
	Message string    `json:"msg"`
	Posted  time.Time `json:"posted"`
}

// Redis publishes an Event on a channel.
type Redis struct {
	client  *redis.Client
	channel string
}

func NewRedis(redisURL, channel string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisWithClient(redis.NewClient(opts), channel), nil
}

func NewRedisWithClient(client *redis.Client, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{client: client, channel: channel}
}

func (r *Redis) Notify(ctx context.Context, parent, user string) error {
	data, err := json.Marshal(Event{
		Parent:  parent,
		User:    user,
		Message: Message(parent, user),
		Posted:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
