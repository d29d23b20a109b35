package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const DefaultTopic = "roomchat-events"

type RedisRelay struct {
	client *redis.Client
	topic  string
	origin string
	log    logrus.FieldLogger
}

func NewRedisRelay(client *redis.Client, topic string, log logrus.FieldLogger) *RedisRelay {
	if topic == "" {
		topic = DefaultTopic
	}

	return &RedisRelay{
		client: client,
		topic:  topic,
		origin: uuid.NewString(),
		log:    log,
	}
}

// DialRedis connects to addr and checks the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return client, nil
}

func (r *RedisRelay) Origin() string {
	return r.origin
}

func (r *RedisRelay) Publish(ctx context.Context, env Envelope) error {
	env.Origin = r.origin
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	return r.client.Publish(ctx, r.topic, data).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context, deliver func(Envelope)) error {
	sub := r.client.Subscribe(ctx, r.topic)
	defer sub.Close()

	// wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %q: %w", r.topic, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.log.WithError(err).Warn("dropping undecodable envelope")
				continue
			}

			if env.Origin == r.origin {
				continue
			}

			deliver(env)
		}
	}
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
