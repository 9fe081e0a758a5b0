package transcript

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisTopic is the pub/sub channel the transcription worker publishes entries on.
func RedisTopic(consultationID string) string {
	return "consultation:" + consultationID + ":transcript"
}

// RedisDialer treats the endpoint as a Redis pub/sub channel name.
type RedisDialer struct {
	Client *redis.Client
}

func (d RedisDialer) Dial(ctx context.Context, channel string) (Conn, error) {
	if d.Client == nil {
		return nil, errors.New("redis transcript source: client is not configured")
	}

	ps := d.Client.Subscribe(ctx, channel)
	// wait for the subscription confirmation so a bad connection fails here
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	// the subscription outlives the dial context
	rctx, cancel := context.WithCancel(context.Background())
	return &redisConn{ps: ps, ctx: rctx, cancel: cancel}, nil
}

type redisConn struct {
	ps     *redis.PubSub
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

func (r *redisConn) ReadMessage() ([]byte, error) {
	m, err := r.ps.ReceiveMessage(r.ctx)
	if err != nil {
		return nil, err
	}
	return []byte(m.Payload), nil
}

func (r *redisConn) Close() error {
	r.once.Do(func() {
		r.cancel()
		r.err = r.ps.Close()
	})
	return r.err
}
