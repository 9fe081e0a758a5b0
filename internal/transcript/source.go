package transcript

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const SourceRedis = "redis"

// Source resolves the configured TRANSCRIPT_SOURCE into a per-consultation endpoint and dialer.
//
//	""                 demo mode, no network
//	"redis"            pub/sub channel RedisTopic(id)
//	"ws://host/{id}"   websocket, {id} replaced by the consultation id
type Source struct {
	Target      string
	Redis       *redis.Client
	DialTimeout time.Duration
}

func (s Source) Validate() error {
	target := strings.TrimSpace(s.Target)
	switch {
	case target == "":
		return nil
	case target == SourceRedis:
		if s.Redis == nil {
			return fmt.Errorf("transcript source %q requires a redis client", target)
		}
		return nil
	case strings.HasPrefix(target, "ws://"), strings.HasPrefix(target, "wss://"):
		return nil
	default:
		return fmt.Errorf("unsupported transcript source %q", target)
	}
}

func (s Source) Resolve(consultationID string) (endpoint string, dialer Dialer) {
	target := strings.TrimSpace(s.Target)
	switch {
	case target == "":
		return "", nil
	case target == SourceRedis:
		return RedisTopic(consultationID), RedisDialer{Client: s.Redis}
	default:
		return strings.ReplaceAll(target, "{id}", consultationID), WebsocketDialer{HandshakeTimeout: s.DialTimeout}
	}
}
