package chatmemory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloo-solutions/coursetutor/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "tutor:memory:"
	defaultTTL     = 24 * time.Hour
)

type redisExchange struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Redis stores each window as a capped list, shared by every tutord replica.
// Windows expire after ttl without activity.
type Redis struct {
	rdb    *goredis.Client
	window int
	ttl    time.Duration
}

// NewRedis connects to url (redis://...) and verifies the connection.
func NewRedis(ctx context.Context, url string, window int, ttl time.Duration) (*Redis, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second

	rdb := goredis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisWithClient(rdb, window, ttl), nil
}

func NewRedisWithClient(rdb *goredis.Client, window int, ttl time.Duration) *Redis {
	if window <= 0 {
		window = DefaultWindow
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{rdb: rdb, window: window, ttl: ttl}
}

func (r *Redis) key(k string) string { return redisKeyPrefix + k }

func (r *Redis) Load(ctx context.Context, key string) ([]domain.Exchange, error) {
	raw, err := r.rdb.LRange(ctx, r.key(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	out := make([]domain.Exchange, 0, len(raw))
	for _, item := range raw {
		var ex redisExchange
		if err := json.Unmarshal([]byte(item), &ex); err != nil {
			return nil, fmt.Errorf("corrupt memory entry: %w", err)
		}
		out = append(out, domain.Exchange{User: ex.User, Assistant: ex.Assistant})
	}
	return out, nil
}

func (r *Redis) Append(ctx context.Context, key string, ex domain.Exchange) error {
	raw, err := json.Marshal(redisExchange{User: ex.User, Assistant: ex.Assistant})
	if err != nil {
		return err
	}
	k := r.key(key)
	_, err = r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.RPush(ctx, k, raw)
		p.LTrim(ctx, k, int64(-r.window), -1)
		p.Expire(ctx, k, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

func (r *Redis) Reset(ctx context.Context, key string, exchanges []domain.Exchange) error {
	exchanges = lastN(exchanges, r.window)
	values := make([]interface{}, 0, len(exchanges))
	for _, ex := range exchanges {
		raw, err := json.Marshal(redisExchange{User: ex.User, Assistant: ex.Assistant})
		if err != nil {
			return err
		}
		values = append(values, raw)
	}

	k := r.key(key)
	_, err := r.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, k)
		if len(values) > 0 {
			p.RPush(ctx, k, values...)
			p.Expire(ctx, k, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis reset: %w", err)
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
