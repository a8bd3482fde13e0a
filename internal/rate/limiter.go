package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config tunes the login limiter.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	PerIP       bool
	Prefix      string
}

// Limiter counts failed logins per username and optionally per IP.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New returns a limiter over client. An empty prefix defaults to "album".
func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "album"
	}
	return &Limiter{redis: client, config: cfg}
}

func (l *Limiter) userKey(username string) string {
	return l.config.Prefix + ":login:u:" + username
}

func (l *Limiter) ipKey(ip string) string {
	return l.config.Prefix + ":login:ip:" + ip
}

func (l *Limiter) keys(username, ip string) []string {
	keys := []string{l.userKey(username)}
	if l.config.PerIP && ip != "" {
		keys = append(keys, l.ipKey(ip))
	}
	return keys
}

// Allow returns ErrRateLimited when username or ip has no attempts left in the window.
func (l *Limiter) Allow(ctx context.Context, username, ip string) error {
	if l == nil {
		return nil
	}
	for _, key := range l.keys(username, ip) {
		count, err := l.redis.Get(ctx, key).Int64()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if count >= int64(l.config.MaxAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// Fail records a failed attempt and returns ErrRateLimited when it used up the budget.
func (l *Limiter) Fail(ctx context.Context, username, ip string) error {
	if l == nil {
		return nil
	}
	var limited bool
	for _, key := range l.keys(username, ip) {
		count, err := l.incrementWithTTL(ctx, key)
		if err != nil {
			return err
		}
		if count >= int64(l.config.MaxAttempts) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the username counter after a successful login. The IP counter is left alone.
func (l *Limiter) Reset(ctx context.Context, username string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.userKey(username)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Attempts returns the failed attempts recorded for username in the current window.
func (l *Limiter) Attempts(ctx context.Context, username string) (int, error) {
	if l == nil {
		return 0, nil
	}
	count, err := l.redis.Get(ctx, l.userKey(username)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(count), nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	// The window starts at the first failure.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return count, nil
}
