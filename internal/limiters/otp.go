package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrOTPRateLimited      = errors.New("otp request rate limited")
	ErrOTPRedisUnavailable = errors.New("otp limiter redis unavailable")
)

// OTPRequestConfig bounds how often codes can be issued.
type OTPRequestConfig struct {
	EnableIPThrottle bool
	Window           time.Duration
	MaxPerAddress    int
	MaxPerIP         int
}

// OTPRequestLimiter throttles challenge issuance per address and per client IP.
type OTPRequestLimiter struct {
	redis  redis.UniversalClient
	config OTPRequestConfig
}

func NewOTPRequestLimiter(redisClient redis.UniversalClient, cfg OTPRequestConfig) *OTPRequestLimiter {
	return &OTPRequestLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *OTPRequestLimiter) CheckRequest(ctx context.Context, address, ip string) error {
	if l == nil {
		return nil
	}
	if err := l.enforce(ctx, "otpr:"+address, l.config.MaxPerAddress); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforce(ctx, "otpri:"+ip, l.config.MaxPerIP); err != nil {
			return err
		}
	}
	return nil
}

func (l *OTPRequestLimiter) enforce(ctx context.Context, key string, max int) error {
	if max <= 0 {
		return nil
	}
	count, err := incrementWindow(ctx, l.redis, key, l.config.Window)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOTPRedisUnavailable, err)
	}
	if count > int64(max) {
		return ErrOTPRateLimited
	}
	return nil
}
