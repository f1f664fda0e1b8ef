package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/marketpay/internal/config"
)

const (
	keyRetryOwner   = "ratelimit:retry:owner:%s"
	keyWebhookPeer  = "ratelimit:webhook:%s"
	keyRetryPayable = "retry:%s:%s"
)

// PayableLimiter throttles retry requests and webhook bursts and serializes
// concurrent retries of the same resource.
type PayableLimiter struct {
	enabled bool

	bucket *TokenBucket
	locker *Locker

	retryRate    float64
	retryBurst   int
	webhookRate  float64
	webhookBurst int
	retryLockTTL time.Duration
}

func NewPayableLimiter(cfg config.Config, client *redis.Client) *PayableLimiter {
	limitCfg := cfg.RateLimit
	if client == nil {
		return &PayableLimiter{}
	}
	lockTTL := limitCfg.RetryLockTTL
	if lockTTL <= 0 {
		lockTTL = 15 * time.Second
	}
	return &PayableLimiter{
		enabled:      limitCfg.Enabled,
		bucket:       NewTokenBucket(client),
		locker:       NewLocker(client),
		retryRate:    limitCfg.RetryRate,
		retryBurst:   limitCfg.RetryBurst,
		webhookRate:  limitCfg.WebhookRate,
		webhookBurst: limitCfg.WebhookBurst,
		retryLockTTL: lockTTL,
	}
}

// Enabled reports whether token buckets are enforced.
func (l *PayableLimiter) Enabled() bool {
	return l != nil && l.enabled && l.bucket != nil
}

// CanLock reports whether retry coalescing is available.
func (l *PayableLimiter) CanLock() bool {
	return l != nil && l.locker != nil
}

func (l *PayableLimiter) AllowRetry(ctx context.Context, ownerID string) (*RateLimitResult, error) {
	if !l.Enabled() || l.retryRate <= 0 || l.retryBurst <= 0 {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyRetryOwner, strings.TrimSpace(ownerID)), l.retryRate, l.retryBurst)
}

func (l *PayableLimiter) AllowWebhook(ctx context.Context, peer string) (*RateLimitResult, error) {
	if !l.Enabled() || l.webhookRate <= 0 || l.webhookBurst <= 0 {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookPeer, strings.TrimSpace(peer)), l.webhookRate, l.webhookBurst)
}

// TryLockRetry takes the per-resource retry lock. Without redis it always succeeds.
func (l *PayableLimiter) TryLockRetry(ctx context.Context, kind, id string) (string, bool, error) {
	if !l.CanLock() {
		return "", true, nil
	}
	return l.locker.TryLock(ctx, RetryLockKey(kind, id), l.retryLockTTL)
}

func (l *PayableLimiter) ReleaseRetry(ctx context.Context, kind, id, token string) error {
	if !l.CanLock() {
		return nil
	}
	return l.locker.Release(ctx, RetryLockKey(kind, id), token)
}

func RetryLockKey(kind, id string) string {
	return fmt.Sprintf(keyRetryPayable, strings.TrimSpace(kind), strings.TrimSpace(id))
}
