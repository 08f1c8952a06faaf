package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/warrantyhub/internal/config"
	"go.uber.org/zap"
)

const keyPublicLookup = "lookup:public:%s:%s"

// PublicLookupLimiter throttles the unauthenticated warranty lookup per
// organization slug and client address.
type PublicLookupLimiter struct {
	bucket *TokenBucket
	memory *MemoryBucket
	log    *zap.Logger
	rate   float64
	burst  int
}

func NewPublicLookupLimiter(cfg config.Config, bucket *TokenBucket, log *zap.Logger) *PublicLookupLimiter {
	return &PublicLookupLimiter{
		bucket: bucket,
		memory: NewMemoryBucket(),
		log:    log.Named("ratelimit.public_lookup"),
		rate:   cfg.Tenancy.PublicLookupRate,
		burst:  cfg.Tenancy.PublicLookupBurst,
	}
}

// Allow never fails closed on limiter errors; it falls back to the
// per-process bucket instead. A non-positive rate disables limiting.
func (l *PublicLookupLimiter) Allow(ctx context.Context, slug, clientIP string) *Result {
	if l == nil || l.rate <= 0 || l.burst <= 0 {
		return &Result{Allowed: true}
	}

	key := fmt.Sprintf(keyPublicLookup, strings.ToLower(slug), clientIP)
	if l.bucket != nil {
		res, err := l.bucket.Allow(ctx, key, l.rate, l.burst)
		if err == nil {
			return res
		}
		l.log.Warn("redis rate limit failed, using memory bucket", zap.Error(err))
	}

	res, err := l.memory.Allow(ctx, key, l.rate, l.burst)
	if err != nil {
		return &Result{Allowed: true}
	}
	return res
}
