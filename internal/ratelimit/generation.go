package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/logoforge/internal/config"
	obsmetrics "github.com/smallbiznis/logoforge/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyGenerationUser = "generation:user:%s"
	endpointGenerate  = "generations.create"
)

type GenerationLimiterParams struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Bucket     *TokenBucket        `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// GenerationLimiter throttles image generation per user. A nil limiter, or
// one built without redis, allows everything.
type GenerationLimiter struct {
	log        *zap.Logger
	bucket     *TokenBucket
	rate       float64
	burst      int
	obsMetrics *obsmetrics.Metrics
}

func NewGenerationLimiter(p GenerationLimiterParams) *GenerationLimiter {
	limitCfg := p.Cfg.RateLimit
	if !limitCfg.Enabled || p.Bucket == nil {
		return nil
	}
	if limitCfg.GenerationRate <= 0 || limitCfg.GenerationBurst <= 0 {
		p.Log.Warn("generation rate limit disabled, rate and burst must be positive",
			zap.Float64("rate", limitCfg.GenerationRate),
			zap.Int("burst", limitCfg.GenerationBurst),
		)
		return nil
	}
	return &GenerationLimiter{
		log:        p.Log.Named("ratelimit.generation"),
		bucket:     p.Bucket,
		rate:       limitCfg.GenerationRate,
		burst:      limitCfg.GenerationBurst,
		obsMetrics: p.ObsMetrics,
	}
}

func (l *GenerationLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow fails open when redis is unreachable; credits are still enforced by
// the ledger.
func (l *GenerationLimiter) Allow(ctx context.Context, userID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyGenerationUser, strings.TrimSpace(userID)), l.rate, l.burst)
	if err != nil {
		l.log.Warn("generation rate limit check failed", zap.String("user_id", userID), zap.Error(err))
		l.obsMetrics.RecordRateLimitDenied(ctx, endpointGenerate, "redis_error")
		return Result{Allowed: true}, err
	}
	if !res.Allowed {
		l.obsMetrics.RecordRateLimitDenied(ctx, endpointGenerate, "exhausted")
		return res, nil
	}
	l.obsMetrics.RecordRateLimitAllowed(ctx, endpointGenerate)
	return res, nil
}
