package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tollgate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyUserInflight = "tollgate:generate:inflight:%s"
	keyUserRate     = "tollgate:generate:rate:%s"
)

var (
	ErrConcurrentRequest = errors.New("concurrent_request")
	ErrRateLimited       = errors.New("rate_limited")
)

// UserLimiter admits at most one in-flight metered request per user.
type UserLimiter interface {
	Acquire(ctx context.Context, userID snowflake.ID) (release func(), err error)
}

// New returns nil when the limiter is disabled. Callers treat a nil limiter as admit-all.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (UserLimiter, error) {
	limitCfg := cfg.Limiter
	if !limitCfg.Enabled {
		return nil, nil
	}
	log = log.Named("ratelimit")

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		if limitCfg.Rate > 0 {
			log.Warn("LIMITER_RATE needs redis; only the in-flight guard is active")
		}
		log.Info("per-user limiter enabled", zap.String("backend", "local"))
		return NewLocalLimiter(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
	}

	ttl := inflightTTL(limitCfg.LockTTL, cfg.Provider.Timeout)
	if ttl != limitCfg.LockTTL {
		log.Warn("LIMITER_LOCK_TTL raised to cover the provider timeout",
			zap.Duration("configured", limitCfg.LockTTL),
			zap.Duration("effective", ttl),
		)
	}

	log.Info("per-user limiter enabled", zap.String("backend", "redis"), zap.String("addr", addr))
	return &RedisLimiter{
		bucket: NewTokenBucket(client),
		lock:   NewInflightLock(client, ttl),
		rate:   limitCfg.Rate,
		burst:  limitCfg.Burst,
		log:    log,
	}, nil
}

// RedisLimiter shares the in-flight guard and the request rate across gateway replicas.
type RedisLimiter struct {
	bucket *TokenBucket
	lock   *InflightLock
	rate   float64
	burst  int
	log    *zap.Logger
}

func (l *RedisLimiter) Acquire(ctx context.Context, userID snowflake.ID) (func(), error) {
	id := userID.String()

	if l.rate > 0 {
		res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyUserRate, id), l.rate, l.burst)
		if err != nil {
			return nil, err
		}
		if !res.Allowed {
			return nil, ErrRateLimited
		}
	}

	lease, err := l.lock.Acquire(ctx, userID)
	if err != nil {
		return nil, err
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		err := l.lock.Release(releaseCtx, lease)
		switch {
		case errors.Is(err, errLeaseLost):
			l.log.Warn("inflight slot expired while the request was running",
				zap.String("user_id", id),
				zap.Time("expired_at", lease.ExpiresAt),
			)
		case err != nil:
			l.log.Warn("failed to release inflight slot", zap.String("user_id", id), zap.Error(err))
		}
	}, nil
}

// LocalLimiter guards a single process.
type LocalLimiter struct {
	mu       sync.Mutex
	inflight map[snowflake.ID]struct{}
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{inflight: map[snowflake.ID]struct{}{}}
}

func (l *LocalLimiter) Acquire(ctx context.Context, userID snowflake.ID) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.inflight[userID]; busy {
		return nil, ErrConcurrentRequest
	}
	l.inflight[userID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.inflight, userID)
			l.mu.Unlock()
		})
	}, nil
}
