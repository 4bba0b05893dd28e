package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Deletes the slot only while it still carries the holder's token.
const inflightReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// inflightTTLMargin is kept on top of the provider timeout so the slot outlives the call.
const inflightTTLMargin = 5 * time.Second

var (
	errLockNotConfigured = errors.New("inflight lock client not configured")
	errLeaseLost         = errors.New("inflight slot expired before release")
)

// Lease is a held in-flight slot for one user.
type Lease struct {
	UserID    snowflake.ID
	Key       string
	Token     string
	ExpiresAt time.Time
}

// InflightLock admits one metered request per user across gateway replicas. The TTL
// bounds how long a crashed replica can keep its user blocked.
type InflightLock struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
	now    func() time.Time
}

func NewInflightLock(client *redis.Client, ttl time.Duration) *InflightLock {
	if client == nil {
		return nil
	}
	return &InflightLock{
		client: client,
		script: redis.NewScript(inflightReleaseScript),
		ttl:    ttl,
		now:    time.Now,
	}
}

// inflightTTL stretches the configured TTL when a provider call may run longer.
func inflightTTL(lockTTL, providerTimeout time.Duration) time.Duration {
	floor := providerTimeout + inflightTTLMargin
	if providerTimeout > 0 && lockTTL < floor {
		return floor
	}
	return lockTTL
}

func inflightKey(userID snowflake.ID) string {
	return fmt.Sprintf(keyUserInflight, userID.String())
}

// Acquire takes the user's slot or fails with ErrConcurrentRequest.
func (l *InflightLock) Acquire(ctx context.Context, userID snowflake.ID) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, errLockNotConfigured
	}
	if userID == 0 {
		return nil, errors.New("inflight lock needs a user")
	}
	if l.ttl <= 0 {
		return nil, errors.New("inflight lock ttl must be positive")
	}

	lease := &Lease{
		UserID:    userID,
		Key:       inflightKey(userID),
		Token:     uuid.NewString(),
		ExpiresAt: l.now().Add(l.ttl),
	}
	ok, err := l.client.SetNX(ctx, lease.Key, lease.Token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConcurrentRequest
	}
	return lease, nil
}

// Release frees the slot. errLeaseLost means the TTL ran out first and the slot may
// already belong to a newer request.
func (l *InflightLock) Release(ctx context.Context, lease *Lease) error {
	if l == nil || l.client == nil || lease == nil || lease.Token == "" {
		return nil
	}
	deleted, err := l.script.Run(ctx, l.client, []string{lease.Key}, lease.Token).Int64()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return errLeaseLost
	}
	return nil
}
