package journeystore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RemoteLock provides distributed locking via Redis SET NX with TTL, keyed
// by (distinctId, campaignId). The orchestrator (journeysvc) does not
// acquire it; its admission checks are local to the process. Uses a random
// ownership value and Lua scripts for atomic release/extend so one holder
// never releases another's lock.
type RemoteLock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

// NewRemoteLock creates a distributed admission lock for (distinctID,
// campaignID) backed by Redis.
func NewRemoteLock(client *redis.Client, distinctID, campaignID string, ttl time.Duration) *RemoteLock {
	b := make([]byte, 16)
	rand.Read(b)
	return &RemoteLock{
		client: client,
		key:    fmt.Sprintf("journey-admission:%s:%s", distinctID, campaignID),
		value:  hex.EncodeToString(b),
		ttl:    ttl,
	}
}

// Acquire tries to acquire the lock. Returns true if successful.
func (l *RemoteLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("journeystore: acquire admission lock %s: %w", l.key, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release releases the lock only if this RemoteLock still owns it.
func (l *RemoteLock) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.value).Result(); err != nil {
		return fmt.Errorf("journeystore: release admission lock %s: %w", l.key, err)
	}
	return nil
}

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// Extend extends the lock TTL for a long-running admission decision (e.g. a
// remote-node round trip gating the start).
func (l *RemoteLock) Extend(ctx context.Context, ttl time.Duration) error {
	if _, err := extendScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Result(); err != nil {
		return fmt.Errorf("journeystore: extend admission lock %s: %w", l.key, err)
	}
	return nil
}
