package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
	"topup-api/pkg/logging"

	"github.com/redis/go-redis/v9"
)

const replayKeyPrefix = "operator_action:"

// ReplayProtection holds a claim on an operator action while it is being
// processed. Telegram redelivers webhooks and operators double-click, so a
// second delivery arriving while the first is still running is dropped.
// Without Redis it falls back to process memory.
type ReplayProtection struct {
	client *redis.Client
	ttl    time.Duration

	mutex sync.Mutex
	local map[string]time.Time
	now   func() time.Time
}

// NewReplayProtection creates a guard; client may be nil. ttl bounds how
// long a crashed handler can keep an action locked.
func NewReplayProtection(client *redis.Client, ttl time.Duration) *ReplayProtection {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &ReplayProtection{
		client: client,
		ttl:    ttl,
		local:  make(map[string]time.Time),
		now:    time.Now,
	}
}

// IsReplay claims the action and reports whether another delivery holds it.
// An empty action id cannot be checked and is always allowed.
func (rp *ReplayProtection) IsReplay(ctx context.Context, actionID string, messageID int64) (bool, error) {
	if actionID == "" {
		logging.Infof("Action id is empty, skipping replay check")
		return false, nil
	}

	key := rp.key(actionID, messageID)

	if rp.client == nil {
		return rp.claimLocal(key), nil
	}

	claimed, err := rp.client.SetNX(ctx, key, rp.now().Unix(), rp.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("replay check failed: %w", err)
	}
	if !claimed {
		logging.Infof("Replay detected - key: %s", key)
		return true, nil
	}
	return false, nil
}

// Release drops the claim once the action has been handled
func (rp *ReplayProtection) Release(ctx context.Context, actionID string, messageID int64) {
	if actionID == "" {
		return
	}
	key := rp.key(actionID, messageID)

	if rp.client == nil {
		rp.mutex.Lock()
		delete(rp.local, key)
		rp.mutex.Unlock()
		return
	}
	if err := rp.client.Del(ctx, key).Err(); err != nil {
		logging.Warnf("Failed to release replay claim %s: %v", key, err)
	}
}

func (rp *ReplayProtection) key(actionID string, messageID int64) string {
	data := fmt.Sprintf("%s:%d", actionID, messageID)
	hash := sha256.Sum256([]byte(data))
	return replayKeyPrefix + hex.EncodeToString(hash[:])
}

func (rp *ReplayProtection) claimLocal(key string) bool {
	rp.mutex.Lock()
	defer rp.mutex.Unlock()

	now := rp.now()
	for k, at := range rp.local {
		if now.Sub(at) > rp.ttl {
			delete(rp.local, k)
		}
	}

	if _, exists := rp.local[key]; exists {
		logging.Infof("Replay detected - key: %s", key)
		return true
	}
	rp.local[key] = now
	return false
}
