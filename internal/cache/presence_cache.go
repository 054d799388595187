package cache

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const presenceTTL = 10 * time.Minute

// PresenceCache keeps per-user last-seen timestamps hot so @here
// resolution does not hit the users table for every candidate. Misses
// fall back to the persisted last_seen_at; a nil cache is a valid no-op.
type PresenceCache struct {
	redis *RedisCache
}

func NewPresenceCache(redis *RedisCache) *PresenceCache {
	return &PresenceCache{redis: redis}
}

func presenceKey(userID uint) string {
	return fmt.Sprintf("presence:%d", userID)
}

// Touch records that a user was just seen.
func (pc *PresenceCache) Touch(userID uint, at time.Time) {
	if pc == nil || pc.redis == nil {
		return
	}
	data, err := msgpack.Marshal(at)
	if err != nil {
		return
	}
	_ = pc.redis.Set(presenceKey(userID), data, presenceTTL)
}

// LastSeen returns cached last-seen timestamps for the given users.
// Users without a cached entry are absent from the result.
func (pc *PresenceCache) LastSeen(userIDs []uint) map[uint]time.Time {
	out := make(map[uint]time.Time, len(userIDs))
	if pc == nil || pc.redis == nil {
		return out
	}
	for _, id := range userIDs {
		data, err := pc.redis.Get(presenceKey(id))
		if err != nil || data == nil {
			continue
		}
		var at time.Time
		if err := msgpack.Unmarshal(data, &at); err != nil {
			continue
		}
		out[id] = at
	}
	return out
}
