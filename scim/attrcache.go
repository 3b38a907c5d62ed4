package scim

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// GroupNameCache caches a user's resolved group display names, keyed
// by user id, as a Redis set. It is optional: when nil, callers
// resolve group names straight from the Record Store on every lookup.
type GroupNameCache struct {
	client *redis.Client
	keyFmt string
}

func NewGroupNameCache(client *redis.Client) *GroupNameCache {
	return &GroupNameCache{client: client, keyFmt: "identityd:groupnames:%s"}
}

func (c *GroupNameCache) key(userID string) string {
	return fmt.Sprintf(c.keyFmt, userID)
}

// Get returns the cached group display names for userID, or ok=false
// on a cache miss (including Redis being unreachable — a cache miss
// must never fail the caller's resolution path).
func (c *GroupNameCache) Get(ctx context.Context, userID string) (names []string, ok bool) {
	res, err := c.client.SMembers(ctx, c.key(userID)).Result()
	if err != nil || len(res) == 0 {
		return nil, false
	}
	return res, true
}

// Set replaces the cached set of group display names for userID.
func (c *GroupNameCache) Set(ctx context.Context, userID string, names []string) error {
	key := c.key(userID)
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(names) > 0 {
		members := make([]any, len(names))
		for i, n := range names {
			members[i] = n
		}
		pipe.SAdd(ctx, key, members...)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Invalidate drops the cached entry for userID, used when group
// membership changes so a stale set of names is never served.
func (c *GroupNameCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, c.key(userID)).Err()
}
