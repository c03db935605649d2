package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/availability"
)

const defaultPrefix = "slotfinder"

// SlotCache stores computed slot maps in redis. Each entry is also indexed under every
// host it was computed for, so a booking for one user drops all entries touching them.
type SlotCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewSlotCache(rdb redis.Cmdable, ttl time.Duration) *SlotCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &SlotCache{rdb: rdb, ttl: ttl, prefix: defaultPrefix}
}

// Key hashes the normalized request parts into a cache key. Callers include the current
// minute so entries never outlive the notice boundary by more than that.
func (c *SlotCache) Key(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return c.prefix + ":slots:" + hex.EncodeToString(sum[:16])
}

func (c *SlotCache) userIndexKey(userID int64) string {
	return c.prefix + ":slots:user:" + strconv.FormatInt(userID, 10)
}

func (c *SlotCache) Get(ctx context.Context, key string) (availability.Result, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return availability.Result{}, false, nil
	}
	if err != nil {
		return availability.Result{}, false, err
	}
	var res availability.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		// A corrupt entry is a miss; the next Set overwrites it.
		return availability.Result{}, false, nil
	}
	return res, true, nil
}

func (c *SlotCache) Set(ctx context.Context, key string, userIDs []int64, res availability.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode slots: %w", err)
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, payload, c.ttl)
		for _, id := range userIDs {
			idx := c.userIndexKey(id)
			pipe.SAdd(ctx, idx, key)
			pipe.Expire(ctx, idx, c.ttl)
		}
		return nil
	})
	return err
}

// InvalidateUsers deletes every cached entry computed for any of the users and returns
// how many entries were dropped.
func (c *SlotCache) InvalidateUsers(ctx context.Context, userIDs []int64) (int, error) {
	var keys []string
	var indexes []string
	for _, id := range userIDs {
		idx := c.userIndexKey(id)
		members, err := c.rdb.SMembers(ctx, idx).Result()
		if err != nil {
			return 0, err
		}
		keys = append(keys, members...)
		indexes = append(indexes, idx)
	}
	if len(indexes) == 0 {
		return 0, nil
	}
	var removed int64
	if len(keys) > 0 {
		n, err := c.rdb.Del(ctx, keys...).Result()
		if err != nil {
			return 0, err
		}
		removed = n
	}
	if err := c.rdb.Del(ctx, indexes...).Err(); err != nil {
		return int(removed), err
	}
	return int(removed), nil
}

// MarkProcessed records eventID and reports whether this is the first time it was seen.
func (c *SlotCache) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return c.rdb.SetNX(ctx, c.prefix+":events:"+eventID, 1, ttl).Result()
}

// Forget removes the processed marker for eventID.
func (c *SlotCache) Forget(ctx context.Context, eventID string) error {
	return c.rdb.Del(ctx, c.prefix+":events:"+eventID).Err()
}

func (c *SlotCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
