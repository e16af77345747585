package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/cloudnine/checkin-server-go/internal/model"
	redisclient "github.com/cloudnine/checkin-server-go/internal/redis"
)

// releaseLockScript deletes the lock only when the caller still owns it, so a
// slow process cannot free a lock that has already expired and been re-taken.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisCache struct {
	client *redisclient.Client
}

func NewRedisCache(client *redisclient.Client) *RedisCache {
	return &RedisCache{client: client}
}

var _ SessionCache = (*RedisCache)(nil)

func (c *RedisCache) AcquireProcessLock(ctx context.Context, tokenID, processID string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, redisclient.ProcessLockKey(tokenID), processID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire process lock: %w", err)
	}
	return ok, nil
}

func (c *RedisCache) ReleaseProcessLock(ctx context.Context, tokenID, processID string) error {
	err := releaseLockScript.Run(ctx, c.client, []string{redisclient.ProcessLockKey(tokenID)}, processID).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release process lock: %w", err)
	}
	return nil
}

func (c *RedisCache) PutProcess(ctx context.Context, process *model.CheckInProcess, ttl time.Duration) error {
	data, err := json.Marshal(process)
	if err != nil {
		return fmt.Errorf("marshal process: %w", err)
	}
	return c.client.Set(ctx, redisclient.ProcessKey(process.ID), data, ttl).Err()
}

func (c *RedisCache) GetProcess(ctx context.Context, processID string) (*model.CheckInProcess, error) {
	data, err := c.client.Get(ctx, redisclient.ProcessKey(processID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get process: %w", err)
	}

	var process model.CheckInProcess
	if err := json.Unmarshal([]byte(data), &process); err != nil {
		return nil, fmt.Errorf("unmarshal process: %w", err)
	}
	return &process, nil
}

func (c *RedisCache) DeleteProcess(ctx context.Context, processID string) error {
	return c.client.Del(ctx, redisclient.ProcessKey(processID)).Err()
}

func (c *RedisCache) PutValidation(ctx context.Context, fingerprint, hotelID string, result *model.ValidationResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal validation result: %w", err)
	}

	key := redisclient.ValidationKey(fingerprint, hotelID)
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return err
	}

	// Reverse index so revocation can invalidate by tokenId alone.
	indexKey := redisclient.ValidationIndexKey(result.TokenID)
	pipe := c.client.Pipeline()
	pipe.SAdd(ctx, indexKey, key)
	pipe.Expire(ctx, indexKey, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisCache) GetValidation(ctx context.Context, fingerprint, hotelID string) (*model.ValidationResult, error) {
	data, err := c.client.Get(ctx, redisclient.ValidationKey(fingerprint, hotelID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get validation result: %w", err)
	}

	var result model.ValidationResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("unmarshal validation result: %w", err)
	}
	return &result, nil
}

func (c *RedisCache) InvalidateValidation(ctx context.Context, tokenID string) error {
	indexKey := redisclient.ValidationIndexKey(tokenID)
	keys, err := c.client.SMembers(ctx, indexKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("read validation index: %w", err)
	}

	if len(keys) > 0 {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			return err
		}
	}
	return c.client.Del(ctx, indexKey).Err()
}

func (c *RedisCache) PutBookingRef(ctx context.Context, tokenID, bookingID string, ttl time.Duration) error {
	return c.client.Set(ctx, redisclient.BookingRefKey(tokenID), bookingID, ttl).Err()
}

func (c *RedisCache) GetBookingRef(ctx context.Context, tokenID string) (string, error) {
	bookingID, err := c.client.Get(ctx, redisclient.BookingRefKey(tokenID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get booking ref: %w", err)
	}
	return bookingID, nil
}

func (c *RedisCache) PutBookingSnapshot(ctx context.Context, booking *model.Booking, ttl time.Duration) error {
	data, err := json.Marshal(booking)
	if err != nil {
		return fmt.Errorf("marshal booking snapshot: %w", err)
	}
	return c.client.Set(ctx, redisclient.BookingSnapshotKey(booking.ID), data, ttl).Err()
}

func (c *RedisCache) GetBookingSnapshot(ctx context.Context, bookingID string) (*model.Booking, error) {
	data, err := c.client.Get(ctx, redisclient.BookingSnapshotKey(bookingID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get booking snapshot: %w", err)
	}

	var booking model.Booking
	if err := json.Unmarshal([]byte(data), &booking); err != nil {
		return nil, fmt.Errorf("unmarshal booking snapshot: %w", err)
	}
	return &booking, nil
}

func (c *RedisCache) InvalidateBookingSnapshot(ctx context.Context, bookingID string) error {
	return c.client.Del(ctx, redisclient.BookingSnapshotKey(bookingID)).Err()
}

func (c *RedisCache) SweepOrphans(ctx context.Context, maxAge time.Duration) (int64, error) {
	var reaped int64
	cutoff := time.Now().Add(-maxAge)

	iter := c.client.Scan(ctx, 0, redisclient.ProcessKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		data, err := c.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return reaped, fmt.Errorf("sweep read %s: %w", key, err)
		}

		var process model.CheckInProcess
		if err := json.Unmarshal([]byte(data), &process); err != nil {
			log.Warn().Str("key", key).Err(err).Msg("sweep: dropping unreadable process record")
			c.client.Del(ctx, key)
			continue
		}

		if process.Status.Terminal() || process.StartedAt.After(cutoff) {
			continue
		}

		now := time.Now()
		process.Status = model.ProcessFailed
		process.FailureCode = "PROCESS_TIMEOUT"
		process.Failure = "process exceeded its timeout and was reaped"
		process.CompletedAt = &now

		if err := c.PutProcess(ctx, &process, maxAge); err != nil {
			log.Error().Str("processId", process.ID).Err(err).Msg("sweep: failed to mark process failed")
			continue
		}
		if err := c.ReleaseProcessLock(ctx, process.TokenID, process.ID); err != nil {
			log.Error().Str("processId", process.ID).Err(err).Msg("sweep: failed to release process lock")
		}
		reaped++
	}
	if err := iter.Err(); err != nil {
		return reaped, fmt.Errorf("sweep scan: %w", err)
	}

	return reaped, nil
}
