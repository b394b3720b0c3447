package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "presence:"

// RedisRegistry is a Registry backed by a shared redis instance, so that
// several server processes can agree on who is online. Offline entries are
// evicted by key TTL instead of a local timer.
type RedisRegistry struct {
	client      *redis.Client
	graceWindow time.Duration
}

// NewRedisRegistry creates a redis-backed registry.
func NewRedisRegistry(addr string, graceWindow time.Duration) (*RedisRegistry, error) {
	if graceWindow <= 0 {
		graceWindow = DefaultGraceWindow
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisRegistry{client: client, graceWindow: graceWindow}, nil
}

func redisKey(userID int64) string {
	return redisKeyPrefix + strconv.FormatInt(userID, 10)
}

// Value layout: "online|{connID}|{unixNano}" or "offline|{connID}|{unixNano}".
func encodeEntry(status Status, connID string, at time.Time) string {
	return string(status) + "|" + connID + "|" + strconv.FormatInt(at.UnixNano(), 10)
}

func decodeEntry(userID int64, raw string) *Entry {
	parts := strings.SplitN(raw, "|", 3)
	if len(parts) != 3 {
		return nil
	}
	nanos, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil
	}
	return &Entry{
		UserID:   userID,
		ConnID:   parts[1],
		Status:   Status(parts[0]),
		LastSeen: time.Unix(0, nanos),
	}
}

// MarkOnline upserts the canonical entry. The online key carries no TTL;
// it lives until the user disconnects.
func (r *RedisRegistry) MarkOnline(ctx context.Context, userID int64, connID string) (string, error) {
	key := redisKey(userID)

	prev, err := r.client.GetSet(ctx, key, encodeEntry(StatusOnline, connID, time.Now())).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("presence mark online: %w", err)
	}
	if err := r.client.Persist(ctx, key).Err(); err != nil {
		return "", fmt.Errorf("presence persist: %w", err)
	}

	if entry := decodeEntry(userID, prev); entry != nil && entry.Status == StatusOnline && entry.ConnID != connID {
		return entry.ConnID, nil
	}
	return "", nil
}

// MarkOffline flips the entry to offline with the grace window as TTL.
func (r *RedisRegistry) MarkOffline(ctx context.Context, userID int64, connID string) error {
	key := redisKey(userID)

	raw, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("presence get: %w", err)
	}

	entry := decodeEntry(userID, raw)
	if entry == nil {
		return r.client.Del(ctx, key).Err()
	}
	if connID != "" && entry.ConnID != connID {
		// A newer connection already owns this entry.
		return nil
	}

	err = r.client.Set(ctx, key, encodeEntry(StatusOffline, entry.ConnID, time.Now()), r.graceWindow).Err()
	if err != nil {
		return fmt.Errorf("presence mark offline: %w", err)
	}
	return nil
}

// IsOnline reports whether the user has a live connection.
func (r *RedisRegistry) IsOnline(ctx context.Context, userID int64) (bool, error) {
	entry, err := r.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	return entry != nil && entry.Status == StatusOnline, nil
}

// Get returns the entry, or nil once the TTL has evicted it.
func (r *RedisRegistry) Get(ctx context.Context, userID int64) (*Entry, error) {
	raw, err := r.client.Get(ctx, redisKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("presence get: %w", err)
	}
	return decodeEntry(userID, raw), nil
}

// Close closes the redis client.
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

var _ Registry = (*RedisRegistry)(nil)
