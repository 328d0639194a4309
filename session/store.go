package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps every cache failure.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned when no record exists for (uid, sid).
var ErrNotFound = errors.New("session not found")

const scanBatch = 500

// Store persists session records in redis under {prefix}:{uid}:{sid}.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore returns a Store. An empty prefix defaults to "session".
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "session"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(uid, sid string) string {
	return s.prefix + ":" + uid + ":" + sid
}

// Save writes rec with the given TTL, replacing any previous value.
func (s *Store) Save(ctx context.Context, rec *Record, ttl time.Duration) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(rec.UID, rec.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get loads the record for (uid, sid). It does not check expiry; the caller
// decides how an expired record is reported.
func (s *Store) Get(ctx context.Context, uid, sid string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(uid, sid)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, err
	}
	rec.SessionID = sid
	return rec, nil
}

// Slide moves the record expiry to now+lifetime and rewrites it. Concurrent
// slides are last-write-wins.
func (s *Store) Slide(ctx context.Context, rec *Record, now time.Time, lifetime time.Duration) error {
	rec.ExpiresAt = now.Add(lifetime).UnixMilli()
	return s.Save(ctx, rec, lifetime)
}

// Delete removes one record. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, uid, sid string) error {
	if err := s.redis.Del(ctx, s.key(uid, sid)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForUser removes every record of uid and returns how many were
// deleted.
//
// This is a SCAN over {prefix}:{uid}:* followed by DEL and is NOT atomic: a
// session created while the scan runs may survive.
func (s *Store) DeleteAllForUser(ctx context.Context, uid string) (int, error) {
	pattern := s.prefix + ":" + uid + ":*"
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return deleted, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if len(keys) > 0 {
			n, err := s.redis.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Ping reports redis round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
