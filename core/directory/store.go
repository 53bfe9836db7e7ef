package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const snapshotKey = "polgov:directory:snapshot"

// ErrNoSnapshot means no cached snapshot exists.
var ErrNoSnapshot = errors.New("no directory snapshot cached")

// SnapshotStore caches directory snapshots in Redis so repeated runs skip
// refetching the whole account.
type SnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotStore connects to Redis. The ttl bounds both the Redis key
// expiry and staleness checks on load.
func NewSnapshotStore(url string, ttl time.Duration) (*SnapshotStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &SnapshotStore{client: client, ttl: ttl}, nil
}

// Close closes the underlying Redis client.
func (s *SnapshotStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Save stores the snapshot with the store's TTL.
func (s *SnapshotStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// Load returns the cached snapshot. A missing key or a snapshot older than
// the TTL yields ErrNoSnapshot.
func (s *SnapshotStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Expired(time.Now().UTC(), s.ttl) {
		return nil, ErrNoSnapshot
	}
	return &snap, nil
}

// Invalidate drops the cached snapshot.
func (s *SnapshotStore) Invalidate(ctx context.Context) error {
	if err := s.client.Del(ctx, snapshotKey).Err(); err != nil {
		return fmt.Errorf("invalidate snapshot: %w", err)
	}
	return nil
}
