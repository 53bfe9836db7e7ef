package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisURL     = "redis://localhost:6379"
	defaultShortTTL     = 24 * time.Hour
	defaultStandardTTL  = 7 * 24 * time.Hour
	defaultAuditTTL     = 30 * 24 * time.Hour
	envArtifactShortTTL = "ARTIFACT_TTL_SHORT"
	envArtifactStdTTL   = "ARTIFACT_TTL_STANDARD"
	envArtifactAuditTTL = "ARTIFACT_TTL_AUDIT"

	redisKeyPrefix = "polgov:artifact:"
	redisMetaInfix = "meta:"
)

// RedisStore implements Store on Redis with TTLs by retention class.
type RedisStore struct {
	client      *redis.Client
	ttlShort    time.Duration
	ttlStandard time.Duration
	ttlAudit    time.Duration
}

// NewRedisStore connects to Redis and returns a store.
func NewRedisStore(url string) (*RedisStore, error) {
	if url == "" {
		url = defaultRedisURL
	}
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
	return &RedisStore{
		client:      client,
		ttlShort:    parseDurationEnv(envArtifactShortTTL, defaultShortTTL),
		ttlStandard: parseDurationEnv(envArtifactStdTTL, defaultStandardTTL),
		ttlAudit:    parseDurationEnv(envArtifactAuditTTL, defaultAuditTTL),
	}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) Put(ctx context.Context, name string, doc any, meta Metadata) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("artifact store unavailable")
	}
	if name == "" {
		return fmt.Errorf("artifact name required")
	}
	content, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", name, err)
	}
	meta.SizeBytes = int64(len(content))
	if meta.Retention == "" {
		meta.Retention = RetentionStandard
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	ttl := s.ttlFor(meta.Retention)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, artifactKey(name), content, ttl)
	pipe.Set(ctx, artifactMetaKey(name), payload, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store artifact %s: %w", name, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, name string, out any) (Metadata, error) {
	if s == nil || s.client == nil {
		return Metadata{}, fmt.Errorf("artifact store unavailable")
	}
	pipe := s.client.Pipeline()
	contentCmd := pipe.Get(ctx, artifactKey(name))
	metaCmd := pipe.Get(ctx, artifactMetaKey(name))
	_, _ = pipe.Exec(ctx)

	content, err := contentCmd.Bytes()
	if err != nil {
		return Metadata{}, fmt.Errorf("read artifact %s: %w", name, err)
	}
	if err := json.Unmarshal(content, out); err != nil {
		return Metadata{}, fmt.Errorf("decode artifact %s: %w", name, err)
	}
	var meta Metadata
	if data, err := metaCmd.Bytes(); err == nil {
		_ = json.Unmarshal(data, &meta)
	}
	return meta, nil
}

func (s *RedisStore) List(ctx context.Context, prefix string) ([]string, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("artifact store unavailable")
	}
	var names []string
	var cursor uint64
	match := artifactKey(prefix) + "*"
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("list artifacts: %w", err)
		}
		for _, key := range keys {
			name := strings.TrimPrefix(key, redisKeyPrefix)
			if strings.HasPrefix(name, redisMetaInfix) {
				continue
			}
			names = append(names, name)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) ttlFor(retention RetentionClass) time.Duration {
	switch retention {
	case RetentionShort:
		return s.ttlShort
	case RetentionAudit:
		return s.ttlAudit
	default:
		return s.ttlStandard
	}
}

func parseDurationEnv(key string, fallback time.Duration) time.Duration {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func artifactKey(name string) string {
	return redisKeyPrefix + name
}

func artifactMetaKey(name string) string {
	return redisKeyPrefix + redisMetaInfix + name
}
