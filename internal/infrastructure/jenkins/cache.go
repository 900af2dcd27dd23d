package jenkins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opsdeck/opsdeck/internal/domain/job"
	"github.com/opsdeck/opsdeck/internal/pkg/logger"
)

// DefaultCacheTTL is how long a job snapshot stays fresh.
const DefaultCacheTTL = 5 * time.Minute

// Cache backends.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendNone  = "none"
)

// Snapshot is the cached job metadata of one server. It holds plain data
// only; clients are rebuilt from configuration on every run.
type Snapshot struct {
	Server    string            `json:"server"`
	FetchedAt time.Time         `json:"fetched_at"`
	Jobs      []job.Description `json:"jobs"`
}

// Fresh reports whether the snapshot is younger than ttl at now.
func (s *Snapshot) Fresh(now time.Time, ttl time.Duration) bool {
	return s != nil && now.Sub(s.FetchedAt) < ttl
}

// Store persists snapshots. Load returns nil, nil when nothing is stored.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, s *Snapshot) error
	Clear(ctx context.Context) error
}

// FileStore keeps the snapshot in a JSON file.
type FileStore struct {
	Path string
}

// Load reads the snapshot file.
func (f FileStore) Load(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job cache: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode job cache %s: %w", f.Path, err)
	}
	return &s, nil
}

// Save writes the snapshot through a temp file renamed into place.
func (f FileStore) Save(_ context.Context, s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode job cache: %w", err)
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".jobs-*.json")
	if err != nil {
		return fmt.Errorf("failed to create job cache: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write job cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write job cache: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("failed to write job cache: %w", err)
	}
	return nil
}

// Clear removes the snapshot file.
func (f FileStore) Clear(_ context.Context) error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to clear job cache: %w", err)
	}
	return nil
}

// RedisStore keeps the snapshot under a single Redis key that expires with
// the cache TTL.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStore connects to the Redis server at rawURL.
func NewRedisStore(rawURL, key string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts), key: key, ttl: ttl}, nil
}

// Load reads the snapshot key.
func (r *RedisStore) Load(ctx context.Context) (*Snapshot, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job cache: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode job cache: %w", err)
	}
	return &s, nil
}

// Save writes the snapshot key.
func (r *RedisStore) Save(ctx context.Context, s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode job cache: %w", err)
	}
	if err := r.client.Set(ctx, r.key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write job cache: %w", err)
	}
	return nil
}

// Clear deletes the snapshot key.
func (r *RedisStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to clear job cache: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// NopStore never stores anything.
type NopStore struct{}

func (NopStore) Load(context.Context) (*Snapshot, error) { return nil, nil }
func (NopStore) Save(context.Context, *Snapshot) error   { return nil }
func (NopStore) Clear(context.Context) error             { return nil }

// Source produces full job descriptions, usually a *Client.
type Source interface {
	Server() string
	DescribeAll(ctx context.Context) ([]job.Description, error)
}

// Catalog serves job descriptions from a Store while they are fresh and
// refetches them from the Source otherwise. Store failures are logged and
// never fail a lookup.
type Catalog struct {
	source Source
	store  Store
	ttl    time.Duration
	now    func() time.Time
	log    *slog.Logger
}

// NewCatalog creates a catalog. A nil store disables caching.
func NewCatalog(source Source, store Store, ttl time.Duration) *Catalog {
	if store == nil {
		store = NopStore{}
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Catalog{
		source: source,
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		log:    logger.With("component", "jenkins-cache"),
	}
}

// Jobs returns every job description.
func (c *Catalog) Jobs(ctx context.Context) ([]job.Description, error) {
	server := c.source.Server()

	snap, err := c.store.Load(ctx)
	if err != nil {
		c.log.Warn("ignoring job cache", "error", err)
	}
	if snap != nil && snap.Server == server && snap.Fresh(c.now(), c.ttl) {
		c.log.Debug("job cache hit", "jobs", len(snap.Jobs), "fetched_at", snap.FetchedAt)
		return snap.Jobs, nil
	}

	jobs, err := c.source.DescribeAll(ctx)
	if err != nil {
		return nil, err
	}

	fresh := &Snapshot{Server: server, FetchedAt: c.now().UTC(), Jobs: jobs}
	if err := c.store.Save(ctx, fresh); err != nil {
		c.log.Warn("failed to save job cache", "error", err)
	}
	return jobs, nil
}

// Registry returns the job descriptions as a registry.
func (c *Catalog) Registry(ctx context.Context) (*job.Registry, error) {
	jobs, err := c.Jobs(ctx)
	if err != nil {
		return nil, err
	}
	return job.NewRegistry(jobs)
}

// Invalidate drops the cached snapshot, used after jobs were added,
// removed or toggled.
func (c *Catalog) Invalidate(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.log.Warn("failed to clear job cache", "error", err)
	}
}
