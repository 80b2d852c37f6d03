package shardstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quizd/internal/cache"
)

// ErrShardUnavailable indicates a shard could not be fetched and no stale
// cached copy exists. Search treats this as non-fatal and skips the shard.
var ErrShardUnavailable = errors.New("shard unavailable")

// Store wraps a Source with a long-lived TTL cache and stale-on-error
// fallback.
//
// Shards are immutable once published, so a long TTL is safe: the only cost
// of staleness is a delayed pickup of a republished shard. When a fetch
// fails, the store serves an expired cached copy rather than failing the
// search outright.
type Store struct {
	source Source
	cache  *cache.Cache[*Shard]
	logger *zap.Logger
}

// NewStore creates a shard store with the given cache TTL.
func NewStore(source Source, ttl time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		source: source,
		cache:  cache.New[*Shard](ttl),
		logger: logger.Named("shardstore"),
	}
}

// Get returns the named shard, from cache when fresh, otherwise fetched from
// the source. On fetch failure an expired cached copy is served with a
// warning; ErrShardUnavailable is returned only when no copy exists at all.
func (s *Store) Get(ctx context.Context, name string) (*Shard, error) {
	if shard, ok := s.cache.Get(name); ok {
		return shard, nil
	}

	data, err := s.source.Fetch(ctx, name)
	if err != nil {
		// Cancellation unwinds without a stale read so a retried call
		// starts clean.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if stale, ok := s.cache.GetStale(name); ok {
			s.logger.Warn("shard fetch failed, serving stale copy",
				zap.String("shard", name),
				zap.Error(err))
			return stale, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrShardUnavailable, name, err)
	}

	shard, err := DecodeShard(name, data)
	if err != nil {
		if stale, ok := s.cache.GetStale(name); ok {
			s.logger.Warn("shard decode failed, serving stale copy",
				zap.String("shard", name),
				zap.Error(err))
			return stale, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrShardUnavailable, name, err)
	}

	s.cache.Set(name, shard)
	s.logger.Debug("shard loaded",
		zap.String("shard", name),
		zap.Int("topics", len(shard.Topics)))
	return shard, nil
}

// Invalidate drops the cached copy of one shard.
func (s *Store) Invalidate(name string) {
	s.cache.Invalidate(name)
}

// InvalidateAll drops every cached shard.
func (s *Store) InvalidateAll() {
	s.cache.InvalidateAll()
}

// CachedShards returns the number of cached shards.
func (s *Store) CachedShards() int {
	return s.cache.Len()
}
