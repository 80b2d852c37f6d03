// Package search ranks topics from the sharded corpus against diagnostic
// queries.
package search

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/quizd/internal/cache"
	"github.com/fyrsmithlabs/quizd/internal/config"
	"github.com/fyrsmithlabs/quizd/internal/query"
	"github.com/fyrsmithlabs/quizd/internal/shardstore"
)

// Request is one search invocation.
type Request struct {
	QueryText       string
	CategoryHint    string
	SubcategoryHint string
}

// ScoredMatch is the highest-ranked topic found for a query.
type ScoredMatch struct {
	Record    shardstore.TopicRecord `json:"record"`
	Score     int                    `json:"score"`
	ShardName string                 `json:"shardName"`
}

// Result is the outcome of one search.
type Result struct {
	// Match is the single best topic, nil when nothing scored above zero.
	// Ties break to the first topic found, in shard list order then topic
	// iteration order.
	Match *ScoredMatch `json:"match,omitempty"`

	Quality      Quality `json:"quality"`
	ShouldReject bool    `json:"shouldReject"`

	ShardsSearched []string `json:"shardsSearched"`
	CacheHit       bool     `json:"cacheHit"`
}

// Engine scores every topic in the selected shards and returns the best
// match with a quality classification. Whole results are cached for a short
// TTL so repeated queries skip re-scoring (and the shard fetches behind it).
type Engine struct {
	store      *shardstore.Store
	selector   *Selector
	thresholds config.QualityThresholds
	results    *cache.Cache[*Result]
	logger     *zap.Logger
}

// NewEngine creates a search engine.
func NewEngine(store *shardstore.Store, selector *Selector, cfg config.SearchConfig, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:      store,
		selector:   selector,
		thresholds: cfg.Thresholds,
		results:    cache.New[*Result](cfg.ResultCacheTTL),
		logger:     logger.Named("search"),
	}
}

// Search runs the full relevance search for one request.
//
// Shards that cannot be fetched are skipped; the search continues with the
// remaining shards and the skipped shard is simply absent from
// ShardsSearched. Scanning stops early once the best score reaches the
// early-exit threshold.
func (e *Engine) Search(ctx context.Context, req Request) (*Result, error) {
	key := cacheKey(req)
	if cached, ok := e.results.Get(key); ok {
		hit := *cached
		hit.CacheHit = true
		return &hit, nil
	}

	q := query.Extract(req.QueryText)
	shards := e.selector.Select(req.CategoryHint, req.SubcategoryHint, req.QueryText)
	sc := newScorer(q, req.CategoryHint, req.SubcategoryHint)

	result := &Result{}
	bestScore := 0

scan:
	for _, name := range shards {
		shard, err := e.store.Get(ctx, name)
		if err != nil {
			if errors.Is(err, shardstore.ErrShardUnavailable) {
				e.logger.Warn("skipping unavailable shard",
					zap.String("shard", name),
					zap.Error(err))
				continue
			}
			return nil, err
		}
		result.ShardsSearched = append(result.ShardsSearched, name)

		for _, topic := range shard.Topics {
			score := sc.score(topic)
			if score > bestScore {
				bestScore = score
				result.Match = &ScoredMatch{
					Record:    topic,
					Score:     score,
					ShardName: name,
				}
			}
			if bestScore >= e.thresholds.EarlyExit {
				break scan
			}
		}
	}

	result.Quality = classify(bestScore, e.thresholds)
	result.ShouldReject = shouldReject(result.Quality)

	e.logger.Debug("search complete",
		zap.String("query", req.QueryText),
		zap.Int("score", bestScore),
		zap.String("quality", string(result.Quality)),
		zap.Strings("shards", result.ShardsSearched))

	e.results.Set(key, result)
	return result, nil
}

// InvalidateResults drops every cached search result. Called alongside shard
// invalidation so stale rankings do not outlive their inputs.
func (e *Engine) InvalidateResults() {
	e.results.InvalidateAll()
}

// cacheKey normalizes a request so trivially different spellings of the same
// query share a cache entry.
func cacheKey(req Request) string {
	return query.Clean(req.QueryText) + "|" +
		strings.ToLower(strings.TrimSpace(req.CategoryHint)) + "|" +
		strings.ToLower(strings.TrimSpace(req.SubcategoryHint))
}
