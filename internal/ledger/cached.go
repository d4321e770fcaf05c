package ledger

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/aegis/fusion/internal/contracts"
	"github.com/wonny/aegis/fusion/pkg/redis"
)

// CachedLedger caches Latest and unfiltered Statistics in Redis.
// Every append bumps the symbol's generation and drops both keys; a reader
// only fills the cache if the generation it saw before reading the wrapped
// ledger is still current, so a superseded decision is never cached as latest.
type CachedLedger struct {
	inner contracts.DecisionLedger
	cache *redis.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedLedger wraps inner; a disabled redis client makes it a pass-through
func NewCachedLedger(inner contracts.DecisionLedger, cache *redis.Cache, ttl time.Duration, log zerolog.Logger) *CachedLedger {
	if ttl <= 0 {
		ttl = redis.TTLShort
	}
	return &CachedLedger{
		inner: inner,
		cache: cache,
		ttl:   ttl,
		log:   log.With().Str("component", "ledger.cache").Logger(),
	}
}

// Append writes through and invalidates the symbol's cache entries
func (c *CachedLedger) Append(ctx context.Context, d *contracts.Decision) error {
	if err := c.inner.Append(ctx, d); err != nil {
		return err
	}
	c.invalidate(ctx, d.Symbol)
	return nil
}

// Latest serves from cache when possible
func (c *CachedLedger) Latest(ctx context.Context, symbol string) (*contracts.Decision, error) {
	key := redis.LatestDecisionKey(symbol)

	var cached contracts.Decision
	found, err := c.cache.Get(ctx, key, &cached)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	if found {
		return &cached, nil
	}

	gen, genErr := c.cache.Generation(ctx, redis.GenerationKey(symbol))
	d, err := c.inner.Latest(ctx, symbol)
	if err != nil || d == nil {
		return d, err
	}
	c.fill(ctx, symbol, key, d, gen, genErr)
	return d, nil
}

// History is never cached
func (c *CachedLedger) History(ctx context.Context, symbol string, filter contracts.HistoryFilter) ([]*contracts.Decision, error) {
	return c.inner.History(ctx, symbol, filter)
}

// Statistics caches only the unfiltered window
func (c *CachedLedger) Statistics(ctx context.Context, symbol string, filter contracts.HistoryFilter) (*contracts.LedgerStatistics, error) {
	if filter != (contracts.HistoryFilter{}) {
		return c.inner.Statistics(ctx, symbol, filter)
	}

	key := redis.StatisticsKey(symbol)

	var cached contracts.LedgerStatistics
	found, err := c.cache.Get(ctx, key, &cached)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	if found {
		return &cached, nil
	}

	gen, genErr := c.cache.Generation(ctx, redis.GenerationKey(symbol))
	stats, err := c.inner.Statistics(ctx, symbol, filter)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, symbol, key, stats, gen, genErr)
	return stats, nil
}

// fill caches value read at generation gen; skipped when the generation
// could not be read or has moved since
func (c *CachedLedger) fill(ctx context.Context, symbol, key string, value interface{}, gen int64, genErr error) {
	if !c.cache.Enabled() {
		return
	}
	if genErr != nil {
		c.log.Warn().Err(genErr).Str("symbol", symbol).Msg("cache generation read failed")
		return
	}
	stored, err := c.cache.SetIfGeneration(ctx, key, value, c.ttl, redis.GenerationKey(symbol), gen)
	switch {
	case err != nil:
		c.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	case !stored:
		c.log.Debug().Str("key", key).Int64("generation", gen).Msg("cache fill skipped after concurrent append")
	}
}

// invalidate bumps the generation before dropping keys: a fill that read the
// old generation is refused, one that read the new one saw this append
func (c *CachedLedger) invalidate(ctx context.Context, symbol string) {
	if _, err := c.cache.BumpGeneration(ctx, redis.GenerationKey(symbol)); err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("cache generation bump failed")
	}
	for _, key := range []string{redis.LatestDecisionKey(symbol), redis.StatisticsKey(symbol)} {
		if err := c.cache.Delete(ctx, key); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("cache invalidation failed")
		}
	}
}
