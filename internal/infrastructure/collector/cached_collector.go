package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
	"github.com/dreschagin/monitor-dw/pkg/logger"
)

const cacheKeyPrefix = "collector:"

// cached читает значение из кеша или загружает и кеширует его.
// Ошибки кеша не мешают загрузке; ошибки загрузки не кешируются.
func cached[T any](ctx context.Context, cache port.Cache, log *logger.Logger, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var value T
	err := cache.Get(ctx, key, &value)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, port.ErrCacheMiss) {
		log.Debug("Collector cache read failed", "key", key, "error", err.Error())
	}

	value, err = load(ctx)
	if err != nil {
		return value, err
	}

	if err := cache.SetWithTTL(ctx, key, value, ttl); err != nil {
		log.Debug("Collector cache write failed", "key", key, "error", err.Error())
	}
	return value, nil
}

// CachedWarehouseCollector кеширует результат по порогу
type CachedWarehouseCollector struct {
	next   port.WarehouseCollector
	cache  port.Cache
	ttl    time.Duration
	logger *logger.Logger
}

func NewCachedWarehouseCollector(next port.WarehouseCollector, cache port.Cache, ttl time.Duration, log *logger.Logger) *CachedWarehouseCollector {
	return &CachedWarehouseCollector{next: next, cache: cache, ttl: ttl, logger: log}
}

func (c *CachedWarehouseCollector) CollectQueries(ctx context.Context, thresholdMinutes int) (valueobject.RedshiftMetric, error) {
	key := fmt.Sprintf("%squeries:%d", cacheKeyPrefix, thresholdMinutes)
	return cached(ctx, c.cache, c.logger, key, c.ttl, func(ctx context.Context) (valueobject.RedshiftMetric, error) {
		return c.next.CollectQueries(ctx, thresholdMinutes)
	})
}

// CachedRefreshCollector кеширует время обновления
type CachedRefreshCollector struct {
	next   port.RefreshCollector
	cache  port.Cache
	ttl    time.Duration
	logger *logger.Logger
}

func NewCachedRefreshCollector(next port.RefreshCollector, cache port.Cache, ttl time.Duration, log *logger.Logger) *CachedRefreshCollector {
	return &CachedRefreshCollector{next: next, cache: cache, ttl: ttl, logger: log}
}

func (c *CachedRefreshCollector) CollectRefresh(ctx context.Context) (*time.Time, error) {
	return cached(ctx, c.cache, c.logger, cacheKeyPrefix+"refresh", c.ttl, c.next.CollectRefresh)
}

// CachedTicketCollector кеширует ответ Jira
type CachedTicketCollector struct {
	next   port.TicketCollector
	cache  port.Cache
	ttl    time.Duration
	logger *logger.Logger
}

func NewCachedTicketCollector(next port.TicketCollector, cache port.Cache, ttl time.Duration, log *logger.Logger) *CachedTicketCollector {
	return &CachedTicketCollector{next: next, cache: cache, ttl: ttl, logger: log}
}

func (c *CachedTicketCollector) CollectTickets(ctx context.Context) (valueobject.TicketMetric, error) {
	return cached(ctx, c.cache, c.logger, cacheKeyPrefix+"tickets", c.ttl, c.next.CollectTickets)
}
