package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/conduit-lang/portal/internal/cache"
	"github.com/conduit-lang/portal/internal/metrics"
	"github.com/conduit-lang/portal/internal/store"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Config tunes the aggregator
type Config struct {
	// CacheTTL is how long a tenant's merged list is reused; zero disables caching
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// Service merges the alert sources for a tenant
type Service struct {
	db      store.DBTX
	cache   cache.Cache
	ttl     time.Duration
	sources []source
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates the aggregator. c may be nil to disable caching.
func NewService(db store.DBTX, c cache.Cache, config Config, logger *zap.Logger, m *metrics.Metrics) *Service {
	if c == nil || config.CacheTTL <= 0 {
		c = cache.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:      db,
		cache:   c,
		ttl:     config.CacheTTL,
		sources: builtinSources(),
		logger:  logger.Named("alerts"),
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// List returns up to limit alerts for the tenant, most severe first. A
// limit <= 0 means DefaultLimit.
func (s *Service) List(ctx context.Context, tenantID string, limit int) ([]Alert, error) {
	feed, err := s.Overview(ctx, tenantID, limit)
	if err != nil {
		return nil, err
	}
	return feed.Alerts, nil
}

// Feed is the top of a tenant's alert list plus the counts of the whole list
type Feed struct {
	Alerts  []Alert `json:"alerts"`
	Summary Summary `json:"summary"`
}

// Overview returns at most limit alerts, summarized before truncation
func (s *Service) Overview(ctx context.Context, tenantID string, limit int) (*Feed, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	all, err := s.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	summary := Summarize(all)

	top := all
	if len(top) > limit {
		top = top[:limit]
	}

	served := Summarize(top)
	s.metrics.AlertsServed(string(SeverityCritical), served.Critical)
	s.metrics.AlertsServed(string(SeverityHigh), served.High)
	s.metrics.AlertsServed(string(SeverityMedium), served.Medium)
	s.metrics.AlertsServed(string(SeverityLow), served.Low)
	return &Feed{Alerts: top, Summary: summary}, nil
}

// Invalidate drops the tenant's cached list
func (s *Service) Invalidate(ctx context.Context, tenantID string) error {
	return s.cache.Delete(ctx, cacheKey(tenantID))
}

func cacheKey(tenantID string) string {
	return "alerts:" + tenantID
}

// load returns the full sorted list, from cache when fresh
func (s *Service) load(ctx context.Context, tenantID string) ([]Alert, error) {
	key := cacheKey(tenantID)

	raw, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var cached []Alert
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return cached, nil
		}
		s.logger.Warn("discarding undecodable cache entry", zap.String("tenant", tenantID))
	case !errors.Is(err, cache.ErrMiss):
		s.logger.Warn("alerts cache unavailable", zap.String("tenant", tenantID), zap.Error(err))
	}

	all, err := s.collect(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(all); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			s.logger.Warn("failed to cache alerts", zap.String("tenant", tenantID), zap.Error(err))
		}
	}
	return all, nil
}

// collect queries every source concurrently. The first failure cancels the
// others and is returned.
func (s *Service) collect(ctx context.Context, tenantID string) ([]Alert, error) {
	now := s.now()
	results := make([][]Alert, len(s.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range s.sources {
		i, src := i, src
		g.Go(func() error {
			alerts, err := src.load(gctx, s.db, tenantID, now)
			if err != nil {
				return fmt.Errorf("alerts source %s: %w", src.name, err)
			}
			results[i] = alerts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]Alert, 0)
	for _, r := range results {
		merged = append(merged, r...)
	}
	Sort(merged)
	return merged, nil
}
