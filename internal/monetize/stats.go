package monetize

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nugl/monetization/internal/metrics"
	"github.com/nugl/monetization/internal/storage"
)

const (
	statsCacheKeyPrefix  = "affiliate:stats:"
	topPerformerCount    = 5
	recentConversionSize = 10
)

// TopPerformer is a partner ranked by commission earned.
type TopPerformer struct {
	PartnerID      string  `json:"partner_id"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	Clicks         int64   `json:"clicks"`
	Conversions    int64   `json:"conversions"`
	Revenue        float64 `json:"revenue"`
	Commission     float64 `json:"commission"`
	ConversionRate float64 `json:"conversion_rate"`
}

// RecentConversion is a trimmed conversion for the stats dashboard.
type RecentConversion struct {
	ID            string    `json:"id"`
	ConvertedAt   time.Time `json:"converted_at"`
	PartnerID     string    `json:"partner_id"`
	AffiliateType string    `json:"affiliate_type"`
	SaleValue     float64   `json:"sale_value"`
	Commission    float64   `json:"commission"`
	Status        string    `json:"status"`
}

// AffiliateStats is the aggregated affiliate dashboard payload.
type AffiliateStats struct {
	WindowDays        int                `json:"window_days"`
	GeneratedAt       time.Time          `json:"generated_at"`
	TotalClicks       int64              `json:"total_clicks"`
	TotalConversions  int64              `json:"total_conversions"`
	ConversionRate    float64            `json:"conversion_rate"`
	TotalRevenue      float64            `json:"total_revenue"`
	TotalCommission   float64            `json:"total_commission"`
	TopPerformers     []TopPerformer     `json:"top_performers"`
	RecentConversions []RecentConversion `json:"recent_conversions"`
}

// StatsAggregator computes windowed affiliate statistics from the event
// log and caches the result in Redis. Stats are a read model: a cache
// failure degrades to recomputation, never to an error.
type StatsAggregator struct {
	events   storage.EventStore
	partners storage.PartnerRepo
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewStatsAggregator constructs a StatsAggregator. The Redis client is
// optional; without it every request recomputes.
func NewStatsAggregator(events storage.EventStore, partners storage.PartnerRepo, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger, m *metrics.Metrics) *StatsAggregator {
	return &StatsAggregator{
		events:   events,
		partners: partners,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		metrics:  m,
	}
}

// GetAffiliateStats returns aggregated stats over the trailing window.
func (s *StatsAggregator) GetAffiliateStats(ctx context.Context, days int) (*AffiliateStats, error) {
	if days < 1 {
		days = 1
	}

	if cached := s.fromCache(ctx, days); cached != nil {
		if s.metrics != nil {
			s.metrics.StatsCacheHits.Inc()
			s.metrics.StatsRequests.WithLabelValues("cache").Inc()
		}
		return cached, nil
	}

	start := time.Now()
	stats, err := s.compute(ctx, days)
	if err != nil {
		if s.metrics != nil {
			s.metrics.StatsRequests.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.StatsLatency.Observe(time.Since(start).Seconds())
		s.metrics.StatsRequests.WithLabelValues("computed").Inc()
	}

	s.toCache(ctx, days, stats)
	return stats, nil
}

func (s *StatsAggregator) compute(ctx context.Context, days int) (*AffiliateStats, error) {
	now := time.Now().UTC()
	since := now.AddDate(0, 0, -days)

	clicks, err := s.events.CountClicksSince(ctx, since)
	if err != nil {
		return nil, err
	}
	conversions, err := s.events.CountConversionsSince(ctx, since)
	if err != nil {
		return nil, err
	}
	revenue, commission, err := s.events.SumConversionsSince(ctx, since)
	if err != nil {
		return nil, err
	}

	stats := &AffiliateStats{
		WindowDays:       days,
		GeneratedAt:      now,
		TotalClicks:      clicks,
		TotalConversions: conversions,
		TotalRevenue:     revenue.Dollars(),
		TotalCommission:  commission.Dollars(),
	}
	if clicks > 0 {
		stats.ConversionRate = float64(conversions) / float64(clicks) * 100
	}

	top, err := s.partners.TopByCommission(ctx, topPerformerCount)
	if err != nil {
		return nil, err
	}
	stats.TopPerformers = make([]TopPerformer, 0, len(top))
	for _, p := range top {
		tp := TopPerformer{
			PartnerID:   p.ID,
			Name:        p.Name,
			Type:        p.Type,
			Clicks:      p.TotalClicks,
			Conversions: p.TotalConversions,
			Revenue:     p.TotalRevenue.Dollars(),
			Commission:  p.TotalCommission.Dollars(),
		}
		if p.TotalClicks > 0 {
			tp.ConversionRate = float64(p.TotalConversions) / float64(p.TotalClicks) * 100
		}
		stats.TopPerformers = append(stats.TopPerformers, tp)
	}

	recent, err := s.events.ListRecentConversions(ctx, recentConversionSize)
	if err != nil {
		return nil, err
	}
	stats.RecentConversions = make([]RecentConversion, 0, len(recent))
	for _, c := range recent {
		stats.RecentConversions = append(stats.RecentConversions, RecentConversion{
			ID:            c.ID,
			ConvertedAt:   c.ConvertedAt,
			PartnerID:     c.PartnerID,
			AffiliateType: c.AffiliateType,
			SaleValue:     c.SaleValue.Dollars(),
			Commission:    c.CommissionAmount.Dollars(),
			Status:        string(c.Status),
		})
	}

	return stats, nil
}

func (s *StatsAggregator) cacheKey(days int) string {
	return statsCacheKeyPrefix + strconv.Itoa(days)
}

func (s *StatsAggregator) fromCache(ctx context.Context, days int) *AffiliateStats {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, s.cacheKey(days)).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Debug("stats cache read failed", zap.Error(err))
		}
		return nil
	}
	var stats AffiliateStats
	if err := json.Unmarshal(data, &stats); err != nil {
		s.logger.Warn("stats cache entry corrupt", zap.Error(err))
		return nil
	}
	return &stats
}

func (s *StatsAggregator) toCache(ctx context.Context, days int, stats *AffiliateStats) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cacheKey(days), data, s.cacheTTL).Err(); err != nil {
		s.logger.Debug("stats cache write failed", zap.Error(err))
	}
}
