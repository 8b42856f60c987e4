package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nugl/monetization/internal/models"
)

// InMemoryEventStore provides in-memory storage for events. Used in tests
// and when no database is configured.
type InMemoryEventStore struct {
	mu            sync.RWMutex
	clicks        map[string]*models.Click
	conversions   map[string]*models.Conversion
	adImpressions map[string]*models.AdImpression
	adClicks      map[string]*models.AdClick

	// Index for conversion attribution lookups
	conversionsByClick map[string]string // click_id -> conversion_id
}

// NewInMemoryEventStore creates a new in-memory event store.
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		clicks:             make(map[string]*models.Click),
		conversions:        make(map[string]*models.Conversion),
		adImpressions:      make(map[string]*models.AdImpression),
		adClicks:           make(map[string]*models.AdClick),
		conversionsByClick: make(map[string]string),
	}
}

// =============================================
// Affiliate clicks
// =============================================

func (s *InMemoryEventStore) SaveClick(ctx context.Context, click *models.Click) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *click
	s.clicks[click.ID] = &cp
	return nil
}

func (s *InMemoryEventStore) GetClick(ctx context.Context, id string) (*models.Click, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	click, ok := s.clicks[id]
	if !ok {
		return nil, nil
	}
	cp := *click
	return &cp, nil
}

func (s *InMemoryEventStore) MarkClickConverted(ctx context.Context, id string, value, commission models.Cents) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	click, ok := s.clicks[id]
	if !ok || click.Converted {
		return false, nil
	}

	click.Converted = true
	click.ConversionValue = value
	click.CommissionEarned = commission
	return true, nil
}

func (s *InMemoryEventStore) CountClicksSince(ctx context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, click := range s.clicks {
		if !click.ClickedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryEventStore) ListClicks(ctx context.Context) ([]*models.Click, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*models.Click, 0, len(s.clicks))
	for _, click := range s.clicks {
		cp := *click
		res = append(res, &cp)
	}
	return res, nil
}

// =============================================
// Conversions
// =============================================

func (s *InMemoryEventStore) SaveConversion(ctx context.Context, conv *models.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *conv
	s.conversions[conv.ID] = &cp
	if conv.ClickID != "" {
		s.conversionsByClick[conv.ClickID] = conv.ID
	}
	return nil
}

func (s *InMemoryEventStore) GetConversion(ctx context.Context, id string) (*models.Conversion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversions[id]
	if !ok {
		return nil, nil
	}
	cp := *conv
	return &cp, nil
}

func (s *InMemoryEventStore) CountConversionsSince(ctx context.Context, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, conv := range s.conversions {
		if !conv.ConvertedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryEventStore) SumConversionsSince(ctx context.Context, since time.Time) (models.Cents, models.Cents, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var revenue, commission models.Cents
	for _, conv := range s.conversions {
		if !conv.ConvertedAt.Before(since) {
			revenue += conv.SaleValue
			commission += conv.CommissionAmount
		}
	}
	return revenue, commission, nil
}

func (s *InMemoryEventStore) ListRecentConversions(ctx context.Context, limit int) ([]*models.Conversion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*models.Conversion, 0, len(s.conversions))
	for _, conv := range s.conversions {
		cp := *conv
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].ConvertedAt.After(res[j].ConvertedAt)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *InMemoryEventStore) ListConversions(ctx context.Context) ([]*models.Conversion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]*models.Conversion, 0, len(s.conversions))
	for _, conv := range s.conversions {
		cp := *conv
		res = append(res, &cp)
	}
	return res, nil
}

// =============================================
// Ad events
// =============================================

func (s *InMemoryEventStore) SaveAdImpression(ctx context.Context, imp *models.AdImpression) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *imp
	s.adImpressions[imp.ID] = &cp
	return nil
}

func (s *InMemoryEventStore) SaveAdClick(ctx context.Context, click *models.AdClick) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *click
	s.adClicks[click.ID] = &cp
	return nil
}

// AdImpressionCount reports how many impressions were recorded for a
// placement. Test helper; not part of the EventStore interface.
func (s *InMemoryEventStore) AdImpressionCount(contentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	for _, imp := range s.adImpressions {
		if imp.ContentID == contentID {
			n++
		}
	}
	return n
}
