package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nugl/monetization/internal/models"
)

// InMemorySponsoredRepo stores sponsored content and featured listings in
// memory. The charge methods mirror the conditional-update semantics of
// the Postgres implementation: increment, spend add and the completed
// transition happen under one lock, and a charge only applies while the
// placement is still active.
type InMemorySponsoredRepo struct {
	mu       sync.Mutex
	content  map[string]*models.SponsoredContent
	listings map[string]*models.FeaturedListing
}

// NewInMemorySponsoredRepo creates a new in-memory sponsored repository.
func NewInMemorySponsoredRepo() *InMemorySponsoredRepo {
	return &InMemorySponsoredRepo{
		content:  make(map[string]*models.SponsoredContent),
		listings: make(map[string]*models.FeaturedListing),
	}
}

// =============================================
// Sponsored content
// =============================================

func (r *InMemorySponsoredRepo) CreateSponsoredContent(ctx context.Context, c *models.SponsoredContent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *c
	r.content[c.ID] = &cp
	return nil
}

func (r *InMemorySponsoredRepo) GetSponsoredContent(ctx context.Context, id string) (*models.SponsoredContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.content[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *InMemorySponsoredRepo) ListActiveSponsoredContent(ctx context.Context, category string, limit int) ([]*models.SponsoredContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []*models.SponsoredContent
	for _, c := range r.content {
		if c.Status != models.PlacementStatusActive {
			continue
		}
		if category != "" && c.TargetCategory != category {
			continue
		}
		cp := *c
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *InMemorySponsoredRepo) ListSponsoredBySponsor(ctx context.Context, sponsorID string) ([]*models.SponsoredContent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []*models.SponsoredContent
	for _, c := range r.content {
		if c.SponsorID == sponsorID {
			cp := *c
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (r *InMemorySponsoredRepo) ChargeImpression(ctx context.Context, id string) (*ChargeResult, error) {
	return r.charge(id, func(c *models.SponsoredContent) models.Cents {
		c.Impressions++
		return c.CostPerImpression
	})
}

func (r *InMemorySponsoredRepo) ChargeClick(ctx context.Context, id string) (*ChargeResult, error) {
	return r.charge(id, func(c *models.SponsoredContent) models.Cents {
		c.Clicks++
		return c.CostPerClick
	})
}

func (r *InMemorySponsoredRepo) charge(id string, apply func(*models.SponsoredContent) models.Cents) (*ChargeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.content[id]
	if !ok || c.Status != models.PlacementStatusActive {
		return &ChargeResult{Matched: false}, nil
	}

	cost := apply(c)
	c.TotalSpent += cost

	completed := false
	if c.TotalSpent >= c.Budget {
		c.Status = models.PlacementStatusCompleted
		completed = true
	}

	return &ChargeResult{
		Matched:    true,
		Completed:  completed,
		Cost:       cost,
		TotalSpent: c.TotalSpent,
		Budget:     c.Budget,
	}, nil
}

// =============================================
// Featured listings
// =============================================

func (r *InMemorySponsoredRepo) CreateFeaturedListing(ctx context.Context, l *models.FeaturedListing) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *l
	r.listings[l.ID] = &cp
	return nil
}

func (r *InMemorySponsoredRepo) GetFeaturedListing(ctx context.Context, id string) (*models.FeaturedListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *InMemorySponsoredRepo) ListFeaturedListings(ctx context.Context, itemType string, limit int, now time.Time) ([]*models.FeaturedListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []*models.FeaturedListing
	for _, l := range r.listings {
		if l.ItemType != itemType {
			continue
		}
		if l.Status != models.PlacementStatusActive {
			continue
		}
		if !l.EndDate.After(now) {
			continue
		}
		cp := *l
		res = append(res, &cp)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Position < res[j].Position
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *InMemorySponsoredRepo) ListFeaturedBySponsor(ctx context.Context, sponsorID string) ([]*models.FeaturedListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []*models.FeaturedListing
	for _, l := range r.listings {
		if l.SponsorID == sponsorID {
			cp := *l
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (r *InMemorySponsoredRepo) IncrementListingImpressions(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.listings[id]; ok {
		l.Impressions++
	}
	return nil
}

func (r *InMemorySponsoredRepo) IncrementListingClicks(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.listings[id]; ok {
		l.Clicks++
	}
	return nil
}
