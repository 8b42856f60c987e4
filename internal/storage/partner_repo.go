package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/nugl/monetization/internal/models"
)

// InMemoryPartnerRepo stores affiliate partners in memory.
type InMemoryPartnerRepo struct {
	mu       sync.RWMutex
	partners map[string]*models.Partner
}

// NewInMemoryPartnerRepo creates a new in-memory partner repository.
func NewInMemoryPartnerRepo() *InMemoryPartnerRepo {
	return &InMemoryPartnerRepo{
		partners: make(map[string]*models.Partner),
	}
}

func (r *InMemoryPartnerRepo) GetPartner(ctx context.Context, id string) (*models.Partner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.partners[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *InMemoryPartnerRepo) FindByTrackingURL(ctx context.Context, url string) (*models.Partner, error) {
	if url == "" {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.partners {
		if p.TrackingURL == url {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *InMemoryPartnerRepo) UpsertPartner(ctx context.Context, p *models.Partner) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *p
	r.partners[p.ID] = &cp
	return nil
}

func (r *InMemoryPartnerRepo) ListPartners(ctx context.Context) ([]*models.Partner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*models.Partner, 0, len(r.partners))
	for _, p := range r.partners {
		cp := *p
		res = append(res, &cp)
	}
	return res, nil
}

func (r *InMemoryPartnerRepo) TopByCommission(ctx context.Context, limit int) ([]*models.Partner, error) {
	res, err := r.ListPartners(ctx)
	if err != nil {
		return nil, err
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].TotalCommission > res[j].TotalCommission
	})
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *InMemoryPartnerRepo) IncrementClicks(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.partners[id]
	if !ok {
		return false, nil
	}
	p.TotalClicks++
	return true, nil
}

func (r *InMemoryPartnerRepo) ApplyConversion(ctx context.Context, id string, revenue, commission models.Cents) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.partners[id]
	if !ok {
		return false, nil
	}
	p.TotalConversions++
	p.TotalRevenue += revenue
	p.TotalCommission += commission
	return true, nil
}

func (r *InMemoryPartnerRepo) SetTotals(ctx context.Context, id string, clicks, conversions int64, revenue, commission models.Cents) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.partners[id]
	if !ok {
		return nil
	}
	p.TotalClicks = clicks
	p.TotalConversions = conversions
	p.TotalRevenue = revenue
	p.TotalCommission = commission
	return nil
}
