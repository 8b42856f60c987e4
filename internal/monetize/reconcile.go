package monetize

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nugl/monetization/internal/models"
	"github.com/nugl/monetization/internal/storage"
)

// Reconciler rebuilds partner running totals from the event log. The
// totals are a materialized view; after a crash between an event write
// and its counter update they can drift, and a replay restores them.
type Reconciler struct {
	events   storage.EventStore
	partners storage.PartnerRepo
	logger   *zap.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(events storage.EventStore, partners storage.PartnerRepo, logger *zap.Logger) *Reconciler {
	return &Reconciler{events: events, partners: partners, logger: logger}
}

type partnerTally struct {
	clicks      int64
	conversions int64
	revenue     models.Cents
	commission  models.Cents
}

// RebuildPartnerTotals replays every click and conversion in the event
// log and overwrites each partner's totals with the recomputed values.
// Partners with no events are reset to zero. Returns the number of
// partners updated.
func (r *Reconciler) RebuildPartnerTotals(ctx context.Context) (int, error) {
	clicks, err := r.events.ListClicks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list clicks: %w", err)
	}
	conversions, err := r.events.ListConversions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list conversions: %w", err)
	}

	tallies := make(map[string]*partnerTally)
	tally := func(id string) *partnerTally {
		t, ok := tallies[id]
		if !ok {
			t = &partnerTally{}
			tallies[id] = t
		}
		return t
	}

	for _, c := range clicks {
		if c.PartnerID == "" {
			continue
		}
		tally(c.PartnerID).clicks++
	}
	for _, conv := range conversions {
		if conv.PartnerID == "" {
			continue
		}
		t := tally(conv.PartnerID)
		t.conversions++
		t.revenue += conv.SaleValue
		t.commission += conv.CommissionAmount
	}

	partners, err := r.partners.ListPartners(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list partners: %w", err)
	}

	updated := 0
	for _, p := range partners {
		t := tallies[p.ID]
		if t == nil {
			t = &partnerTally{}
		}
		if err := r.partners.SetTotals(ctx, p.ID, t.clicks, t.conversions, t.revenue, t.commission); err != nil {
			return updated, fmt.Errorf("failed to set totals for partner %s: %w", p.ID, err)
		}
		updated++
	}

	r.logger.Info("partner totals rebuilt",
		zap.Int("partners", updated),
		zap.Int("clicks_replayed", len(clicks)),
		zap.Int("conversions_replayed", len(conversions)),
	)
	return updated, nil
}
