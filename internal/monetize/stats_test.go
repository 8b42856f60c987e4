package monetize

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nugl/monetization/internal/models"
	"github.com/nugl/monetization/internal/storage"
)

func newStatsFixture() (*StatsAggregator, *storage.InMemoryEventStore, *storage.InMemoryPartnerRepo) {
	events := storage.NewInMemoryEventStore()
	partners := storage.NewInMemoryPartnerRepo()
	agg := NewStatsAggregator(events, partners, nil, 0, zap.NewNop(), nil)
	return agg, events, partners
}

func TestGetAffiliateStatsEmpty(t *testing.T) {
	agg, _, _ := newStatsFixture()

	stats, err := agg.GetAffiliateStats(context.Background(), 30)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalClicks != 0 || stats.TotalConversions != 0 {
		t.Errorf("counts = %d/%d, want zero", stats.TotalClicks, stats.TotalConversions)
	}
	// Zero clicks must not divide by zero
	if stats.ConversionRate != 0 {
		t.Errorf("conversion rate = %v, want 0", stats.ConversionRate)
	}
	if stats.WindowDays != 30 {
		t.Errorf("window = %d, want 30", stats.WindowDays)
	}
}

func TestGetAffiliateStatsAggregates(t *testing.T) {
	ctx := context.Background()
	agg, events, partners := newStatsFixture()
	now := time.Now().UTC()

	partners.UpsertPartner(ctx, &models.Partner{
		ID: "p1", Name: "Dispensary One", Type: "dispensary",
		CommissionRate: 10, Status: models.PartnerStatusActive,
		TotalClicks: 4, TotalConversions: 1,
		TotalRevenue: 1999, TotalCommission: 300,
	})

	for i, id := range []string{"a", "b", "c", "d"} {
		events.SaveClick(ctx, &models.Click{
			ID: id, ClickedAt: now.Add(-time.Duration(i) * time.Hour),
			PartnerID: "p1", AffiliateType: "dispensary",
		})
	}
	// One click outside the window
	events.SaveClick(ctx, &models.Click{
		ID: "old", ClickedAt: now.AddDate(0, 0, -31),
		PartnerID: "p1", AffiliateType: "dispensary",
	})
	events.SaveConversion(ctx, &models.Conversion{
		ID: "v1", ConvertedAt: now, ClickID: "a", PartnerID: "p1",
		AffiliateType: "dispensary", SaleValue: 1999, CommissionAmount: 300,
		Status: models.ConversionStatusPending,
	})

	stats, err := agg.GetAffiliateStats(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalClicks != 4 {
		t.Errorf("clicks = %d, want 4", stats.TotalClicks)
	}
	if stats.TotalConversions != 1 {
		t.Errorf("conversions = %d, want 1", stats.TotalConversions)
	}
	if stats.ConversionRate != 25 {
		t.Errorf("conversion rate = %v, want 25", stats.ConversionRate)
	}
	if stats.TotalRevenue != 19.99 || stats.TotalCommission != 3.00 {
		t.Errorf("money = %v/%v, want 19.99/3.00", stats.TotalRevenue, stats.TotalCommission)
	}

	if len(stats.TopPerformers) != 1 {
		t.Fatalf("top performers = %d, want 1", len(stats.TopPerformers))
	}
	top := stats.TopPerformers[0]
	if top.PartnerID != "p1" || top.ConversionRate != 25 {
		t.Errorf("top performer = %+v", top)
	}

	if len(stats.RecentConversions) != 1 || stats.RecentConversions[0].ID != "v1" {
		t.Errorf("recent conversions = %+v", stats.RecentConversions)
	}
}

func TestGetAffiliateStatsClampsWindow(t *testing.T) {
	agg, _, _ := newStatsFixture()
	stats, err := agg.GetAffiliateStats(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if stats.WindowDays != 1 {
		t.Errorf("window = %d, want clamp to 1", stats.WindowDays)
	}
}
