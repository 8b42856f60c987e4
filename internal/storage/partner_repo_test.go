package storage

import (
	"context"
	"testing"

	"github.com/nugl/monetization/internal/models"
)

func seedPartner(t *testing.T, repo *InMemoryPartnerRepo, id string, commission models.Cents) {
	t.Helper()
	err := repo.UpsertPartner(context.Background(), &models.Partner{
		ID:              id,
		Name:            "Partner " + id,
		Type:            "dispensary",
		CommissionRate:  10,
		TrackingURL:     "https://partner-" + id + ".example.com/ref",
		Status:          models.PartnerStatusActive,
		TotalCommission: commission,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestIncrementClicksMissReportsFalse(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryPartnerRepo()
	seedPartner(t, repo, "p1", 0)

	ok, err := repo.IncrementClicks(ctx, "p1")
	if err != nil || !ok {
		t.Fatalf("IncrementClicks(p1) = %v, %v", ok, err)
	}
	ok, err = repo.IncrementClicks(ctx, "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("increment for unknown partner should report false")
	}

	p, _ := repo.GetPartner(ctx, "p1")
	if p.TotalClicks != 1 {
		t.Errorf("total clicks = %d, want 1", p.TotalClicks)
	}
}

func TestApplyConversionUpdatesTotals(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryPartnerRepo()
	seedPartner(t, repo, "p1", 0)

	ok, err := repo.ApplyConversion(ctx, "p1", 1999, 300)
	if err != nil || !ok {
		t.Fatalf("ApplyConversion = %v, %v", ok, err)
	}
	ok, _ = repo.ApplyConversion(ctx, "p1", 5000, 750)
	if !ok {
		t.Fatal("second conversion should apply")
	}

	p, _ := repo.GetPartner(ctx, "p1")
	if p.TotalConversions != 2 {
		t.Errorf("conversions = %d, want 2", p.TotalConversions)
	}
	if p.TotalRevenue != 6999 || p.TotalCommission != 1050 {
		t.Errorf("totals = %d/%d, want 6999/1050", p.TotalRevenue, p.TotalCommission)
	}
}

func TestFindByTrackingURL(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryPartnerRepo()
	seedPartner(t, repo, "p1", 0)

	p, err := repo.FindByTrackingURL(ctx, "https://partner-p1.example.com/ref")
	if err != nil {
		t.Fatal(err)
	}
	if p == nil || p.ID != "p1" {
		t.Fatalf("lookup returned %+v", p)
	}

	p, err = repo.FindByTrackingURL(ctx, "")
	if err != nil || p != nil {
		t.Errorf("empty URL should return nothing, got %+v, %v", p, err)
	}
}

func TestTopByCommission(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryPartnerRepo()
	seedPartner(t, repo, "low", 100)
	seedPartner(t, repo, "high", 10000)
	seedPartner(t, repo, "mid", 5000)

	top, err := repo.TopByCommission(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 {
		t.Fatalf("top count = %d, want 2", len(top))
	}
	if top[0].ID != "high" || top[1].ID != "mid" {
		t.Errorf("top order = [%s %s], want [high mid]", top[0].ID, top[1].ID)
	}
}

func TestSetTotalsOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryPartnerRepo()
	seedPartner(t, repo, "p1", 9999)

	if err := repo.SetTotals(ctx, "p1", 42, 7, 7000, 700); err != nil {
		t.Fatal(err)
	}

	p, _ := repo.GetPartner(ctx, "p1")
	if p.TotalClicks != 42 || p.TotalConversions != 7 {
		t.Errorf("counts = %d/%d, want 42/7", p.TotalClicks, p.TotalConversions)
	}
	if p.TotalRevenue != 7000 || p.TotalCommission != 700 {
		t.Errorf("money = %d/%d, want 7000/700", p.TotalRevenue, p.TotalCommission)
	}
}
