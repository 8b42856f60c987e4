package monetize

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nugl/monetization/internal/models"
	"github.com/nugl/monetization/internal/storage"
)

func newConversionFixture() (*ConversionRecorder, *storage.InMemoryEventStore, *storage.InMemoryPartnerRepo) {
	events := storage.NewInMemoryEventStore()
	partners := storage.NewInMemoryPartnerRepo()
	recorder := NewConversionRecorder(events, partners, nil, zap.NewNop(), nil)
	return recorder, events, partners
}

func seedClick(t *testing.T, events *storage.InMemoryEventStore, id, partnerID string) {
	t.Helper()
	err := events.SaveClick(context.Background(), &models.Click{
		ID:            id,
		ClickedAt:     time.Now().UTC(),
		PartnerID:     partnerID,
		AffiliateType: "dispensary",
		UserID:        "u1",
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRecordConversion(t *testing.T) {
	ctx := context.Background()
	recorder, events, partners := newConversionFixture()
	addPartner(t, partners, "p1", "")
	seedClick(t, events, "clk1", "p1")

	// $19.99 at 15%
	convID, err := recorder.RecordConversion(ctx, "clk1", 1999, 15)
	if err != nil {
		t.Fatal(err)
	}

	conv, _ := events.GetConversion(ctx, convID)
	if conv == nil {
		t.Fatal("conversion not persisted")
	}
	if conv.ClickID != "clk1" || conv.PartnerID != "p1" {
		t.Errorf("attribution = %s/%s", conv.ClickID, conv.PartnerID)
	}
	if conv.SaleValue != 1999 || conv.CommissionAmount != 300 {
		t.Errorf("money = %d/%d, want 1999/300", conv.SaleValue, conv.CommissionAmount)
	}
	if conv.Status != models.ConversionStatusPending {
		t.Errorf("status = %s, want pending", conv.Status)
	}

	click, _ := events.GetClick(ctx, "clk1")
	if !click.Converted || click.ConversionValue != 1999 || click.CommissionEarned != 300 {
		t.Errorf("click outcome = %+v", click)
	}

	p, _ := partners.GetPartner(ctx, "p1")
	if p.TotalConversions != 1 || p.TotalRevenue != 1999 || p.TotalCommission != 300 {
		t.Errorf("partner totals = %d/%d/%d", p.TotalConversions, p.TotalRevenue, p.TotalCommission)
	}
}

func TestRecordConversionDefaultsToPartnerRate(t *testing.T) {
	ctx := context.Background()
	recorder, events, partners := newConversionFixture()
	addPartner(t, partners, "p1", "") // 10% from fixture
	seedClick(t, events, "clk1", "p1")

	convID, err := recorder.RecordConversion(ctx, "clk1", 10000, 0)
	if err != nil {
		t.Fatal(err)
	}
	conv, _ := events.GetConversion(ctx, convID)
	if conv.CommissionRate != 10 || conv.CommissionAmount != 1000 {
		t.Errorf("rate/commission = %v/%d, want 10/1000", conv.CommissionRate, conv.CommissionAmount)
	}
}

func TestRecordConversionUnknownClick(t *testing.T) {
	recorder, _, _ := newConversionFixture()
	_, err := recorder.RecordConversion(context.Background(), "missing", 100, 10)
	if !errors.Is(err, ErrClickNotFound) {
		t.Errorf("err = %v, want ErrClickNotFound", err)
	}
}

func TestRecordConversionRejectsDoubleConversion(t *testing.T) {
	ctx := context.Background()
	recorder, events, partners := newConversionFixture()
	addPartner(t, partners, "p1", "")
	seedClick(t, events, "clk1", "p1")

	if _, err := recorder.RecordConversion(ctx, "clk1", 1000, 10); err != nil {
		t.Fatal(err)
	}
	_, err := recorder.RecordConversion(ctx, "clk1", 2000, 10)
	if !errors.Is(err, ErrAlreadyConverted) {
		t.Fatalf("err = %v, want ErrAlreadyConverted", err)
	}

	// The loser must not touch partner totals
	p, _ := partners.GetPartner(ctx, "p1")
	if p.TotalConversions != 1 || p.TotalRevenue != 1000 {
		t.Errorf("partner totals after duplicate = %d/%d", p.TotalConversions, p.TotalRevenue)
	}
}

func TestRecordConversionConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	recorder, events, partners := newConversionFixture()
	addPartner(t, partners, "p1", "")
	seedClick(t, events, "clk1", "p1")

	const workers = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := recorder.RecordConversion(ctx, "clk1", 1000, 10); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrAlreadyConverted) {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("%d conversions recorded, want exactly 1", wins)
	}
	p, _ := partners.GetPartner(ctx, "p1")
	if p.TotalConversions != 1 {
		t.Errorf("partner conversions = %d, want 1", p.TotalConversions)
	}
}

func TestRecordConversionValidation(t *testing.T) {
	recorder, _, _ := newConversionFixture()
	ctx := context.Background()

	if _, err := recorder.RecordConversion(ctx, "", 100, 10); err == nil {
		t.Error("empty click ID accepted")
	}
	if _, err := recorder.RecordConversion(ctx, "clk1", -1, 10); err == nil {
		t.Error("negative sale value accepted")
	}
	if _, err := recorder.RecordConversion(ctx, "clk1", 100, 101); err == nil {
		t.Error("rate above 100 accepted")
	}
}

// A conversion whose click carries an unregistered partner still lands
// in the event log: attribution misses are partial successes.
func TestRecordConversionPartnerMiss(t *testing.T) {
	ctx := context.Background()
	recorder, events, _ := newConversionFixture()
	seedClick(t, events, "clk1", "ghost")

	convID, err := recorder.RecordConversion(ctx, "clk1", 1000, 10)
	if err != nil {
		t.Fatal(err)
	}
	if conv, _ := events.GetConversion(ctx, convID); conv == nil {
		t.Error("conversion not persisted")
	}
}
