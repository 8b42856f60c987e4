package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/nugl/monetization/internal/config"
	"github.com/nugl/monetization/internal/monetize"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Stats:  config.StatsConfig{DefaultWindowDays: 30},
		Ledger: config.LedgerConfig{DefaultCostPerImpression: 0.01, DefaultCostPerClick: 0.50, DefaultListingDays: 7},
	}
	return NewServer(&Dependencies{
		Config: cfg,
		Logger: zap.NewNop(),
	})
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, h http.Handler, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec
}

func TestClickConversionStatsFlow(t *testing.T) {
	h := newTestServer(t)

	// Register a partner
	rec := postJSON(t, h, "/partners", map[string]any{
		"id": "p1", "name": "Dispensary One", "type": "dispensary",
		"commission_rate": 15,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create partner: %d %s", rec.Code, rec.Body.String())
	}

	// Track a click
	rec = postJSON(t, h, "/affiliate/click", map[string]any{
		"partner_id": "p1", "affiliate_type": "dispensary", "item_id": "strain-1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("track click: %d %s", rec.Code, rec.Body.String())
	}
	var clickResp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &clickResp)
	clickID := clickResp["click_id"]
	if clickID == "" {
		t.Fatal("empty click_id")
	}

	// Record a conversion against it
	rec = postJSON(t, h, "/affiliate/conversion", map[string]any{
		"click_id": clickID, "sale_value": 19.99,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("record conversion: %d %s", rec.Code, rec.Body.String())
	}

	// A duplicate conversion is rejected with 409
	rec = postJSON(t, h, "/affiliate/conversion", map[string]any{
		"click_id": clickID, "sale_value": 19.99,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate conversion: %d, want 409", rec.Code)
	}

	// Stats reflect the flow
	var stats monetize.AffiliateStats
	rec = getJSON(t, h, "/affiliate/stats?days=30", &stats)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats: %d", rec.Code)
	}
	if stats.TotalClicks != 1 || stats.TotalConversions != 1 {
		t.Errorf("stats counts = %d/%d", stats.TotalClicks, stats.TotalConversions)
	}
	if stats.TotalRevenue != 19.99 {
		t.Errorf("revenue = %v, want 19.99", stats.TotalRevenue)
	}
	// 15% of $19.99 rounds to $3.00
	if stats.TotalCommission != 3.00 {
		t.Errorf("commission = %v, want 3.00", stats.TotalCommission)
	}
}

func TestConversionForUnknownClick(t *testing.T) {
	h := newTestServer(t)
	rec := postJSON(t, h, "/affiliate/conversion", map[string]any{
		"click_id": "missing", "sale_value": 5,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStatsRejectsBadWindow(t *testing.T) {
	h := newTestServer(t)
	rec := getJSON(t, h, "/affiliate/stats?days=zero", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSponsoredLifecycleOverHTTP(t *testing.T) {
	h := newTestServer(t)

	rec := postJSON(t, h, "/sponsored/content", map[string]any{
		"sponsor_id": "s1", "content_type": "banner", "title": "NFT drop",
		"target_category": "crypto", "budget": 1.00, "cost_per_impression": 0.10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create sponsored: %d %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.ID == "" {
		t.Fatal("no id in response")
	}

	// Appears in the active feed
	var active []map[string]any
	rec = getJSON(t, h, "/sponsored/active?category=crypto", &active)
	if rec.Code != http.StatusOK || len(active) != 1 {
		t.Fatalf("active feed: %d items, code %d", len(active), rec.Code)
	}

	// Burn the budget: 10 impressions at $0.10
	for i := 0; i < 10; i++ {
		rec = postJSON(t, h, "/ads/impression", map[string]any{
			"content_id": created.ID, "content_type": "sponsored",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("impression %d: %d", i, rec.Code)
		}
	}

	// Exhausted placement leaves the active feed
	active = nil
	getJSON(t, h, "/sponsored/active?category=crypto", &active)
	if len(active) != 0 {
		t.Errorf("completed placement still active: %d items", len(active))
	}

	// Sponsor analytics reflect the spend
	var report monetize.SponsorAnalytics
	rec = getJSON(t, h, "/sponsors/s1/analytics", &report)
	if rec.Code != http.StatusOK {
		t.Fatalf("analytics: %d", rec.Code)
	}
	if report.TotalImpressions != 10 {
		t.Errorf("impressions = %d, want 10", report.TotalImpressions)
	}
	if report.TotalSpent != 1.00 {
		t.Errorf("spent = %v, want 1.00", report.TotalSpent)
	}
}

func TestFeaturedListingOverHTTP(t *testing.T) {
	h := newTestServer(t)

	rec := postJSON(t, h, "/featured/listing", map[string]any{
		"item_type": "strain", "item_id": "i1", "sponsor_id": "s1",
		"position": 1, "price_paid": 25.00,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create listing: %d %s", rec.Code, rec.Body.String())
	}

	var list []map[string]any
	rec = getJSON(t, h, "/featured/listings?item_type=strain", &list)
	if rec.Code != http.StatusOK || len(list) != 1 {
		t.Fatalf("listings: %d items, code %d", len(list), rec.Code)
	}

	// item_type is required
	rec = getJSON(t, h, "/featured/listings", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing item_type: %d, want 400", rec.Code)
	}
}

func TestAdEventResponseShape(t *testing.T) {
	h := newTestServer(t)

	rec := postJSON(t, h, "/ads/impression", map[string]any{
		"content_id": "c1", "content_type": "sponsored",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("impression: %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q, want application/json", ct)
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	if !resp["success"] {
		t.Errorf("body = %s, want success=true", rec.Body.String())
	}
}

func TestAdEventValidation(t *testing.T) {
	h := newTestServer(t)

	rec := postJSON(t, h, "/ads/impression", map[string]any{"content_type": "sponsored"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing content_id: %d, want 400", rec.Code)
	}
	rec = postJSON(t, h, "/ads/click", map[string]any{
		"content_id": "x", "content_type": "popup",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad content_type: %d, want 400", rec.Code)
	}
}

func TestReconcileEndpoint(t *testing.T) {
	h := newTestServer(t)

	rec := postJSON(t, h, "/partners", map[string]any{
		"id": "p1", "name": "Partner", "type": "seeds", "commission_rate": 10,
	})
	if rec.Code != http.StatusOK {
		t.Fatal(rec.Body.String())
	}

	rec = postJSON(t, h, "/admin/reconcile", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile: %d %s", rec.Code, rec.Body.String())
	}
	var resp map[string]int
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["partners_updated"] != 1 {
		t.Errorf("partners_updated = %d, want 1", resp["partners_updated"])
	}
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)
	var body map[string]any
	rec := getJSON(t, h, "/health", &body)
	if rec.Code != http.StatusOK {
		t.Errorf("health: %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}
