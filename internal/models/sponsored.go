package models

import (
	"errors"
	"time"
)

// ===========================================
// SPONSORED CONTENT
// ===========================================

type PlacementStatus string

const (
	PlacementStatusActive    PlacementStatus = "active"
	PlacementStatusPaused    PlacementStatus = "paused"
	PlacementStatusCompleted PlacementStatus = "completed"
	PlacementStatusExpired   PlacementStatus = "expired"
)

// PlacementType distinguishes the two paid promotional units.
type PlacementType string

const (
	PlacementSponsored PlacementType = "sponsored"
	PlacementFeatured  PlacementType = "featured"
)

// SponsoredContent is a paid promotional unit metered against a prepaid
// budget. TotalSpent is monotonically non-decreasing and always equals
// impressions*cost_per_impression + clicks*cost_per_click while active.
// Once TotalSpent >= Budget the status transitions irreversibly to
// completed on the charge that crossed the threshold.
type SponsoredContent struct {
	ID          string `json:"id"`
	SponsorID   string `json:"sponsor_id"`
	SponsorName string `json:"sponsor_name,omitempty"`

	ContentType    string `json:"content_type"` // article, strain, nft_listing, banner
	Title          string `json:"title"`
	Content        string `json:"content,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	CTAText        string `json:"cta_text,omitempty"`
	CTAURL         string `json:"cta_url,omitempty"`
	TargetCategory string `json:"target_category"` // cannabis, crypto, ai

	Budget            Cents `json:"budget_cents"`
	CostPerImpression Cents `json:"cost_per_impression_cents"`
	CostPerClick      Cents `json:"cost_per_click_cents"`

	Impressions int64 `json:"impressions"`
	Clicks      int64 `json:"clicks"`
	TotalSpent  Cents `json:"total_spent_cents"`

	Status    PlacementStatus `json:"status"`
	StartDate time.Time       `json:"start_date"`
	EndDate   *time.Time      `json:"end_date,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (s *SponsoredContent) Validate() error {
	if s.SponsorID == "" {
		return errors.New("sponsor_id is required")
	}
	if s.Title == "" {
		return errors.New("title is required")
	}
	if s.TargetCategory == "" {
		return errors.New("target_category is required")
	}
	if s.Budget <= 0 {
		return errors.New("budget must be > 0")
	}
	if s.CostPerImpression < 0 || s.CostPerClick < 0 {
		return errors.New("per-event costs must be >= 0")
	}
	return nil
}

// ===========================================
// FEATURED LISTING
// ===========================================

// FeaturedListing is a fixed-duration promoted placement. It has no
// budget cap; it terminates by wall-clock end_date, enforced at query
// time rather than by an expiry sweep.
type FeaturedListing struct {
	ID        string `json:"id"`
	ItemType  string `json:"item_type"` // strain, seed, nft
	ItemID    string `json:"item_id"`
	SponsorID string `json:"sponsor_id"`

	Position     int   `json:"position"` // 1 = top slot
	DurationDays int   `json:"duration_days"`
	PricePaid    Cents `json:"price_paid_cents"`

	Impressions int64 `json:"impressions"`
	Clicks      int64 `json:"clicks"`

	Status    PlacementStatus `json:"status"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
	CreatedAt time.Time       `json:"created_at"`
}

func (f *FeaturedListing) Validate() error {
	if f.ItemType == "" {
		return errors.New("item_type is required")
	}
	if f.ItemID == "" {
		return errors.New("item_id is required")
	}
	if f.SponsorID == "" {
		return errors.New("sponsor_id is required")
	}
	if f.DurationDays < 1 {
		return errors.New("duration_days must be >= 1")
	}
	return nil
}

// ===========================================
// AD EVENTS
// ===========================================

// AdImpression records one rendered view of a sponsored or featured unit.
type AdImpression struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	ContentID   string        `json:"content_id"`
	ContentType PlacementType `json:"content_type"`
	UserID      string        `json:"user_id,omitempty"`
	IPAddress   string        `json:"ip_address,omitempty"`
	UserAgent   string        `json:"user_agent,omitempty"`
}

// AdClick records one click on a sponsored or featured unit. Distinct
// from the affiliate Click, which tracks outbound partner links.
type AdClick struct {
	ID          string        `json:"id"`
	Timestamp   time.Time     `json:"timestamp"`
	ContentID   string        `json:"content_id"`
	ContentType PlacementType `json:"content_type"`
	UserID      string        `json:"user_id,omitempty"`
	IPAddress   string        `json:"ip_address,omitempty"`
	UserAgent   string        `json:"user_agent,omitempty"`
}
