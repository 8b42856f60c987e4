package storage

import (
	"context"
	"time"

	"github.com/nugl/monetization/internal/models"
)

// EventStore persists the click/conversion/ad event log. The log is the
// source of truth for the monetization subsystem; partner and placement
// counters are derived views.
type EventStore interface {
	// Affiliate clicks
	SaveClick(ctx context.Context, click *models.Click) error
	GetClick(ctx context.Context, id string) (*models.Click, error)
	// MarkClickConverted flips the converted flag and records the sale
	// outcome. It only matches a click that has not converted yet and
	// reports whether the update was applied, which makes it the
	// uniqueness guard against double-conversion.
	MarkClickConverted(ctx context.Context, id string, value, commission models.Cents) (bool, error)
	CountClicksSince(ctx context.Context, since time.Time) (int64, error)
	ListClicks(ctx context.Context) ([]*models.Click, error)

	// Conversions
	SaveConversion(ctx context.Context, conv *models.Conversion) error
	GetConversion(ctx context.Context, id string) (*models.Conversion, error)
	CountConversionsSince(ctx context.Context, since time.Time) (int64, error)
	SumConversionsSince(ctx context.Context, since time.Time) (revenue, commission models.Cents, err error)
	ListRecentConversions(ctx context.Context, limit int) ([]*models.Conversion, error)
	ListConversions(ctx context.Context) ([]*models.Conversion, error)

	// Ad events (sponsored/featured placements)
	SaveAdImpression(ctx context.Context, imp *models.AdImpression) error
	SaveAdClick(ctx context.Context, click *models.AdClick) error
}

// PartnerRepo manages affiliate partners and their running totals.
// All counter updates are atomic increments at the storage layer.
type PartnerRepo interface {
	GetPartner(ctx context.Context, id string) (*models.Partner, error)
	FindByTrackingURL(ctx context.Context, url string) (*models.Partner, error)
	UpsertPartner(ctx context.Context, p *models.Partner) error
	ListPartners(ctx context.Context) ([]*models.Partner, error)
	TopByCommission(ctx context.Context, limit int) ([]*models.Partner, error)

	// IncrementClicks adds 1 to total_clicks. Returns false when no
	// partner matched; callers treat that as a no-op, not an error.
	IncrementClicks(ctx context.Context, id string) (bool, error)
	// ApplyConversion adds 1 conversion plus revenue/commission to the
	// partner's running totals in one atomic update.
	ApplyConversion(ctx context.Context, id string, revenue, commission models.Cents) (bool, error)
	// SetTotals overwrites the running totals; used by reconciliation.
	SetTotals(ctx context.Context, id string, clicks, conversions int64, revenue, commission models.Cents) error
}

// ChargeResult reports the outcome of one atomic budget charge.
type ChargeResult struct {
	// Matched is false when the placement does not exist or is no
	// longer active; no counters were touched in that case.
	Matched bool
	// Completed is true when this charge crossed the budget threshold
	// and transitioned the placement to completed.
	Completed bool
	// Cost is the amount this charge added to total spend.
	Cost       models.Cents
	TotalSpent models.Cents
	Budget     models.Cents
}

// SponsoredRepo manages sponsored content and featured listings. Charges
// are single conditional updates: the counter increment, the spend add
// and the completed transition happen atomically, so two concurrent
// charges can never both trigger the transition.
type SponsoredRepo interface {
	CreateSponsoredContent(ctx context.Context, c *models.SponsoredContent) error
	GetSponsoredContent(ctx context.Context, id string) (*models.SponsoredContent, error)
	ListActiveSponsoredContent(ctx context.Context, category string, limit int) ([]*models.SponsoredContent, error)
	ListSponsoredBySponsor(ctx context.Context, sponsorID string) ([]*models.SponsoredContent, error)
	ChargeImpression(ctx context.Context, id string) (*ChargeResult, error)
	ChargeClick(ctx context.Context, id string) (*ChargeResult, error)

	CreateFeaturedListing(ctx context.Context, l *models.FeaturedListing) error
	GetFeaturedListing(ctx context.Context, id string) (*models.FeaturedListing, error)
	// ListFeaturedListings returns active listings whose end_date is
	// after now, ordered by ascending position.
	ListFeaturedListings(ctx context.Context, itemType string, limit int, now time.Time) ([]*models.FeaturedListing, error)
	ListFeaturedBySponsor(ctx context.Context, sponsorID string) ([]*models.FeaturedListing, error)
	IncrementListingImpressions(ctx context.Context, id string) error
	IncrementListingClicks(ctx context.Context, id string) error
}
