package monetize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nugl/monetization/internal/analytics"
	"github.com/nugl/monetization/internal/config"
	"github.com/nugl/monetization/internal/metrics"
	"github.com/nugl/monetization/internal/models"
	"github.com/nugl/monetization/internal/storage"
)

const (
	defaultActiveContentLimit = 5
	defaultListingLimit       = 3
)

// BudgetLedger manages paid placements: sponsored content metered
// against a prepaid budget, and flat-fee featured listings with a fixed
// run window. Impression and click charges are conditional single-row
// updates, so concurrent events never overshoot the completed
// transition.
type BudgetLedger struct {
	placements storage.SponsoredRepo
	events     storage.EventStore
	archive    *analytics.Archive
	cfg        config.LedgerConfig
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewBudgetLedger constructs a BudgetLedger.
func NewBudgetLedger(placements storage.SponsoredRepo, events storage.EventStore, archive *analytics.Archive, cfg config.LedgerConfig, logger *zap.Logger, m *metrics.Metrics) *BudgetLedger {
	return &BudgetLedger{
		placements: placements,
		events:     events,
		archive:    archive,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
	}
}

// CreateSponsoredContent validates and stores a new sponsored placement.
// Per-event costs default from configuration when omitted.
func (l *BudgetLedger) CreateSponsoredContent(ctx context.Context, sc *models.SponsoredContent) error {
	if sc == nil {
		return errors.New("sponsored content is required")
	}
	sc.ID = uuid.NewString()
	sc.Status = models.PlacementStatusActive
	sc.Impressions = 0
	sc.Clicks = 0
	sc.TotalSpent = 0
	now := time.Now().UTC()
	sc.CreatedAt = now
	if sc.StartDate.IsZero() {
		sc.StartDate = now
	}
	if sc.CostPerImpression == 0 {
		sc.CostPerImpression = models.CentsFromFloat(l.cfg.DefaultCostPerImpression)
	}
	if sc.CostPerClick == 0 {
		sc.CostPerClick = models.CentsFromFloat(l.cfg.DefaultCostPerClick)
	}

	if err := sc.Validate(); err != nil {
		return err
	}
	if err := l.placements.CreateSponsoredContent(ctx, sc); err != nil {
		if l.metrics != nil {
			l.metrics.RecordStoreError("create_sponsored")
		}
		return fmt.Errorf("failed to create sponsored content: %w", err)
	}

	l.logger.Info("sponsored content created",
		zap.String("content_id", sc.ID),
		zap.String("sponsor_id", sc.SponsorID),
		zap.String("budget", sc.Budget.String()),
	)
	return nil
}

// CreateFeaturedListing validates and stores a flat-fee featured
// listing. The run window is start plus the listing duration.
func (l *BudgetLedger) CreateFeaturedListing(ctx context.Context, fl *models.FeaturedListing) error {
	if fl == nil {
		return errors.New("featured listing is required")
	}
	fl.ID = uuid.NewString()
	fl.Status = models.PlacementStatusActive
	fl.Impressions = 0
	fl.Clicks = 0
	now := time.Now().UTC()
	fl.CreatedAt = now
	if fl.StartDate.IsZero() {
		fl.StartDate = now
	}
	if fl.DurationDays <= 0 {
		fl.DurationDays = l.cfg.DefaultListingDays
	}
	fl.EndDate = fl.StartDate.AddDate(0, 0, fl.DurationDays)

	if err := fl.Validate(); err != nil {
		return err
	}
	if err := l.placements.CreateFeaturedListing(ctx, fl); err != nil {
		if l.metrics != nil {
			l.metrics.RecordStoreError("create_listing")
		}
		return fmt.Errorf("failed to create featured listing: %w", err)
	}

	l.logger.Info("featured listing created",
		zap.String("listing_id", fl.ID),
		zap.String("item_type", fl.ItemType),
		zap.String("item_id", fl.ItemID),
		zap.Time("end_date", fl.EndDate),
	)
	return nil
}

// TrackImpression records an ad impression and charges the placement's
// budget. Telemetry never fails the caller: the event is logged even
// when the placement is already completed, but only active placements
// are charged.
func (l *BudgetLedger) TrackImpression(ctx context.Context, contentID string, contentType models.PlacementType, userID, ipAddress, userAgent string) {
	now := time.Now().UTC()
	imp := &models.AdImpression{
		ID:          uuid.NewString(),
		Timestamp:   now,
		ContentID:   contentID,
		ContentType: contentType,
		UserID:      userID,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
	}
	if err := l.events.SaveAdImpression(ctx, imp); err != nil {
		l.logger.Error("failed to save ad impression", zap.Error(err),
			zap.String("content_id", contentID))
		if l.metrics != nil {
			l.metrics.RecordStoreError("save_impression")
		}
	}

	switch contentType {
	case models.PlacementSponsored:
		l.chargePlacement(ctx, contentID, "impression")
	case models.PlacementFeatured:
		if err := l.placements.IncrementListingImpressions(ctx, contentID); err != nil {
			l.logger.Warn("failed to increment listing impressions", zap.Error(err),
				zap.String("listing_id", contentID))
		}
	}

	if l.archive != nil {
		l.archive.ArchiveAdEvent(ctx, "impression", contentID, contentType, userID, now)
	}
	if l.metrics != nil {
		l.metrics.AdImpressions.WithLabelValues(string(contentType)).Inc()
	}
}

// TrackAdClick records a click on a sponsored placement or featured
// listing and charges the budget for sponsored content.
func (l *BudgetLedger) TrackAdClick(ctx context.Context, contentID string, contentType models.PlacementType, userID, ipAddress, userAgent string) {
	now := time.Now().UTC()
	click := &models.AdClick{
		ID:          uuid.NewString(),
		Timestamp:   now,
		ContentID:   contentID,
		ContentType: contentType,
		UserID:      userID,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
	}
	if err := l.events.SaveAdClick(ctx, click); err != nil {
		l.logger.Error("failed to save ad click", zap.Error(err),
			zap.String("content_id", contentID))
		if l.metrics != nil {
			l.metrics.RecordStoreError("save_ad_click")
		}
	}

	switch contentType {
	case models.PlacementSponsored:
		l.chargePlacement(ctx, contentID, "click")
	case models.PlacementFeatured:
		if err := l.placements.IncrementListingClicks(ctx, contentID); err != nil {
			l.logger.Warn("failed to increment listing clicks", zap.Error(err),
				zap.String("listing_id", contentID))
		}
	}

	if l.archive != nil {
		l.archive.ArchiveAdEvent(ctx, "click", contentID, contentType, userID, now)
	}
	if l.metrics != nil {
		l.metrics.AdClicks.WithLabelValues(string(contentType)).Inc()
	}
}

// chargePlacement applies one impression or click charge. The store
// performs the increment, spend and status transition in a single
// conditional update; this method only interprets the outcome.
func (l *BudgetLedger) chargePlacement(ctx context.Context, contentID, event string) {
	var (
		res *storage.ChargeResult
		err error
	)
	if event == "impression" {
		res, err = l.placements.ChargeImpression(ctx, contentID)
	} else {
		res, err = l.placements.ChargeClick(ctx, contentID)
	}
	if err != nil {
		l.logger.Error("failed to charge placement", zap.Error(err),
			zap.String("content_id", contentID),
			zap.String("event", event))
		if l.metrics != nil {
			l.metrics.RecordStoreError("charge_" + event)
		}
		return
	}
	if !res.Matched {
		// Placement missing or no longer active: the event stays in
		// the log but no money moves.
		if l.metrics != nil {
			l.metrics.ChargesSkipped.WithLabelValues(event).Inc()
		}
		return
	}

	if l.metrics != nil {
		l.metrics.SpendCents.WithLabelValues(event).Add(float64(res.Cost))
	}

	if res.Completed {
		l.logger.Info("sponsored budget exhausted",
			zap.String("content_id", contentID),
			zap.String("total_spent", res.TotalSpent.String()),
			zap.String("budget", res.Budget.String()),
		)
		if l.metrics != nil {
			l.metrics.BudgetExhausted.Inc()
		}
	}
}

// GetActiveSponsoredContent returns active placements, optionally
// filtered by target category.
func (l *BudgetLedger) GetActiveSponsoredContent(ctx context.Context, category string, limit int) ([]*models.SponsoredContent, error) {
	if limit <= 0 {
		limit = defaultActiveContentLimit
	}
	return l.placements.ListActiveSponsoredContent(ctx, category, limit)
}

// GetFeaturedListings returns active featured listings for an item type
// whose run window has not ended.
func (l *BudgetLedger) GetFeaturedListings(ctx context.Context, itemType string, limit int) ([]*models.FeaturedListing, error) {
	if limit <= 0 {
		limit = defaultListingLimit
	}
	return l.placements.ListFeaturedListings(ctx, itemType, limit, time.Now().UTC())
}

// SponsorPlacementReport summarizes one sponsored placement.
type SponsorPlacementReport struct {
	ContentID   string  `json:"content_id"`
	Title       string  `json:"title"`
	Status      string  `json:"status"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	CTR         float64 `json:"ctr"`
	Budget      float64 `json:"budget"`
	TotalSpent  float64 `json:"total_spent"`
}

// SponsorListingReport summarizes one featured listing.
type SponsorListingReport struct {
	ListingID   string    `json:"listing_id"`
	ItemType    string    `json:"item_type"`
	ItemID      string    `json:"item_id"`
	Status      string    `json:"status"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	CTR         float64   `json:"ctr"`
	PricePaid   float64   `json:"price_paid"`
	EndDate     time.Time `json:"end_date"`
}

// SponsorAnalytics is the per-sponsor spend and performance report.
type SponsorAnalytics struct {
	SponsorID        string                   `json:"sponsor_id"`
	TotalSpent       float64                  `json:"total_spent"`
	TotalImpressions int64                    `json:"total_impressions"`
	TotalClicks      int64                    `json:"total_clicks"`
	OverallCTR       float64                  `json:"overall_ctr"`
	Placements       []SponsorPlacementReport `json:"placements"`
	Listings         []SponsorListingReport   `json:"listings"`
}

// GetSponsorAnalytics aggregates performance across all of a sponsor's
// placements and listings.
func (l *BudgetLedger) GetSponsorAnalytics(ctx context.Context, sponsorID string) (*SponsorAnalytics, error) {
	if sponsorID == "" {
		return nil, errors.New("sponsor ID is required")
	}

	contents, err := l.placements.ListSponsoredBySponsor(ctx, sponsorID)
	if err != nil {
		return nil, err
	}
	listings, err := l.placements.ListFeaturedBySponsor(ctx, sponsorID)
	if err != nil {
		return nil, err
	}

	report := &SponsorAnalytics{
		SponsorID:  sponsorID,
		Placements: make([]SponsorPlacementReport, 0, len(contents)),
		Listings:   make([]SponsorListingReport, 0, len(listings)),
	}

	for _, sc := range contents {
		report.TotalSpent += sc.TotalSpent.Dollars()
		report.TotalImpressions += sc.Impressions
		report.TotalClicks += sc.Clicks
		report.Placements = append(report.Placements, SponsorPlacementReport{
			ContentID:   sc.ID,
			Title:       sc.Title,
			Status:      string(sc.Status),
			Impressions: sc.Impressions,
			Clicks:      sc.Clicks,
			CTR:         ctr(sc.Clicks, sc.Impressions),
			Budget:      sc.Budget.Dollars(),
			TotalSpent:  sc.TotalSpent.Dollars(),
		})
	}
	for _, fl := range listings {
		report.TotalSpent += fl.PricePaid.Dollars()
		report.TotalImpressions += fl.Impressions
		report.TotalClicks += fl.Clicks
		report.Listings = append(report.Listings, SponsorListingReport{
			ListingID:   fl.ID,
			ItemType:    fl.ItemType,
			ItemID:      fl.ItemID,
			Status:      string(fl.Status),
			Impressions: fl.Impressions,
			Clicks:      fl.Clicks,
			CTR:         ctr(fl.Clicks, fl.Impressions),
			PricePaid:   fl.PricePaid.Dollars(),
			EndDate:     fl.EndDate,
		})
	}
	report.OverallCTR = ctr(report.TotalClicks, report.TotalImpressions)

	return report, nil
}

// ctr returns the click-through rate as a percentage, zero-safe.
func ctr(clicks, impressions int64) float64 {
	if impressions == 0 {
		return 0
	}
	return float64(clicks) / float64(impressions) * 100
}
