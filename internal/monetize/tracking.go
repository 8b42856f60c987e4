package monetize

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nugl/monetization/internal/analytics"
	"github.com/nugl/monetization/internal/geo"
	"github.com/nugl/monetization/internal/metrics"
	"github.com/nugl/monetization/internal/models"
	"github.com/nugl/monetization/internal/storage"
)

// ClickInput carries the request-level attributes of an affiliate click.
type ClickInput struct {
	PartnerID     string
	AffiliateType string
	AffiliateLink string
	ItemID        string
	UserID        string
	SourcePage    string
	Referrer      string
	IPAddress     string
	UserAgent     string
}

// ClickTracker records outbound affiliate clicks. Tracking is telemetry:
// a failure must never break the user's redirect, so every error is
// logged and swallowed and the caller gets an empty click ID back.
type ClickTracker struct {
	events   storage.EventStore
	partners storage.PartnerRepo
	geo      geo.Resolver
	archive  *analytics.Archive
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewClickTracker constructs a ClickTracker. The geo resolver and
// archive are optional.
func NewClickTracker(events storage.EventStore, partners storage.PartnerRepo, resolver geo.Resolver, archive *analytics.Archive, logger *zap.Logger, m *metrics.Metrics) *ClickTracker {
	return &ClickTracker{
		events:   events,
		partners: partners,
		geo:      resolver,
		archive:  archive,
		logger:   logger,
		metrics:  m,
	}
}

// TrackClick records an affiliate click event and bumps the matched
// partner's click counter. It returns the click ID, or the empty string
// when the event could not be recorded.
func (t *ClickTracker) TrackClick(ctx context.Context, in ClickInput) string {
	click := &models.Click{
		ID:            uuid.NewString(),
		ClickedAt:     time.Now().UTC(),
		PartnerID:     in.PartnerID,
		AffiliateType: in.AffiliateType,
		AffiliateLink: in.AffiliateLink,
		ItemID:        in.ItemID,
		UserID:        in.UserID,
		SourcePage:    in.SourcePage,
		Referrer:      in.Referrer,
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
	}

	if click.PartnerID == "" && in.AffiliateLink != "" {
		if p, err := t.partners.FindByTrackingURL(ctx, in.AffiliateLink); err == nil && p != nil {
			click.PartnerID = p.ID
		}
	}

	t.enrichGeo(click)

	if err := click.Validate(); err != nil {
		t.logger.Warn("failed to track click", zap.Error(err),
			zap.String("affiliate_type", in.AffiliateType))
		return ""
	}

	if err := t.events.SaveClick(ctx, click); err != nil {
		t.logger.Error("failed to save click", zap.Error(err),
			zap.String("click_id", click.ID))
		if t.metrics != nil {
			t.metrics.RecordStoreError("save_click")
		}
		return ""
	}

	t.bumpPartner(ctx, click)

	if t.archive != nil {
		t.archive.ArchiveClick(ctx, click)
	}
	if t.metrics != nil {
		t.metrics.RecordClick(click.AffiliateType)
	}

	t.logger.Debug("click tracked",
		zap.String("click_id", click.ID),
		zap.String("partner_id", click.PartnerID),
		zap.String("affiliate_type", click.AffiliateType),
	)
	return click.ID
}

// enrichGeo fills geo fields from the click IP. Lookup failures leave
// the fields empty.
func (t *ClickTracker) enrichGeo(click *models.Click) {
	if t.geo == nil || click.IPAddress == "" {
		return
	}
	info, err := t.geo.Lookup(click.IPAddress)
	if err != nil {
		t.logger.Debug("geo lookup failed", zap.Error(err), zap.String("ip", click.IPAddress))
		return
	}
	click.GeoCountry = info.Country
	click.GeoRegion = info.Region
	click.GeoCity = info.City
}

// bumpPartner increments the partner click aggregate. A missing partner
// is a partial success: the event log already has the click.
func (t *ClickTracker) bumpPartner(ctx context.Context, click *models.Click) {
	if click.PartnerID == "" {
		if t.metrics != nil {
			t.metrics.AttributionMisses.WithLabelValues("click").Inc()
		}
		return
	}
	matched, err := t.partners.IncrementClicks(ctx, click.PartnerID)
	if err != nil {
		t.logger.Error("failed to increment partner clicks", zap.Error(err),
			zap.String("partner_id", click.PartnerID))
		if t.metrics != nil {
			t.metrics.RecordStoreError("increment_clicks")
		}
		return
	}
	if !matched {
		t.logger.Debug("click partner not found",
			zap.String("partner_id", click.PartnerID),
			zap.String("click_id", click.ID))
		if t.metrics != nil {
			t.metrics.AttributionMisses.WithLabelValues("click").Inc()
		}
	}
}
