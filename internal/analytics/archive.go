package analytics

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/nugl/monetization/internal/models"
)

// Archive mirrors monetization events into ClickHouse for offline
// analysis. It is strictly best-effort: the Postgres event log stays the
// source of truth and every archive failure is logged and dropped.
type Archive struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewArchive creates a ClickHouse-backed event archive.
func NewArchive(conn driver.Conn, logger *zap.Logger) *Archive {
	return &Archive{conn: conn, logger: logger}
}

// ArchiveClick mirrors an affiliate click.
func (a *Archive) ArchiveClick(ctx context.Context, click *models.Click) {
	err := a.conn.Exec(ctx, `
		INSERT INTO affiliate_clicks
			(id, partner_id, affiliate_type, item_id, user_id, source_page, geo_country, clicked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, click.ID, click.PartnerID, click.AffiliateType, click.ItemID,
		click.UserID, click.SourcePage, click.GeoCountry, click.ClickedAt)
	if err != nil {
		a.logger.Warn("failed to archive click", zap.Error(err), zap.String("click_id", click.ID))
	}
}

// ArchiveConversion mirrors a conversion.
func (a *Archive) ArchiveConversion(ctx context.Context, conv *models.Conversion) {
	err := a.conn.Exec(ctx, `
		INSERT INTO affiliate_conversions
			(id, click_id, partner_id, affiliate_type, sale_value_cents, commission_amount_cents, converted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, conv.ID, conv.ClickID, conv.PartnerID, conv.AffiliateType,
		int64(conv.SaleValue), int64(conv.CommissionAmount), conv.ConvertedAt)
	if err != nil {
		a.logger.Warn("failed to archive conversion", zap.Error(err), zap.String("conversion_id", conv.ID))
	}
}

// ArchiveAdEvent mirrors an ad impression or click.
func (a *Archive) ArchiveAdEvent(ctx context.Context, kind string, contentID string, contentType models.PlacementType, userID string, ts time.Time) {
	err := a.conn.Exec(ctx, `
		INSERT INTO ad_events (kind, content_id, content_type, user_id, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, kind, contentID, string(contentType), userID, ts)
	if err != nil {
		a.logger.Warn("failed to archive ad event", zap.Error(err), zap.String("content_id", contentID))
	}
}
