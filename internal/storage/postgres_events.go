package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nugl/monetization/internal/models"
)

// PostgresEventStore implements EventStore using PostgreSQL.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEventStore creates a new PostgreSQL-backed event store.
func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

// SaveClick stores an affiliate click event.
func (s *PostgresEventStore) SaveClick(ctx context.Context, click *models.Click) error {
	if click == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO affiliate_clicks (
			id, partner_id, affiliate_type, affiliate_link, item_id, user_id,
			source_page, referrer, ip_address, user_agent,
			geo_country, geo_region, geo_city,
			converted, conversion_value_cents, commission_earned_cents, clicked_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO NOTHING
	`, click.ID, click.PartnerID, click.AffiliateType, nullString(click.AffiliateLink),
		nullString(click.ItemID), nullString(click.UserID),
		nullString(click.SourcePage), nullString(click.Referrer),
		nullString(click.IPAddress), nullString(click.UserAgent),
		nullString(click.GeoCountry), nullString(click.GeoRegion), nullString(click.GeoCity),
		click.Converted, int64(click.ConversionValue), int64(click.CommissionEarned), click.ClickedAt)

	if err != nil {
		return fmt.Errorf("failed to save click: %w", err)
	}
	return nil
}

// GetClick retrieves a click by ID.
func (s *PostgresEventStore) GetClick(ctx context.Context, id string) (*models.Click, error) {
	var (
		click                          models.Click
		link, itemID, userID           *string
		sourcePage, referrer, ip, ua   *string
		geoCountry, geoRegion, geoCity *string
		valueCents, commissionCents    int64
	)

	err := s.pool.QueryRow(ctx, `
		SELECT id, partner_id, affiliate_type, affiliate_link, item_id, user_id,
		       source_page, referrer, ip_address, user_agent,
		       geo_country, geo_region, geo_city,
		       converted, conversion_value_cents, commission_earned_cents, clicked_at
		FROM affiliate_clicks WHERE id = $1
	`, id).Scan(&click.ID, &click.PartnerID, &click.AffiliateType, &link, &itemID, &userID,
		&sourcePage, &referrer, &ip, &ua,
		&geoCountry, &geoRegion, &geoCity,
		&click.Converted, &valueCents, &commissionCents, &click.ClickedAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get click: %w", err)
	}

	click.AffiliateLink = deref(link)
	click.ItemID = deref(itemID)
	click.UserID = deref(userID)
	click.SourcePage = deref(sourcePage)
	click.Referrer = deref(referrer)
	click.IPAddress = deref(ip)
	click.UserAgent = deref(ua)
	click.GeoCountry = deref(geoCountry)
	click.GeoRegion = deref(geoRegion)
	click.GeoCity = deref(geoCity)
	click.ConversionValue = models.Cents(valueCents)
	click.CommissionEarned = models.Cents(commissionCents)

	return &click, nil
}

// MarkClickConverted conditionally flips the converted flag. The
// converted = FALSE predicate is the uniqueness guard: under concurrent
// conversion attempts only one update matches.
func (s *PostgresEventStore) MarkClickConverted(ctx context.Context, id string, value, commission models.Cents) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE affiliate_clicks
		SET converted = TRUE,
		    conversion_value_cents = $2,
		    commission_earned_cents = $3
		WHERE id = $1 AND converted = FALSE
	`, id, int64(value), int64(commission))

	if err != nil {
		return false, fmt.Errorf("failed to mark click converted: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

// CountClicksSince counts clicks in the trailing window.
func (s *PostgresEventStore) CountClicksSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM affiliate_clicks WHERE clicked_at >= $1
	`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count clicks: %w", err)
	}
	return count, nil
}

// ListClicks returns the click log, newest first.
func (s *PostgresEventStore) ListClicks(ctx context.Context) ([]*models.Click, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, partner_id, affiliate_type, converted,
		       conversion_value_cents, commission_earned_cents, clicked_at
		FROM affiliate_clicks ORDER BY clicked_at DESC LIMIT 100000
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clicks: %w", err)
	}
	defer rows.Close()

	var clicks []*models.Click
	for rows.Next() {
		var (
			click                       models.Click
			valueCents, commissionCents int64
		)
		if err := rows.Scan(&click.ID, &click.PartnerID, &click.AffiliateType,
			&click.Converted, &valueCents, &commissionCents, &click.ClickedAt); err != nil {
			return nil, err
		}
		click.ConversionValue = models.Cents(valueCents)
		click.CommissionEarned = models.Cents(commissionCents)
		clicks = append(clicks, &click)
	}

	return clicks, rows.Err()
}

// SaveConversion stores a conversion event.
func (s *PostgresEventStore) SaveConversion(ctx context.Context, conv *models.Conversion) error {
	if conv == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO affiliate_conversions (
			id, click_id, partner_id, affiliate_type, user_id,
			sale_value_cents, commission_rate, commission_amount_cents,
			status, converted_at, paid_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, conv.ID, conv.ClickID, nullString(conv.PartnerID), conv.AffiliateType,
		nullString(conv.UserID), int64(conv.SaleValue), conv.CommissionRate,
		int64(conv.CommissionAmount), string(conv.Status), conv.ConvertedAt, conv.PaidAt)

	if err != nil {
		return fmt.Errorf("failed to save conversion: %w", err)
	}
	return nil
}

// GetConversion retrieves a conversion by ID.
func (s *PostgresEventStore) GetConversion(ctx context.Context, id string) (*models.Conversion, error) {
	conv, err := scanConversion(s.pool.QueryRow(ctx, `
		SELECT id, click_id, partner_id, affiliate_type, user_id,
		       sale_value_cents, commission_rate, commission_amount_cents,
		       status, converted_at, paid_at
		FROM affiliate_conversions WHERE id = $1
	`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversion: %w", err)
	}
	return conv, nil
}

// CountConversionsSince counts conversions in the trailing window.
func (s *PostgresEventStore) CountConversionsSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM affiliate_conversions WHERE converted_at >= $1
	`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count conversions: %w", err)
	}
	return count, nil
}

// SumConversionsSince totals sale value and commission in the window.
func (s *PostgresEventStore) SumConversionsSince(ctx context.Context, since time.Time) (models.Cents, models.Cents, error) {
	var revenue, commission int64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(sale_value_cents), 0), COALESCE(SUM(commission_amount_cents), 0)
		FROM affiliate_conversions WHERE converted_at >= $1
	`, since).Scan(&revenue, &commission)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum conversions: %w", err)
	}
	return models.Cents(revenue), models.Cents(commission), nil
}

// ListRecentConversions returns the most recent conversions.
func (s *PostgresEventStore) ListRecentConversions(ctx context.Context, limit int) ([]*models.Conversion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, click_id, partner_id, affiliate_type, user_id,
		       sale_value_cents, commission_rate, commission_amount_cents,
		       status, converted_at, paid_at
		FROM affiliate_conversions ORDER BY converted_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent conversions: %w", err)
	}
	defer rows.Close()

	return collectConversions(rows)
}

// ListConversions returns the conversion log.
func (s *PostgresEventStore) ListConversions(ctx context.Context) ([]*models.Conversion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, click_id, partner_id, affiliate_type, user_id,
		       sale_value_cents, commission_rate, commission_amount_cents,
		       status, converted_at, paid_at
		FROM affiliate_conversions ORDER BY converted_at DESC LIMIT 100000
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversions: %w", err)
	}
	defer rows.Close()

	return collectConversions(rows)
}

// SaveAdImpression stores an ad impression event.
func (s *PostgresEventStore) SaveAdImpression(ctx context.Context, imp *models.AdImpression) error {
	if imp == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ad_impressions (id, content_id, content_type, user_id, ip_address, user_agent, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, imp.ID, imp.ContentID, string(imp.ContentType), nullString(imp.UserID),
		nullString(imp.IPAddress), nullString(imp.UserAgent), imp.Timestamp)

	if err != nil {
		return fmt.Errorf("failed to save ad impression: %w", err)
	}
	return nil
}

// SaveAdClick stores an ad click event.
func (s *PostgresEventStore) SaveAdClick(ctx context.Context, click *models.AdClick) error {
	if click == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO ad_clicks (id, content_id, content_type, user_id, ip_address, user_agent, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`, click.ID, click.ContentID, string(click.ContentType), nullString(click.UserID),
		nullString(click.IPAddress), nullString(click.UserAgent), click.Timestamp)

	if err != nil {
		return fmt.Errorf("failed to save ad click: %w", err)
	}
	return nil
}

// ---- scan helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversion(row rowScanner) (*models.Conversion, error) {
	var (
		conv                       models.Conversion
		partnerID, userID          *string
		saleCents, commissionCents int64
		status                     string
	)
	err := row.Scan(&conv.ID, &conv.ClickID, &partnerID, &conv.AffiliateType, &userID,
		&saleCents, &conv.CommissionRate, &commissionCents,
		&status, &conv.ConvertedAt, &conv.PaidAt)
	if err != nil {
		return nil, err
	}
	conv.PartnerID = deref(partnerID)
	conv.UserID = deref(userID)
	conv.SaleValue = models.Cents(saleCents)
	conv.CommissionAmount = models.Cents(commissionCents)
	conv.Status = models.ConversionStatus(status)
	return &conv, nil
}

func collectConversions(rows pgx.Rows) ([]*models.Conversion, error) {
	var conversions []*models.Conversion
	for rows.Next() {
		conv, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		conversions = append(conversions, conv)
	}
	return conversions, rows.Err()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
