package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nugl/monetization/internal/models"
)

// PostgresPartnerRepo implements PartnerRepo using PostgreSQL. All
// counter updates are single atomic UPDATE statements, never
// read-modify-write.
type PostgresPartnerRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresPartnerRepo creates a new PostgreSQL-backed partner repository.
func NewPostgresPartnerRepo(pool *pgxpool.Pool) *PostgresPartnerRepo {
	return &PostgresPartnerRepo{pool: pool}
}

const partnerColumns = `
	id, name, type, commission_rate, tracking_url, contact_email, status,
	total_clicks, total_conversions, total_revenue_cents, total_commission_cents, created_at`

func (r *PostgresPartnerRepo) GetPartner(ctx context.Context, id string) (*models.Partner, error) {
	p, err := scanPartner(r.pool.QueryRow(ctx,
		`SELECT `+partnerColumns+` FROM affiliate_partners WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get partner: %w", err)
	}
	return p, nil
}

func (r *PostgresPartnerRepo) FindByTrackingURL(ctx context.Context, url string) (*models.Partner, error) {
	if url == "" {
		return nil, nil
	}

	p, err := scanPartner(r.pool.QueryRow(ctx,
		`SELECT `+partnerColumns+` FROM affiliate_partners WHERE tracking_url = $1 LIMIT 1`, url))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find partner by tracking url: %w", err)
	}
	return p, nil
}

func (r *PostgresPartnerRepo) UpsertPartner(ctx context.Context, p *models.Partner) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO affiliate_partners (
			id, name, type, commission_rate, tracking_url, contact_email, status,
			total_clicks, total_conversions, total_revenue_cents, total_commission_cents, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			commission_rate = EXCLUDED.commission_rate,
			tracking_url = EXCLUDED.tracking_url,
			contact_email = EXCLUDED.contact_email,
			status = EXCLUDED.status
	`, p.ID, p.Name, p.Type, p.CommissionRate, p.TrackingURL, nullString(p.ContactEmail),
		string(p.Status), p.TotalClicks, p.TotalConversions,
		int64(p.TotalRevenue), int64(p.TotalCommission), p.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert partner: %w", err)
	}
	return nil
}

func (r *PostgresPartnerRepo) ListPartners(ctx context.Context) ([]*models.Partner, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+partnerColumns+` FROM affiliate_partners ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list partners: %w", err)
	}
	defer rows.Close()

	return collectPartners(rows)
}

func (r *PostgresPartnerRepo) TopByCommission(ctx context.Context, limit int) ([]*models.Partner, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+partnerColumns+` FROM affiliate_partners
		 ORDER BY total_commission_cents DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top partners: %w", err)
	}
	defer rows.Close()

	return collectPartners(rows)
}

func (r *PostgresPartnerRepo) IncrementClicks(ctx context.Context, id string) (bool, error) {
	ct, err := r.pool.Exec(ctx, `
		UPDATE affiliate_partners SET total_clicks = total_clicks + 1 WHERE id = $1
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to increment partner clicks: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *PostgresPartnerRepo) ApplyConversion(ctx context.Context, id string, revenue, commission models.Cents) (bool, error) {
	ct, err := r.pool.Exec(ctx, `
		UPDATE affiliate_partners
		SET total_conversions = total_conversions + 1,
		    total_revenue_cents = total_revenue_cents + $2,
		    total_commission_cents = total_commission_cents + $3
		WHERE id = $1
	`, id, int64(revenue), int64(commission))
	if err != nil {
		return false, fmt.Errorf("failed to apply conversion to partner: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (r *PostgresPartnerRepo) SetTotals(ctx context.Context, id string, clicks, conversions int64, revenue, commission models.Cents) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE affiliate_partners
		SET total_clicks = $2,
		    total_conversions = $3,
		    total_revenue_cents = $4,
		    total_commission_cents = $5
		WHERE id = $1
	`, id, clicks, conversions, int64(revenue), int64(commission))
	if err != nil {
		return fmt.Errorf("failed to set partner totals: %w", err)
	}
	return nil
}

func scanPartner(row rowScanner) (*models.Partner, error) {
	var (
		p                             models.Partner
		contactEmail                  *string
		status                        string
		revenueCents, commissionCents int64
	)
	err := row.Scan(&p.ID, &p.Name, &p.Type, &p.CommissionRate, &p.TrackingURL,
		&contactEmail, &status, &p.TotalClicks, &p.TotalConversions,
		&revenueCents, &commissionCents, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.ContactEmail = deref(contactEmail)
	p.Status = models.PartnerStatus(status)
	p.TotalRevenue = models.Cents(revenueCents)
	p.TotalCommission = models.Cents(commissionCents)
	return &p, nil
}

func collectPartners(rows pgx.Rows) ([]*models.Partner, error) {
	var partners []*models.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		partners = append(partners, p)
	}
	return partners, rows.Err()
}
