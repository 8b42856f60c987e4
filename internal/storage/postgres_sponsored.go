package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nugl/monetization/internal/models"
)

// PostgresSponsoredRepo implements SponsoredRepo using PostgreSQL.
type PostgresSponsoredRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresSponsoredRepo creates a new PostgreSQL-backed sponsored repository.
func NewPostgresSponsoredRepo(pool *pgxpool.Pool) *PostgresSponsoredRepo {
	return &PostgresSponsoredRepo{pool: pool}
}

const sponsoredColumns = `
	id, sponsor_id, sponsor_name, content_type, title, content, image_url,
	cta_text, cta_url, target_category, budget_cents, cost_per_impression_cents,
	cost_per_click_cents, impressions, clicks, total_spent_cents, status,
	start_date, end_date, created_at`

func (r *PostgresSponsoredRepo) CreateSponsoredContent(ctx context.Context, c *models.SponsoredContent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO sponsored_content (
			id, sponsor_id, sponsor_name, content_type, title, content, image_url,
			cta_text, cta_url, target_category, budget_cents, cost_per_impression_cents,
			cost_per_click_cents, impressions, clicks, total_spent_cents, status,
			start_date, end_date, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`, c.ID, c.SponsorID, nullString(c.SponsorName), c.ContentType, c.Title,
		nullString(c.Content), nullString(c.ImageURL), nullString(c.CTAText),
		nullString(c.CTAURL), c.TargetCategory, int64(c.Budget),
		int64(c.CostPerImpression), int64(c.CostPerClick),
		c.Impressions, c.Clicks, int64(c.TotalSpent), string(c.Status),
		c.StartDate, c.EndDate, c.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create sponsored content: %w", err)
	}
	return nil
}

func (r *PostgresSponsoredRepo) GetSponsoredContent(ctx context.Context, id string) (*models.SponsoredContent, error) {
	c, err := scanSponsored(r.pool.QueryRow(ctx,
		`SELECT `+sponsoredColumns+` FROM sponsored_content WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sponsored content: %w", err)
	}
	return c, nil
}

func (r *PostgresSponsoredRepo) ListActiveSponsoredContent(ctx context.Context, category string, limit int) ([]*models.SponsoredContent, error) {
	query := `SELECT ` + sponsoredColumns + ` FROM sponsored_content WHERE status = 'active'`
	args := []any{}
	if category != "" {
		query += ` AND target_category = $1`
		args = append(args, category)
	}
	query += fmt.Sprintf(` ORDER BY created_at LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sponsored content: %w", err)
	}
	defer rows.Close()

	return collectSponsored(rows)
}

func (r *PostgresSponsoredRepo) ListSponsoredBySponsor(ctx context.Context, sponsorID string) ([]*models.SponsoredContent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sponsoredColumns+` FROM sponsored_content WHERE sponsor_id = $1`, sponsorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sponsored content by sponsor: %w", err)
	}
	defer rows.Close()

	return collectSponsored(rows)
}

// ChargeImpression applies one impression charge as a single conditional
// update. The spend add, the counter increment and the completed
// transition are one statement, so the threshold decision is made on the
// post-increment value and can fire at most once.
func (r *PostgresSponsoredRepo) ChargeImpression(ctx context.Context, id string) (*ChargeResult, error) {
	return r.charge(ctx, id, "impressions", "cost_per_impression_cents")
}

// ChargeClick applies one click charge; same semantics as ChargeImpression.
func (r *PostgresSponsoredRepo) ChargeClick(ctx context.Context, id string) (*ChargeResult, error) {
	return r.charge(ctx, id, "clicks", "cost_per_click_cents")
}

func (r *PostgresSponsoredRepo) charge(ctx context.Context, id, counterCol, costCol string) (*ChargeResult, error) {
	var (
		cost, spent, budget int64
		status              string
	)
	// counterCol/costCol come from the two fixed call sites above, never
	// from user input.
	query := fmt.Sprintf(`
		UPDATE sponsored_content
		SET %[1]s = %[1]s + 1,
		    total_spent_cents = total_spent_cents + %[2]s,
		    status = CASE WHEN total_spent_cents + %[2]s >= budget_cents
		                  THEN 'completed' ELSE status END
		WHERE id = $1 AND status = 'active'
		RETURNING %[2]s, total_spent_cents, budget_cents, status
	`, counterCol, costCol)

	err := r.pool.QueryRow(ctx, query, id).Scan(&cost, &spent, &budget, &status)
	if err == pgx.ErrNoRows {
		return &ChargeResult{Matched: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to charge placement: %w", err)
	}

	return &ChargeResult{
		Matched:    true,
		Completed:  status == string(models.PlacementStatusCompleted),
		Cost:       models.Cents(cost),
		TotalSpent: models.Cents(spent),
		Budget:     models.Cents(budget),
	}, nil
}

const listingColumns = `
	id, item_type, item_id, sponsor_id, position, duration_days, price_paid_cents,
	impressions, clicks, status, start_date, end_date, created_at`

func (r *PostgresSponsoredRepo) CreateFeaturedListing(ctx context.Context, l *models.FeaturedListing) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO featured_listings (
			id, item_type, item_id, sponsor_id, position, duration_days,
			price_paid_cents, impressions, clicks, status, start_date, end_date, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, l.ID, l.ItemType, l.ItemID, l.SponsorID, l.Position, l.DurationDays,
		int64(l.PricePaid), l.Impressions, l.Clicks, string(l.Status),
		l.StartDate, l.EndDate, l.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create featured listing: %w", err)
	}
	return nil
}

func (r *PostgresSponsoredRepo) GetFeaturedListing(ctx context.Context, id string) (*models.FeaturedListing, error) {
	l, err := scanListing(r.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM featured_listings WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get featured listing: %w", err)
	}
	return l, nil
}

func (r *PostgresSponsoredRepo) ListFeaturedListings(ctx context.Context, itemType string, limit int, now time.Time) ([]*models.FeaturedListing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+listingColumns+` FROM featured_listings
		WHERE item_type = $1 AND status = 'active' AND end_date > $2
		ORDER BY position ASC LIMIT $3
	`, itemType, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list featured listings: %w", err)
	}
	defer rows.Close()

	return collectListings(rows)
}

func (r *PostgresSponsoredRepo) ListFeaturedBySponsor(ctx context.Context, sponsorID string) ([]*models.FeaturedListing, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM featured_listings WHERE sponsor_id = $1`, sponsorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list featured listings by sponsor: %w", err)
	}
	defer rows.Close()

	return collectListings(rows)
}

func (r *PostgresSponsoredRepo) IncrementListingImpressions(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE featured_listings SET impressions = impressions + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment listing impressions: %w", err)
	}
	return nil
}

func (r *PostgresSponsoredRepo) IncrementListingClicks(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE featured_listings SET clicks = clicks + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment listing clicks: %w", err)
	}
	return nil
}

func scanSponsored(row rowScanner) (*models.SponsoredContent, error) {
	var (
		c                              models.SponsoredContent
		sponsorName, content, imageURL *string
		ctaText, ctaURL                *string
		budget, cpi, cpc, spent        int64
		status                         string
	)
	err := row.Scan(&c.ID, &c.SponsorID, &sponsorName, &c.ContentType, &c.Title,
		&content, &imageURL, &ctaText, &ctaURL, &c.TargetCategory,
		&budget, &cpi, &cpc, &c.Impressions, &c.Clicks, &spent,
		&status, &c.StartDate, &c.EndDate, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.SponsorName = deref(sponsorName)
	c.Content = deref(content)
	c.ImageURL = deref(imageURL)
	c.CTAText = deref(ctaText)
	c.CTAURL = deref(ctaURL)
	c.Budget = models.Cents(budget)
	c.CostPerImpression = models.Cents(cpi)
	c.CostPerClick = models.Cents(cpc)
	c.TotalSpent = models.Cents(spent)
	c.Status = models.PlacementStatus(status)
	return &c, nil
}

func collectSponsored(rows pgx.Rows) ([]*models.SponsoredContent, error) {
	var res []*models.SponsoredContent
	for rows.Next() {
		c, err := scanSponsored(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func scanListing(row rowScanner) (*models.FeaturedListing, error) {
	var (
		l      models.FeaturedListing
		price  int64
		status string
	)
	err := row.Scan(&l.ID, &l.ItemType, &l.ItemID, &l.SponsorID, &l.Position,
		&l.DurationDays, &price, &l.Impressions, &l.Clicks, &status,
		&l.StartDate, &l.EndDate, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.PricePaid = models.Cents(price)
	l.Status = models.PlacementStatus(status)
	return &l, nil
}

func collectListings(rows pgx.Rows) ([]*models.FeaturedListing, error) {
	var res []*models.FeaturedListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
