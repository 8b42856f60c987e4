package models

import (
	"errors"
	"time"
)

// ===========================================
// AFFILIATE CLICK EVENT
// ===========================================

// Click is one recorded visit through an affiliate link. It is created
// exactly once and updated at most once (when a conversion is attributed);
// it is never deleted in normal operation.
type Click struct {
	ID        string    `json:"id"`
	ClickedAt time.Time `json:"clicked_at"`

	// Partner info
	PartnerID     string `json:"partner_id"`
	AffiliateType string `json:"affiliate_type"` // dispensary, seeds, casino, news, retail
	AffiliateLink string `json:"affiliate_link,omitempty"`

	// Optional associations
	ItemID string `json:"item_id,omitempty"` // strain, seed or product id
	UserID string `json:"user_id,omitempty"`

	// Request metadata
	SourcePage string `json:"source_page,omitempty"`
	Referrer   string `json:"referrer,omitempty"`
	IPAddress  string `json:"ip_address,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`

	// Geo info (resolved from IP when a GeoIP database is configured)
	GeoCountry string `json:"geo_country,omitempty"`
	GeoRegion  string `json:"geo_region,omitempty"`
	GeoCity    string `json:"geo_city,omitempty"`

	// Conversion outcome, set once by the conversion recorder
	Converted        bool  `json:"converted"`
	ConversionValue  Cents `json:"conversion_value_cents"`
	CommissionEarned Cents `json:"commission_earned_cents"`
}

func (c *Click) Validate() error {
	if c.PartnerID == "" {
		return errors.New("partner_id is required")
	}
	if c.AffiliateType == "" {
		return errors.New("affiliate_type is required")
	}
	return nil
}

// ===========================================
// CONVERSION EVENT
// ===========================================

type ConversionStatus string

const (
	ConversionStatusPending  ConversionStatus = "pending"
	ConversionStatusApproved ConversionStatus = "approved"
	ConversionStatusPaid     ConversionStatus = "paid"
)

// Conversion is a confirmed sale attributed to exactly one click.
// CommissionAmount is always recomputed from SaleValue and CommissionRate,
// never supplied by the caller.
type Conversion struct {
	ID          string    `json:"id"`
	ConvertedAt time.Time `json:"converted_at"`

	ClickID       string `json:"click_id"`
	PartnerID     string `json:"partner_id,omitempty"` // denormalized from the click
	AffiliateType string `json:"affiliate_type"`
	UserID        string `json:"user_id,omitempty"`

	SaleValue        Cents   `json:"sale_value_cents"`
	CommissionRate   float64 `json:"commission_rate"` // percentage, 0-100
	CommissionAmount Cents   `json:"commission_amount_cents"`

	Status ConversionStatus `json:"status"`
	PaidAt *time.Time       `json:"paid_at,omitempty"`
}

// ===========================================
// AFFILIATE PARTNER
// ===========================================

type PartnerStatus string

const (
	PartnerStatusActive     PartnerStatus = "active"
	PartnerStatusPaused     PartnerStatus = "paused"
	PartnerStatusTerminated PartnerStatus = "terminated"
)

// Partner is a registered affiliate program. The running totals are an
// eventually-consistent materialized view of the click/conversion log;
// the event log stays authoritative and the totals can be rebuilt from it.
type Partner struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Type           string        `json:"type"`
	CommissionRate float64       `json:"commission_rate"`
	TrackingURL    string        `json:"tracking_url"`
	ContactEmail   string        `json:"contact_email,omitempty"`
	Status         PartnerStatus `json:"status"`

	TotalClicks      int64 `json:"total_clicks"`
	TotalConversions int64 `json:"total_conversions"`
	TotalRevenue     Cents `json:"total_revenue_cents"`
	TotalCommission  Cents `json:"total_commission_cents"`

	CreatedAt time.Time `json:"created_at"`
}

func (p *Partner) Validate() error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.CommissionRate < 0 || p.CommissionRate > 100 {
		return errors.New("commission_rate must be between 0 and 100")
	}
	return nil
}
