package monetize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nugl/monetization/internal/analytics"
	"github.com/nugl/monetization/internal/metrics"
	"github.com/nugl/monetization/internal/models"
	"github.com/nugl/monetization/internal/storage"
)

var (
	// ErrClickNotFound is returned when a conversion references an
	// unknown click.
	ErrClickNotFound = errors.New("click not found")
	// ErrAlreadyConverted is returned when the referenced click has
	// already been attributed a conversion.
	ErrAlreadyConverted = errors.New("click already converted")
)

// ConversionRecorder attributes purchases back to affiliate clicks.
// Unlike click tracking, recording a conversion moves money, so every
// failure is surfaced to the caller.
type ConversionRecorder struct {
	events   storage.EventStore
	partners storage.PartnerRepo
	archive  *analytics.Archive
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewConversionRecorder constructs a ConversionRecorder.
func NewConversionRecorder(events storage.EventStore, partners storage.PartnerRepo, archive *analytics.Archive, logger *zap.Logger, m *metrics.Metrics) *ConversionRecorder {
	return &ConversionRecorder{
		events:   events,
		partners: partners,
		archive:  archive,
		logger:   logger,
		metrics:  m,
	}
}

// RecordConversion attributes a sale to a click and returns the new
// conversion ID. commissionRate is a percentage; when zero, the
// partner's configured rate is used. Each click converts at most once:
// the converted flag on the click is flipped with a conditional update
// before the conversion row is written, so a concurrent duplicate loses
// the race and gets ErrAlreadyConverted.
func (r *ConversionRecorder) RecordConversion(ctx context.Context, clickID string, saleValue models.Cents, commissionRate float64) (string, error) {
	if clickID == "" {
		return "", errors.New("click ID is required")
	}
	if saleValue < 0 {
		return "", errors.New("sale value must not be negative")
	}
	if commissionRate < 0 || commissionRate > 100 {
		return "", errors.New("commission rate must be between 0 and 100")
	}

	click, err := r.events.GetClick(ctx, clickID)
	if err != nil {
		return "", fmt.Errorf("failed to load click: %w", err)
	}
	if click == nil {
		return "", ErrClickNotFound
	}

	if commissionRate == 0 && click.PartnerID != "" {
		if p, err := r.partners.GetPartner(ctx, click.PartnerID); err == nil && p != nil {
			commissionRate = p.CommissionRate
		}
	}
	commission := models.Commission(saleValue, commissionRate)

	// Claim the click first. This is the double-conversion guard: the
	// update matches only while converted is still false.
	claimed, err := r.events.MarkClickConverted(ctx, clickID, saleValue, commission)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordStoreError("mark_converted")
		}
		return "", fmt.Errorf("failed to mark click converted: %w", err)
	}
	if !claimed {
		return "", ErrAlreadyConverted
	}

	conv := &models.Conversion{
		ID:               uuid.NewString(),
		ConvertedAt:      time.Now().UTC(),
		ClickID:          clickID,
		PartnerID:        click.PartnerID,
		AffiliateType:    click.AffiliateType,
		UserID:           click.UserID,
		SaleValue:        saleValue,
		CommissionRate:   commissionRate,
		CommissionAmount: commission,
		Status:           models.ConversionStatusPending,
	}
	if err := r.events.SaveConversion(ctx, conv); err != nil {
		if r.metrics != nil {
			r.metrics.RecordStoreError("save_conversion")
		}
		return "", fmt.Errorf("failed to save conversion: %w", err)
	}

	r.applyToPartner(ctx, conv)

	if r.archive != nil {
		r.archive.ArchiveConversion(ctx, conv)
	}
	if r.metrics != nil {
		r.metrics.RecordConversion(conv.AffiliateType, int64(saleValue), int64(commission))
	}

	r.logger.Info("conversion recorded",
		zap.String("conversion_id", conv.ID),
		zap.String("click_id", clickID),
		zap.String("partner_id", conv.PartnerID),
		zap.String("sale_value", saleValue.String()),
		zap.String("commission", commission.String()),
	)
	return conv.ID, nil
}

// applyToPartner folds the conversion into the partner aggregates. The
// partner is looked up by the click's stored partner ID; a miss leaves
// the event log intact and is only logged.
func (r *ConversionRecorder) applyToPartner(ctx context.Context, conv *models.Conversion) {
	if conv.PartnerID == "" {
		if r.metrics != nil {
			r.metrics.AttributionMisses.WithLabelValues("conversion").Inc()
		}
		return
	}
	matched, err := r.partners.ApplyConversion(ctx, conv.PartnerID, conv.SaleValue, conv.CommissionAmount)
	if err != nil {
		r.logger.Error("failed to apply conversion to partner", zap.Error(err),
			zap.String("partner_id", conv.PartnerID))
		if r.metrics != nil {
			r.metrics.RecordStoreError("apply_conversion")
		}
		return
	}
	if !matched {
		r.logger.Warn("conversion partner not found",
			zap.String("partner_id", conv.PartnerID),
			zap.String("conversion_id", conv.ID))
		if r.metrics != nil {
			r.metrics.AttributionMisses.WithLabelValues("conversion").Inc()
		}
	}
}
