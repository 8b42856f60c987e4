package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nugl/monetization/internal/analytics"
	"github.com/nugl/monetization/internal/config"
	"github.com/nugl/monetization/internal/database"
	"github.com/nugl/monetization/internal/geo"
	"github.com/nugl/monetization/internal/metrics"
	"github.com/nugl/monetization/internal/models"
	"github.com/nugl/monetization/internal/monetize"
	"github.com/nugl/monetization/internal/storage"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	DB         *database.PostgresDB
	Redis      *database.RedisDB
	ClickHouse *database.ClickHouseDB
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Server wraps HTTP handlers and monetization services.
type Server struct {
	tracker    *monetize.ClickTracker
	recorder   *monetize.ConversionRecorder
	stats      *monetize.StatsAggregator
	ledger     *monetize.BudgetLedger
	reconciler *monetize.Reconciler
	partners   storage.PartnerRepo
	deps       *Dependencies
	logger     *zap.Logger
	config     *config.Config
	metrics    *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	// Initialize repositories
	var (
		eventStore    storage.EventStore
		partnerRepo   storage.PartnerRepo
		sponsoredRepo storage.SponsoredRepo
	)
	if deps.DB != nil {
		eventStore = storage.NewPostgresEventStore(deps.DB.Pool)
		partnerRepo = storage.NewPostgresPartnerRepo(deps.DB.Pool)
		sponsoredRepo = storage.NewPostgresSponsoredRepo(deps.DB.Pool)
	} else {
		eventStore = storage.NewInMemoryEventStore()
		partnerRepo = storage.NewInMemoryPartnerRepo()
		sponsoredRepo = storage.NewInMemorySponsoredRepo()
	}

	// Geo enrichment is optional
	var resolver geo.Resolver
	if deps.Config.Geo.Enabled {
		r, err := geo.NewMaxMindResolver(deps.Config.Geo.DatabasePath)
		if err != nil {
			deps.Logger.Warn("failed to initialize geo resolver, clicks will not be geo-enriched", zap.Error(err))
		} else {
			resolver = r
		}
	}

	// ClickHouse archive is optional
	var archive *analytics.Archive
	if deps.ClickHouse != nil {
		archive = analytics.NewArchive(deps.ClickHouse.Conn, deps.Logger)
	}

	var statsAgg *monetize.StatsAggregator
	if deps.Redis != nil {
		statsAgg = monetize.NewStatsAggregator(eventStore, partnerRepo, deps.Redis.Client, deps.Config.Stats.CacheTTL, deps.Logger, deps.Metrics)
	} else {
		statsAgg = monetize.NewStatsAggregator(eventStore, partnerRepo, nil, 0, deps.Logger, deps.Metrics)
	}

	s := &Server{
		tracker:    monetize.NewClickTracker(eventStore, partnerRepo, resolver, archive, deps.Logger, deps.Metrics),
		recorder:   monetize.NewConversionRecorder(eventStore, partnerRepo, archive, deps.Logger, deps.Metrics),
		stats:      statsAgg,
		ledger:     monetize.NewBudgetLedger(sponsoredRepo, eventStore, archive, deps.Config.Ledger, deps.Logger, deps.Metrics),
		reconciler: monetize.NewReconciler(eventStore, partnerRepo, deps.Logger),
		partners:   partnerRepo,
		deps:       deps,
		logger:     deps.Logger,
		config:     deps.Config,
		metrics:    deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Affiliate tracking
	mux.HandleFunc("/affiliate/click", s.handleAffiliateClick)
	mux.HandleFunc("/affiliate/conversion", s.handleAffiliateConversion)
	mux.HandleFunc("/affiliate/stats", s.handleAffiliateStats)

	// Partners
	mux.HandleFunc("/partners", s.handlePartners)
	mux.HandleFunc("/partners/", s.handlePartnerByID)

	// Sponsored placements
	mux.HandleFunc("/sponsored/content", s.handleCreateSponsored)
	mux.HandleFunc("/sponsored/active", s.handleActiveSponsored)
	mux.HandleFunc("/featured/listing", s.handleCreateListing)
	mux.HandleFunc("/featured/listings", s.handleFeaturedListings)
	mux.HandleFunc("/sponsors/", s.handleSponsorAnalytics)

	// Ad telemetry
	mux.HandleFunc("/ads/impression", s.handleAdImpression)
	mux.HandleFunc("/ads/click", s.handleAdClick)

	// Admin
	mux.HandleFunc("/admin/reconcile", s.handleReconcile)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok"}
	if s.deps.DB != nil {
		if err := s.deps.DB.Health(r.Context()); err != nil {
			status["status"] = "degraded"
			status["postgres"] = err.Error()
		} else {
			st := s.deps.DB.PoolStats()
			status["postgres"] = map[string]int32{
				"total_conns": st.TotalConns(),
				"idle_conns":  st.IdleConns(),
			}
		}
	}
	if s.deps.Redis != nil {
		if err := s.deps.Redis.Health(r.Context()); err != nil {
			status["status"] = "degraded"
			status["redis"] = err.Error()
		}
	}
	s.jsonResponse(w, status)
}

// ---- Affiliate tracking ----

type clickRequest struct {
	PartnerID     string `json:"partner_id"`
	AffiliateType string `json:"affiliate_type"`
	AffiliateLink string `json:"affiliate_link"`
	ItemID        string `json:"item_id"`
	UserID        string `json:"user_id"`
	SourcePage    string `json:"source_page"`
	Referrer      string `json:"referrer"`
}

func (s *Server) handleAffiliateClick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req clickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	clickID := s.tracker.TrackClick(r.Context(), monetize.ClickInput{
		PartnerID:     req.PartnerID,
		AffiliateType: req.AffiliateType,
		AffiliateLink: req.AffiliateLink,
		ItemID:        req.ItemID,
		UserID:        req.UserID,
		SourcePage:    req.SourcePage,
		Referrer:      req.Referrer,
		IPAddress:     clientIP(r),
		UserAgent:     r.UserAgent(),
	})

	// Tracking is fire-and-forget from the caller's perspective; an
	// empty click_id means the event was dropped.
	s.jsonResponse(w, map[string]string{"click_id": clickID})
}

type conversionRequest struct {
	ClickID        string  `json:"click_id"`
	SaleValue      float64 `json:"sale_value"`
	CommissionRate float64 `json:"commission_rate"`
}

func (s *Server) handleAffiliateConversion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req conversionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	convID, err := s.recorder.RecordConversion(r.Context(), req.ClickID,
		models.CentsFromFloat(req.SaleValue), req.CommissionRate)
	if err != nil {
		switch {
		case errors.Is(err, monetize.ErrClickNotFound):
			s.errorResponse(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, monetize.ErrAlreadyConverted):
			s.errorResponse(w, err.Error(), http.StatusConflict)
		default:
			s.logger.Error("conversion error", zap.Error(err))
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{"conversion_id": convID})
}

func (s *Server) handleAffiliateStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	days := s.config.Stats.DefaultWindowDays
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 {
			s.errorResponse(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	stats, err := s.stats.GetAffiliateStats(r.Context(), days)
	if err != nil {
		s.logger.Error("failed to compute affiliate stats", zap.Error(err))
		s.errorResponse(w, "failed to compute stats", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, stats)
}

// ---- Partners ----

func (s *Server) handlePartners(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := s.partners.ListPartners(r.Context())
		if err != nil {
			s.errorResponse(w, "failed to list partners", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, list)

	case http.MethodPost:
		var p models.Partner
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			s.errorResponse(w, "invalid json", http.StatusBadRequest)
			return
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Status == "" {
			p.Status = models.PartnerStatusActive
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = time.Now().UTC()
		}
		if err := p.Validate(); err != nil {
			s.errorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.partners.UpsertPartner(r.Context(), &p); err != nil {
			s.errorResponse(w, "failed to save partner", http.StatusInternalServerError)
			return
		}
		s.jsonResponse(w, p)

	default:
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handlePartnerByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/partners/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p, err := s.partners.GetPartner(r.Context(), id)
	if err != nil {
		s.errorResponse(w, "failed to get partner", http.StatusInternalServerError)
		return
	}
	if p == nil {
		http.NotFound(w, r)
		return
	}
	s.jsonResponse(w, p)
}

// ---- Sponsored placements ----

type sponsoredContentRequest struct {
	SponsorID         string  `json:"sponsor_id"`
	SponsorName       string  `json:"sponsor_name"`
	ContentType       string  `json:"content_type"`
	Title             string  `json:"title"`
	Content           string  `json:"content"`
	ImageURL          string  `json:"image_url"`
	CTAText           string  `json:"cta_text"`
	CTAURL            string  `json:"cta_url"`
	TargetCategory    string  `json:"target_category"`
	Budget            float64 `json:"budget"`
	CostPerImpression float64 `json:"cost_per_impression"`
	CostPerClick      float64 `json:"cost_per_click"`
	EndDate           *string `json:"end_date"`
}

func (s *Server) handleCreateSponsored(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req sponsoredContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	sc := &models.SponsoredContent{
		SponsorID:         req.SponsorID,
		SponsorName:       req.SponsorName,
		ContentType:       req.ContentType,
		Title:             req.Title,
		Content:           req.Content,
		ImageURL:          req.ImageURL,
		CTAText:           req.CTAText,
		CTAURL:            req.CTAURL,
		TargetCategory:    req.TargetCategory,
		Budget:            models.CentsFromFloat(req.Budget),
		CostPerImpression: models.CentsFromFloat(req.CostPerImpression),
		CostPerClick:      models.CentsFromFloat(req.CostPerClick),
	}
	if req.EndDate != nil {
		t, err := time.Parse("2006-01-02", *req.EndDate)
		if err != nil {
			s.errorResponse(w, "end_date must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		sc.EndDate = &t
	}

	if err := s.ledger.CreateSponsoredContent(r.Context(), sc); err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(sc)
}

func (s *Server) handleActiveSponsored(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	category := r.URL.Query().Get("category")
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, _ = strconv.Atoi(l)
	}

	list, err := s.ledger.GetActiveSponsoredContent(r.Context(), category, limit)
	if err != nil {
		s.errorResponse(w, "failed to list sponsored content", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, list)
}

type featuredListingRequest struct {
	ItemType     string  `json:"item_type"`
	ItemID       string  `json:"item_id"`
	SponsorID    string  `json:"sponsor_id"`
	Position     int     `json:"position"`
	DurationDays int     `json:"duration_days"`
	PricePaid    float64 `json:"price_paid"`
}

func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req featuredListingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	fl := &models.FeaturedListing{
		ItemType:     req.ItemType,
		ItemID:       req.ItemID,
		SponsorID:    req.SponsorID,
		Position:     req.Position,
		DurationDays: req.DurationDays,
		PricePaid:    models.CentsFromFloat(req.PricePaid),
	}

	if err := s.ledger.CreateFeaturedListing(r.Context(), fl); err != nil {
		s.errorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(fl)
}

func (s *Server) handleFeaturedListings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	itemType := r.URL.Query().Get("item_type")
	if itemType == "" {
		s.errorResponse(w, "item_type required", http.StatusBadRequest)
		return
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		limit, _ = strconv.Atoi(l)
	}

	list, err := s.ledger.GetFeaturedListings(r.Context(), itemType, limit)
	if err != nil {
		s.errorResponse(w, "failed to list featured listings", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, list)
}

func (s *Server) handleSponsorAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/sponsors/")
	sponsorID := strings.TrimSuffix(rest, "/analytics")
	if sponsorID == "" || sponsorID == rest {
		http.NotFound(w, r)
		return
	}

	report, err := s.ledger.GetSponsorAnalytics(r.Context(), sponsorID)
	if err != nil {
		s.logger.Error("failed to build sponsor analytics", zap.Error(err))
		s.errorResponse(w, "failed to build analytics", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, report)
}

// ---- Ad telemetry ----

type adEventRequest struct {
	ContentID   string `json:"content_id"`
	ContentType string `json:"content_type"`
	UserID      string `json:"user_id"`
}

func (s *Server) handleAdImpression(w http.ResponseWriter, r *http.Request) {
	s.handleAdEvent(w, r, s.ledger.TrackImpression)
}

func (s *Server) handleAdClick(w http.ResponseWriter, r *http.Request) {
	s.handleAdEvent(w, r, s.ledger.TrackAdClick)
}

func (s *Server) handleAdEvent(w http.ResponseWriter, r *http.Request, track func(ctx context.Context, contentID string, contentType models.PlacementType, userID, ip, ua string)) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req adEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.ContentID == "" {
		s.errorResponse(w, "content_id required", http.StatusBadRequest)
		return
	}
	contentType := models.PlacementType(req.ContentType)
	if contentType != models.PlacementSponsored && contentType != models.PlacementFeatured {
		s.errorResponse(w, "content_type must be sponsored or featured", http.StatusBadRequest)
		return
	}

	track(r.Context(), req.ContentID, contentType, req.UserID, clientIP(r), r.UserAgent())

	s.jsonResponse(w, map[string]bool{"success": true})
}

// ---- Admin ----

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	updated, err := s.reconciler.RebuildPartnerTotals(r.Context())
	if err != nil {
		s.logger.Error("reconciliation failed", zap.Error(err))
		s.errorResponse(w, "reconciliation failed", http.StatusInternalServerError)
		return
	}
	s.jsonResponse(w, map[string]int{"partners_updated": updated})
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
