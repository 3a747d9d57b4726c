package fraud

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pasale/pasale-api/internal/middleware"
	"github.com/pasale/pasale-api/internal/pkg/errorhandler"
	"github.com/pasale/pasale-api/internal/pkg/pagination"
	"github.com/pasale/pasale-api/internal/pkg/response"
	"github.com/pasale/pasale-api/internal/pkg/validator"
)

type Handler struct {
	service              *Service
	defaultRiskThreshold float64
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service, defaultRiskThreshold: service.rules.HighRiskThreshold}
}

// Score handles GET /fraud/score
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.Score(r.Context(), middleware.GetShopID(r.Context()))
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.OK(w, ScoreResponseFromView(view))
}

// Alerts handles GET /fraud/alerts
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	filter, ok := alertFilterFromRequest(w, r)
	if !ok {
		return
	}
	shopID := middleware.GetShopID(r.Context())
	filter.ShopID = &shopID
	h.listAlerts(w, r, filter)
}

// AdminAlerts handles GET /fraud/admin/alerts
func (h *Handler) AdminAlerts(w http.ResponseWriter, r *http.Request) {
	filter, ok := alertFilterFromRequest(w, r)
	if !ok {
		return
	}
	if raw := r.URL.Query().Get("shop_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "Invalid shop_id")
			return
		}
		filter.ShopID = &id
	}
	h.listAlerts(w, r, filter)
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request, filter AlertFilter) {
	page, err := h.service.Alerts(r.Context(), filter)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.WithMeta(w, page.Items, response.NewMeta(page.Total, page.Page, page.PageSize))
}

func alertFilterFromRequest(w http.ResponseWriter, r *http.Request) (AlertFilter, bool) {
	q := r.URL.Query()
	filter := AlertFilter{Page: pagination.FromRequest(r)}

	if raw := q.Get("risk_level"); raw != "" {
		level, err := ParseRiskLevel(raw)
		if err != nil {
			response.BadRequest(w, "Invalid risk_level")
			return filter, false
		}
		filter.RiskLevel = &level
	}
	if raw := q.Get("status"); raw != "" {
		status, err := ParseStatus(raw)
		if err != nil {
			response.BadRequest(w, "Invalid status")
			return filter, false
		}
		filter.Status = &status
	}

	var err error
	if filter.From, err = parseDate(q.Get("start_date")); err != nil {
		response.BadRequest(w, "Invalid start_date, expected YYYY-MM-DD")
		return filter, false
	}
	if filter.To, err = parseDate(q.Get("end_date")); err != nil {
		response.BadRequest(w, "Invalid end_date, expected YYYY-MM-DD")
		return filter, false
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.AddDate(0, 0, 1)
	}
	return filter, true
}

// UpdateAlert handles PUT /fraud/admin/alerts/{id}
func (h *Handler) UpdateAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid alert ID")
		return
	}

	var req UpdateAlertRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	reviewer := req.ReviewedBy
	if reviewer == "" {
		reviewer = middleware.GetRole(r.Context())
	}

	alert, err := h.service.UpdateAlertStatus(r.Context(), alertID, Status(req.Status), reviewer, req.Notes)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.OK(w, alert)
}

// HighRiskShops handles GET /fraud/admin/high-risk-shops
func (h *Handler) HighRiskShops(w http.ResponseWriter, r *http.Request) {
	threshold := h.defaultRiskThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			response.BadRequest(w, "Invalid threshold")
			return
		}
		threshold = v
	}

	scores, err := h.service.HighRiskShops(r.Context(), threshold)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.OK(w, HighRiskShopsResponse{Total: len(scores), Threshold: threshold, Shops: scores})
}

// RecalculateScores handles POST /fraud/admin/recalculate-scores
func (h *Handler) RecalculateScores(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RecalculateAllScores(r.Context())
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.OK(w, result)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/score", h.Score)
	r.Get("/alerts", h.Alerts)

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdmin())
		r.Get("/alerts", h.AdminAlerts)
		r.Put("/alerts/{id}", h.UpdateAlert)
		r.Get("/high-risk-shops", h.HighRiskShops)
		r.Post("/recalculate-scores", h.RecalculateScores)
	})
	return r
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
