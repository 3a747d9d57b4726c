package inventory

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
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List handles GET /inventory
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lowOnly, _ := strconv.ParseBool(q.Get("low_stock_only"))
	outOnly, _ := strconv.ParseBool(q.Get("out_of_stock_only"))

	page, err := h.service.List(r.Context(), middleware.GetShopID(r.Context()), ListFilter{
		LowStockOnly:   lowOnly,
		OutOfStockOnly: outOnly,
		Search:         q.Get("search"),
		Page:           pagination.FromRequest(r),
	})
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.WithMeta(w, page.Items, response.NewMeta(page.Total, page.Page, page.PageSize))
}

// Stats handles GET /inventory/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), middleware.GetShopID(r.Context()))
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.OK(w, stats)
}

// Alerts handles GET /inventory/alerts
func (h *Handler) Alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.StockAlerts(r.Context(), middleware.GetShopID(r.Context()))
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.OK(w, alerts)
}

// LowStock handles GET /inventory/low-stock
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListLowStock(r.Context(), middleware.GetShopID(r.Context()))
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.OK(w, records)
}

// Movements handles GET /inventory/movements
func (h *Handler) Movements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{Page: pagination.FromRequest(r)}

	if raw := q.Get("product_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.BadRequest(w, "Invalid product_id")
			return
		}
		filter.ProductID = &id
	}
	var err error
	if filter.From, err = parseDate(q.Get("start_date")); err != nil {
		response.BadRequest(w, "Invalid start_date, expected YYYY-MM-DD")
		return
	}
	if filter.To, err = parseDate(q.Get("end_date")); err != nil {
		response.BadRequest(w, "Invalid end_date, expected YYYY-MM-DD")
		return
	}
	if !filter.To.IsZero() {
		filter.To = filter.To.AddDate(0, 0, 1)
	}

	page, err := h.service.Movements(r.Context(), middleware.GetShopID(r.Context()), filter)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.WithMeta(w, page.Items, response.NewMeta(page.Total, page.Page, page.PageSize))
}

// Get handles GET /inventory/{productID}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		response.BadRequest(w, "Invalid product ID")
		return
	}
	item, err := h.service.Get(r.Context(), middleware.GetShopID(r.Context()), productID)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.OK(w, item)
}

// UpdateReorderLevel handles PUT /inventory/{productID}/reorder-level
func (h *Handler) UpdateReorderLevel(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		response.BadRequest(w, "Invalid product ID")
		return
	}

	var req ReorderLevelRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	rec, err := h.service.UpdateReorderLevel(r.Context(), middleware.GetShopID(r.Context()), productID, req.ReorderLevel)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.OK(w, rec)
}

// Adjust handles POST /inventory/adjust
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	shopID := middleware.GetShopID(r.Context())
	productID := uuid.MustParse(req.ProductID)
	rec, err := h.service.AdjustManually(r.Context(), shopID, productID, req.QuantityChange,
		MovementKind(req.MovementType), req.Notes, shopID.String())
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	item, err := h.service.Get(r.Context(), shopID, productID)
	if err != nil {
		response.OK(w, rec)
		return
	}
	response.OK(w, item)
}

// Open handles POST /inventory/open
func (h *Handler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	rec, err := h.service.OpenWithStock(r.Context(), middleware.GetShopID(r.Context()),
		uuid.MustParse(req.ProductID), req.OpeningQuantity, req.ReorderLevel)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.Created(w, rec)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/", h.List)
	r.Get("/stats", h.Stats)
	r.Get("/alerts", h.Alerts)
	r.Get("/low-stock", h.LowStock)
	r.Get("/movements", h.Movements)
	r.Post("/adjust", h.Adjust)
	r.Post("/open", h.Open)
	r.Get("/{productID}", h.Get)
	r.Put("/{productID}/reorder-level", h.UpdateReorderLevel)
	return r
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
