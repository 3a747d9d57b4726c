package reward

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

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

// Balance handles GET /rewards/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), middleware.GetShopID(r.Context()))
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.OK(w, summary)
}

// History handles GET /rewards/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := HistoryFilter{Page: pagination.FromRequest(r)}

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

	history, err := h.service.History(r.Context(), middleware.GetShopID(r.Context()), filter)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.OK(w, history)
}

// DailyStats handles GET /rewards/daily-stats?date=YYYY-MM-DD
func (h *Handler) DailyStats(w http.ResponseWriter, r *http.Request) {
	date := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			response.BadRequest(w, "Invalid date, expected YYYY-MM-DD")
			return
		}
		date = parsed
	}

	stats, err := h.service.DailyStats(r.Context(), middleware.GetShopID(r.Context()), date)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.OK(w, stats)
}

// Redeem handles POST /rewards/redeem
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	redemption, err := h.service.Redeem(r.Context(), middleware.GetShopID(r.Context()), req.Points, req.Method, req.AccountDetails)
	if err != nil {
		errorhandler.HandleError(r.Context(), w, err)
		return
	}
	response.Created(w, redemption)
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/balance", h.Balance)
	r.Get("/history", h.History)
	r.Get("/daily-stats", h.DailyStats)
	r.Post("/redeem", h.Redeem)
	return r
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}
