package fraud

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// UpdateAlertRequest for PUT /fraud/admin/alerts/{id}
type UpdateAlertRequest struct {
	Status     string  `json:"status" validate:"required,fraud_status"`
	Notes      *string `json:"notes" validate:"omitempty,max=2000"`
	ReviewedBy string  `json:"reviewed_by" validate:"omitempty,max=255"`
}

// ScoreResponse rounds every component to three decimals.
type ScoreResponse struct {
	ShopID          uuid.UUID `json:"shop_id"`
	OverallScore    float64   `json:"overall_score"`
	VelocityScore   float64   `json:"velocity_score"`
	PatternScore    float64   `json:"pattern_score"`
	QuantityScore   float64   `json:"quantity_score"`
	BehavioralScore float64   `json:"behavioral_score"`
	TotalAlerts     int       `json:"total_alerts"`
	ConfirmedFrauds int       `json:"confirmed_frauds"`
	FalsePositives  int       `json:"false_positives"`
	IsSuspended     bool      `json:"is_suspended"`
	RiskLevel       RiskLevel `json:"risk_level"`
	LastCalculated  time.Time `json:"last_calculated"`
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func ScoreResponseFromView(v *ScoreView) *ScoreResponse {
	return &ScoreResponse{
		ShopID:          v.ShopID,
		OverallScore:    round3(v.Overall),
		VelocityScore:   round3(v.Velocity),
		PatternScore:    round3(v.Pattern),
		QuantityScore:   round3(v.Quantity),
		BehavioralScore: round3(v.Behavioral),
		TotalAlerts:     v.TotalAlerts,
		ConfirmedFrauds: v.ConfirmedFrauds,
		FalsePositives:  v.FalsePositives,
		IsSuspended:     v.IsSuspended,
		RiskLevel:       v.RiskLevel,
		LastCalculated:  v.LastCalculated,
	}
}

// HighRiskShopsResponse for GET /fraud/admin/high-risk-shops
type HighRiskShopsResponse struct {
	Total     int      `json:"total"`
	Threshold float64  `json:"threshold"`
	Shops     []*Score `json:"shops"`
}
