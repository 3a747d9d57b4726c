package reward

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasale/pasale-api/internal/pkg/logger"
)

// PayoutRequest is handed to the payment side once points are debited.
type PayoutRequest struct {
	ShopID  uuid.UUID
	EntryID uuid.UUID
	Points  int
	Amount  decimal.Decimal
	Method  string
	Account string
}

// Payout executes a redemption payout.
type Payout interface {
	Send(ctx context.Context, req PayoutRequest) error
}

// LogPayout records the request and does nothing else. No payment gateway is
// integrated yet.
type LogPayout struct{}

func (LogPayout) Send(ctx context.Context, req PayoutRequest) error {
	logger.FromContext(ctx).Info().
		Str("shop_id", req.ShopID.String()).
		Str("reward_id", req.EntryID.String()).
		Int("points", req.Points).
		Str("amount", req.Amount.StringFixed(2)).
		Str("method", req.Method).
		Msg("redemption payout queued")
	return nil
}
