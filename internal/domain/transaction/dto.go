package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateTransactionRequest for POST /transactions
type CreateTransactionRequest struct {
	ProductID *string         `json:"product_id" validate:"omitempty,uuid"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	Price     decimal.Decimal `json:"price"`
	Type      string          `json:"type" validate:"required,txn_type"`
	DeviceID  *string         `json:"device_id" validate:"omitempty,max=100"`
	CreatedAt *time.Time      `json:"created_at"`
}

func (r *CreateTransactionRequest) toInput() RecordInput {
	in := RecordInput{
		Quantity:  r.Quantity,
		Price:     r.Price,
		Type:      Type(r.Type),
		DeviceID:  r.DeviceID,
		CreatedAt: r.CreatedAt,
	}
	if r.ProductID != nil {
		if id, err := uuid.Parse(*r.ProductID); err == nil {
			in.ProductID = &id
		}
	}
	return in
}

// TransactionResponse pairs the stored transaction with its side-effect report.
type TransactionResponse struct {
	Transaction *Transaction `json:"transaction"`
	Effects     *Report      `json:"effects"`
}
