package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasale/pasale-api/internal/ledger"
)

// Type is the closed set of business events a shop can log.
type Type string

const (
	TypeSale     Type = "sale"
	TypePurchase Type = "purchase"
	TypeReturn   Type = "return"
)

// ParseType rejects anything outside the closed set.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeSale, TypePurchase, TypeReturn:
		return t, nil
	}
	return "", ledger.Invalid("type", "unknown transaction type %q", s)
}

func (t Type) String() string {
	return string(t)
}

// Transaction is an immutable business event. ProductID is nil once the
// product has been removed.
type Transaction struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	ShopID    uuid.UUID       `db:"shop_id" json:"shop_id"`
	ProductID *uuid.UUID      `db:"product_id" json:"product_id,omitempty"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Price     decimal.Decimal `db:"price" json:"price"`
	Total     decimal.Decimal `db:"total" json:"total"`
	Type      Type            `db:"type" json:"type"`
	DeviceID  *string         `db:"device_id" json:"device_id,omitempty"`
	IsSynced  bool            `db:"is_synced" json:"is_synced"`
	Version   int             `db:"version" json:"version"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// HasProduct reports whether the transaction still references a product.
func (t *Transaction) HasProduct() bool {
	return t.ProductID != nil && *t.ProductID != uuid.Nil
}
