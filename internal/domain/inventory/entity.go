package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pasale/pasale-api/internal/domain/transaction"
	"github.com/pasale/pasale-api/internal/ledger"
)

// MovementKind is the closed set of reasons stock can change.
type MovementKind string

const (
	KindOpeningStock MovementKind = "opening_stock"
	KindSale         MovementKind = "sale"
	KindPurchase     MovementKind = "purchase"
	KindReturn       MovementKind = "return"
	KindAdjustment   MovementKind = "adjustment"
	KindDamage       MovementKind = "damage"
	KindTheft        MovementKind = "theft"
)

func ParseMovementKind(s string) (MovementKind, error) {
	switch k := MovementKind(s); k {
	case KindOpeningStock, KindSale, KindPurchase, KindReturn, KindAdjustment, KindDamage, KindTheft:
		return k, nil
	}
	return "", ledger.Invalid("movement_type", "unknown movement type %q", s)
}

// ForTransaction maps a transaction to its movement kind and signed delta:
// sales remove stock, purchases and returns add it.
func ForTransaction(t transaction.Type, quantity int) (MovementKind, int, error) {
	switch t {
	case transaction.TypeSale:
		return KindSale, -quantity, nil
	case transaction.TypePurchase:
		return KindPurchase, quantity, nil
	case transaction.TypeReturn:
		return KindReturn, quantity, nil
	}
	return "", 0, ledger.Invalid("type", "unknown transaction type %q", t)
}

// Record is the current stock of one product in one shop.
type Record struct {
	ID              uuid.UUID `db:"id" json:"inventory_id"`
	ShopID          uuid.UUID `db:"shop_id" json:"shop_id"`
	ProductID       uuid.UUID `db:"product_id" json:"product_id"`
	CurrentQuantity int       `db:"current_quantity" json:"current_quantity"`
	ReorderLevel    *int      `db:"reorder_level" json:"reorder_level"`
	LastUpdated     time.Time `db:"last_updated" json:"last_updated"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// IsLowStock is false when no reorder level is set.
func (r *Record) IsLowStock() bool {
	return r.ReorderLevel != nil && r.CurrentQuantity <= *r.ReorderLevel
}

func (r *Record) IsOutOfStock() bool {
	return r.CurrentQuantity <= 0
}

func (r *Record) reorderLevel() int {
	if r.ReorderLevel == nil {
		return 0
	}
	return *r.ReorderLevel
}

// Movement is one immutable stock change. QuantityAfter chains per
// (shop, product); ReversedBy is set once a compensating movement exists.
type Movement struct {
	ID             uuid.UUID    `db:"id" json:"movement_id"`
	ShopID         uuid.UUID    `db:"shop_id" json:"shop_id"`
	ProductID      uuid.UUID    `db:"product_id" json:"product_id"`
	Kind           MovementKind `db:"movement_type" json:"movement_type"`
	QuantityChange int          `db:"quantity_change" json:"quantity_change"`
	QuantityAfter  int          `db:"quantity_after" json:"quantity_after"`
	TransactionID  *uuid.UUID   `db:"transaction_id" json:"transaction_id,omitempty"`
	Note           *string      `db:"notes" json:"notes,omitempty"`
	ActorID        *string      `db:"created_by" json:"created_by,omitempty"`
	ReversedBy     *uuid.UUID   `db:"reversed_by" json:"reversed_by,omitempty"`
	CreatedAt      time.Time    `db:"created_at" json:"created_at"`
}

func (m Movement) LedgerKey() ledger.Key {
	return ledger.Key{Owner: m.ShopID.String(), Subject: m.ProductID.String()}
}

func (m Movement) LedgerTime() time.Time { return m.CreatedAt }
func (m Movement) Delta() int            { return m.QuantityChange }
func (m Movement) RunningTotal() int     { return m.QuantityAfter }

// Draft is a movement before it is placed on the chain.
type Draft struct {
	ShopID        uuid.UUID
	ProductID     uuid.UUID
	Kind          MovementKind
	Delta         int
	TransactionID *uuid.UUID
	Note          *string
	ActorID       *string
	ReorderLevel  int
	At            time.Time
}

func (d Draft) movement(after int) *Movement {
	return &Movement{
		ID:             uuid.New(),
		ShopID:         d.ShopID,
		ProductID:      d.ProductID,
		Kind:           d.Kind,
		QuantityChange: d.Delta,
		QuantityAfter:  after,
		TransactionID:  d.TransactionID,
		Note:           d.Note,
		ActorID:        d.ActorID,
		CreatedAt:      d.At,
	}
}

// StockItem is a record joined with its product for listings.
type StockItem struct {
	Record
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	StockValue  decimal.Decimal `json:"stock_value"`
	IsLowStock  bool            `json:"is_low_stock"`
}

type StockStatus string

const (
	StatusLowStock   StockStatus = "low_stock"
	StatusOutOfStock StockStatus = "out_of_stock"
)

type StockAlert struct {
	ProductID              uuid.UUID   `json:"product_id"`
	ProductName            string      `json:"product_name"`
	CurrentQuantity        int         `json:"current_quantity"`
	ReorderLevel           int         `json:"reorder_level"`
	Status                 StockStatus `json:"stock_status"`
	SuggestedOrderQuantity int         `json:"suggested_order_quantity"`
}

type Stats struct {
	TotalProducts   int             `json:"total_products"`
	TotalStockValue decimal.Decimal `json:"total_stock_value"`
	LowStockCount   int             `json:"low_stock_count"`
	OutOfStockCount int             `json:"out_of_stock_count"`
}
