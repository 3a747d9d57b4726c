package inventory

import (
	"fmt"

	"github.com/pasale/pasale-api/internal/ledger"
)

var (
	ErrInventoryNotFound = fmt.Errorf("%w: inventory record", ledger.ErrNotFound)
	ErrProductNotFound   = fmt.Errorf("%w: product", ledger.ErrNotFound)
	ErrZeroChange        = ledger.Invalid("quantity_change", "must not be zero")
	ErrBelowFloor        = ledger.Invalid("quantity_change", "stock would fall below the allowed floor")
	ErrOpeningStockKind  = ledger.Invalid("movement_type", "opening_stock is reserved for opening a record")
	ErrNegativeReorder   = ledger.Invalid("reorder_level", "must not be negative")
	ErrNegativeOpening   = ledger.Invalid("opening_quantity", "must not be negative")
)
