package transaction

import (
	"fmt"

	"github.com/pasale/pasale-api/internal/ledger"
)

var (
	ErrTransactionNotFound = fmt.Errorf("%w: transaction", ledger.ErrNotFound)
	ErrInvalidQuantity     = ledger.Invalid("quantity", "must be greater than zero")
	ErrInvalidPrice        = ledger.Invalid("price", "must be greater than zero")
)
