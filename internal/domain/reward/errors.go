package reward

import (
	"fmt"

	"github.com/pasale/pasale-api/internal/ledger"
)

var (
	ErrInsufficientBalance = fmt.Errorf("%w: reward points", ledger.ErrInsufficientBalance)
	ErrBelowMinimum        = ledger.Invalid("points", "below the minimum redemption")
	ErrNonPositivePoints   = ledger.Invalid("points", "must be greater than zero")
	ErrZeroPoints          = ledger.Invalid("points", "must not be zero")
)
