package fraud

import (
	"fmt"

	"github.com/pasale/pasale-api/internal/ledger"
)

var (
	ErrAlertNotFound    = fmt.Errorf("%w: fraud alert", ledger.ErrNotFound)
	ErrScoreNotFound    = fmt.Errorf("%w: fraud score", ledger.ErrNotFound)
	ErrReflagNotAllowed = ledger.Invalid("status", "an alert cannot be returned to flagged")
	ErrInvalidThreshold = ledger.Invalid("threshold", "must be between 0 and 1")
	ErrReviewConflict   = fmt.Errorf("%w: fraud alert kept changing during review", ledger.ErrConflict)
)
