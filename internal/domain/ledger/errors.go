package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrNotConfigured = errors.New("ledger store not configured")
	ErrInvalidPage   = errors.New("invalid page request")
	ErrStore         = errors.New("ledger store failure")
)
