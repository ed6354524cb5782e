package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrFlagAnalysisUnavailable = errors.New("flag analysis unavailable")
	ErrPersistenceUnavailable  = errors.New("persistence unavailable")
	ErrInvalidScan             = errors.New("invalid scan")
	ErrFeedNotConfigured       = errors.New("feed not configured")
)
