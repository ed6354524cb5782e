package classifier

import "errors"

// Sentinel kinds for classifier errors.
var (
	ErrEmptyReadme     = errors.New("readme is empty")
	ErrAnalysisFailed  = errors.New("readme analysis failed")
	ErrNoAPIKey        = errors.New("api key not configured")
	ErrUnknownProvider = errors.New("unknown classifier provider")
)
