package scoring

import "errors"

// ErrIncompleteMetadata is returned when metadata cannot be scored.
var ErrIncompleteMetadata = errors.New("incomplete repository metadata")
