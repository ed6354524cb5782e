package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound   = errors.New("key not found")
	ErrNotInteger = errors.New("value is not an integer")
	ErrClosed     = errors.New("store closed")
	ErrNoAddress  = errors.New("store address required")
)
