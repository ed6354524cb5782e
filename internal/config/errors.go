package config

import (
	"errors"
)

var (
	// ErrInvalidConfig marks a configuration that loaded but failed validation.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig marks a configuration file or environment that could not be read.
	ErrLoadConfig = errors.New("load config failed")
)
