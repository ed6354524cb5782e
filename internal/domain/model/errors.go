package model

import "errors"

// Error kinds shared by collaborators and the scan orchestrator.
var (
	ErrInvalidReference = errors.New("invalid repository reference")
	ErrRepoNotFound     = errors.New("repository not found")
	ErrUpstream         = errors.New("upstream error")
)
