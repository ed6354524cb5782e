package api

import (
	"errors"
	"net/http"

	"github.com/okian/agentskan/internal/adapters/feeds"
	service "github.com/okian/agentskan/internal/app"
	"github.com/okian/agentskan/internal/domain/ledger"
	"github.com/okian/agentskan/internal/domain/model"
)

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalidReference),
		errors.Is(err, ledger.ErrInvalidPage),
		errors.Is(err, service.ErrInvalidScan):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound), errors.Is(err, model.ErrRepoNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstream),
		errors.Is(err, model.ErrUpstream),
		errors.Is(err, feeds.ErrFeedUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrUnavailable), errors.Is(err, service.ErrFeedNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
