package api

import (
	"net/http"
)

// handleAgents handles GET /api/agents.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	const op = "api.agents"
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	list, err := s.deps.Agents(r.Context())
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeData(w, list)
}

// handleTokens handles GET /api/clawnch.
func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	const op = "api.clawnch"
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	limit, err := queryInt(r, "limit", defaultTokenLimit)
	if err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if limit == 0 {
		limit = defaultTokenLimit
	}
	limit = min(limit, maxTokenLimit)

	list, err := s.deps.Tokens(r.Context(), limit, offset)
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeData(w, list)
}
