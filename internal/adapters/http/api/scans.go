package api

import (
	"net/http"
	"strings"

	"github.com/okian/agentskan/internal/domain/types"
)

// handleScan handles POST /api/scan.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	const op = "api.scan"
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req types.ScanRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.RepoURL) == "" {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, errRepoURLRequired))
		return
	}

	res, err := s.deps.Scan(r.Context(), req.RepoURL)
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeData(w, res)
}

// handleScans handles GET and POST /api/scans.
func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listScans(w, r)
	case http.MethodPost:
		s.recordScan(w, r)
	default:
		methodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_scans"
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	limit, err := queryInt(r, "limit", defaultScanLimit)
	if err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if limit == 0 {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, errLimitPositive))
		return
	}
	limit = min(limit, s.maxLimit)

	page, err := s.deps.ListScans(r.Context(), offset, limit)
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeData(w, page)
}

func (s *Server) recordScan(w http.ResponseWriter, r *http.Request) {
	const op = "api.record_scan"
	var req types.RecordScanRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.Scan == nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, errMissingScan))
		return
	}

	rec, err := s.deps.RecordScan(r.Context(), *req.Scan)
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeData(w, rec)
}

// handleScanStats handles GET /api/stats.
func (s *Server) handleScanStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeData(w, types.Stats{TotalScans: s.deps.LifetimeScanCount(r.Context())})
}
