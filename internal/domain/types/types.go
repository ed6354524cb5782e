// Package types contains the request and response shapes shared by the
// service and its HTTP surface.
package types

import (
	"strings"
	"time"

	"github.com/okian/agentskan/internal/domain/model"
	"github.com/okian/agentskan/internal/domain/scoring"
)

// PersistenceOutcome reports what happened to a scan's ledger record.
type PersistenceOutcome string

// Persistence outcomes.
const (
	Persisted    PersistenceOutcome = "persisted"
	Queued       PersistenceOutcome = "queued"
	NotPersisted PersistenceOutcome = "not_persisted"
)

// Persistence describes the ledger side of a scan.
type Persistence struct {
	Outcome PersistenceOutcome `json:"outcome"`
	ID      string             `json:"id,omitempty"`
	Reason  string             `json:"reason,omitempty"`
}

// ScanRequest is the body of POST /api/scan.
type ScanRequest struct {
	RepoURL string `json:"repoUrl"`
}

// ScanResult is the full answer to a scan.
type ScanResult struct {
	Score       int                 `json:"score"`
	RiskLevel   model.RiskLevel     `json:"riskLevel"`
	Factors     scoring.Factors     `json:"factors"`
	Flags       []model.ContentFlag `json:"flags"`
	Repo        model.RepoSummary   `json:"repo"`
	RepoURL     string              `json:"repoUrl"`
	ScannedAt   time.Time           `json:"scannedAt"`
	Persistence Persistence         `json:"persistence"`
}

// ScanPage is one page of scan history, newest first.
type ScanPage struct {
	Scans   []model.StoredScan `json:"scans"`
	Total   int64              `json:"total"`
	HasMore bool               `json:"hasMore"`
}

// ScanInput is a precomputed scan submitted for recording. The ledger
// assigns the id and timestamp.
type ScanInput struct {
	RepoURL      string          `json:"repoUrl"`
	RepoName     string          `json:"repoName"`
	Owner        string          `json:"owner"`
	Score        int             `json:"score"`
	RiskLevel    model.RiskLevel `json:"riskLevel"`
	Stars        int             `json:"stars"`
	Forks        int             `json:"forks"`
	AgeInDays    int             `json:"ageInDays"`
	Contributors int             `json:"contributors"`
	FlagsCount   int             `json:"flagsCount"`
	AgentName    string          `json:"agentName,omitempty"`
}

// RecordScanRequest is the body of POST /api/scans.
type RecordScanRequest struct {
	Scan *ScanInput `json:"scan"`
}

// Stored converts the input into a ledger record without id or timestamp.
func (in ScanInput) Stored() model.StoredScan { //nolint:gocritic // hugeParam
	return model.StoredScan{
		RepoURL:      strings.TrimSpace(in.RepoURL),
		RepoName:     strings.TrimSpace(in.RepoName),
		Owner:        strings.TrimSpace(in.Owner),
		Score:        in.Score,
		RiskLevel:    in.RiskLevel,
		Stars:        in.Stars,
		Forks:        in.Forks,
		AgeInDays:    in.AgeInDays,
		Contributors: in.Contributors,
		FlagsCount:   in.FlagsCount,
		AgentName:    strings.TrimSpace(in.AgentName),
	}
}

// RecordReceipt acknowledges a recorded scan.
type RecordReceipt struct {
	ID        string    `json:"id,omitempty"`
	ScannedAt time.Time `json:"scannedAt,omitzero"`
	Message   string    `json:"message,omitempty"`
}

// Stats is the body of GET /api/stats.
type Stats struct {
	TotalScans int64 `json:"totalScans"`
}
