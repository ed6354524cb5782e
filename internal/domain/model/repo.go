// Package model contains domain models passed between layers.
package model

import (
	"strings"
	"time"
)

// RepoMetadata is a snapshot of a repository's public signals.
// AgeInDays and LastPushDaysAgo are computed once when the snapshot is taken
// and are only meaningful for that instant.
type RepoMetadata struct {
	Name          string
	Owner         string
	Description   string
	Stars         int
	Forks         int
	Watchers      int
	OpenIssues    int
	CreatedAt     time.Time
	PushedAt      time.Time
	DefaultBranch string

	AgeInDays         int
	LastPushDaysAgo   int
	ContributorsCount int
	RecentCommitCount int // commits in the trailing 30 days

	HasReadme     bool
	ReadmeContent string
}

// Summary returns the reduced projection of the snapshot returned to callers.
func (m RepoMetadata) Summary() RepoSummary { //nolint:gocritic // hugeParam: value receiver keeps the snapshot immutable
	return RepoSummary{
		Name:              m.Name,
		Owner:             m.Owner,
		Stars:             m.Stars,
		Forks:             m.Forks,
		AgeInDays:         m.AgeInDays,
		LastPushDaysAgo:   m.LastPushDaysAgo,
		ContributorsCount: m.ContributorsCount,
		HasReadme:         m.HasReadme,
	}
}

// RepoSummary is the subset of RepoMetadata exposed in scan results.
type RepoSummary struct {
	Name              string `json:"name"`
	Owner             string `json:"owner"`
	Stars             int    `json:"stars"`
	Forks             int    `json:"forks"`
	AgeInDays         int    `json:"ageInDays"`
	LastPushDaysAgo   int    `json:"lastPushDaysAgo"`
	ContributorsCount int    `json:"contributorsCount"`
	HasReadme         bool   `json:"hasReadme"`
}

// Severity grades a content flag.
type Severity string

// Known severities.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity normalises s into a known severity.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	default:
		return "", false
	}
}

// Content flag categories produced by README analysis.
const (
	CategoryUnrealisticPromises     = "Unrealistic Promises"
	CategoryMissingTechnicalDetails = "Missing Technical Details"
	CategoryPressureTactics         = "Pressure Tactics"
	CategorySuspiciousClaims        = "Suspicious Claims"
	CategoryFinancialFocus          = "Financial Focus"
	CategoryPoorDocumentation       = "Poor Documentation"
)

// Categories lists the categories the classifier is asked to use.
var Categories = []string{
	CategoryUnrealisticPromises,
	CategoryMissingTechnicalDetails,
	CategoryPressureTactics,
	CategorySuspiciousClaims,
	CategoryFinancialFocus,
	CategoryPoorDocumentation,
}

// ContentFlag is a single concern raised by documentation analysis.
type ContentFlag struct {
	Category string   `json:"category"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// MissingReadmeFlag is the flag synthesised for repositories without a README.
func MissingReadmeFlag() ContentFlag {
	return ContentFlag{
		Category: CategoryPoorDocumentation,
		Message:  "Repository has no README file",
		Severity: SeverityMedium,
	}
}
