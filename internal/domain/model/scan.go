package model

import "time"

// RiskLevel is the banded classification of a risk score.
type RiskLevel string

// Risk levels, from safest to riskiest.
const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// StoredScan is the persisted, reduced record of one completed scan.
// Records are never mutated once written.
type StoredScan struct {
	ID           string    `json:"id"`
	RepoURL      string    `json:"repoUrl"`
	RepoName     string    `json:"repoName"`
	Owner        string    `json:"owner"`
	Score        int       `json:"score"`
	RiskLevel    RiskLevel `json:"riskLevel"`
	Stars        int       `json:"stars"`
	Forks        int       `json:"forks"`
	AgeInDays    int       `json:"ageInDays"`
	Contributors int       `json:"contributors"`
	FlagsCount   int       `json:"flagsCount"`
	ScannedAt    time.Time `json:"scannedAt"`
	AgentName    string    `json:"agentName,omitempty"`
}
