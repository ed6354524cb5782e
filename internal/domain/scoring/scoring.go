// Package scoring computes the heuristic risk score of a repository from its
// public signals and the content flags raised against its documentation.
//
// Scoring is pure: the same inputs always produce the same result, and no
// package function performs I/O.
package scoring

import (
	"fmt"

	"github.com/okian/agentskan/internal/domain/model"
)

// Score bounds and risk band thresholds.
const (
	BaseScore = 100
	MinScore  = 0
	MaxScore  = 100

	LowRiskThreshold    = 70
	MediumRiskThreshold = 40

	// ContentPenaltyFloor caps how far content flags alone can pull the score.
	ContentPenaltyFloor = -50
)

// Factors is the per-dimension breakdown of applied penalties.
// Every value is zero or negative.
type Factors struct {
	Age          int `json:"age"`
	Stars        int `json:"stars"`
	Forks        int `json:"forks"`
	Activity     int `json:"activity"`
	Contributors int `json:"contributors"`
	Readme       int `json:"readme"`
	ContentFlags int `json:"contentFlags"`
}

// Sum returns the total of all penalties.
func (f Factors) Sum() int {
	return f.Age + f.Stars + f.Forks + f.Activity + f.Contributors + f.Readme + f.ContentFlags
}

// Result is the outcome of scoring a repository.
type Result struct {
	Score   int     `json:"score"`
	Factors Factors `json:"factors"`
}

// Compute scores meta together with flags.
// Metadata missing its owner or name, or carrying negative counts, is rejected
// with ErrIncompleteMetadata.
func Compute(meta model.RepoMetadata, flags []model.ContentFlag) (Result, error) { //nolint:gocritic // hugeParam: metadata is an immutable snapshot
	if err := validate(meta); err != nil {
		return Result{}, err
	}

	f := Factors{
		Age:          AgePenalty(meta.AgeInDays),
		Stars:        StarPenalty(meta.Stars),
		Forks:        ForkPenalty(meta.Forks),
		Activity:     ActivityPenalty(meta.RecentCommitCount, meta.LastPushDaysAgo),
		Contributors: ContributorPenalty(meta.ContributorsCount),
		Readme:       ReadmePenalty(meta.HasReadme),
		ContentFlags: ContentPenalty(flags),
	}

	return Result{Score: clamp(BaseScore + f.Sum()), Factors: f}, nil
}

// Classify maps a score onto its risk level.
func Classify(score int) model.RiskLevel {
	switch {
	case score >= LowRiskThreshold:
		return model.RiskLow
	case score >= MediumRiskThreshold:
		return model.RiskMedium
	default:
		return model.RiskHigh
	}
}

// AgePenalty penalises young repositories.
func AgePenalty(ageInDays int) int {
	switch {
	case ageInDays < 7:
		return -25
	case ageInDays < 30:
		return -15
	case ageInDays < 90:
		return -10
	case ageInDays < 180:
		return -5
	default:
		return 0
	}
}

// StarPenalty penalises repositories with little attention.
func StarPenalty(stars int) int {
	switch {
	case stars == 0:
		return -15
	case stars < 10:
		return -10
	case stars < 50:
		return -5
	case stars < 100:
		return -3
	default:
		return 0
	}
}

// ForkPenalty penalises repositories nobody has forked.
func ForkPenalty(forks int) int {
	switch {
	case forks == 0:
		return -10
	case forks < 5:
		return -5
	default:
		return 0
	}
}

// ActivityPenalty penalises inactive repositories.
// The commit check and the last-push check both describe inactivity, so the
// more severe of the two applies rather than their sum.
func ActivityPenalty(recentCommits, lastPushDaysAgo int) int {
	commits := 0
	if recentCommits == 0 {
		commits = -15
	}

	push := 0
	switch {
	case lastPushDaysAgo > 60:
		push = -10
	case lastPushDaysAgo > 30:
		push = -5
	}

	return min(commits, push)
}

// ContributorPenalty penalises single-maintainer repositories.
func ContributorPenalty(contributors int) int {
	switch {
	case contributors <= 1:
		return -15
	case contributors < 3:
		return -10
	case contributors < 5:
		return -5
	default:
		return 0
	}
}

// ReadmePenalty penalises repositories without a README.
func ReadmePenalty(hasReadme bool) int {
	if hasReadme {
		return 0
	}
	return -10
}

// SeverityPenalty returns the deduction for a single flag severity.
// Unknown severities cost nothing.
func SeverityPenalty(s model.Severity) int {
	switch s {
	case model.SeverityHigh:
		return -15
	case model.SeverityMedium:
		return -8
	case model.SeverityLow:
		return -3
	default:
		return 0
	}
}

// ContentPenalty sums the flag deductions, floored at ContentPenaltyFloor.
func ContentPenalty(flags []model.ContentFlag) int {
	total := 0
	for _, f := range flags {
		total += SeverityPenalty(f.Severity)
	}
	return max(total, ContentPenaltyFloor)
}

func validate(meta model.RepoMetadata) error { //nolint:gocritic // hugeParam
	if meta.Owner == "" || meta.Name == "" {
		return fmt.Errorf("%w: owner and name are required", ErrIncompleteMetadata)
	}
	counts := []struct {
		name  string
		value int
	}{
		{"stars", meta.Stars},
		{"forks", meta.Forks},
		{"watchers", meta.Watchers},
		{"open issues", meta.OpenIssues},
		{"age", meta.AgeInDays},
		{"last push", meta.LastPushDaysAgo},
		{"contributors", meta.ContributorsCount},
		{"recent commits", meta.RecentCommitCount},
	}
	for _, c := range counts {
		if c.value < 0 {
			return fmt.Errorf("%w: negative %s %d", ErrIncompleteMetadata, c.name, c.value)
		}
	}
	return nil
}

func clamp(score int) int {
	return min(max(score, MinScore), MaxScore)
}
