// Package github fetches repository metadata snapshots from the GitHub API.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v68/github"

	"github.com/okian/agentskan/internal/domain/model"
	"github.com/okian/agentskan/pkg/logger"
	"github.com/okian/agentskan/pkg/metrics"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultRecentWindow = 30 * 24 * time.Hour
	commitsPerPage      = 100
	day                 = 24 * time.Hour

	collaborator = "github"
)

// Client produces model.RepoMetadata snapshots.
type Client struct {
	api          githubAPI
	token        string
	baseURL      string
	httpClient   *http.Client
	timeout      time.Duration
	recentWindow time.Duration
	now          func() time.Time
	log          logger.Logger
}

// New constructs a Client.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		timeout:      defaultTimeout,
		recentWindow: defaultRecentWindow,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Get().Named("github")
	}

	client := gh.NewClient(c.httpClient)
	if c.token != "" {
		client = client.WithAuthToken(c.token)
	}
	if c.baseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(c.baseURL, "/") + "/")
		if err != nil {
			return nil, fmt.Errorf("github: base url: %w", err)
		}
		client.BaseURL = u
	}
	c.api = &realGitHubAPI{client: client}
	return c, nil
}

// Fetch returns the metadata snapshot of owner/repo.
//
// A missing repository yields model.ErrRepoNotFound and any other failure of
// the repository lookup model.ErrUpstream. Contributor, commit and README
// lookups are best-effort and fall back to zero values.
func (c *Client) Fetch(ctx context.Context, owner, repo string) (model.RepoMetadata, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	r, _, err := c.api.GetRepository(ctx, owner, repo)
	if err != nil {
		kind := classify(err)
		metrics.RecordUpstreamRequest(collaborator, outcomeOf(kind), time.Since(start))
		return model.RepoMetadata{}, fmt.Errorf("%w: %s/%s: %v", kind, owner, repo, err) //nolint:errorlint // the kind is the contract
	}
	metrics.RecordUpstreamRequest(collaborator, "ok", time.Since(start))

	now := c.now()
	meta := model.RepoMetadata{
		Name:          r.GetName(),
		Owner:         r.GetOwner().GetLogin(),
		Description:   r.GetDescription(),
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		Watchers:      r.GetWatchersCount(),
		OpenIssues:    r.GetOpenIssuesCount(),
		CreatedAt:     r.GetCreatedAt().Time,
		PushedAt:      r.GetPushedAt().Time,
		DefaultBranch: r.GetDefaultBranch(),
	}
	if meta.Name == "" {
		meta.Name = repo
	}
	if meta.Owner == "" {
		meta.Owner = owner
	}
	meta.AgeInDays = daysSince(now, meta.CreatedAt)
	meta.LastPushDaysAgo = daysSince(now, meta.PushedAt)

	meta.ContributorsCount = c.contributors(ctx, owner, repo)
	meta.RecentCommitCount = c.recentCommits(ctx, owner, repo, now)
	meta.ReadmeContent, meta.HasReadme = c.readme(ctx, owner, repo)

	return meta, nil
}

// contributors counts contributors including anonymous ones. With one item
// per page the last page number is the total.
func (c *Client) contributors(ctx context.Context, owner, repo string) int {
	start := time.Now()
	list, resp, err := c.api.ListContributors(ctx, owner, repo, &gh.ListContributorsOptions{
		Anon:        "true",
		ListOptions: gh.ListOptions{PerPage: 1},
	})
	if err != nil {
		metrics.RecordUpstreamRequest(collaborator, "error", time.Since(start))
		c.log.Debug(ctx, "contributors unavailable", logger.String("repo", owner+"/"+repo), logger.Error(err))
		return 0
	}
	metrics.RecordUpstreamRequest(collaborator, "ok", time.Since(start))
	if resp != nil && resp.LastPage > 0 {
		return resp.LastPage
	}
	return len(list)
}

// recentCommits counts commits inside the recent window, up to one page.
func (c *Client) recentCommits(ctx context.Context, owner, repo string, now time.Time) int {
	start := time.Now()
	list, _, err := c.api.ListCommits(ctx, owner, repo, &gh.CommitsListOptions{
		Since:       now.Add(-c.recentWindow),
		ListOptions: gh.ListOptions{PerPage: commitsPerPage},
	})
	if err != nil {
		metrics.RecordUpstreamRequest(collaborator, "error", time.Since(start))
		c.log.Debug(ctx, "commits unavailable", logger.String("repo", owner+"/"+repo), logger.Error(err))
		return 0
	}
	metrics.RecordUpstreamRequest(collaborator, "ok", time.Since(start))
	return len(list)
}

// readme returns the decoded README and whether one exists.
func (c *Client) readme(ctx context.Context, owner, repo string) (string, bool) {
	start := time.Now()
	content, _, err := c.api.GetReadme(ctx, owner, repo)
	if err != nil {
		metrics.RecordUpstreamRequest(collaborator, outcomeOf(classify(err)), time.Since(start))
		return "", false
	}
	metrics.RecordUpstreamRequest(collaborator, "ok", time.Since(start))
	text, err := content.GetContent()
	if err != nil {
		c.log.Debug(ctx, "readme undecodable", logger.String("repo", owner+"/"+repo), logger.Error(err))
		return "", false
	}
	return text, true
}

// classify maps a go-github error onto a domain error kind.
func classify(err error) error {
	var er *gh.ErrorResponse
	if errors.As(err, &er) && er.Response != nil && er.Response.StatusCode == http.StatusNotFound {
		return model.ErrRepoNotFound
	}
	return model.ErrUpstream
}

func outcomeOf(kind error) string {
	if errors.Is(kind, model.ErrRepoNotFound) {
		return "not_found"
	}
	return "error"
}

// daysSince returns the whole days elapsed from t to now, zero for unknown
// or future instants.
func daysSince(now, t time.Time) int {
	if t.IsZero() || t.After(now) {
		return 0
	}
	return int(now.Sub(t) / day)
}
