package github

import (
	"context"

	gh "github.com/google/go-github/v68/github"
)

// githubAPI is the subset of the GitHub REST API the client needs.
type githubAPI interface {
	GetRepository(ctx context.Context, owner, repo string) (*gh.Repository, *gh.Response, error)
	ListContributors(ctx context.Context, owner, repo string, opts *gh.ListContributorsOptions) ([]*gh.Contributor, *gh.Response, error)
	ListCommits(ctx context.Context, owner, repo string, opts *gh.CommitsListOptions) ([]*gh.RepositoryCommit, *gh.Response, error)
	GetReadme(ctx context.Context, owner, repo string) (*gh.RepositoryContent, *gh.Response, error)
}

// realGitHubAPI delegates to a go-github client.
type realGitHubAPI struct {
	client *gh.Client
}

func (r *realGitHubAPI) GetRepository(ctx context.Context, owner, repo string) (*gh.Repository, *gh.Response, error) {
	return r.client.Repositories.Get(ctx, owner, repo)
}

func (r *realGitHubAPI) ListContributors(ctx context.Context, owner, repo string, opts *gh.ListContributorsOptions) ([]*gh.Contributor, *gh.Response, error) {
	return r.client.Repositories.ListContributors(ctx, owner, repo, opts)
}

func (r *realGitHubAPI) ListCommits(ctx context.Context, owner, repo string, opts *gh.CommitsListOptions) ([]*gh.RepositoryCommit, *gh.Response, error) {
	return r.client.Repositories.ListCommits(ctx, owner, repo, opts)
}

func (r *realGitHubAPI) GetReadme(ctx context.Context, owner, repo string) (*gh.RepositoryContent, *gh.Response, error) {
	return r.client.Repositories.GetReadme(ctx, owner, repo, nil)
}
