package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gh "github.com/google/go-github/v68/github"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/agentskan/internal/domain/model"
	"github.com/okian/agentskan/pkg/logger"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeGitHubAPI implements githubAPI for testing.
type fakeGitHubAPI struct {
	repo        *gh.Repository
	repoErr     error
	contribs    []*gh.Contributor
	contribResp *gh.Response
	contribErr  error
	commits     []*gh.RepositoryCommit
	commitErr   error
	commitOpts  *gh.CommitsListOptions
	readme      *gh.RepositoryContent
	readmeErr   error
}

func (f *fakeGitHubAPI) GetRepository(context.Context, string, string) (*gh.Repository, *gh.Response, error) {
	return f.repo, nil, f.repoErr
}

func (f *fakeGitHubAPI) ListContributors(context.Context, string, string, *gh.ListContributorsOptions) ([]*gh.Contributor, *gh.Response, error) {
	return f.contribs, f.contribResp, f.contribErr
}

func (f *fakeGitHubAPI) ListCommits(_ context.Context, _, _ string, opts *gh.CommitsListOptions) ([]*gh.RepositoryCommit, *gh.Response, error) {
	f.commitOpts = opts
	return f.commits, nil, f.commitErr
}

func (f *fakeGitHubAPI) GetReadme(context.Context, string, string) (*gh.RepositoryContent, *gh.Response, error) {
	return f.readme, nil, f.readmeErr
}

func newFakeClient(api githubAPI) *Client {
	c, err := New(WithClock(func() time.Time { return fixedNow }), WithLogger(logger.NewNop()))
	if err != nil {
		panic(err)
	}
	c.api = api
	return c
}

func errorResponse(status int) error {
	req, _ := http.NewRequest(http.MethodGet, "https://api.github.com/repos/acme/agent", nil)
	return &gh.ErrorResponse{Response: &http.Response{StatusCode: status, Request: req}, Message: http.StatusText(status)}
}

func notFound() error {
	return errorResponse(http.StatusNotFound)
}

func TestClientFetch(t *testing.T) {
	Convey("Given a GitHub API with a complete repository", t, func() {
		created := gh.Timestamp{Time: fixedNow.Add(-400*24*time.Hour - 5*time.Hour)}
		pushed := gh.Timestamp{Time: fixedNow.Add(-36 * time.Hour)}
		encoded := base64.StdEncoding.EncodeToString([]byte("# Agent\nTrades for you."))
		api := &fakeGitHubAPI{
			repo: &gh.Repository{
				Name:            gh.Ptr("agent"),
				Owner:           &gh.User{Login: gh.Ptr("acme")},
				Description:     gh.Ptr("trading agent"),
				StargazersCount: gh.Ptr(120),
				ForksCount:      gh.Ptr(7),
				WatchersCount:   gh.Ptr(120),
				OpenIssuesCount: gh.Ptr(3),
				CreatedAt:       &created,
				PushedAt:        &pushed,
				DefaultBranch:   gh.Ptr("main"),
			},
			contribs:    []*gh.Contributor{{Login: gh.Ptr("a")}},
			contribResp: &gh.Response{LastPage: 12},
			commits:     make([]*gh.RepositoryCommit, 9),
			readme:      &gh.RepositoryContent{Content: gh.Ptr(encoded), Encoding: gh.Ptr("base64")},
		}
		c := newFakeClient(api)

		Convey("When fetching", func() {
			meta, err := c.Fetch(context.Background(), "acme", "agent")

			Convey("Then every signal should be populated", func() {
				So(err, ShouldBeNil)
				So(meta.Name, ShouldEqual, "agent")
				So(meta.Owner, ShouldEqual, "acme")
				So(meta.Stars, ShouldEqual, 120)
				So(meta.Forks, ShouldEqual, 7)
				So(meta.OpenIssues, ShouldEqual, 3)
				So(meta.DefaultBranch, ShouldEqual, "main")
				So(meta.AgeInDays, ShouldEqual, 400)
				So(meta.LastPushDaysAgo, ShouldEqual, 1)
				So(meta.ContributorsCount, ShouldEqual, 12)
				So(meta.RecentCommitCount, ShouldEqual, 9)
				So(meta.HasReadme, ShouldBeTrue)
				So(meta.ReadmeContent, ShouldEqual, "# Agent\nTrades for you.")
			})

			Convey("Then commits should be requested for the trailing thirty days", func() {
				So(api.commitOpts.Since, ShouldEqual, fixedNow.Add(-30*24*time.Hour))
				So(api.commitOpts.PerPage, ShouldEqual, 100)
			})
		})

		Convey("When the contributor listing has no pagination", func() {
			api.contribResp = &gh.Response{}
			api.contribs = []*gh.Contributor{{}, {}}
			meta, err := c.Fetch(context.Background(), "acme", "agent")

			Convey("Then the page length should be the count", func() {
				So(err, ShouldBeNil)
				So(meta.ContributorsCount, ShouldEqual, 2)
			})
		})

		Convey("When the secondary lookups fail", func() {
			api.contribErr = errors.New("boom")
			api.commitErr = errors.New("409 empty repository")
			api.readmeErr = notFound()
			meta, err := c.Fetch(context.Background(), "acme", "agent")

			Convey("Then they should fall back to zero values", func() {
				So(err, ShouldBeNil)
				So(meta.ContributorsCount, ShouldEqual, 0)
				So(meta.RecentCommitCount, ShouldEqual, 0)
				So(meta.HasReadme, ShouldBeFalse)
				So(meta.ReadmeContent, ShouldBeEmpty)
			})
		})
	})

	Convey("Given a repository that does not exist", t, func() {
		c := newFakeClient(&fakeGitHubAPI{repoErr: notFound()})

		Convey("Then fetching reports it as not found", func() {
			_, err := c.Fetch(context.Background(), "acme", "ghost")
			So(errors.Is(err, model.ErrRepoNotFound), ShouldBeTrue)
		})
	})

	Convey("Given an API failing for other reasons", t, func() {
		c := newFakeClient(&fakeGitHubAPI{repoErr: errorResponse(http.StatusBadGateway)})

		Convey("Then fetching reports an upstream error", func() {
			_, err := c.Fetch(context.Background(), "acme", "agent")
			So(errors.Is(err, model.ErrUpstream), ShouldBeTrue)
			So(errors.Is(err, model.ErrRepoNotFound), ShouldBeFalse)
		})
	})
}

func TestClientAgainstServer(t *testing.T) {
	Convey("Given a server speaking the GitHub REST API", t, func() {
		var authHeader string
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/acme/agent", func(w http.ResponseWriter, r *http.Request) {
			authHeader = r.Header.Get("Authorization")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"name":             "agent",
				"owner":            map[string]string{"login": "acme"},
				"stargazers_count": 3,
				"forks_count":      0,
				"watchers_count":   3,
				"created_at":       fixedNow.Add(-10 * 24 * time.Hour).Format(time.RFC3339),
				"pushed_at":        fixedNow.Add(-45 * 24 * time.Hour).Format(time.RFC3339),
			})
		})
		mux.HandleFunc("/repos/acme/agent/contributors", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("anon") != "true" || r.URL.Query().Get("per_page") != "1" {
				http.Error(w, "bad query", http.StatusBadRequest)
				return
			}
			w.Header().Set("Link", fmt.Sprintf(`<http://%s/repos/acme/agent/contributors?anon=true&per_page=1&page=2>; rel="next", <http://%s/repos/acme/agent/contributors?anon=true&per_page=1&page=4>; rel="last"`, r.Host, r.Host))
			_, _ = w.Write([]byte(`[{"login":"a"}]`))
		})
		mux.HandleFunc("/repos/acme/agent/commits", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`[]`))
		})
		mux.HandleFunc("/repos/acme/agent/readme", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
		})
		mux.HandleFunc("/repos/acme/ghost", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"Not Found"}`))
		})
		srv := httptest.NewServer(mux)
		Reset(srv.Close)

		c, err := New(
			WithBaseURL(srv.URL),
			WithToken("secret"),
			WithTimeout(5*time.Second),
			WithClock(func() time.Time { return fixedNow }),
			WithLogger(logger.NewNop()),
		)
		So(err, ShouldBeNil)

		Convey("When fetching an existing repository", func() {
			meta, err := c.Fetch(context.Background(), "acme", "agent")

			Convey("Then the snapshot should reflect the responses", func() {
				So(err, ShouldBeNil)
				So(authHeader, ShouldEqual, "Bearer secret")
				So(meta.Stars, ShouldEqual, 3)
				So(meta.AgeInDays, ShouldEqual, 10)
				So(meta.LastPushDaysAgo, ShouldEqual, 45)
				So(meta.ContributorsCount, ShouldEqual, 4)
				So(meta.RecentCommitCount, ShouldEqual, 0)
				So(meta.HasReadme, ShouldBeFalse)
			})
		})

		Convey("When fetching a missing repository", func() {
			_, err := c.Fetch(context.Background(), "acme", "ghost")

			Convey("Then it should be reported as not found", func() {
				So(errors.Is(err, model.ErrRepoNotFound), ShouldBeTrue)
			})
		})
	})
}

func TestDaysSince(t *testing.T) {
	Convey("Whole days are floored and unknown instants count as zero", t, func() {
		So(daysSince(fixedNow, fixedNow.Add(-47*time.Hour)), ShouldEqual, 1)
		So(daysSince(fixedNow, fixedNow.Add(-48*time.Hour)), ShouldEqual, 2)
		So(daysSince(fixedNow, time.Time{}), ShouldEqual, 0)
		So(daysSince(fixedNow, fixedNow.Add(time.Hour)), ShouldEqual, 0)
	})
}
