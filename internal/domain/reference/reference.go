// Package reference resolves user supplied repository references into an
// owner and repository pair.
package reference

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/okian/agentskan/internal/domain/model"
)

const (
	githubHost = "github.com"
	sshPrefix  = "git@github.com:"
)

// Target identifies a GitHub repository.
type Target struct {
	Owner string
	Repo  string
}

// URL returns the canonical web address of the repository.
func (t Target) URL() string {
	return "https://" + githubHost + "/" + t.Owner + "/" + t.Repo
}

// String implements fmt.Stringer.
func (t Target) String() string {
	return t.Owner + "/" + t.Repo
}

// Parse resolves ref into a Target. Errors wrap model.ErrInvalidReference.
//
// Accepted forms:
//
//	https://github.com/owner/repo
//	http://www.github.com/owner/repo/tree/main?tab=readme
//	github.com/owner/repo.git
//	git@github.com:owner/repo.git
func Parse(ref string) (Target, error) {
	raw := strings.TrimSpace(ref)
	if raw == "" {
		return Target{}, fmt.Errorf("%w: empty reference", model.ErrInvalidReference)
	}

	var path string
	if rest, ok := strings.CutPrefix(raw, sshPrefix); ok {
		path = rest
	} else {
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		u, err := url.Parse(raw)
		if err != nil {
			return Target{}, fmt.Errorf("%w: %q: %v", model.ErrInvalidReference, ref, err) //nolint:errorlint // url errors are not part of the contract
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return Target{}, fmt.Errorf("%w: unsupported scheme %q", model.ErrInvalidReference, u.Scheme)
		}
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		if host != githubHost {
			return Target{}, fmt.Errorf("%w: unsupported host %q", model.ErrInvalidReference, u.Hostname())
		}
		path = u.Path
	}

	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	if len(segments) < 2 {
		return Target{}, fmt.Errorf("%w: %q has no owner/repository path", model.ErrInvalidReference, ref)
	}

	owner := segments[0]
	repo := strings.TrimSuffix(segments[1], ".git")
	if !validSegment(owner) || !validSegment(repo) {
		return Target{}, fmt.Errorf("%w: %q has an invalid owner or repository", model.ErrInvalidReference, ref)
	}

	return Target{Owner: owner, Repo: repo}, nil
}

// validSegment reports whether s can be a GitHub owner or repository name.
func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}
