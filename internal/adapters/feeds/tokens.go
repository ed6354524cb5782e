package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/okian/agentskan/pkg/logger"
)

const (
	tokensFeed       = "clawnch"
	defaultTokensURL = "https://clawn.ch"

	// DefaultTokenLimit is the page size used when none is requested.
	DefaultTokenLimit = 50
)

// Token is one token launch as listed by Clawnch.
type Token struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	Source      string `json:"source"`
	LaunchedAt  string `json:"launchedAt"`
	ClankerURL  string `json:"clankerUrl"`
	ExplorerURL string `json:"explorerUrl"`
	SourceURL   string `json:"sourceUrl"`
}

// upstreamToken mirrors the snake_case fields Clawnch returns.
type upstreamToken struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	Source      string `json:"source"`
	LaunchedAt  string `json:"launchedAt"`
	ClankerURL  string `json:"clanker_url"`
	ExplorerURL string `json:"explorer_url"`
	SourceURL   string `json:"source_url"`
}

func (u upstreamToken) normalize() Token {
	return Token{
		Symbol:      u.Symbol,
		Name:        u.Name,
		Address:     u.Address,
		Source:      u.Source,
		LaunchedAt:  u.LaunchedAt,
		ClankerURL:  u.ClankerURL,
		ExplorerURL: u.ExplorerURL,
		SourceURL:   u.SourceURL,
	}
}

// TokenList is one page of the token feed.
type TokenList struct {
	Tokens []Token `json:"tokens"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// TokensFeed pages through Clawnch token launches through a TTL cache keyed
// by page.
type TokensFeed struct {
	cfg   config
	cache *Cache[TokenList]
}

// NewTokensFeed constructs the Clawnch token feed.
func NewTokensFeed(opts ...Option) *TokensFeed {
	f := &TokensFeed{cfg: newConfig(defaultTokensURL, "feeds.tokens", opts)}
	f.cache = NewCache(tokensFeed, f.cfg.ttl, f.load)
	return f
}

// Tokens returns one page of launches. Non-positive limits fall back to
// DefaultTokenLimit and negative offsets to zero.
func (f *TokensFeed) Tokens(ctx context.Context, limit, offset int) (Snapshot[TokenList], error) {
	if limit <= 0 {
		limit = DefaultTokenLimit
	}
	if offset < 0 {
		offset = 0
	}
	return f.cache.Get(ctx, pageKey(limit, offset), f.cfg.clock())
}

func pageKey(limit, offset int) string {
	return fmt.Sprintf("%d:%d", limit, offset)
}

func parsePageKey(key string) (int, int, error) {
	l, o, ok := strings.Cut(key, ":")
	if !ok {
		return 0, 0, fmt.Errorf("bad page key %q", key)
	}
	limit, err := strconv.Atoi(l)
	if err != nil {
		return 0, 0, err
	}
	offset, err := strconv.Atoi(o)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}

func (f *TokensFeed) load(ctx context.Context, key string) (TokenList, error) {
	limit, offset, err := parsePageKey(key)
	if err != nil {
		return TokenList{}, err
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	endpoint := strings.TrimRight(f.cfg.baseURL, "/") + "/api/tokens?" + q.Encode()

	var raw json.RawMessage
	if err := getJSON(ctx, f.cfg.httpClient, tokensFeed, endpoint, &raw); err != nil {
		return TokenList{}, err
	}
	list, err := decodeTokens(raw)
	if err != nil {
		return TokenList{}, fmt.Errorf("%w: %w: %s: %w", ErrFeedUnavailable, ErrBadPayload, tokensFeed, err)
	}
	list.Limit = limit
	list.Offset = offset

	f.cfg.log.Debug(ctx, "token feed refreshed",
		logger.Int("tokens", len(list.Tokens)),
		logger.Int("limit", limit),
		logger.Int("offset", offset))
	return list, nil
}

// decodeTokens accepts either {"tokens":[...],"pagination":{"total":n},"count":n}
// or a bare array. The total prefers pagination.total, then count, then the
// page length.
func decodeTokens(raw json.RawMessage) (TokenList, error) {
	var upstream []upstreamToken
	var total int

	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(raw, &upstream); err != nil {
			return TokenList{}, err
		}
	} else {
		var env struct {
			Tokens     []upstreamToken `json:"tokens"`
			Count      int             `json:"count"`
			Pagination *struct {
				Total int `json:"total"`
			} `json:"pagination"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return TokenList{}, err
		}
		upstream = env.Tokens
		switch {
		case env.Pagination != nil && env.Pagination.Total > 0:
			total = env.Pagination.Total
		case env.Count > 0:
			total = env.Count
		}
	}

	tokens := make([]Token, 0, len(upstream))
	for _, u := range upstream {
		tokens = append(tokens, u.normalize())
	}
	if total == 0 {
		total = len(tokens)
	}
	return TokenList{Tokens: tokens, Total: total}, nil
}
