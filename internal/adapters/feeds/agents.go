package feeds

import (
	"context"
	"strings"

	"github.com/okian/agentskan/pkg/logger"
)

const (
	agentsFeed       = "moltlaunch"
	defaultAgentsURL = "https://api.moltlaunch.com"
)

// Reputation is the on-chain reputation summary of an agent.
type Reputation struct {
	Count                int     `json:"count"`
	SummaryValue         float64 `json:"summaryValue"`
	SummaryValueDecimals int     `json:"summaryValueDecimals"`
}

// Agent is one launched agent as listed by Moltlaunch.
type Agent struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	Symbol         string     `json:"symbol"`
	Image          string     `json:"image"`
	MarketCapUSD   float64    `json:"marketCapUSD"`
	Volume24hUSD   float64    `json:"volume24hUSD"`
	PriceChange24h float64    `json:"priceChange24h"`
	Holders        int        `json:"holders"`
	Reputation     Reputation `json:"reputation"`
	Twitter        string     `json:"twitter,omitempty"`
	Skills         []string   `json:"skills"`
	FlaunchURL     string     `json:"flaunchUrl"`
	LastActiveAt   int64      `json:"lastActiveAt"`
	GitHubURL      string     `json:"githubUrl,omitempty"`
}

// AgentList is the agents feed payload.
type AgentList struct {
	Agents []Agent `json:"agents"`
	Total  int     `json:"total"`
}

// AgentsFeed lists agents from Moltlaunch through a TTL cache.
type AgentsFeed struct {
	cfg   config
	cache *Cache[AgentList]
}

// NewAgentsFeed constructs the Moltlaunch agents feed.
func NewAgentsFeed(opts ...Option) *AgentsFeed {
	f := &AgentsFeed{cfg: newConfig(defaultAgentsURL, "feeds.agents", opts)}
	f.cache = NewCache(agentsFeed, f.cfg.ttl, f.load)
	return f
}

// Agents returns the current agent listing.
func (f *AgentsFeed) Agents(ctx context.Context) (Snapshot[AgentList], error) {
	return f.cache.Get(ctx, "all", f.cfg.clock())
}

func (f *AgentsFeed) load(ctx context.Context, _ string) (AgentList, error) {
	var payload struct {
		Agents []Agent `json:"agents"`
		Total  int     `json:"total"`
	}
	url := strings.TrimRight(f.cfg.baseURL, "/") + "/api/agents"
	if err := getJSON(ctx, f.cfg.httpClient, agentsFeed, url, &payload); err != nil {
		return AgentList{}, err
	}

	list := AgentList{Agents: payload.Agents, Total: payload.Total}
	if list.Agents == nil {
		list.Agents = []Agent{}
	}
	if list.Total == 0 {
		list.Total = len(list.Agents)
	}
	f.cfg.log.Debug(ctx, "agents feed refreshed", logger.Int("agents", len(list.Agents)))
	return list, nil
}
