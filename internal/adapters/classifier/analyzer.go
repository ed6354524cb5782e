// Package classifier flags concerning content in repository READMEs with a
// chat completion model.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/okian/agentskan/internal/domain/model"
	"github.com/okian/agentskan/pkg/logger"
	"github.com/okian/agentskan/pkg/metrics"
)

const (
	defaultMaxChars    = 15000
	defaultTemperature = 0.3
	defaultMaxTokens   = 1024
	defaultMaxRetries  = 2
	defaultTimeout     = 20 * time.Second
)

// Analyzer turns README text into content flags.
type Analyzer struct {
	provider Provider
	maxChars int
	timeout  time.Duration
	log      logger.Logger
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithMaxChars bounds how much of the README is sent.
func WithMaxChars(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxChars = n
		}
	}
}

// WithTimeout bounds a single analysis.
func WithTimeout(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the analyzer logger.
func WithLogger(log logger.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if log != nil {
			a.log = log
		}
	}
}

// NewAnalyzer constructs an Analyzer over provider.
func NewAnalyzer(provider Provider, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		provider: provider,
		maxChars: defaultMaxChars,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logger.Get().Named("classifier")
	}
	return a
}

// Analyze asks the provider for flags about readme. Flags whose severity is
// not low, medium or high are dropped. Categories outside the known list are
// kept verbatim.
func (a *Analyzer) Analyze(ctx context.Context, readme string) ([]model.ContentFlag, error) {
	if strings.TrimSpace(readme) == "" {
		return nil, ErrEmptyReadme
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	raw, err := a.provider.Complete(ctx, systemPrompt(), userPrompt(truncate(readme, a.maxChars)))
	if err != nil {
		metrics.RecordUpstreamRequest(a.provider.Name(), "error", time.Since(start))
		return nil, fmt.Errorf("%w: %s: %w", ErrAnalysisFailed, a.provider.Name(), err)
	}
	metrics.RecordUpstreamRequest(a.provider.Name(), "ok", time.Since(start))

	flags, dropped, err := parseFlags(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrAnalysisFailed, a.provider.Name(), err)
	}
	if dropped > 0 {
		a.log.Debug(ctx, "dropped flags with unknown severity", logger.Int("count", dropped))
	}
	return flags, nil
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func systemPrompt() string {
	var sb strings.Builder
	sb.WriteString("You review README files of AI agent projects, many tied to crypto tokens, ")
	sb.WriteString("and point out warning signs of scams or low effort projects.\n\n")
	sb.WriteString("Reply with a single JSON object of the form ")
	sb.WriteString(`{"flags":[{"category":"...","message":"...","severity":"low|medium|high"}]}`)
	sb.WriteString(".\n\nUse exactly one of these categories for each flag:\n")
	for _, c := range model.Categories {
		sb.WriteString("- ")
		sb.WriteString(c)
		sb.WriteString("\n")
	}
	sb.WriteString("\nLook for guaranteed returns or impossible capabilities, vague or missing technical detail, ")
	sb.WriteString("urgency and fear of missing out, unverifiable partnerships or metrics, token economics ")
	sb.WriteString("crowding out functionality, and placeholder or copied documentation.\n")
	sb.WriteString("Each message must name the specific concern. ")
	sb.WriteString(`If nothing is concerning reply {"flags":[]}.`)
	return sb.String()
}

func userPrompt(readme string) string {
	return "Review this README:\n\n" + readme
}

type flagsEnvelope struct {
	Flags []struct {
		Category string `json:"category"`
		Message  string `json:"message"`
		Severity string `json:"severity"`
	} `json:"flags"`
}

// parseFlags decodes the model reply. Replies wrapped in prose or code
// fences are trimmed to the outermost JSON object first.
func parseFlags(raw string) ([]model.ContentFlag, int, error) {
	body := strings.TrimSpace(raw)
	if i, j := strings.Index(body, "{"), strings.LastIndex(body, "}"); i >= 0 && j > i {
		body = body[i : j+1]
	}

	var env flagsEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, 0, fmt.Errorf("decode reply: %w", err)
	}

	flags := make([]model.ContentFlag, 0, len(env.Flags))
	dropped := 0
	for _, f := range env.Flags {
		sev, ok := model.ParseSeverity(f.Severity)
		if !ok {
			dropped++
			continue
		}
		flags = append(flags, model.ContentFlag{
			Category: strings.TrimSpace(f.Category),
			Message:  strings.TrimSpace(f.Message),
			Severity: sev,
		})
	}
	return flags, dropped, nil
}
