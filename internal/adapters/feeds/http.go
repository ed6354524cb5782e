package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/agentskan/internal/domain/model"
	"github.com/okian/agentskan/pkg/metrics"
)

const maxBodyBytes = 8 << 20

// getJSON issues a GET to url and decodes the body into out.
func getJSON(ctx context.Context, hc *http.Client, feed, url string, out any) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFeedUnavailable, feed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		metrics.RecordUpstreamRequest(feed, "error", time.Since(start))
		return fmt.Errorf("%w: %w: %s: %w", ErrFeedUnavailable, model.ErrUpstream, feed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordUpstreamRequest(feed, "error", time.Since(start))
		return fmt.Errorf("%w: %w: %s returned %d", ErrFeedUnavailable, model.ErrUpstream, feed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.RecordUpstreamRequest(feed, "error", time.Since(start))
		return fmt.Errorf("%w: %w: %s: %w", ErrFeedUnavailable, model.ErrUpstream, feed, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		metrics.RecordUpstreamRequest(feed, "malformed", time.Since(start))
		return fmt.Errorf("%w: %w: %s: %w", ErrFeedUnavailable, ErrBadPayload, feed, err)
	}
	metrics.RecordUpstreamRequest(feed, "ok", time.Since(start))
	return nil
}
