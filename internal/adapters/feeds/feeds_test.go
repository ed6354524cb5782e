package feeds

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/agentskan/internal/domain/model"
	"github.com/okian/agentskan/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCache(t *testing.T) {
	Convey("Given a cache with a counting fetcher", t, func() {
		ctx := context.Background()
		var calls atomic.Int32
		c := NewCache("test", time.Minute, func(_ context.Context, key string) (string, error) {
			n := calls.Add(1)
			return key + "-" + string(rune('0'+n)), nil
		})
		t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		Convey("A fresh snapshot is served without refetching", func() {
			s1, err := c.Get(ctx, "k", t0)
			So(err, ShouldBeNil)
			s2, err := c.Get(ctx, "k", t0.Add(59*time.Second))
			So(err, ShouldBeNil)
			So(s2, ShouldResemble, s1)
			So(calls.Load(), ShouldEqual, 1)
			So(s1.TTL, ShouldEqual, time.Minute)
			So(s1.FetchedAt, ShouldEqual, t0)
		})

		Convey("A stale snapshot is refreshed", func() {
			_, _ = c.Get(ctx, "k", t0)
			s, err := c.Get(ctx, "k", t0.Add(time.Minute))
			So(err, ShouldBeNil)
			So(s.Value, ShouldEqual, "k-2")
			So(calls.Load(), ShouldEqual, 2)
		})

		Convey("Keys are cached independently", func() {
			_, _ = c.Get(ctx, "a", t0)
			_, _ = c.Get(ctx, "b", t0)
			So(calls.Load(), ShouldEqual, 2)
			c.Invalidate()
			_, _ = c.Get(ctx, "a", t0)
			So(calls.Load(), ShouldEqual, 3)
		})
	})

	Convey("Concurrent misses share one fetch", t, func() {
		release := make(chan struct{})
		var calls atomic.Int32
		c := NewCache("test", time.Minute, func(context.Context, string) (int, error) {
			calls.Add(1)
			<-release
			return 7, nil
		})
		now := time.Now()

		var wg sync.WaitGroup
		results := make([]int, 8)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				s, err := c.Get(context.Background(), "k", now)
				if err == nil {
					results[i] = s.Value
				}
			}(i)
		}
		time.Sleep(50 * time.Millisecond)
		close(release)
		wg.Wait()

		So(calls.Load(), ShouldEqual, 1)
		for _, v := range results {
			So(v, ShouldEqual, 7)
		}
	})

	Convey("A failed refresh reports the error and keeps the old snapshot", t, func() {
		fail := false
		c := NewCache("test", time.Minute, func(context.Context, string) (string, error) {
			if fail {
				return "", errors.New("down")
			}
			return "v", nil
		})
		t0 := time.Now()
		_, err := c.Get(context.Background(), "k", t0)
		So(err, ShouldBeNil)

		fail = true
		_, err = c.Get(context.Background(), "k", t0.Add(2*time.Minute))
		So(err, ShouldNotBeNil)

		s, err := c.Get(context.Background(), "k", t0.Add(30*time.Second))
		So(err, ShouldBeNil)
		So(s.Value, ShouldEqual, "v")
	})
}

func TestAgentsFeed(t *testing.T) {
	Convey("Given a Moltlaunch server", t, func() {
		var hits atomic.Int32
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			if r.URL.Path != "/api/agents" {
				http.NotFound(w, r)
				return
			}
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"agents":[
				{"id":"a1","name":"Alpha","symbol":"ALP","holders":12,"skills":["trade"],
				 "reputation":{"count":3,"summaryValue":42,"summaryValueDecimals":1},"lastActiveAt":1700000000},
				{"id":"a2","name":"Beta","symbol":"BET"}]}`)
		}))
		defer srv.Close()

		clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
		feed := NewAgentsFeed(WithBaseURL(srv.URL), WithClock(clk.Now), WithLogger(logger.NewNop()))

		Convey("Agents are decoded and total falls back to the list length", func() {
			snap, err := feed.Agents(context.Background())
			So(err, ShouldBeNil)
			So(snap.Value.Total, ShouldEqual, 2)
			So(snap.Value.Agents[0].Name, ShouldEqual, "Alpha")
			So(snap.Value.Agents[0].Reputation.Count, ShouldEqual, 3)
			So(snap.Value.Agents[0].Skills, ShouldResemble, []string{"trade"})
			So(snap.TTL, ShouldEqual, DefaultTTL)
		})

		Convey("Repeated calls within the TTL hit upstream once", func() {
			_, _ = feed.Agents(context.Background())
			clk.Advance(4 * time.Minute)
			_, _ = feed.Agents(context.Background())
			So(hits.Load(), ShouldEqual, 1)
			clk.Advance(2 * time.Minute)
			_, _ = feed.Agents(context.Background())
			So(hits.Load(), ShouldEqual, 2)
		})

		Convey("Upstream failures surface as unavailable", func() {
			status = http.StatusBadGateway
			_, err := feed.Agents(context.Background())
			So(errors.Is(err, ErrFeedUnavailable), ShouldBeTrue)
			So(errors.Is(err, model.ErrUpstream), ShouldBeTrue)
		})
	})
}

func TestTokensFeed(t *testing.T) {
	Convey("Given a Clawnch server", t, func() {
		var lastQuery string
		body := `{"tokens":[{"symbol":"CLW","name":"Claw","address":"0xabc","source":"moltx",
			"launchedAt":"2026-01-01T00:00:00Z","clanker_url":"https://c/1","explorer_url":"https://e/1",
			"source_url":"https://s/1"}],"count":9,"pagination":{"total":120}}`
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastQuery = r.URL.RawQuery
			_, _ = io.WriteString(w, body)
		}))
		defer srv.Close()

		feed := NewTokensFeed(WithBaseURL(srv.URL), WithLogger(logger.NewNop()))

		Convey("Fields are normalised to camelCase and pagination.total wins", func() {
			snap, err := feed.Tokens(context.Background(), 10, 20)
			So(err, ShouldBeNil)
			So(lastQuery, ShouldEqual, "limit=10&offset=20")
			list := snap.Value
			So(list.Total, ShouldEqual, 120)
			So(list.Limit, ShouldEqual, 10)
			So(list.Offset, ShouldEqual, 20)
			So(list.Tokens, ShouldResemble, []Token{{
				Symbol: "CLW", Name: "Claw", Address: "0xabc", Source: "moltx",
				LaunchedAt: "2026-01-01T00:00:00Z", ClankerURL: "https://c/1",
				ExplorerURL: "https://e/1", SourceURL: "https://s/1",
			}})
		})

		Convey("Defaults apply to out of range paging", func() {
			snap, err := feed.Tokens(context.Background(), 0, -5)
			So(err, ShouldBeNil)
			So(lastQuery, ShouldEqual, "limit=50&offset=0")
			So(snap.Value.Limit, ShouldEqual, DefaultTokenLimit)
		})

		Convey("Malformed payloads are reported", func() {
			body = `{"tokens": "nope"}`
			_, err := feed.Tokens(context.Background(), 5, 0)
			So(errors.Is(err, ErrBadPayload), ShouldBeTrue)
		})
	})
}

func TestDecodeTokens(t *testing.T) {
	Convey("decodeTokens resolves the total in order", t, func() {
		list, err := decodeTokens([]byte(`{"tokens":[{"symbol":"A"},{"symbol":"B"}],"count":7}`))
		So(err, ShouldBeNil)
		So(list.Total, ShouldEqual, 7)

		list, err = decodeTokens([]byte(`{"tokens":[{"symbol":"A"}]}`))
		So(err, ShouldBeNil)
		So(list.Total, ShouldEqual, 1)

		list, err = decodeTokens([]byte(`[{"symbol":"A","clanker_url":"u"},{"symbol":"B"}]`))
		So(err, ShouldBeNil)
		So(list.Total, ShouldEqual, 2)
		So(list.Tokens[0].ClankerURL, ShouldEqual, "u")

		list, err = decodeTokens([]byte(`{}`))
		So(err, ShouldBeNil)
		So(list.Tokens, ShouldBeEmpty)
		So(list.Total, ShouldEqual, 0)
	})
}
