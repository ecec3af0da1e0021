package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler, mutate ...func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := Config{
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
		PollInterval: time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{APIKey: "  "})
	require.Error(t, err)
}

func TestScrapeURL(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/scrape", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://example.co.za/deals", body["url"])
		writeJSON(w, 200, `{"success":true,"data":{"markdown":"# Deals","html":"<html><head><title>  Best   Deals </title></head><body></body></html>","links":["https://example.co.za/a"],"metadata":{"statusCode":200}}}`)
	}))
	s := c.NewSession(0)

	res, err := s.ScrapeURL(context.Background(), "https://example.co.za/deals", ScrapeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "# Deals", res.Markdown)
	assert.Equal(t, "Best Deals", res.Title())
	assert.Equal(t, []string{"https://example.co.za/a"}, res.Links)
	assert.Equal(t, 200, res.StatusCode)
	assert.Equal(t, 1, s.CreditsUsed())
}

func TestRetriesServerErrors(t *testing.T) {
	var hits int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			writeJSON(w, 502, `{"error":"bad gateway"}`)
			return
		}
		writeJSON(w, 200, `{"success":true,"data":{"markdown":"ok"}}`)
	}))
	s := c.NewSession(0)

	res, err := s.ScrapeURL(context.Background(), "https://example.co.za", ScrapeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Markdown)
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
	assert.Equal(t, 1, s.CreditsUsed())
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   Kind
	}{
		{"rate limited", 429, `{"error":"slow down"}`, RateLimited},
		{"unavailable", 503, `{"error":"down"}`, Unavailable},
		{"bad request", 400, `{"error":"bad url"}`, InvalidResponse},
		{"not json", 200, `<html>`, InvalidResponse},
		{"unsuccessful", 200, `{"success":false,"error":"blocked"}`, InvalidResponse},
		{"no data", 200, `{"success":true}`, InvalidResponse},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			}), func(cfg *Config) { cfg.MaxRetries = 1 })
			s := c.NewSession(0)

			_, err := s.ScrapeURL(context.Background(), "https://example.co.za", ScrapeOptions{})
			require.Error(t, err)
			assert.True(t, IsKind(err, tc.kind), "got %v", err)
			assert.Equal(t, 0, s.CreditsUsed(), "failed calls are not charged")
		})
	}
}

func TestTimeout(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}), func(cfg *Config) {
		cfg.Timeout = 20 * time.Millisecond
		cfg.MaxRetries = -1
	})

	_, err := c.NewSession(0).ScrapeURL(context.Background(), "https://example.co.za", ScrapeOptions{})
	require.Error(t, err)
	assert.True(t, IsKind(err, Timeout), "got %v", err)
}

func TestBudgetCeilingStopsBeforeRequest(t *testing.T) {
	var hits int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path == "/v1/map" {
			writeJSON(w, 200, `{"success":true,"links":[]}`)
			return
		}
		writeJSON(w, 200, `{"success":true,"data":{"markdown":"ok"}}`)
	}))
	s := c.NewSession(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.ScrapeURL(ctx, fmt.Sprintf("https://example.co.za/%d", i), ScrapeOptions{})
		require.NoError(t, err)
	}
	_, err := s.ScrapeURL(ctx, "https://example.co.za/3", ScrapeOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
	assert.True(t, IsKind(err, BudgetExceeded))
	assert.True(t, s.Exhausted())

	// exhaustion is sticky for every operation
	_, err = s.MapSite(ctx, "https://example.co.za", MapOptions{})
	assert.True(t, errors.Is(err, ErrBudgetExceeded))

	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
	assert.Equal(t, 3, s.CreditsUsed())
}

func TestRefundedCallsDoNotExhaustBudget(t *testing.T) {
	started := make(chan struct{}, 2)
	release := make(chan struct{})
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			URL string `json:"url"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.URL == "https://example.co.za/slow" {
			started <- struct{}{}
			<-release
			writeJSON(w, 400, `{"error":"bad page"}`)
			return
		}
		writeJSON(w, 200, `{"success":true,"data":{"markdown":"ok"}}`)
	}))
	s := c.NewSession(2)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ScrapeURL(ctx, "https://example.co.za/slow", ScrapeOptions{})
			assert.True(t, IsKind(err, InvalidResponse), "got %v", err)
		}()
	}
	<-started
	<-started

	// both credits are held, so this call is refused but the budget stands
	_, err := s.ScrapeURL(ctx, "https://example.co.za/held", ScrapeOptions{})
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
	assert.False(t, s.Exhausted())

	close(release)
	wg.Wait()
	assert.Zero(t, s.CreditsUsed())

	for i := 0; i < 2; i++ {
		_, err := s.ScrapeURL(ctx, fmt.Sprintf("https://example.co.za/%d", i), ScrapeOptions{})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, s.CreditsUsed())
	assert.False(t, s.Exhausted())

	_, err = s.ScrapeURL(ctx, "https://example.co.za/2", ScrapeOptions{})
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
	assert.True(t, s.Exhausted())
}

func TestExtractTooExpensiveForRemainingBudget(t *testing.T) {
	var hits int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	s := c.NewSession(10)

	_, err := s.ExtractData(context.Background(), "https://example.co.za", map[string]interface{}{"type": "object"}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBudgetExceeded))
	assert.EqualValues(t, 0, atomic.LoadInt32(&hits))
}

func TestExtractDataInline(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/extract", r.URL.Path)
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []interface{}{"https://example.co.za/deals"}, body["urls"])
		assert.Equal(t, "list deals", body["prompt"])
		writeJSON(w, 200, `{"success":true,"data":{"products":[{"device_name":"Galaxy"}]}}`)
	}))
	s := c.NewSession(0)

	res, err := s.ExtractData(context.Background(), "https://example.co.za/deals", map[string]interface{}{"type": "object"}, "list deals")
	require.NoError(t, err)
	assert.Equal(t, "Galaxy", res.Data.Get("products.0.device_name").String())
	assert.Equal(t, 15, s.CreditsUsed())
	assert.Equal(t, map[Operation]int{OpExtract: 15}, s.Breakdown())
}

func TestExtractDataPollsJob(t *testing.T) {
	var polls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			writeJSON(w, 200, `{"success":true,"id":"job-1"}`)
		case r.URL.Path == "/v1/extract/job-1":
			if atomic.AddInt32(&polls, 1) < 3 {
				writeJSON(w, 200, `{"success":true,"status":"processing"}`)
				return
			}
			writeJSON(w, 200, `{"success":true,"status":"completed","data":{"packages":[{"package_name":"Fibre 100"}]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	s := c.NewSession(0)

	res, err := s.ExtractData(context.Background(), "https://example.co.za", nil, "")
	require.NoError(t, err)
	assert.Equal(t, "Fibre 100", res.Data.Get("packages.0.package_name").String())
	assert.EqualValues(t, 3, atomic.LoadInt32(&polls))
	assert.Equal(t, 15, s.CreditsUsed())
}

func TestExtractJobFailures(t *testing.T) {
	t.Run("failed job", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				writeJSON(w, 200, `{"success":true,"id":"job-2"}`)
				return
			}
			writeJSON(w, 200, `{"success":true,"status":"failed","error":"page blocked"}`)
		}))
		s := c.NewSession(0)
		_, err := s.ExtractData(context.Background(), "https://example.co.za", nil, "")
		require.Error(t, err)
		assert.True(t, IsKind(err, InvalidResponse))
		assert.Contains(t, err.Error(), "page blocked")
		assert.Equal(t, 0, s.CreditsUsed())
	})

	t.Run("never completes", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				writeJSON(w, 200, `{"success":true,"id":"job-3"}`)
				return
			}
			writeJSON(w, 200, `{"success":true,"status":"processing"}`)
		}), func(cfg *Config) { cfg.MaxPolls = 2 })
		_, err := c.NewSession(0).ExtractData(context.Background(), "https://example.co.za", nil, "")
		require.Error(t, err)
		assert.True(t, IsKind(err, Timeout))
	})
}

func TestMapSite(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/map", r.URL.Path)
		writeJSON(w, 200, `{"success":true,"links":["https://a.co.za/x",{"url":"https://a.co.za/y","title":"Y"}," "]}`)
	}))

	links, err := c.NewSession(0).MapSite(context.Background(), "https://a.co.za", MapOptions{Search: "deals"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.co.za/x", "https://a.co.za/y"}, links)
}

func TestBatchScrapeKeepsOrderAndBound(t *testing.T) {
	var inFlight, peak int32
	var mu sync.Mutex
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		defer atomic.AddInt32(&inFlight, -1)

		var body struct {
			URL string `json:"url"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		time.Sleep(10 * time.Millisecond)
		if body.URL == "https://example.co.za/bad" {
			writeJSON(w, 400, `{"error":"nope"}`)
			return
		}
		writeJSON(w, 200, fmt.Sprintf(`{"success":true,"data":{"markdown":%q}}`, body.URL))
	}))

	urls := []string{
		"https://example.co.za/1",
		"https://example.co.za/2",
		"https://example.co.za/bad",
		"https://example.co.za/4",
		"https://example.co.za/5",
		"https://example.co.za/6",
	}
	results := c.NewSession(0).BatchScrape(context.Background(), urls, ScrapeOptions{})
	require.Len(t, results, len(urls))
	for i, r := range results {
		assert.Equal(t, urls[i], r.URL)
		if r.URL == "https://example.co.za/bad" {
			assert.Error(t, r.Err)
			continue
		}
		require.NoError(t, r.Err)
		assert.Equal(t, urls[i], r.Response.Markdown)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int32(3))
}
