package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL      = "https://api.firecrawl.dev"
	defaultTimeout      = 30 * time.Second
	defaultMaxRetries   = 3
	defaultRetryWaitMin = 2 * time.Second
	defaultRetryWaitMax = 30 * time.Second
	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 30
	defaultBatchSize    = 3

	maxResponseBytes = 16 << 20
)

// DefaultCosts are the credit prices of the hosted service.
var DefaultCosts = Costs{Scrape: 1, Extract: 15, Map: 1}

// Config controls the extraction client.
type Config struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	RetryWaitMin      time.Duration
	RetryWaitMax      time.Duration
	RequestsPerSecond float64
	Burst             int
	Costs             Costs
	PollInterval      time.Duration
	MaxPolls          int
	BatchConcurrency  int
	Logger            Logger
	HTTPClient        *http.Client
}

// Client is the stateless transport to the extraction service. Calls are
// made through a Session, which owns the credit budget.
type Client struct {
	http         *retryablehttp.Client
	baseURL      string
	apiKey       string
	limiter      *rate.Limiter
	costs        Costs
	pollInterval time.Duration
	maxPolls     int
	batchSize    int
	log          Logger
}

// NewClient builds a Client, filling unset fields with defaults.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("extraction requires an API key (set extraction.api_key in config or RIVALSCOPE_EXTRACTION_API_KEY)")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}
	waitMin := cfg.RetryWaitMin
	if waitMin <= 0 {
		waitMin = defaultRetryWaitMin
	}
	waitMax := cfg.RetryWaitMax
	if waitMax < waitMin {
		waitMax = defaultRetryWaitMax
		if waitMax < waitMin {
			waitMax = waitMin
		}
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if burst <= 0 {
			burst = 1
		}
	}

	costs := cfg.Costs
	if costs == (Costs{}) {
		costs = DefaultCosts
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxPolls := cfg.MaxPolls
	if maxPolls <= 0 {
		maxPolls = defaultMaxPolls
	}
	batchSize := cfg.BatchConcurrency
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	log := cfg.Logger
	if log == nil {
		log = nopLogger{}
	}

	rc := retryablehttp.NewClient()
	if cfg.HTTPClient != nil {
		rc.HTTPClient = cfg.HTTPClient
	}
	rc.HTTPClient.Timeout = timeout
	rc.RetryMax = maxRetries
	rc.RetryWaitMin = waitMin
	rc.RetryWaitMax = waitMax
	rc.CheckRetry = retryPolicy
	rc.Backoff = retryablehttp.DefaultBackoff
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = leveledLogger{log}

	return &Client{
		http:         rc,
		baseURL:      baseURL,
		apiKey:       apiKey,
		limiter:      rate.NewLimiter(limit, burst),
		costs:        costs,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		batchSize:    batchSize,
		log:          log,
	}, nil
}

// Costs returns the credit price table in use.
func (c *Client) Costs() Costs { return c.costs }

// retryPolicy retries network errors, 429 and 5xx responses.
func retryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

func (c *Client) do(ctx context.Context, op Operation, target, method, path string, payload interface{}) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportError(op, target, err)
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, &Error{Kind: InvalidResponse, Op: op, URL: target, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(buf)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &Error{Kind: InvalidResponse, Op: op, URL: target, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, transportError(op, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, transportError(op, target, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Error{Kind: RateLimited, Op: op, URL: target, Status: resp.StatusCode, Err: errors.New(apiMessage(data))}
	case resp.StatusCode >= 500:
		return nil, &Error{Kind: Unavailable, Op: op, URL: target, Status: resp.StatusCode, Err: errors.New(apiMessage(data))}
	case resp.StatusCode == http.StatusRequestTimeout:
		return nil, &Error{Kind: Timeout, Op: op, URL: target, Status: resp.StatusCode, Err: errors.New(apiMessage(data))}
	case resp.StatusCode >= 300:
		return nil, &Error{Kind: InvalidResponse, Op: op, URL: target, Status: resp.StatusCode, Err: errors.New(apiMessage(data))}
	}

	if !gjson.ValidBytes(data) {
		return nil, &Error{Kind: InvalidResponse, Op: op, URL: target, Status: resp.StatusCode, Err: errors.New("response is not valid JSON")}
	}
	if ok := gjson.GetBytes(data, "success"); ok.Exists() && !ok.Bool() {
		return nil, &Error{Kind: InvalidResponse, Op: op, URL: target, Status: resp.StatusCode, Err: errors.New(apiMessage(data))}
	}
	return data, nil
}

func apiMessage(data []byte) string {
	if msg := gjson.GetBytes(data, "error").String(); msg != "" {
		return msg
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		return "empty response"
	}
	return s
}

func (c *Client) scrape(ctx context.Context, target string, opts ScrapeOptions) (*ScrapeResponse, error) {
	if len(opts.Formats) == 0 {
		opts.Formats = []string{"markdown", "html"}
	}
	payload := struct {
		URL string `json:"url"`
		ScrapeOptions
	}{URL: target, ScrapeOptions: opts}

	data, err := c.do(ctx, OpScrape, target, http.MethodPost, "/v1/scrape", payload)
	if err != nil {
		return nil, err
	}
	if !gjson.GetBytes(data, "data").IsObject() {
		return nil, &Error{Kind: InvalidResponse, Op: OpScrape, URL: target, Err: errors.New("response has no data object")}
	}
	return parseScrape(target, data), nil
}

func (c *Client) mapSite(ctx context.Context, target string, opts MapOptions) ([]string, error) {
	payload := struct {
		URL string `json:"url"`
		MapOptions
	}{URL: target, MapOptions: opts}

	data, err := c.do(ctx, OpMap, target, http.MethodPost, "/v1/map", payload)
	if err != nil {
		return nil, err
	}
	return parseLinks(data), nil
}

// extract starts an extraction job and waits for its result. The service may
// answer inline or hand back a job id to poll.
func (c *Client) extract(ctx context.Context, target string, schema map[string]interface{}, prompt string) (*ExtractResponse, error) {
	payload := map[string]interface{}{
		"urls":   []string{target},
		"schema": schema,
	}
	if prompt != "" {
		payload["prompt"] = prompt
	}

	data, err := c.do(ctx, OpExtract, target, http.MethodPost, "/v1/extract", payload)
	if err != nil {
		return nil, err
	}
	if res := gjson.GetBytes(data, "data"); res.IsObject() || res.IsArray() {
		return &ExtractResponse{URL: target, Data: res}, nil
	}

	id := gjson.GetBytes(data, "id").String()
	if id == "" {
		return nil, &Error{Kind: InvalidResponse, Op: OpExtract, URL: target, Err: errors.New("response has neither data nor job id")}
	}
	c.log.Debugf("extraction job %s started for %s", id, target)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for attempt := 1; attempt <= c.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return nil, transportError(OpExtract, target, ctx.Err())
		case <-ticker.C:
		}

		status, err := c.do(ctx, OpExtract, target, http.MethodGet, "/v1/extract/"+id, nil)
		if err != nil {
			return nil, err
		}
		switch gjson.GetBytes(status, "status").String() {
		case "completed":
			return &ExtractResponse{URL: target, Data: gjson.GetBytes(status, "data")}, nil
		case "failed", "cancelled":
			return nil, &Error{Kind: InvalidResponse, Op: OpExtract, URL: target, Err: fmt.Errorf("extraction job %s failed: %s", id, apiMessage(status))}
		}
	}
	return nil, &Error{Kind: Timeout, Op: OpExtract, URL: target, Err: fmt.Errorf("extraction job %s not completed after %d polls", id, c.maxPolls)}
}
