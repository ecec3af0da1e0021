package extraction

import (
	"context"
	"fmt"
	"sync"
)

// Session is the per-run context of extraction calls. It owns the credit
// counter and enforces the budget ceiling before any request is sent.
// A Session is safe for concurrent use.
type Session struct {
	client  *Client
	ceiling int

	mu        sync.Mutex
	used      int
	reserved  int
	exhausted bool
	byOp      map[Operation]int
}

// NewSession starts a session with the given credit ceiling. Zero means
// unlimited.
func (c *Client) NewSession(ceiling int) *Session {
	if ceiling < 0 {
		ceiling = 0
	}
	return &Session{client: c, ceiling: ceiling, byOp: make(map[Operation]int)}
}

// reserve holds cost credits for a call or fails with BudgetExceeded.
// The session is exhausted once settled credits leave no room for the call;
// from then on every reservation fails. A call blocked only by credits still
// held for calls in flight is refused without exhausting the session, since
// those calls may fail and be refunded.
func (s *Session) reserve(op Operation, target string) (int, error) {
	cost := s.client.costs.of(op)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exhausted && s.ceiling > 0 && s.used+cost > s.ceiling {
		s.exhausted = true
	}
	if s.exhausted || (s.ceiling > 0 && s.used+s.reserved+cost > s.ceiling) {
		return 0, &Error{
			Kind: BudgetExceeded,
			Op:   op,
			URL:  target,
			Err:  fmt.Errorf("%d of %d credits used, %d held, %s costs %d", s.used, s.ceiling, s.reserved, op, cost),
		}
	}
	s.reserved += cost
	return cost, nil
}

// settle releases a reservation, charging it only when the call succeeded.
func (s *Session) settle(op Operation, cost int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved -= cost
	if ok {
		s.used += cost
		s.byOp[op] += cost
	}
}

// CreditsUsed returns the credits charged so far.
func (s *Session) CreditsUsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Breakdown returns the credits charged per operation.
func (s *Session) Breakdown() map[Operation]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[Operation]int, len(s.byOp))
	for k, v := range s.byOp {
		out[k] = v
	}
	return out
}

// Exhausted reports whether the budget ceiling has been hit.
func (s *Session) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

// Cost returns the credits a successful op is charged. Failed calls are
// refunded.
func (s *Session) Cost(op Operation) int { return s.client.costs.of(op) }

// Ceiling returns the credit ceiling, zero when unlimited.
func (s *Session) Ceiling() int { return s.ceiling }

// ScrapeURL fetches one page.
func (s *Session) ScrapeURL(ctx context.Context, url string, opts ScrapeOptions) (*ScrapeResponse, error) {
	cost, err := s.reserve(OpScrape, url)
	if err != nil {
		return nil, err
	}
	res, err := s.client.scrape(ctx, url, opts)
	s.settle(OpScrape, cost, err == nil)
	return res, err
}

// ExtractData asks the service for structured data shaped by schema.
func (s *Session) ExtractData(ctx context.Context, url string, schema map[string]interface{}, prompt string) (*ExtractResponse, error) {
	cost, err := s.reserve(OpExtract, url)
	if err != nil {
		return nil, err
	}
	res, err := s.client.extract(ctx, url, schema, prompt)
	s.settle(OpExtract, cost, err == nil)
	return res, err
}

// MapSite lists the URLs the service knows for a site.
func (s *Session) MapSite(ctx context.Context, url string, opts MapOptions) ([]string, error) {
	cost, err := s.reserve(OpMap, url)
	if err != nil {
		return nil, err
	}
	links, err := s.client.mapSite(ctx, url, opts)
	s.settle(OpMap, cost, err == nil)
	return links, err
}

// BatchScrape fetches several pages with bounded concurrency. Results keep
// the order of urls; a failed page carries its error.
func (s *Session) BatchScrape(ctx context.Context, urls []string, opts ScrapeOptions) []BatchResult {
	results := make([]BatchResult, len(urls))
	sem := make(chan struct{}, s.client.batchSize)
	var wg sync.WaitGroup

	for i, u := range urls {
		results[i].URL = u
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i].Err = transportError(OpScrape, u, ctx.Err())
				return
			}
			defer func() { <-sem }()
			results[i].Response, results[i].Err = s.ScrapeURL(ctx, u, opts)
		}(i, u)
	}
	wg.Wait()
	return results
}
