package providers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rivalscope/rivalscope/pkg/extraction"
	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/rivalscope/rivalscope/pkg/normalize"
)

const defaultURLConcurrency = 2

// Options tunes Run.
type Options struct {
	URLConcurrency int
	// MaxURLs caps how many candidate pages are extracted. Zero means no cap.
	MaxURLs int
	Logger  Logger
	Now     func() time.Time
}

// Outcome is the result of one Run: the job summary plus the normalized
// products ready to be persisted.
type Outcome struct {
	Result   *market.ScrapeJobResult
	Products []market.NormalizedProduct
	// Parsed lists the pages that were extracted without error.
	Parsed []string
	// Dropped holds the records that failed normalization.
	Dropped []market.RawProduct
	// Complete is set when discovery ran to the end and every discovered
	// page was extracted. Dropped records do not make a run incomplete.
	Complete bool
}

type pageResult struct {
	url string
	raw []market.RawProduct
	err error
}

// Run drives one scraper end to end. It never returns an error and never
// panics: every failure ends up in the result's Errors and Status.
func Run(ctx context.Context, s Scraper, provider market.Provider, ex Extractor, opts Options) (out *Outcome) {
	log := opts.Logger
	if log == nil {
		log = nopLogger{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	workers := opts.URLConcurrency
	if workers <= 0 {
		workers = defaultURLConcurrency
	}

	res := &market.ScrapeJobResult{
		ID:           uuid.NewString(),
		ProviderID:   provider.ID,
		ProviderSlug: s.Slug(),
		Status:       market.JobRunning,
		StartedAt:    now().UTC(),
	}
	out = &Outcome{Result: res}
	metered := newMeter(ex)
	ex = metered

	defer func() {
		if r := recover(); r != nil {
			res.AddError("scraper %s panicked: %v", s.Slug(), r)
			res.Status = market.JobFailed
			out.Products = nil
			out.Complete = false
			res.ProductsFound = 0
		}
		res.CreditsConsumed = metered.CreditsUsed()
		res.CompletedAt = now().UTC()
	}()

	var (
		mu        sync.Mutex
		pages     []*pageResult
		budgetHit bool
		truncated bool
		wg        sync.WaitGroup
	)
	sem := make(chan struct{}, workers)
	seen := make(map[string]struct{})

	stopped := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return budgetHit || ctx.Err() != nil
	}

discover:
	for u, err := range s.FetchCandidateURLs(ctx, ex) {
		if err != nil {
			res.AddError("discover: %v", err)
			truncated = true
			if errors.Is(err, extraction.ErrBudgetExceeded) {
				mu.Lock()
				budgetHit = true
				mu.Unlock()
				break
			}
			continue
		}
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		if opts.MaxURLs > 0 && len(seen) >= opts.MaxURLs {
			truncated = true
			break
		}
		if stopped() {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break discover
		}
		// A worker may have hit the budget while we waited for a slot.
		if stopped() {
			<-sem
			break
		}
		seen[u] = struct{}{}

		pr := &pageResult{url: u}
		pages = append(pages, pr)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			raw, err := safeExtract(ctx, s, ex, pr.url)
			mu.Lock()
			defer mu.Unlock()
			pr.raw, pr.err = raw, err
			if errors.Is(err, extraction.ErrBudgetExceeded) {
				budgetHit = true
			}
		}()
	}
	wg.Wait()

	okPages := 0
	byKey := make(map[string]struct{})
	for _, pr := range pages {
		if pr.err != nil {
			res.AddError("%s: %v", pr.url, pr.err)
			log.Warnf("[%s] %s: %v", s.Slug(), pr.url, pr.err)
			continue
		}
		okPages++
		out.Parsed = append(out.Parsed, pr.url)
		for i, raw := range pr.raw {
			if raw.URL == "" {
				raw.URL = pr.url
			}
			p, err := normalize.Normalize(raw, provider, s.Profile())
			if err != nil {
				res.AddError("%s: record %d: %v", pr.url, i, err)
				log.Debugf("[%s] dropped record %d from %s: %v", s.Slug(), i, pr.url, err)
				out.Dropped = append(out.Dropped, raw)
				continue
			}
			key := p.IdentityKey()
			if _, dup := byKey[key]; dup {
				continue
			}
			byKey[key] = struct{}{}
			out.Products = append(out.Products, p)
		}
	}
	res.ProductsFound = len(out.Products)

	cancelled := ctx.Err() != nil
	if cancelled {
		res.AddError("run cancelled: %v", ctx.Err())
	}
	out.Complete = !truncated && !budgetHit && !cancelled && len(pages) > 0 && okPages == len(pages)
	switch {
	case budgetHit || cancelled:
		res.Status = market.JobPartial
	case len(pages) == 0:
		res.AddError("no candidate URLs discovered")
		res.Status = market.JobFailed
	case okPages == 0:
		res.Status = market.JobFailed
	case len(res.Errors) > 0:
		res.Status = market.JobPartial
	default:
		res.Status = market.JobSucceeded
	}

	log.Infof("[%s] %s: %d products from %d/%d pages, %d errors", s.Slug(), res.Status, res.ProductsFound, okPages, len(pages), len(res.Errors))
	return out
}

// safeExtract keeps a panicking scraper from taking the whole run down.
func safeExtract(ctx context.Context, s Scraper, ex Extractor, url string) (raw []market.RawProduct, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("extract panicked")
		}
	}()
	return s.ExtractProducts(ctx, ex, url)
}
