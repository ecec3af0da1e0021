// Package pipeline runs provider scrapes end to end: extraction, persistence,
// price change detection, alerting and the read side for the dashboard.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rivalscope/rivalscope/pkg/analysis"
	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/rivalscope/rivalscope/pkg/matcher"
	"github.com/rivalscope/rivalscope/pkg/notify"
	"github.com/rivalscope/rivalscope/pkg/pricing"
	"github.com/rivalscope/rivalscope/pkg/providers"
	"github.com/shopspring/decimal"
)

const (
	defaultConcurrency = 3
	defaultStaleAfter  = 7 * 24 * time.Hour
	defaultAlertLimit  = 20
)

// Logger abstracts logging so callers can use logrus or anything with the
// same methods.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Extractor is a budgeted extraction session. *extraction.Session
// satisfies it.
type Extractor interface {
	providers.Extractor
	Exhausted() bool
}

// SessionFactory opens a fresh session for one run.
type SessionFactory func() Extractor

// Options configures a Pipeline. Zero values get defaults.
type Options struct {
	Concurrency    int // provider workers, default 3
	URLConcurrency int
	MaxURLs        int
	StaleAfter     time.Duration
	AlertLimit     int

	Detector   *pricing.Detector
	Matcher    *matcher.Matcher
	Analysis   *analysis.Engine
	Dispatcher *notify.Dispatcher // optional
	Log        Logger             // optional
	Now        func() time.Time
}

type Pipeline struct {
	repo     Repository
	registry *providers.Registry
	sessions SessionFactory
	opts     Options
	log      Logger
}

func New(repo Repository, registry *providers.Registry, sessions SessionFactory, opts Options) (*Pipeline, error) {
	if repo == nil || registry == nil || sessions == nil {
		return nil, errors.New("pipeline needs a repository, a registry and a session factory")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}
	if opts.AlertLimit <= 0 {
		opts.AlertLimit = defaultAlertLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	var err error
	if opts.Detector == nil {
		if opts.Detector, err = pricing.New(pricing.DefaultConfig()); err != nil {
			return nil, err
		}
	}
	if opts.Matcher == nil {
		if opts.Matcher, err = matcher.New(matcher.DefaultConfig()); err != nil {
			return nil, err
		}
	}
	if opts.Analysis == nil {
		if opts.Analysis, err = analysis.New(analysis.DefaultConfig(), opts.Matcher); err != nil {
			return nil, err
		}
	}
	log := opts.Log
	if log == nil {
		log = nopLogger{}
	}
	return &Pipeline{repo: repo, registry: registry, sessions: sessions, opts: opts, log: log}, nil
}

func (p *Pipeline) now() time.Time { return p.opts.Now().UTC() }

// RunProviderScrape scrapes one provider with its own session. It never
// returns an error: failures are reported through the result and alerts.
func (p *Pipeline) RunProviderScrape(ctx context.Context, slug string) *market.ScrapeJobResult {
	prov, err := p.resolveProvider(ctx, slug)
	if err != nil {
		return p.failedLookup(ctx, slug, err)
	}
	return p.runOne(ctx, *prov, p.sessions())
}

// RunAllActiveProviders scrapes every active provider that has a registered
// scraper, sharing one session across the worker pool. Results are sorted
// by slug.
func (p *Pipeline) RunAllActiveProviders(ctx context.Context, concurrency int) ([]*market.ScrapeJobResult, error) {
	return p.runMatching(ctx, concurrency, func(market.Provider) bool { return true })
}

// RunDueProviders is RunAllActiveProviders restricted to providers whose
// scrape frequency has elapsed at now.
func (p *Pipeline) RunDueProviders(ctx context.Context, now time.Time, concurrency int) ([]*market.ScrapeJobResult, error) {
	return p.runMatching(ctx, concurrency, func(prov market.Provider) bool { return prov.DueAt(now) })
}

func (p *Pipeline) runMatching(ctx context.Context, concurrency int, keep func(market.Provider) bool) ([]*market.ScrapeJobResult, error) {
	all, err := p.repo.ListProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing providers: %w", err)
	}
	var queue []market.Provider
	for _, prov := range all {
		if !prov.Active || !keep(prov) {
			continue
		}
		if _, err := p.registry.Definition(prov.Slug); err != nil {
			p.log.Warnf("Provider %s has no registered scraper, skipping", prov.Slug)
			continue
		}
		queue = append(queue, prov)
	}
	if concurrency <= 0 {
		concurrency = p.opts.Concurrency
	}
	return p.runConcurrently(ctx, queue, concurrency), nil
}

func (p *Pipeline) runConcurrently(ctx context.Context, queue []market.Provider, concurrency int) []*market.ScrapeJobResult {
	results := make([]*market.ScrapeJobResult, 0, len(queue))
	if len(queue) == 0 {
		return results
	}
	session := p.sessions()
	jobs := make(chan market.Provider, len(queue))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for prov := range jobs {
				res := p.runOne(ctx, prov, session)
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}
	for _, prov := range queue {
		jobs <- prov
	}
	close(jobs)
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].ProviderSlug < results[j].ProviderSlug })
	return results
}

// resolveProvider finds the registered scraper and the stored provider,
// storing the registry definition on first use.
func (p *Pipeline) resolveProvider(ctx context.Context, slug string) (*market.Provider, error) {
	def, err := p.registry.Definition(slug)
	if err != nil {
		return nil, err
	}
	prov, err := p.repo.GetProvider(ctx, def.Provider.Slug)
	if errors.Is(err, ErrNotFound) {
		fresh := def.Provider
		if err := p.repo.SaveProvider(ctx, &fresh); err != nil {
			return nil, fmt.Errorf("saving provider %s: %w", slug, err)
		}
		return &fresh, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading provider %s: %w", slug, err)
	}
	return prov, nil
}

func (p *Pipeline) failedLookup(ctx context.Context, slug string, err error) *market.ScrapeJobResult {
	now := p.now()
	res := &market.ScrapeJobResult{
		ID:           uuid.NewString(),
		ProviderSlug: slug,
		Status:       market.JobFailed,
		StartedAt:    now,
		CompletedAt:  now,
	}
	res.AddError("%v", err)
	p.log.Errorf("Cannot run provider %q: %v", slug, err)
	p.saveAlert(ctx, res, market.Alert{
		ID:        uuid.NewString(),
		Type:      market.AlertScrapeFailure,
		Severity:  market.AlertWarning,
		Title:     "Scrape failed: " + slug,
		Message:   fmt.Sprintf("Provider %q could not be run: %v", slug, err),
		DedupKey:  market.DedupKey(market.AlertScrapeFailure, slug, now),
		CreatedAt: now,
	})
	if err := p.repo.SaveJobResult(ctx, res); err != nil {
		p.log.Warnf("Could not save job result for %s: %v", slug, err)
	}
	return res
}

func (p *Pipeline) runOne(ctx context.Context, prov market.Provider, session Extractor) *market.ScrapeJobResult {
	scraper, err := p.registry.Get(prov.Slug)
	if err != nil {
		return p.failedLookup(ctx, prov.Slug, err)
	}

	p.log.Infof("Scraping %s", prov.Slug)
	out := providers.Run(ctx, scraper, prov, session, providers.Options{
		URLConcurrency: p.opts.URLConcurrency,
		MaxURLs:        p.opts.MaxURLs,
		Logger:         p.log,
		Now:            p.opts.Now,
	})
	res := out.Result

	// Persistence runs on a context detached from cancellation so a
	// cancelled run still records what it scraped.
	pctx := context.WithoutCancel(ctx)
	at := res.CompletedAt
	if res.Status != market.JobFailed {
		p.persist(pctx, prov, out, at)
	}

	if session.Exhausted() {
		p.saveAlert(pctx, res, market.Alert{
			ID:         uuid.NewString(),
			Type:       market.AlertBudgetExhausted,
			Severity:   market.AlertWarning,
			ProviderID: prov.ID,
			Title:      "Extraction budget exhausted",
			Message:    fmt.Sprintf("The credit budget ran out while scraping %s; remaining pages were skipped.", prov.Name),
			DedupKey:   market.DedupKey(market.AlertBudgetExhausted, "extraction", at),
			CreatedAt:  at,
		})
	}
	if res.Status == market.JobFailed {
		p.saveAlert(pctx, res, market.Alert{
			ID:         uuid.NewString(),
			Type:       market.AlertScrapeFailure,
			Severity:   market.AlertWarning,
			ProviderID: prov.ID,
			Title:      "Scrape failed: " + prov.Name,
			Message:    fmt.Sprintf("No products could be scraped from %s (%d errors).", prov.Name, len(res.Errors)),
			DedupKey:   market.DedupKey(market.AlertScrapeFailure, prov.ID, at),
			CreatedAt:  at,
		})
	}
	if res.Status == market.JobSucceeded || res.Status == market.JobPartial {
		if err := p.repo.MarkScraped(pctx, prov.ID, at); err != nil {
			p.log.Warnf("Could not update last scrape time for %s: %v", prov.Slug, err)
		}
	}
	if err := p.repo.SaveJobResult(pctx, res); err != nil {
		p.log.Warnf("Could not save job result for %s: %v", prov.Slug, err)
	}
	p.log.Infof("%s finished %s: %d found, %d new, %d updated, %d removed, %d price changes, %d credits",
		prov.Slug, res.Status, res.ProductsFound, res.ProductsNew, res.ProductsUpdated, res.ProductsRemoved, len(res.PriceChanges), res.CreditsConsumed)
	return res
}

// persist writes the scraped products, their history and any changes, then
// retires the current products the scrape no longer lists. A complete scrape
// sweeps every product; an incomplete one sweeps only products sourced from
// pages that were extracted. A storage error stops the sweep altogether.
func (p *Pipeline) persist(ctx context.Context, prov market.Provider, out *providers.Outcome, at time.Time) {
	res := out.Result
	storeFailed := false
	fail := func(format string, args ...interface{}) {
		storeFailed = true
		res.AddError(format, args...)
		p.log.Warnf("[%s] "+format, append([]interface{}{prov.Slug}, args...)...)
		if res.Status == market.JobSucceeded {
			res.Status = market.JobPartial
		}
	}

	existing, err := p.repo.CurrentProducts(ctx, prov.ID)
	if err != nil {
		fail("loading current products: %v", err)
		return
	}
	byKey := make(map[string]*market.CompetitorProduct, len(existing))
	for i := range existing {
		byKey[existing[i].IdentityKey] = &existing[i]
	}

	seen := make(map[string]struct{}, len(out.Products))
	for _, np := range out.Products {
		key := np.IdentityKey()
		seen[key] = struct{}{}
		prev := byKey[key]
		obs := p.opts.Detector.Observe(prev, np, at)

		var productID string
		if prev == nil {
			cp := market.CompetitorProduct{
				ID:                uuid.NewString(),
				ProviderID:        prov.ID,
				NormalizedProduct: np,
				IdentityKey:       key,
				Lifecycle:         market.Current,
				FirstSeenAt:       at,
				LastSeenAt:        at,
			}
			if err := p.repo.InsertProduct(ctx, cp); err != nil {
				fail("saving %q: %v", np.Name, err)
				continue
			}
			productID = cp.ID
			res.ProductsNew++
		} else {
			cp := *prev
			cp.NormalizedProduct = np
			cp.LastSeenAt = at
			if err := p.repo.UpdateProduct(ctx, cp); err != nil {
				fail("updating %q: %v", np.Name, err)
				continue
			}
			productID = cp.ID
			if obs.State == pricing.Changed || !sameOffering(prev.NormalizedProduct, np) {
				res.ProductsUpdated++
			} else {
				res.ProductsUnchanged++
			}
		}

		if err := p.repo.AppendPriceHistory(ctx, market.PricePoint{CompetitorProductID: productID, MonthlyPrice: np.MonthlyPrice, RecordedAt: at}); err != nil {
			fail("recording price of %q: %v", np.Name, err)
		}
		if obs.Change != nil {
			if err := p.repo.SavePriceChange(ctx, *obs.Change); err != nil {
				fail("recording price change of %q: %v", np.Name, err)
			} else {
				res.PriceChanges = append(res.PriceChanges, *obs.Change)
			}
		}
		if obs.Alert != nil {
			p.saveAlert(ctx, res, *obs.Alert)
		}
	}

	if storeFailed {
		return
	}
	if len(out.Products) == 0 && len(existing) > 0 {
		p.log.Errorf("%s returned 0 products but %d are current, not sweeping", prov.Slug, len(existing))
		return
	}
	parsed := make(map[string]struct{}, len(out.Parsed))
	for _, u := range out.Parsed {
		parsed[u] = struct{}{}
	}
	for _, cp := range existing {
		if _, ok := seen[cp.IdentityKey]; ok {
			continue
		}
		if _, ok := parsed[cp.SourceURL]; !ok && !out.Complete {
			continue
		}
		if mayBeDropped(cp, out.Dropped) {
			p.log.Debugf("[%s] keeping %q, a record that failed to normalize may be it", prov.Slug, cp.Name)
			continue
		}
		if err := p.repo.SupersedeProduct(ctx, cp.ID, at); err != nil {
			fail("retiring %q: %v", cp.Name, err)
			continue
		}
		res.ProductsRemoved++
		if obs := p.opts.Detector.Discontinue(cp, at); obs.Alert != nil {
			p.saveAlert(ctx, res, *obs.Alert)
		}
	}
}

// saveAlert stores an alert and dispatches it when it is new.
func (p *Pipeline) saveAlert(ctx context.Context, res *market.ScrapeJobResult, a market.Alert) {
	inserted, err := p.repo.SaveAlert(ctx, a)
	if err != nil {
		p.log.Warnf("Could not save %s alert: %v", a.Type, err)
		return
	}
	if !inserted {
		p.log.Debugf("Alert %s already raised today", a.DedupKey)
		return
	}
	res.Alerts = append(res.Alerts, a)
	p.opts.Dispatcher.Dispatch(a)
}

// mayBeDropped reports whether cp could be the offering behind one of the
// records that failed normalization. A record without a name or external ID
// could be anything.
func mayBeDropped(cp market.CompetitorProduct, dropped []market.RawProduct) bool {
	for _, raw := range dropped {
		if id := strings.TrimSpace(raw.ExternalID); id != "" {
			if strings.EqualFold(id, cp.ExternalID) {
				return true
			}
			continue
		}
		name := strings.Join(strings.Fields(raw.Name), " ")
		if name == "" {
			name = strings.Join(strings.Fields(raw.DeviceName), " ")
		}
		if name == "" || strings.EqualFold(name, cp.Name) {
			return true
		}
	}
	return false
}

func sameOffering(a, b market.NormalizedProduct) bool {
	return a.Name == b.Name &&
		a.ProductType == b.ProductType &&
		a.Technology == b.Technology &&
		a.MonthlyPrice.Equal(b.MonthlyPrice) &&
		sameDecimal(a.OnceOffPrice, b.OnceOffPrice) &&
		sameInt(a.DataAllowanceGB, b.DataAllowanceGB) &&
		sameInt(a.SpeedMbps, b.SpeedMbps) &&
		a.ContractTermMonths == b.ContractTermMonths &&
		a.DeviceIncluded == b.DeviceIncluded &&
		a.DeviceName == b.DeviceName
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameDecimal(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
