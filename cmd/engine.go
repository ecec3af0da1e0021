package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rivalscope/rivalscope/internal/config"
	"github.com/rivalscope/rivalscope/internal/utils"
	"github.com/rivalscope/rivalscope/pkg/analysis"
	"github.com/rivalscope/rivalscope/pkg/extraction"
	"github.com/rivalscope/rivalscope/pkg/market"
	"github.com/rivalscope/rivalscope/pkg/matcher"
	"github.com/rivalscope/rivalscope/pkg/notify"
	"github.com/rivalscope/rivalscope/pkg/pipeline"
	"github.com/rivalscope/rivalscope/pkg/pricing"
	"github.com/rivalscope/rivalscope/pkg/providers/all"
	"github.com/rivalscope/rivalscope/pkg/storage"
	"github.com/spf13/viper"
)

var _ pipeline.Extractor = (*extraction.Session)(nil)

// engine bundles what a command needs to talk to the database and, for
// scraping commands, the extraction service.
type engine struct {
	cfg        *config.Config
	db         *storage.DB
	pipeline   *pipeline.Pipeline
	analyzer   *analysis.Engine
	dispatcher *notify.Dispatcher
	lock       *utils.DBLock
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetViper())
}

// openEngine loads the configuration and opens the database. With scrape
// set, an extraction client is built and an API key is required.
func openEngine(scrape bool) (*engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	var sessions pipeline.SessionFactory
	if scrape {
		clientCfg := cfg.ExtractionClient()
		clientCfg.Logger = utils.Log
		client, err := extraction.NewClient(clientCfg)
		if err != nil {
			return nil, err
		}
		budget := cfg.Extraction.Budget
		sessions = func() pipeline.Extractor { return client.NewSession(budget) }
	} else {
		// Read-only commands never start a run.
		sessions = func() pipeline.Extractor { return nil }
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	e := &engine{cfg: cfg, db: db}
	if e.pipeline, err = e.newPipeline(sessions); err != nil {
		db.Close()
		return nil, err
	}

	if e.lock, err = utils.NewDBLock(cfg.DBPath); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func (e *engine) newPipeline(sessions pipeline.SessionFactory) (*pipeline.Pipeline, error) {
	registry, err := all.NewRegistry()
	if err != nil {
		return nil, err
	}
	detector, err := pricing.New(e.cfg.Pricing)
	if err != nil {
		return nil, err
	}
	m, err := matcher.New(e.cfg.Matcher)
	if err != nil {
		return nil, err
	}
	if e.analyzer, err = analysis.New(e.cfg.Analysis, m); err != nil {
		return nil, err
	}

	senders := notify.Multi{notify.LogSender{Logger: utils.Log}}
	if url := e.cfg.Notify.WebhookURL; url != "" {
		senders = append(senders, notify.NewWebhookSender(url, e.cfg.Notify.Retries, e.cfg.Notify.Timeout))
	}
	e.dispatcher = notify.NewDispatcher(senders, utils.Log)

	return pipeline.New(e.db, registry, sessions, pipeline.Options{
		Concurrency:    e.cfg.Pipeline.Concurrency,
		URLConcurrency: e.cfg.Pipeline.URLConcurrency,
		MaxURLs:        e.cfg.Pipeline.MaxURLs,
		StaleAfter:     e.cfg.Pipeline.StaleAfter,
		AlertLimit:     e.cfg.Pipeline.AlertLimit,
		Detector:       detector,
		Matcher:        m,
		Analysis:       e.analyzer,
		Dispatcher:     e.dispatcher,
		Log:            utils.Log,
	})
}

// write runs fn while holding the cross-process database lock.
func (e *engine) write(ctx context.Context, fn func() error) error {
	if err := e.lock.LockContext(ctx); err != nil {
		return err
	}
	defer func() {
		if err := e.lock.Unlock(); err != nil {
			utils.Log.Warnf("Could not release database lock: %v", err)
		}
	}()
	return fn()
}

// Close waits for pending notifications and closes the database.
func (e *engine) Close() error {
	e.dispatcher.Wait()
	return e.db.Close()
}

func printJobResults(results []*market.ScrapeJobResult) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tSTATUS\tFOUND\tNEW\tUPDATED\tUNCHANGED\tREMOVED\tCREDITS\tALERTS\t")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n", r.ProviderSlug, r.Status,
			r.ProductsFound, r.ProductsNew, r.ProductsUpdated, r.ProductsUnchanged, r.ProductsRemoved,
			r.CreditsConsumed, len(r.Alerts))
	}
	w.Flush()

	for _, r := range results {
		for _, msg := range r.Errors {
			utils.Log.Warnf("[%s] %s", r.ProviderSlug, msg)
		}
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func countFailed(results []*market.ScrapeJobResult) int {
	n := 0
	for _, r := range results {
		if r.Status == market.JobFailed {
			n++
		}
	}
	return n
}
