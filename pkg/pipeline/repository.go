package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rivalscope/rivalscope/pkg/market"
)

// ErrNotFound is returned by a Repository lookup that matched nothing.
var ErrNotFound = errors.New("not found")

// Repository is the persistence the pipeline needs. Implementations must be
// safe for concurrent use by several provider workers.
type Repository interface {
	ListProviders(ctx context.Context) ([]market.Provider, error)
	// GetProvider looks a provider up by slug and wraps ErrNotFound when
	// there is none.
	GetProvider(ctx context.Context, slug string) (*market.Provider, error)
	// SaveProvider inserts or updates by slug. An empty ID is assigned.
	SaveProvider(ctx context.Context, p *market.Provider) error
	MarkScraped(ctx context.Context, providerID string, at time.Time) error

	// CurrentProducts lists current offerings of a provider, or of every
	// provider when providerID is empty.
	CurrentProducts(ctx context.Context, providerID string) ([]market.CompetitorProduct, error)
	CountSuperseded(ctx context.Context) (int, error)
	InsertProduct(ctx context.Context, p market.CompetitorProduct) error
	UpdateProduct(ctx context.Context, p market.CompetitorProduct) error
	// SupersedeProduct flips a product out of current. History is kept.
	SupersedeProduct(ctx context.Context, id string, at time.Time) error

	AppendPriceHistory(ctx context.Context, pp market.PricePoint) error
	PriceHistory(ctx context.Context, productID string) ([]market.PricePoint, error)
	SavePriceChange(ctx context.Context, c market.PriceChange) error
	PriceChangesSince(ctx context.Context, since time.Time) ([]market.PriceChange, error)

	// SaveAlert stores an alert unless one with the same dedup key exists.
	// It reports whether the alert was inserted.
	SaveAlert(ctx context.Context, a market.Alert) (bool, error)
	RecentAlerts(ctx context.Context, limit int) ([]market.Alert, error)

	Catalog(ctx context.Context) ([]market.InternalProduct, error)
	SaveInternalProduct(ctx context.Context, p market.InternalProduct) error
	Matches(ctx context.Context) ([]market.Match, error)
	// ReplaceMatches drops the unreviewed matches of an internal product and
	// stores the given ones. Reviewed matches survive and are not duplicated.
	ReplaceMatches(ctx context.Context, internalID string, matches []market.Match) error

	SaveJobResult(ctx context.Context, r *market.ScrapeJobResult) error
	RecentJobs(ctx context.Context, limit int) ([]market.ScrapeJobResult, error)
}
