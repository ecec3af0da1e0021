package providers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rivalscope/rivalscope/pkg/market"
)

// ErrNotFound matches any *NotFoundError.
var ErrNotFound = errors.New("provider not registered")

// NotFoundError is returned for an unknown slug.
type NotFoundError struct {
	Slug string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("provider %q is not registered", e.Slug)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Factory builds a fresh scraper.
type Factory func() Scraper

// Definition is what a competitor package registers: the provider's default
// record and how to build its scraper.
type Definition struct {
	Provider market.Provider
	Factory  Factory
}

// Registry maps slugs to scraper definitions. It is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

func normSlug(slug string) string { return strings.ToLower(strings.TrimSpace(slug)) }

// Register adds a definition. Registering a slug twice is an error.
func (r *Registry) Register(slug string, def Definition) error {
	slug = normSlug(slug)
	if slug == "" {
		return errors.New("provider slug is required")
	}
	if def.Factory == nil {
		return fmt.Errorf("provider %q has no scraper factory", slug)
	}
	if def.Provider.Slug == "" {
		def.Provider.Slug = slug
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.defs[slug]; ok {
		return fmt.Errorf("provider %q is already registered", slug)
	}
	r.defs[slug] = def
	return nil
}

// Get builds the scraper registered under slug.
func (r *Registry) Get(slug string) (Scraper, error) {
	def, err := r.Definition(slug)
	if err != nil {
		return nil, err
	}
	return def.Factory(), nil
}

// Definition returns the registration for slug.
func (r *Registry) Definition(slug string) (Definition, error) {
	slug = normSlug(slug)
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[slug]
	if !ok {
		return Definition{}, &NotFoundError{Slug: slug}
	}
	return def, nil
}

// Slugs returns all registered slugs, sorted.
func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for s := range r.defs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Definitions returns every registration, sorted by slug.
func (r *Registry) Definitions() []Definition {
	slugs := r.Slugs()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(slugs))
	for _, s := range slugs {
		out = append(out, r.defs[s])
	}
	return out
}

// ListActive builds a scraper for every definition whose provider is active.
func (r *Registry) ListActive() []Scraper {
	var out []Scraper
	for _, def := range r.Definitions() {
		if def.Provider.Active {
			out = append(out, def.Factory())
		}
	}
	return out
}
