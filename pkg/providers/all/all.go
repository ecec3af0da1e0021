// Package all registers every competitor scraper. Adding a competitor is a
// new package under providers plus one line here.
package all

import (
	"github.com/rivalscope/rivalscope/pkg/providers"
	"github.com/rivalscope/rivalscope/pkg/providers/mtn"
	"github.com/rivalscope/rivalscope/pkg/providers/openserve"
	"github.com/rivalscope/rivalscope/pkg/providers/rain"
	"github.com/rivalscope/rivalscope/pkg/providers/telkom"
	"github.com/rivalscope/rivalscope/pkg/providers/vodacom"
)

var definitions = map[string]func() providers.Definition{
	mtn.Slug:       mtn.Definition,
	vodacom.Slug:   vodacom.Definition,
	telkom.Slug:    telkom.Definition,
	rain.Slug:      rain.Definition,
	openserve.Slug: openserve.Definition,
}

// Register adds all known competitors to r.
func Register(r *providers.Registry) error {
	for slug, def := range definitions {
		if err := r.Register(slug, def()); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding every known competitor.
func NewRegistry() (*providers.Registry, error) {
	r := providers.NewRegistry()
	if err := Register(r); err != nil {
		return nil, err
	}
	return r, nil
}
