package normalize

import "github.com/rivalscope/rivalscope/pkg/market"

// Profile carries the provider-specific normalization knobs.
type Profile struct {
	// Synonyms maps a technology to the lowercase words a provider uses for it.
	Synonyms           map[market.Technology][]string
	DefaultProductType market.ProductType
	DefaultTechnology  market.Technology
	CurrencySymbol     string
	DecimalSeparator   string
}

// techPrecedence is the order in which technologies win when a name
// mentions several, e.g. "5G/LTE router".
var techPrecedence = []market.Technology{
	market.Tech5G,
	market.TechLTE,
	market.TechFibre,
	market.TechADSL,
	market.TechWireless,
}

var defaultSynonyms = map[market.Technology][]string{
	market.Tech5G:       {"5g"},
	market.TechLTE:      {"lte", "4g", "lte a"},
	market.TechFibre:    {"fibre", "fiber", "ftth", "fttb"},
	market.TechADSL:     {"adsl", "vdsl", "dsl"},
	market.TechWireless: {"wireless", "fixed wireless", "wifi"},
}

// DefaultProfile is the South African rand profile with the base synonyms.
func DefaultProfile() Profile {
	return Profile{
		Synonyms:           defaultSynonyms,
		DefaultProductType: market.ProductUnknown,
		DefaultTechnology:  market.TechUnknown,
		CurrencySymbol:     "R",
		DecimalSeparator:   ".",
	}
}

// WithSynonyms returns a copy of p whose synonym table extends the base one.
func (p Profile) WithSynonyms(extra map[market.Technology][]string) Profile {
	merged := make(map[market.Technology][]string, len(p.Synonyms)+len(extra))
	for k, v := range p.Synonyms {
		merged[k] = append([]string(nil), v...)
	}
	for k, v := range extra {
		merged[k] = append(merged[k], v...)
	}
	p.Synonyms = merged
	return p
}

func (p Profile) withDefaults() Profile {
	if p.Synonyms == nil {
		p.Synonyms = defaultSynonyms
	}
	if p.DefaultProductType == "" {
		p.DefaultProductType = market.ProductUnknown
	}
	if p.DefaultTechnology == "" {
		p.DefaultTechnology = market.TechUnknown
	}
	if p.CurrencySymbol == "" {
		p.CurrencySymbol = "R"
	}
	if p.DecimalSeparator == "" {
		p.DecimalSeparator = "."
	}
	return p
}
