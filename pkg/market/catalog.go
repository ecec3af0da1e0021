package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var productTypes = map[ProductType]bool{
	ProductFibre: true, ProductMobileContract: true, ProductLTE: true, Product5G: true,
	ProductDataOnly: true, ProductPrepaid: true, ProductBundle: true, ProductUnknown: true,
}

var technologies = map[Technology]bool{
	TechFibre: true, TechLTE: true, Tech5G: true, TechADSL: true, TechWireless: true, TechUnknown: true,
}

// Validate checks one catalog entry. Empty type and technology default to
// unknown.
func (p *InternalProduct) Validate() error {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	if p.ID == "" {
		return errors.New("id is required")
	}
	if p.Name == "" {
		return fmt.Errorf("%s: name is required", p.ID)
	}
	if p.ProductType == "" {
		p.ProductType = ProductUnknown
	}
	if p.Technology == "" {
		p.Technology = TechUnknown
	}
	if !productTypes[p.ProductType] {
		return fmt.Errorf("%s: unknown product type %q", p.ID, p.ProductType)
	}
	if !technologies[p.Technology] {
		return fmt.Errorf("%s: unknown technology %q", p.ID, p.Technology)
	}
	if !p.MonthlyPrice.IsPositive() {
		return fmt.Errorf("%s: monthly price must be positive", p.ID)
	}
	if p.ContractTermMonths < 0 {
		return fmt.Errorf("%s: contract term must not be negative", p.ID)
	}
	for name, v := range map[string]*int{"data allowance": p.DataAllowanceGB, "speed": p.SpeedMbps, "subscribers": p.Subscribers} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s: %s must not be negative", p.ID, name)
		}
	}
	return nil
}

// DecodeCatalog reads a JSON array of internal products and validates each.
// Duplicate IDs are rejected.
func DecodeCatalog(r io.Reader) ([]InternalProduct, error) {
	var items []InternalProduct
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	seen := make(map[string]bool, len(items))
	for i := range items {
		if err := items[i].Validate(); err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		if seen[items[i].ID] {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %s", i, items[i].ID)
		}
		seen[items[i].ID] = true
	}
	return items, nil
}
